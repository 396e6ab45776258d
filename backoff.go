package acceptor

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Defaults for Backoff fields left at zero.
const (
	DefaultBackoffBase       = 1 * time.Second
	DefaultBackoffMax        = 30 * time.Second
	DefaultBackoffMultiplier = 2.0
	DefaultBackoffJitter     = 0.25
)

// Backoff computes successive retry delays: exponential growth with
// random jitter, capped at a maximum. Construct with NewBackoff and
// adjust fields before first use.
type Backoff struct {
	Base       time.Duration // first delay. Default: 1s
	Max        time.Duration // cap on the delay growth. Default: 30s
	Multiplier float64       // growth factor per attempt. Default: 2.0
	Jitter     float64       // random fraction applied to each delay. Default: 0.25

	clock   Clock
	current time.Duration
}

// NewBackoff returns a Backoff with default parameters.
func NewBackoff() *Backoff {
	return &Backoff{
		Base:       DefaultBackoffBase,
		Max:        DefaultBackoffMax,
		Multiplier: DefaultBackoffMultiplier,
		Jitter:     DefaultBackoffJitter,
		clock:      realClock{},
	}
}

// SetClock sets a custom clock implementation for testing.
func (b *Backoff) SetClock(c Clock) { b.clock = c }

// Next returns the delay to apply before the upcoming attempt and advances
// the backoff state.
func (b *Backoff) Next() time.Duration {
	if b.current == 0 {
		b.current = b.Base
	}
	d := b.jittered(b.current)
	next := float64(b.current) * b.Multiplier
	b.current = time.Duration(math.Min(next, float64(b.Max)))
	return d
}

// Reset returns the backoff to its base delay, for use after a success.
func (b *Backoff) Reset() { b.current = 0 }

// Wait blocks for the next delay or until ctx is done, whichever comes
// first.
func (b *Backoff) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-b.clock.After(b.Next()):
		return nil
	}
}

// jittered spreads d by up to the jitter fraction in either direction so
// simultaneous retriers do not thunder in lockstep.
func (b *Backoff) jittered(d time.Duration) time.Duration {
	if b.Jitter <= 0 {
		return d
	}
	delta := (rand.Float64()*2 - 1) * b.Jitter * float64(d)
	return time.Duration(float64(d) + delta)
}
