// Package abort defines the cancellation predicate consulted between
// socket transfer attempts, with ready-made implementations.
package abort

import (
	"context"
	"sync/atomic"
)

// Checker reports whether a long-running operation should stop early. It
// is queried between transfer attempts and is borrowed, never owned:
// callers keep only the reference they were handed and must not retain it
// past the checker's lifetime.
type Checker interface {
	ShouldAbort() bool
}

// Never is a Checker that never aborts.
type Never struct{}

func (Never) ShouldAbort() bool { return false }

// Flag is a Checker triggered explicitly. Trigger may be called from a
// different goroutine than the one performing I/O.
type Flag struct {
	aborted atomic.Bool
}

// Trigger makes every subsequent ShouldAbort call return true.
func (f *Flag) Trigger() { f.aborted.Store(true) }

func (f *Flag) ShouldAbort() bool { return f.aborted.Load() }

// FromContext adapts ctx to a Checker: once ctx is done, operations
// consulting the checker abort.
func FromContext(ctx context.Context) Checker {
	return ctxChecker{ctx: ctx}
}

type ctxChecker struct {
	ctx context.Context
}

func (c ctxChecker) ShouldAbort() bool { return c.ctx.Err() != nil }
