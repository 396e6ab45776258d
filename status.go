package acceptor

import (
	"errors"
	"fmt"
	"time"
)

// Error is the failure type returned by Acceptor and Connector operations.
// It classifies failures for retry decisions: a retryable failure may clear
// when the operation is attempted again (possibly on another port), while a
// non-retryable failure will not be helped by an immediate retry.
//
// Error supports errors.Is matching against the ErrRetryable and ErrTimeout
// sentinels and implements the net.Error method set.
type Error struct {
	Op        string // failing operation, for example "listen" or "accept wait"
	Port      int    // port involved, -1 when unknown
	Retryable bool
	TimedOut  bool
	Err       error // underlying cause, may be nil
}

// Sentinels for errors.Is classification checks.
var (
	// ErrRetryable matches any error whose condition may clear on retry.
	ErrRetryable = &Error{Retryable: true, Err: errors.New("retryable connection error")}

	// ErrTimeout matches an accept wait that spent its whole time budget
	// without an inbound connection. Timeouts are not retryable.
	ErrTimeout = &Error{TimedOut: true, Err: errors.New("accept timed out")}
)

func (e *Error) Error() string {
	s := "acceptor: " + e.Op
	if e.Port >= 0 {
		s += fmt.Sprintf(" (port %d)", e.Port)
	}
	switch {
	case e.TimedOut:
		s += ": timed out"
	case e.Retryable:
		s += ": retryable"
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

// Is classifies against the package sentinels: ErrTimeout matches any timed
// out Error and ErrRetryable matches any retryable Error. Other targets
// never match.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.TimedOut {
		return e.TimedOut
	}
	if t.Retryable {
		return e.Retryable
	}
	return false
}

// Timeout reports whether the error was an accept wait deadline expiry.
func (e *Error) Timeout() bool { return e.TimedOut }

// Temporary reports whether the error is retryable.
func (e *Error) Temporary() bool { return e.Retryable }

// IsRetryable reports whether err is classified as retryable. Errors that
// did not originate in this package classify as non-retryable.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRetryable)
}

func opError(op string, port int, err error) *Error {
	return &Error{Op: op, Port: port, Err: err}
}

func retryableError(op string, port int, err error) *Error {
	return &Error{Op: op, Port: port, Retryable: true, Err: err}
}

func timeoutError(op string, port int, d time.Duration) *Error {
	return &Error{Op: op, Port: port, TimedOut: true, Err: fmt.Errorf("no connection within %v", d)}
}
