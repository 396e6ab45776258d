// Package acceptor implements single-connection TCP endpoints built
// directly on raw socket descriptors: a server-side Acceptor with a
// timeout-bounded accept, its client-side Connector counterpart, and
// abort-aware read/write delegation for both.
package acceptor

import (
	"log/slog"

	"golang.org/x/sys/unix"

	"github.com/portside/acceptor/abort"
	"github.com/portside/acceptor/sockutil"
)

// pollFunc matches unix.Poll so tests can script readiness and
// interruption.
type pollFunc func(fds []unix.PollFd, timeoutMillis int) (int, error)

// Acceptor owns one listening TCP socket and at most one accepted
// connection at a time. It is not safe for concurrent use: each instance
// has a single owner, and ownership of the underlying descriptors moves
// with Move and Swap.
//
// The abort checker passed at construction is borrowed, not copied: it must
// stay alive for as long as the Acceptor performs I/O, and triggering it
// cancels in-flight reads and writes on the accepted connection.
type Acceptor struct {
	port    int
	backlog int
	opts    Options
	family  int
	lfd     FD
	cfd     FD
	checker abort.Checker
	logger  *slog.Logger
	clock   Clock
	poll    pollFunc
}

// New creates an Acceptor for the given local TCP port. Port 0 requests an
// OS-assigned ephemeral port, available through Port after a successful
// Listen. A non-positive backlog is replaced by DefaultBacklog. A nil
// checker never aborts, and a nil logger falls back to slog.Default().
//
// No sockets are opened until Listen or AcceptNextConnection is called.
func New(port, backlog int, checker abort.Checker, opts Options, logger *slog.Logger) *Acceptor {
	opts.ApplyDefaults()
	if backlog <= 0 {
		backlog = DefaultBacklog
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Acceptor{
		port:    port,
		backlog: backlog,
		opts:    opts,
		family:  opts.family(),
		checker: checker,
		logger:  logger.With("component", "acceptor"),
		clock:   realClock{},
		poll:    unix.Poll,
	}
}

// SetClock sets a custom clock implementation for testing.
func (a *Acceptor) SetClock(c Clock) { a.clock = c }

// Read reads from the accepted connection into buf, consulting the abort
// checker between transfer attempts. With tryFull false it returns after
// the first successful transfer; with tryFull true it keeps reading until
// buf is full, the peer closes, an error occurs, or the checker fires.
// Without an accepted connection it fails with EBADF.
func (a *Acceptor) Read(buf []byte, tryFull bool) (int, error) {
	return sockutil.ReadWithAbortCheck(a.cfd.Raw(), buf, a.checker, tryFull)
}

// Write writes buf to the accepted connection, consulting the abort
// checker between transfer attempts. With tryFull false it returns after
// the first successful transfer; with tryFull true it keeps writing until
// all of buf is sent, an error occurs, or the checker fires. Without an
// accepted connection it fails with EBADF.
func (a *Acceptor) Write(buf []byte, tryFull bool) (int, error) {
	return sockutil.WriteWithAbortCheck(a.cfd.Raw(), buf, a.checker, tryFull)
}

// CloseCurrentConnection closes the accepted connection, if any, leaving
// the listener untouched so another connection can be accepted. It is a
// no-op when no connection is active.
func (a *Acceptor) CloseCurrentConnection() error {
	return a.cfd.Close()
}

// CloseAll closes the accepted connection and then the listening socket,
// logging close failures instead of propagating them. It is idempotent and
// safe to defer for teardown. A later Listen may bind the port again.
func (a *Acceptor) CloseAll() {
	a.logger.Debug("closing server socket",
		"port", a.port, "listen_fd", a.lfd.Raw(), "fd", a.cfd.Raw())
	if err := a.cfd.Close(); err != nil {
		a.logger.Error("connection close failed", "port", a.port, "error", err)
	}
	if err := a.lfd.Close(); err != nil {
		a.logger.Error("listener close failed", "port", a.port, "error", err)
	}
}

// Move transfers the port, address family state, both descriptors, and the
// abort checker reference to a brand new Acceptor and returns it. The
// source keeps no descriptors and its port becomes -1, so its CloseAll
// performs no OS calls and a later Listen fails instead of silently
// reacquiring the port.
func (a *Acceptor) Move() *Acceptor {
	dst := &Acceptor{
		port:    a.port,
		backlog: a.backlog,
		opts:    a.opts,
		family:  a.family,
		checker: a.checker,
		logger:  a.logger,
		clock:   a.clock,
		poll:    a.poll,
	}
	dst.lfd.Swap(&a.lfd)
	dst.cfd.Swap(&a.cfd)
	a.port = -1
	return dst
}

// Swap exchanges the port, address family state, both descriptors, and the
// abort checker with other. Each Acceptor remains responsible for exactly
// the descriptors it holds afterwards. The backlog is fixed at
// construction and stays with its instance.
func (a *Acceptor) Swap(other *Acceptor) {
	a.port, other.port = other.port, a.port
	a.opts, other.opts = other.opts, a.opts
	a.family, other.family = other.family, a.family
	a.lfd.Swap(&other.lfd)
	a.cfd.Swap(&other.cfd)
	a.checker, other.checker = other.checker, a.checker
}

// Fd returns the raw descriptor of the accepted connection, or -1 when no
// connection is active.
func (a *Acceptor) Fd() int { return a.cfd.Raw() }

// ListenFd returns the raw listening descriptor, or -1 when not listening.
func (a *Acceptor) ListenFd() int { return a.lfd.Raw() }

// Port returns the port this Acceptor serves: the one requested at
// construction, the OS-assigned one once an ephemeral bind succeeded, or
// -1 after ownership was moved away.
func (a *Acceptor) Port() int { return a.port }

// Backlog returns the listen queue depth fixed at construction.
func (a *Acceptor) Backlog() int { return a.backlog }
