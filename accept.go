package acceptor

import (
	"context"
	"time"

	"golang.org/x/sys/unix"

	"github.com/portside/acceptor/sockutil"
)

// AcceptNextConnection waits for and accepts a single inbound connection,
// listening first if needed. A positive timeout bounds the wait: when no
// connection arrives within it, the call fails with an error matching
// ErrTimeout. A non-positive timeout blocks until a connection arrives.
//
// On success the new connection becomes the one served by Read and Write,
// with the configured per-socket timeouts applied. A connection still open
// from a previous call is closed first so its descriptor cannot leak. On
// failure a previously accepted connection is left untouched.
func (a *Acceptor) AcceptNextConnection(ctx context.Context, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return opError("accept", a.port, err)
	}
	if err := a.Listen(ctx); err != nil {
		return err
	}
	if timeout > 0 {
		if err := a.waitReadable(timeout); err != nil {
			return err
		}
	}
	nfd, sa, err := a.acceptOne()
	if err != nil {
		a.logger.Error("accept failed", "port", a.port, "error", err)
		return opError("accept", a.port, err)
	}
	if a.cfd.Valid() {
		a.logger.Debug("closing superseded connection", "port", a.port, "fd", a.cfd.Raw())
		if cerr := a.cfd.Close(); cerr != nil {
			a.logger.Error("superseded connection close failed", "port", a.port, "error", cerr)
		}
	}
	a.cfd = AdoptFD(nfd)
	if err := sockutil.SetReadTimeout(nfd, a.opts.ReadTimeout); err != nil {
		a.logger.Warn("set read timeout failed", "fd", nfd, "error", err)
	}
	if err := sockutil.SetWriteTimeout(nfd, a.opts.WriteTimeout); err != nil {
		a.logger.Warn("set write timeout failed", "fd", nfd, "error", err)
	}
	a.logger.Debug("new connection", "port", a.port, "fd", nfd, "peer", sockutil.NameInfo(sa))
	return nil
}

// waitReadable polls the listening socket until it is readable or the
// timeout budget is spent. Interrupted polls are retried with a freshly
// computed budget, so signal delivery neither shortens nor extends the
// wait. The remaining budget is rounded up to whole milliseconds: rounding
// down would let the final poll expire before the full budget has elapsed.
func (a *Acceptor) waitReadable(timeout time.Duration) error {
	start := a.clock.Now()
	for {
		elapsed := a.clock.Now().Sub(start)
		if elapsed >= timeout {
			break
		}
		remain := timeout - elapsed
		millis := int((remain + time.Millisecond - 1) / time.Millisecond)
		fds := []unix.PollFd{{Fd: int32(a.lfd.Raw()), Events: unix.POLLIN}}
		n, err := a.poll(fds, millis)
		if err != nil {
			if err == unix.EINTR {
				a.logger.Debug("poll interrupted, retrying", "port", a.port)
				continue
			}
			a.logger.Error("poll failed", "port", a.port, "listen_fd", a.lfd.Raw(), "error", err)
			return opError("accept wait", a.port, err)
		}
		if n == 0 {
			break
		}
		return nil
	}
	a.logger.Error("accept timed out", "port", a.port, "timeout", timeout)
	return timeoutError("accept wait", a.port, timeout)
}

// acceptOne accepts a single connection, retrying interrupted calls.
func (a *Acceptor) acceptOne() (int, unix.Sockaddr, error) {
	for {
		nfd, sa, err := sysAccept(a.lfd.Raw())
		if err == unix.EINTR {
			continue
		}
		return nfd, sa, err
	}
}
