// Package sockutil provides the socket-level helpers shared by the
// acceptor endpoints: abort-aware read and write primitives, per-socket
// timeout configuration, and peer address formatting.
package sockutil

import (
	"errors"
	"fmt"
	"io"
	"net/netip"
	"time"

	"golang.org/x/sys/unix"

	"github.com/portside/acceptor/abort"
)

// ErrAborted is returned when the abort checker cancels an in-flight
// transfer. The byte count returned alongside it is still meaningful.
var ErrAborted = errors.New("sockutil: transfer aborted")

// ReadWithAbortCheck reads from fd into buf in one or more attempts,
// consulting checker between attempts. Interrupted and timed-out syscalls
// are retried, so a per-socket receive timeout bounds each attempt while
// the checker bounds the transfer as a whole.
//
// With tryFull false the first successful read returns. With tryFull true
// reading continues until buf is full, the peer closes (io.EOF when
// nothing was read, io.ErrUnexpectedEOF mid-transfer), an error occurs, or
// the checker fires (ErrAborted). A count shorter than requested is always
// accompanied by a non-nil error.
func ReadWithAbortCheck(fd int, buf []byte, checker abort.Checker, tryFull bool) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := unix.Read(fd, buf[total:])
		if err != nil {
			if !retryableIOErr(err) {
				return total, fmt.Errorf("sockutil: read fd %d: %w", fd, err)
			}
		} else if n == 0 {
			if total == 0 {
				return 0, io.EOF
			}
			return total, io.ErrUnexpectedEOF
		} else {
			total += n
			if !tryFull {
				return total, nil
			}
		}
		if total == len(buf) {
			break
		}
		if shouldAbort(checker) {
			return total, ErrAborted
		}
	}
	return total, nil
}

// WriteWithAbortCheck writes buf to fd in one or more attempts, consulting
// checker between attempts. Interrupted and timed-out syscalls are
// retried, mirroring ReadWithAbortCheck.
//
// With tryFull false the first successful write returns. With tryFull true
// writing continues until all of buf is sent, an error occurs, or the
// checker fires (ErrAborted). A count shorter than len(buf) is always
// accompanied by a non-nil error.
func WriteWithAbortCheck(fd int, buf []byte, checker abort.Checker, tryFull bool) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := unix.Write(fd, buf[total:])
		if err != nil {
			if !retryableIOErr(err) {
				return total, fmt.Errorf("sockutil: write fd %d: %w", fd, err)
			}
		} else {
			total += n
			if !tryFull {
				return total, nil
			}
		}
		if total == len(buf) {
			break
		}
		if shouldAbort(checker) {
			return total, ErrAborted
		}
	}
	return total, nil
}

// SetReadTimeout bounds each read syscall on fd via SO_RCVTIMEO. A
// non-positive d leaves reads unbounded.
func SetReadTimeout(fd int, d time.Duration) error {
	return setTimeout(fd, unix.SO_RCVTIMEO, d)
}

// SetWriteTimeout bounds each write syscall on fd via SO_SNDTIMEO. A
// non-positive d leaves writes unbounded.
func SetWriteTimeout(fd int, d time.Duration) error {
	return setTimeout(fd, unix.SO_SNDTIMEO, d)
}

func setTimeout(fd, opt int, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	tv := unix.NsecToTimeval(d.Nanoseconds())
	return unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, opt, &tv)
}

// NameInfo formats a socket address numerically for logging.
func NameInfo(sa unix.Sockaddr) string {
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		return netip.AddrPortFrom(netip.AddrFrom4(sa.Addr), uint16(sa.Port)).String()
	case *unix.SockaddrInet6:
		return netip.AddrPortFrom(netip.AddrFrom16(sa.Addr), uint16(sa.Port)).String()
	case nil:
		return "<nil>"
	default:
		return fmt.Sprintf("<unsupported %T>", sa)
	}
}

// retryableIOErr reports whether err is a transient syscall result: an
// interrupted call or the expiry of a per-socket timeout.
func retryableIOErr(err error) bool {
	return err == unix.EINTR || err == unix.EAGAIN || err == unix.EWOULDBLOCK
}

func shouldAbort(checker abort.Checker) bool {
	return checker != nil && checker.ShouldAbort()
}
