package acceptor

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// Listen resolves candidate local addresses and binds the first one that
// works, then starts listening with the configured backlog. It is
// idempotent: when the listening socket is already open it returns nil
// without touching it.
//
// Resolution failures and rejected options are non-retryable. Running out
// of bind candidates and listen(2) failures are retryable: they are often
// cleared by trying again later or on a neighboring port.
func (a *Acceptor) Listen(ctx context.Context) error {
	if a.lfd.Valid() {
		return nil
	}
	if err := a.opts.Validate(); err != nil {
		return opError("listen", a.port, err)
	}
	cands, err := resolveCandidates(ctx, a.opts.BindAddress, a.port, a.family, true)
	if err != nil {
		a.logger.Error("address resolution failed", "port", a.port, "error", err)
		return opError("resolve", a.port, err)
	}
	for _, c := range cands {
		a.logger.Debug("will listen on", "addr", c.addr.String())
		s, err := sysSocket(c.family)
		if err != nil {
			a.logger.Warn("socket create failed", "addr", c.addr.String(), "error", err)
			continue
		}
		if err := applyListenerSockopts(s, c.family, a.family); err != nil {
			a.logger.Warn("socket option failed", "addr", c.addr.String(), "error", err)
			unix.Close(s)
			continue
		}
		if err := unix.Bind(s, c.sa); err != nil {
			a.logger.Warn("bind failed", "addr", c.addr.String(), "error", err)
			unix.Close(s)
			continue
		}
		if a.port == 0 {
			p, err := boundPort(s)
			if err != nil {
				a.logger.Warn("getsockname failed", "addr", c.addr.String(), "error", err)
				unix.Close(s)
				continue
			}
			a.logger.Debug("assigned ephemeral port", "port", p)
			a.port = p
		}
		a.lfd = AdoptFD(s)
		break
	}
	if !a.lfd.Valid() {
		a.logger.Error("no candidate address could be bound", "port", a.port)
		return retryableError("bind", a.port, errors.New("no candidate address could be bound"))
	}
	if err := unix.Listen(a.lfd.Raw(), a.backlog); err != nil {
		a.logger.Error("listen failed", "port", a.port, "backlog", a.backlog, "error", err)
		if cerr := a.lfd.Close(); cerr != nil {
			a.logger.Error("close after failed listen", "port", a.port, "error", cerr)
		}
		return retryableError("listen", a.port, err)
	}
	a.logger.Debug("listening", "port", a.port, "listen_fd", a.lfd.Raw(), "backlog", a.backlog)
	return nil
}

// applyListenerSockopts prepares a freshly created listener socket.
// SO_REUSEADDR lets a restart bind over lingering TIME_WAIT pairs. When
// IPv6 was explicitly requested, IPV6_V6ONLY keeps the wildcard listener
// from also accepting IPv4-mapped peers; otherwise the OS default (dual
// stack) is left alone.
func applyListenerSockopts(s, family, preferred int) error {
	if err := unix.SetsockoptInt(s, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return fmt.Errorf("SO_REUSEADDR: %w", err)
	}
	if family == unix.AF_INET6 && preferred == unix.AF_INET6 {
		if err := unix.SetsockoptInt(s, unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, 1); err != nil {
			return fmt.Errorf("IPV6_V6ONLY: %w", err)
		}
	}
	return nil
}

// boundPort queries which port the OS picked after an ephemeral bind.
func boundPort(s int) (int, error) {
	sa, err := unix.Getsockname(s)
	if err != nil {
		return 0, err
	}
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		return sa.Port, nil
	case *unix.SockaddrInet6:
		return sa.Port, nil
	default:
		return 0, fmt.Errorf("unexpected sockaddr type %T", sa)
	}
}
