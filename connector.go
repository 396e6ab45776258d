package acceptor

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sys/unix"

	"github.com/portside/acceptor/abort"
	"github.com/portside/acceptor/sockutil"
)

// Connector owns one outbound TCP connection at a time, the client-side
// counterpart of Acceptor. It follows the same single-owner discipline:
// calls must be serialized, and the abort checker is borrowed for the
// lifetime of the instance.
type Connector struct {
	host    string
	port    int
	opts    Options
	family  int
	fd      FD
	checker abort.Checker
	logger  *slog.Logger
	backoff *Backoff
}

// NewConnector creates a Connector for host and port. The host may be a
// name or an address literal. A nil checker never aborts, and a nil logger
// falls back to slog.Default(). No connection is made until Connect.
func NewConnector(host string, port int, checker abort.Checker, opts Options, logger *slog.Logger) *Connector {
	opts.ApplyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Connector{
		host:    host,
		port:    port,
		opts:    opts,
		family:  opts.family(),
		checker: checker,
		logger:  logger.With("component", "connector"),
		backoff: NewBackoff(),
	}
}

// Connect resolves the remote address and establishes a connection, trying
// candidates in resolver order until one succeeds. It is idempotent while
// a connection is open. Resolution failures and rejected options are
// non-retryable; exhausting all candidates is retryable.
func (c *Connector) Connect(ctx context.Context) error {
	if c.fd.Valid() {
		return nil
	}
	if err := c.opts.Validate(); err != nil {
		return opError("connect", c.port, err)
	}
	cands, err := resolveCandidates(ctx, c.host, c.port, c.family, false)
	if err != nil {
		c.logger.Error("address resolution failed", "host", c.host, "port", c.port, "error", err)
		return opError("resolve", c.port, err)
	}
	for _, cand := range cands {
		c.logger.Debug("connecting", "addr", cand.addr.String())
		s, err := sysSocket(cand.family)
		if err != nil {
			c.logger.Warn("socket create failed", "addr", cand.addr.String(), "error", err)
			continue
		}
		if err := unix.Connect(s, cand.sa); err != nil {
			c.logger.Warn("connect failed", "addr", cand.addr.String(), "error", err)
			unix.Close(s)
			continue
		}
		c.fd = AdoptFD(s)
		if err := sockutil.SetReadTimeout(s, c.opts.ReadTimeout); err != nil {
			c.logger.Warn("set read timeout failed", "fd", s, "error", err)
		}
		if err := sockutil.SetWriteTimeout(s, c.opts.WriteTimeout); err != nil {
			c.logger.Warn("set write timeout failed", "fd", s, "error", err)
		}
		c.logger.Debug("connected", "fd", s, "peer", cand.addr.String())
		return nil
	}
	c.logger.Error("no candidate address could be reached", "host", c.host, "port", c.port)
	return retryableError("connect", c.port, errors.New("no candidate address could be reached"))
}

// ConnectWithRetry calls Connect up to attempts times, backing off between
// retryable failures. A non-retryable failure or a done context stops the
// retries immediately; a success resets the backoff.
func (c *Connector) ConnectWithRetry(ctx context.Context, attempts int) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = c.Connect(ctx); err == nil {
			c.backoff.Reset()
			return nil
		}
		if !IsRetryable(err) || i == attempts-1 {
			return err
		}
		c.logger.Warn("connect failed, backing off",
			"host", c.host, "port", c.port, "attempt", i+1, "error", err)
		if werr := c.backoff.Wait(ctx); werr != nil {
			return werr
		}
	}
	return err
}

// Read reads from the connection into buf, consulting the abort checker
// between transfer attempts. The tryFull flag behaves as in Acceptor.Read.
func (c *Connector) Read(buf []byte, tryFull bool) (int, error) {
	return sockutil.ReadWithAbortCheck(c.fd.Raw(), buf, c.checker, tryFull)
}

// Write writes buf to the connection, consulting the abort checker between
// transfer attempts. The tryFull flag behaves as in Acceptor.Write.
func (c *Connector) Write(buf []byte, tryFull bool) (int, error) {
	return sockutil.WriteWithAbortCheck(c.fd.Raw(), buf, c.checker, tryFull)
}

// Close closes the connection, if any. It is idempotent.
func (c *Connector) Close() error {
	return c.fd.Close()
}

// Fd returns the raw descriptor of the connection, or -1 when not
// connected.
func (c *Connector) Fd() int { return c.fd.Raw() }

// Host returns the remote host given at construction.
func (c *Connector) Host() string { return c.host }

// Port returns the remote port given at construction.
func (c *Connector) Port() int { return c.port }
