package acceptor

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// Accepted values for Options.AddressFamily.
const (
	FamilyUnspecified = ""
	FamilyIPv4        = "ipv4"
	FamilyIPv6        = "ipv6"
)

const (
	// DefaultReadTimeout bounds each read syscall on an established
	// connection unless overridden.
	DefaultReadTimeout = 5 * time.Second

	// DefaultWriteTimeout bounds each write syscall on an established
	// connection unless overridden.
	DefaultWriteTimeout = 5 * time.Second

	// DefaultBacklog is the listen queue depth used when a non-positive
	// backlog is requested. One pending connection is all a
	// single-connection endpoint needs.
	DefaultBacklog = 1
)

// Options carries the tunable knobs of an endpoint. Values come from the
// caller; this package never reads configuration files or flags.
type Options struct {
	// AddressFamily restricts candidate addresses: "ipv4", "ipv6", or
	// empty for the OS default (dual stack where available).
	// Default: ""
	AddressFamily string

	// BindAddress is the local address listeners bind to; a hostname is
	// resolved first. Empty means the wildcard address.
	// Default: "" (wildcard)
	BindAddress string

	// ReadTimeout bounds each read syscall on an established connection
	// via SO_RCVTIMEO. Zero selects DefaultReadTimeout; a negative value
	// leaves reads unbounded.
	// Default: 5s
	ReadTimeout time.Duration

	// WriteTimeout bounds each write syscall on an established connection
	// via SO_SNDTIMEO. Zero selects DefaultWriteTimeout; a negative value
	// leaves writes unbounded.
	// Default: 5s
	WriteTimeout time.Duration
}

// ApplyDefaults sets default values for unset fields.
func (o *Options) ApplyDefaults() {
	if o.ReadTimeout == 0 {
		o.ReadTimeout = DefaultReadTimeout
	}
	if o.WriteTimeout == 0 {
		o.WriteTimeout = DefaultWriteTimeout
	}
}

// Validate checks that field values are acceptable.
func (o *Options) Validate() error {
	switch o.AddressFamily {
	case FamilyUnspecified, FamilyIPv4, FamilyIPv6:
		return nil
	default:
		return fmt.Errorf("invalid AddressFamily %q (must be %q, %q, or empty)",
			o.AddressFamily, FamilyIPv4, FamilyIPv6)
	}
}

// family maps the configured AddressFamily to an AF_* constant.
func (o *Options) family() int {
	switch o.AddressFamily {
	case FamilyIPv4:
		return unix.AF_INET
	case FamilyIPv6:
		return unix.AF_INET6
	default:
		return unix.AF_UNSPEC
	}
}
