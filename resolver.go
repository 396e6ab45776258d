package acceptor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"

	"golang.org/x/sys/unix"
)

// candidate is one resolved address a socket can be bound or connected to.
type candidate struct {
	family int
	sa     unix.Sockaddr
	addr   netip.AddrPort
}

// resolveCandidates turns a host and port into an ordered list of socket
// address candidates, honoring the family preference (AF_INET, AF_INET6, or
// AF_UNSPEC). Passive resolution with an empty host synthesizes wildcard
// addresses; active resolution requires a host. Callers try candidates in
// order until one works.
func resolveCandidates(ctx context.Context, host string, port, family int, passive bool) ([]candidate, error) {
	if port < 0 || port > 65535 {
		return nil, fmt.Errorf("invalid port %d", port)
	}
	if host == "" {
		if !passive {
			return nil, errors.New("no host to connect to")
		}
		return wildcardCandidates(port, family), nil
	}
	network := "ip"
	switch family {
	case unix.AF_INET:
		network = "ip4"
	case unix.AF_INET6:
		network = "ip6"
	}
	ips, err := net.DefaultResolver.LookupNetIP(ctx, network, host)
	if err != nil {
		return nil, err
	}
	cands := make([]candidate, 0, len(ips))
	for _, ip := range ips {
		c, ok := addrCandidate(ip.Unmap(), port)
		if !ok {
			continue
		}
		cands = append(cands, c)
	}
	if len(cands) == 0 {
		return nil, fmt.Errorf("no usable addresses for %q", host)
	}
	return cands, nil
}

// wildcardCandidates lists the wildcard addresses for a passive open with
// no bind address. With no family preference the IPv6 wildcard comes
// first: bound dual stack it accepts IPv4 peers too, and the IPv4
// wildcard remains as a fallback for hosts without IPv6.
func wildcardCandidates(port, family int) []candidate {
	v4 := candidate{
		family: unix.AF_INET,
		sa:     &unix.SockaddrInet4{Port: port},
		addr:   netip.AddrPortFrom(netip.IPv4Unspecified(), uint16(port)),
	}
	v6 := candidate{
		family: unix.AF_INET6,
		sa:     &unix.SockaddrInet6{Port: port},
		addr:   netip.AddrPortFrom(netip.IPv6Unspecified(), uint16(port)),
	}
	switch family {
	case unix.AF_INET:
		return []candidate{v4}
	case unix.AF_INET6:
		return []candidate{v6}
	default:
		return []candidate{v6, v4}
	}
}

func addrCandidate(ip netip.Addr, port int) (candidate, bool) {
	switch {
	case ip.Is4():
		return candidate{
			family: unix.AF_INET,
			sa:     &unix.SockaddrInet4{Port: port, Addr: ip.As4()},
			addr:   netip.AddrPortFrom(ip, uint16(port)),
		}, true
	case ip.Is6() && ip.Zone() == "":
		return candidate{
			family: unix.AF_INET6,
			sa:     &unix.SockaddrInet6{Port: port, Addr: ip.As16()},
			addr:   netip.AddrPortFrom(ip, uint16(port)),
		}, true
	}
	// Zone-scoped addresses would need an interface index we do not
	// track.
	return candidate{}, false
}
