// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: dial.go's Dialer abstraction plus the original C
// asyncproxy_ctor_args tagged union (ap_dest / the dest/out_fd member
// union in asyncproxy.h).

package asyncproxy

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// unixPathMax mirrors sizeof(sockaddr_un.sun_path) on Linux, the
// platform-specific UNIX path length limit spec.md §3 requires a
// [HostDestination] to respect when Family is [FamilyUnix].
const unixPathMax = 108

// Family selects the address family used to resolve a
// [HostDestination]'s Name/Port (spec.md §3 L3).
type Family int

const (
	// FamilyIPv4 resolves Name as an IPv4 host.
	FamilyIPv4 = Family(iota)

	// FamilyIPv6 resolves Name as an IPv6 host.
	FamilyIPv6

	// FamilyUnix treats Name as a filesystem path to a UNIX domain
	// socket; Port is ignored.
	FamilyUnix
)

// String implements [fmt.Stringer].
func (f Family) String() string {
	switch f {
	case FamilyIPv4:
		return "AF_INET"
	case FamilyIPv6:
		return "AF_INET6"
	case FamilyUnix:
		return "AF_UNIX"
	default:
		return "AF_UNKNOWN"
	}
}

// network returns the [net.Dialer]-compatible network name for f.
func (f Family) network() string {
	switch f {
	case FamilyIPv4:
		return "tcp4"
	case FamilyIPv6:
		return "tcp6"
	case FamilyUnix:
		return "unix"
	default:
		return ""
	}
}

// ErrInvalidDestination wraps a [Destination] that fails the
// invariants in spec.md §3 L3.
var ErrInvalidDestination = errors.New("asyncproxy: invalid destination")

// Destination is a tagged union of the two ways to obtain the sink
// endpoint (spec.md §3 L3, §6): a host/port/family to connect to, or a
// pre-opened descriptor to adopt as-is.
//
// [HostDestination] and [FdDestination] are the only implementations.
type Destination interface {
	// resolve returns the network and address to pass to the
	// configured [Dialer], or an error if the destination violates
	// spec.md §3's invariants. FdDestination never calls this; it has
	// no address to resolve.
	resolve() (network, address string, err error)
}

// HostDestination is the `Host` variant of [Destination]: a name/port
// pair resolved over network Family, with an optional bind literal.
//
// BindAddr is only permitted for [FamilyIPv4]/[FamilyIPv6] (spec.md §3:
// "when family = UNIX, bind must be absent"). Name must be shorter
// than the platform's UNIX path limit when Family is [FamilyUnix].
type HostDestination struct {
	// Name is a hostname/IP literal (IPv4/IPv6) or a filesystem path
	// (UNIX).
	Name string

	// Port is the TCP port to connect to. Ignored for FamilyUnix.
	Port uint16

	// Family selects the address family.
	Family Family

	// BindAddr, if non-empty, is an IPv4/IPv6 literal the sink socket
	// binds to before connecting.
	BindAddr string
}

var _ Destination = HostDestination{}

// resolve implements [Destination].
func (h HostDestination) resolve() (network, address string, err error) {
	if h.Family == FamilyUnix {
		if h.BindAddr != "" {
			return "", "", fmt.Errorf("%w: bindto is not permitted for AF_UNIX", ErrInvalidDestination)
		}
		if len(h.Name) >= unixPathMax {
			return "", "", fmt.Errorf("%w: UNIX path exceeds %d bytes", ErrInvalidDestination, unixPathMax)
		}
		return h.Family.network(), h.Name, nil
	}
	if h.BindAddr != "" {
		if net.ParseIP(h.BindAddr) == nil {
			return "", "", fmt.Errorf("%w: bindto %q is not an IP literal", ErrInvalidDestination, h.BindAddr)
		}
	}
	return h.Family.network(), net.JoinHostPort(h.Name, fmt.Sprintf("%d", h.Port)), nil
}

// localAddr implements the bind side of spec.md §4.2 step 2: when
// BindAddr is set, dialContext must originate the outbound connection
// from it. net.Dialer exposes this as LocalAddr; since Family here is
// always IPv4/IPv6 by the time this is called (resolve rejects
// bindto+UNIX), a TCPAddr is always the right type.
func (h HostDestination) localAddr() net.Addr {
	if h.BindAddr == "" {
		return nil
	}
	return &net.TCPAddr{IP: net.ParseIP(h.BindAddr)}
}

// FdDestination is the `Fd` variant of [Destination]: a pre-opened
// sink connection adopted as-is, with no resolution, bind, or connect
// (spec.md §4.2 step 1).
type FdDestination struct {
	// Conn is the pre-opened sink connection. The proxy takes
	// ownership of it: it is closed when the proxy is destroyed.
	Conn net.Conn
}

var _ Destination = FdDestination{}

// resolve implements [Destination]. FdDestination has nothing to
// resolve; callers must special-case it before calling resolve, which
// is why this always errors if reached.
func (f FdDestination) resolve() (network, address string, err error) {
	return "", "", fmt.Errorf("%w: FdDestination has no address to resolve", ErrInvalidDestination)
}

// dialSink produces the sink [net.Conn] for dest: adopting Conn as-is
// for [FdDestination], or dialing (and, for a bind literal, binding
// first) for [HostDestination] (spec.md §4.2, §4.4 startup step 3).
func dialSink(ctx context.Context, cfg *Config, logger SLogger, dest Destination) (net.Conn, error) {
	switch d := dest.(type) {
	case FdDestination:
		if d.Conn == nil {
			return nil, fmt.Errorf("%w: FdDestination.Conn is nil", ErrInvalidDestination)
		}
		return d.Conn, nil
	case HostDestination:
		network, address, err := d.resolve()
		if err != nil {
			return nil, err
		}
		return dialHost(ctx, cfg, logger, network, address, d.localAddr())
	default:
		return nil, fmt.Errorf("%w: unknown Destination implementation %T", ErrInvalidDestination, dest)
	}
}
