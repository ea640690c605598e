// Package netif abstracts the host primitives the name service needs:
// interface enumeration and UDP sockets joined to the discovery groups.
// System talks to the operating system; MemNetwork is an in-process LAN.
package netif

import (
	"net"
	"net/netip"
)

// Discovery multicast groups.
var (
	NSGroupV4   = netip.MustParseAddr("224.0.0.113")
	NSGroupV6   = netip.MustParseAddr("ff02::13a")
	MDNSGroupV4 = netip.MustParseAddr("224.0.0.251")
	MDNSGroupV6 = netip.MustParseAddr("ff02::fb")
)

// Interface is a snapshot of one network interface.
type Interface struct {
	Name  string
	Index int
	MTU   int
	Flags net.Flags
	Addrs []netip.Prefix
	// Virtual marks interfaces registered by hand rather than enumerated.
	Virtual bool
}

func (i Interface) Up() bool        { return i.Flags&net.FlagUp != 0 }
func (i Interface) Loopback() bool  { return i.Flags&net.FlagLoopback != 0 }
func (i Interface) Multicast() bool { return i.Flags&net.FlagMulticast != 0 }
func (i Interface) Broadcast() bool { return i.Flags&net.FlagBroadcast != 0 }

// IPv4 returns the first IPv4 address on the interface.
func (i Interface) IPv4() (netip.Addr, bool) {
	for _, p := range i.Addrs {
		if p.Addr().Is4() {
			return p.Addr(), true
		}
	}
	return netip.Addr{}, false
}

// IPv6 returns the first IPv6 address, preferring link-local ones since the
// discovery groups are link scoped.
func (i Interface) IPv6() (netip.Addr, bool) {
	var fallback netip.Addr
	for _, p := range i.Addrs {
		a := p.Addr()
		if !a.Is6() || a.Is4In6() {
			continue
		}
		if a.IsLinkLocalUnicast() {
			return a.WithZone(i.Name), true
		}
		if !fallback.IsValid() {
			fallback = a
		}
	}
	return fallback, fallback.IsValid()
}

// Matches reports whether the interface satisfies an OpenInterface request:
// "*" for any, an IP literal for the interface holding that address,
// otherwise an interface name.
func (i Interface) Matches(match string) bool {
	if match == "*" {
		return true
	}
	if a, err := netip.ParseAddr(match); err == nil {
		for _, p := range i.Addrs {
			if p.Addr().WithZone("") == a.WithZone("") {
				return true
			}
		}
		return false
	}
	return i.Name == match
}

// Lister enumerates interfaces.
type Lister interface {
	Interfaces() ([]Interface, error)
}

// PacketConn is a datagram socket bound to one interface.
type PacketConn interface {
	// ReadFrom blocks for the next datagram. It returns net.ErrClosed once
	// the socket is closed.
	ReadFrom(b []byte) (int, netip.AddrPort, error)
	WriteTo(b []byte, to netip.AddrPort) (int, error)
	LocalAddr() netip.AddrPort
	Close() error
}

// Opener creates sockets.
type Opener interface {
	// ListenMulticast binds group's port and joins group on iface.
	// Datagrams arriving on other interfaces are not delivered.
	ListenMulticast(iface Interface, group netip.AddrPort) (PacketConn, error)
	// ListenUnicast binds an ephemeral port on addr, with broadcast
	// enabled for IPv4.
	ListenUnicast(iface Interface, addr netip.Addr) (PacketConn, error)
}

// Network is everything the name service needs from the host.
type Network interface {
	Lister
	Opener
}
