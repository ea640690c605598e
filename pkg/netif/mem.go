package netif

import (
	"net"
	"net/netip"
	"sync"

	nserrors "github.com/DeBrosOfficial/nameservice/pkg/errors"
)

// Datagram is one packet observed on a MemNetwork.
type Datagram struct {
	From netip.AddrPort
	To   netip.AddrPort
	Data []byte
}

// MemNetwork is an in-process LAN. Every host attached to it shares one
// broadcast domain; multicast reaches every socket joined to the group,
// the sender's own host included.
type MemNetwork struct {
	mu       sync.Mutex
	conns    map[*memConn]struct{}
	taps     []chan Datagram
	drop     func(Datagram) bool
	nextPort uint16
}

// NewMemNetwork creates an empty LAN.
func NewMemNetwork() *MemNetwork {
	return &MemNetwork{conns: make(map[*memConn]struct{}), nextPort: 49152}
}

// Tap returns a channel receiving a copy of every datagram sent on the LAN.
// Datagrams are dropped from the tap when its buffer is full.
func (n *MemNetwork) Tap(buffer int) <-chan Datagram {
	ch := make(chan Datagram, buffer)
	n.mu.Lock()
	n.taps = append(n.taps, ch)
	n.mu.Unlock()
	return ch
}

// SetDrop installs a loss function; datagrams for which it returns true
// are observed by taps but never delivered.
func (n *MemNetwork) SetDrop(f func(Datagram) bool) {
	n.mu.Lock()
	n.drop = f
	n.mu.Unlock()
}

// Host attaches a new host with the given interfaces.
func (n *MemNetwork) Host(ifaces ...Interface) *MemHost {
	h := &MemHost{net: n}
	h.SetInterfaces(ifaces...)
	return h
}

func (n *MemNetwork) deliver(from *memConn, b []byte, to netip.AddrPort) {
	d := Datagram{From: from.local, To: to, Data: append([]byte(nil), b...)}

	n.mu.Lock()
	for _, tap := range n.taps {
		select {
		case tap <- d:
		default:
		}
	}
	if n.drop != nil && n.drop(d) {
		n.mu.Unlock()
		return
	}
	var targets []*memConn
	for c := range n.conns {
		if to.Addr().IsMulticast() {
			if c.group == to {
				targets = append(targets, c)
			}
		} else if c.group == (netip.AddrPort{}) && c.local == to {
			targets = append(targets, c)
		}
	}
	n.mu.Unlock()

	for _, c := range targets {
		c.push(d)
	}
}

func (n *MemNetwork) register(c *memConn) {
	n.mu.Lock()
	n.conns[c] = struct{}{}
	n.mu.Unlock()
}

func (n *MemNetwork) unregister(c *memConn) {
	n.mu.Lock()
	delete(n.conns, c)
	n.mu.Unlock()
}

func (n *MemNetwork) ephemeral() uint16 {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nextPort++
	return n.nextPort
}

// MemHost is one host on a MemNetwork. It implements Network.
type MemHost struct {
	net *MemNetwork

	mu     sync.Mutex
	ifaces []Interface
	fail   map[string]bool
}

// SetInterfaces replaces the host's interface list, as after a link change.
func (h *MemHost) SetInterfaces(ifaces ...Interface) {
	h.mu.Lock()
	h.ifaces = append([]Interface(nil), ifaces...)
	h.mu.Unlock()
}

// FailOpen makes every socket open on the named interface fail.
func (h *MemHost) FailOpen(iface string, fail bool) {
	h.mu.Lock()
	if h.fail == nil {
		h.fail = make(map[string]bool)
	}
	h.fail[iface] = fail
	h.mu.Unlock()
}

// Interfaces implements Lister.
func (h *MemHost) Interfaces() ([]Interface, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Interface(nil), h.ifaces...), nil
}

func (h *MemHost) failing(iface string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.fail[iface]
}

// ListenMulticast implements Opener.
func (h *MemHost) ListenMulticast(iface Interface, group netip.AddrPort) (PacketConn, error) {
	if h.failing(iface.Name) {
		return nil, nserrors.NewResourceError(iface.Name, "listen", net.ErrClosed)
	}
	var addr netip.Addr
	var ok bool
	if group.Addr().Is4() {
		addr, ok = iface.IPv4()
	} else {
		addr, ok = iface.IPv6()
	}
	if !ok {
		return nil, nserrors.NewResourceError(iface.Name, "join "+group.Addr().String(), nserrors.ErrNotFound)
	}
	c := newMemConn(h.net, netip.AddrPortFrom(addr, group.Port()), group)
	h.net.register(c)
	return c, nil
}

// ListenUnicast implements Opener.
func (h *MemHost) ListenUnicast(iface Interface, addr netip.Addr) (PacketConn, error) {
	if h.failing(iface.Name) {
		return nil, nserrors.NewResourceError(iface.Name, "listen unicast", net.ErrClosed)
	}
	c := newMemConn(h.net, netip.AddrPortFrom(addr, h.net.ephemeral()), netip.AddrPort{})
	h.net.register(c)
	return c, nil
}

type memConn struct {
	net   *MemNetwork
	local netip.AddrPort
	group netip.AddrPort

	inbox     chan Datagram
	done      chan struct{}
	closeOnce sync.Once
}

func newMemConn(n *MemNetwork, local, group netip.AddrPort) *memConn {
	return &memConn{
		net:   n,
		local: local,
		group: group,
		inbox: make(chan Datagram, 256),
		done:  make(chan struct{}),
	}
}

func (c *memConn) push(d Datagram) {
	select {
	case <-c.done:
	case c.inbox <- d:
	default:
		// full socket buffer: drop like the kernel would
	}
}

func (c *memConn) ReadFrom(b []byte) (int, netip.AddrPort, error) {
	select {
	case <-c.done:
		return 0, netip.AddrPort{}, net.ErrClosed
	case d := <-c.inbox:
		return copy(b, d.Data), d.From, nil
	}
}

func (c *memConn) WriteTo(b []byte, to netip.AddrPort) (int, error) {
	select {
	case <-c.done:
		return 0, net.ErrClosed
	default:
	}
	c.net.deliver(c, b, to)
	return len(b), nil
}

func (c *memConn) LocalAddr() netip.AddrPort { return c.local }

func (c *memConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.net.unregister(c)
	})
	return nil
}
