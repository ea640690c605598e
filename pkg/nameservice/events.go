package nameservice

import (
	"net"
	"net/netip"
	"sync"

	ma "github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr/net"

	"github.com/DeBrosOfficial/nameservice/pkg/mdns"
	"github.com/DeBrosOfficial/nameservice/pkg/wire"
)

// FoundEvent reports names a remote daemon advertises, or withdrew when
// Timer is zero.
type FoundEvent struct {
	// Endpoint is a multiaddr such as /ip4/10.0.0.5/tcp/9955.
	Endpoint  string
	GUID      string
	Names     []string
	Timer     uint8
	Transport wire.TransportMask
	Priority  uint32
}

// Withdrawn reports whether the names are no longer available.
func (e FoundEvent) Withdrawn() bool { return e.Timer == wire.TimerWithdraw }

// NetworkEvent reports an interface coming up or going away.
type NetworkEvent struct {
	Interface string
	Up        bool
	Addrs     []netip.Prefix
}

// PingEvent reports the outcome of Ping.
type PingEvent struct {
	GUID     string
	Name     string
	Reply    mdns.ReplyCode
	TimedOut bool
}

// RawEvent carries an mDNS datagram the name service did not consume.
type RawEvent struct {
	Interface string
	From      netip.AddrPort
	Packet    *mdns.Packet
}

// endpointAddr renders addr as a multiaddr for transport t.
func endpointAddr(t wire.TransportMask, addr netip.AddrPort) (string, error) {
	var na net.Addr
	ip := net.IP(addr.Addr().Unmap().AsSlice())
	zone := addr.Addr().Zone()
	if t == wire.TransportUDP {
		na = &net.UDPAddr{IP: ip, Port: int(addr.Port()), Zone: zone}
	} else {
		na = &net.TCPAddr{IP: ip, Port: int(addr.Port()), Zone: zone}
	}
	m, err := manet.FromNetAddr(na)
	if err != nil {
		return "", err
	}
	return m.String(), nil
}

// ParseEndpoint converts a FoundEvent endpoint back into an address.
func ParseEndpoint(s string) (netip.AddrPort, error) {
	m, err := ma.NewMultiaddr(s)
	if err != nil {
		return netip.AddrPort{}, err
	}
	na, err := manet.ToNetAddr(m)
	if err != nil {
		return netip.AddrPort{}, err
	}
	switch a := na.(type) {
	case *net.TCPAddr:
		return a.AddrPort(), nil
	case *net.UDPAddr:
		return a.AddrPort(), nil
	}
	return netip.ParseAddrPort(na.String())
}

// hub fans one kind of event out to subscribers. Unless wait is set, a
// subscriber with a full channel loses the event.
type hub[T any] struct {
	mu     sync.Mutex
	subs   []chan T
	closed bool
	wait   bool
}

func (h *hub[T]) subscribe(buffer int) <-chan T {
	ch := make(chan T, buffer)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return ch
	}
	h.subs = append(h.subs, ch)
	return ch
}

// publish hands ev to every subscriber. A waiting hub blocks on full
// channels until stop is closed. It reports how many subscribers never
// received ev. Sends happen outside h.mu; subscriptions are only closed
// once the dispatcher has exited.
func (h *hub[T]) publish(ev T, stop <-chan struct{}) int {
	h.mu.Lock()
	subs := append([]chan T(nil), h.subs...)
	h.mu.Unlock()
	dropped := 0
	for _, ch := range subs {
		select {
		case ch <- ev:
			continue
		default:
		}
		if !h.wait {
			dropped++
			continue
		}
		select {
		case ch <- ev:
		case <-stop:
			dropped++
		}
	}
	return dropped
}

func (h *hub[T]) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for _, ch := range h.subs {
		close(ch)
	}
	h.subs = nil
}

// dispatcher owns the bounded event queue and its single consumer.
type dispatcher struct {
	discovery hub[FoundEvent]
	network   hub[NetworkEvent]
	ping      hub[PingEvent]
	raw       hub[RawEvent]

	mu     sync.RWMutex
	queue  chan any
	closed bool
	stop   chan struct{}
	done   chan struct{}

	onDrop    func(kind string)
	onDeliver func(kind string)
}

func newDispatcher(buffer int) *dispatcher {
	return &dispatcher{
		// the answer cache only reports a name once, so discovery
		// subscribers must not miss it
		discovery: hub[FoundEvent]{wait: true},
		queue:     make(chan any, buffer),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
		onDrop:    func(string) {},
		onDeliver: func(string) {},
	}
}

// emit enqueues ev without blocking. Events emitted after close are
// discarded.
func (d *dispatcher) emit(ev any) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}
	select {
	case d.queue <- ev:
	default:
		d.onDrop(eventKind(ev))
	}
}

func (d *dispatcher) run() {
	defer close(d.done)
	for ev := range d.queue {
		kind := eventKind(ev)
		var dropped int
		switch e := ev.(type) {
		case FoundEvent:
			dropped = d.discovery.publish(e, d.stop)
		case NetworkEvent:
			dropped = d.network.publish(e, d.stop)
		case PingEvent:
			dropped = d.ping.publish(e, d.stop)
		case RawEvent:
			dropped = d.raw.publish(e, d.stop)
		}
		for i := 0; i < dropped; i++ {
			d.onDrop(kind)
		}
		d.onDeliver(kind)
	}
}

// close stops accepting events, waits for the queue to drain when started
// is true, and closes every subscription. Queued events still reach
// subscribers with room; nobody is waited on any more.
func (d *dispatcher) close(started bool) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.stop)
	close(d.queue)
	d.mu.Unlock()

	if started {
		<-d.done
	}
	d.discovery.close()
	d.network.close()
	d.ping.close()
	d.raw.close()
}

func eventKind(ev any) string {
	switch ev.(type) {
	case FoundEvent:
		return "found"
	case NetworkEvent:
		return "network"
	case PingEvent:
		return "ping"
	case RawEvent:
		return "raw"
	}
	return "unknown"
}
