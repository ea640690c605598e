package nameservice

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"sort"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	nserrors "github.com/DeBrosOfficial/nameservice/pkg/errors"
	"github.com/DeBrosOfficial/nameservice/pkg/metrics"
	"github.com/DeBrosOfficial/nameservice/pkg/netif"
	"github.com/DeBrosOfficial/nameservice/pkg/wire"
)

// Ports are the listening ports a transport declares through Enable. A zero
// port leaves that family/reliability combination unadvertised.
type Ports struct {
	Reliable4   uint16
	Unreliable4 uint16
	Reliable6   uint16
	Unreliable6 uint16
}

// port returns the single port advertised for t when only one fits, as in
// v0 answers and SRV records.
func (p Ports) port(t wire.TransportMask) uint16 {
	if t == wire.TransportUDP {
		if p.Unreliable4 != 0 {
			return p.Unreliable4
		}
		return p.Unreliable6
	}
	if p.Reliable4 != 0 {
		return p.Reliable4
	}
	return p.Reliable6
}

func (p Ports) zero() bool { return p == Ports{} }

// liveInterface is an interface with open sockets. It is owned by the
// engine and only touched with ifMu held.
type liveInterface struct {
	netif.Interface
	transports wire.TransportMask

	addr4 netip.Addr
	addr6 netip.Addr

	ns4, ns6     netif.PacketConn
	mdns4, mdns6 netif.PacketConn
	uni4, uni6   netif.PacketConn
}

type readable struct {
	conn   netif.PacketConn
	format wireFormat
}

func (li *liveInterface) readables() []readable {
	var out []readable
	for _, r := range []readable{
		{li.ns4, formatLegacy}, {li.ns6, formatLegacy},
		{li.mdns4, formatMDNS}, {li.mdns6, formatMDNS},
		{li.uni4, formatMDNS}, {li.uni6, formatMDNS},
	} {
		if r.conn != nil {
			out = append(out, r)
		}
	}
	return out
}

func (li *liveInterface) close() error {
	var err error
	for _, r := range li.readables() {
		err = multierr.Append(err, r.conn.Close())
	}
	return err
}

// sameAs reports whether iface still describes the interface li was opened
// on; any address change requires new sockets.
func (li *liveInterface) sameAs(iface netif.Interface) bool {
	if li.Index != iface.Index || len(li.Addrs) != len(iface.Addrs) {
		return false
	}
	for i := range li.Addrs {
		if li.Addrs[i] != iface.Addrs[i] {
			return false
		}
	}
	return true
}

// unicastFor returns the unicast socket of the family of to.
func (li *liveInterface) unicastFor(to netip.AddrPort) netif.PacketConn {
	if to.Addr().Unmap().Is4() {
		return li.uni4
	}
	return li.uni6
}

// contains reports whether a is on one of li's subnets.
func (li *liveInterface) contains(a netip.Addr) bool {
	a = a.Unmap().WithZone("")
	for _, p := range li.Addrs {
		if p.Contains(a) {
			return true
		}
	}
	return false
}

type desiredInterface struct {
	iface netif.Interface
	mask  wire.TransportMask
}

// desired selects the interfaces the current requests cover.
func (e *engine) desired(list []netif.Interface) map[string]desiredInterface {
	e.mu.Lock()
	requests := make(map[wire.TransportMask][]string, len(e.requests))
	for t, matches := range e.requests {
		requests[t] = matches.sorted()
	}
	for _, v := range e.virtual {
		list = append(list, v)
	}
	e.mu.Unlock()

	out := make(map[string]desiredInterface)
	for _, iface := range list {
		if !iface.Virtual && (!iface.Up() || !iface.Multicast()) {
			continue
		}
		var mask wire.TransportMask
		for t, matches := range requests {
			for _, match := range matches {
				if iface.Matches(match) {
					mask |= t
					break
				}
			}
		}
		if mask != 0 {
			// virtual interfaces are appended last and win on name clashes
			out[iface.Name] = desiredInterface{iface: iface, mask: mask}
		}
	}
	return out
}

// rescan reconciles live interfaces with the host's interfaces and the
// per-transport requests.
func (e *engine) rescan(ctx context.Context) {
	list, err := e.net.Interfaces()
	if err != nil {
		e.ifLog.Warn("Interface enumeration failed", zap.Error(err))
		return
	}
	want := e.desired(list)

	var events []any
	added := 0

	e.ifMu.Lock()
	if ctx.Err() != nil {
		e.ifMu.Unlock()
		return
	}
	for name, li := range e.live {
		d, ok := want[name]
		if ok && li.sameAs(d.iface) {
			li.transports = d.mask
			continue
		}
		if err := li.close(); err != nil {
			e.ifLog.Debug("Closing interface sockets", zap.String("interface", name), zap.Error(err))
		}
		delete(e.live, name)
		events = append(events, NetworkEvent{Interface: name, Up: false, Addrs: li.Addrs})
		e.ifLog.Info("Interface removed", zap.String("interface", name))
	}
	names := make([]string, 0, len(want))
	for name := range want {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, ok := e.live[name]; ok {
			continue
		}
		d := want[name]
		li, err := e.openInterface(d.iface, d.mask)
		if err != nil {
			e.ifLog.Warn("Skipping interface",
				zap.String("interface", name),
				zap.String("code", nserrors.GetErrorCode(err)),
				zap.Error(err))
			continue
		}
		e.live[name] = li
		e.startReaders(ctx, li)
		added++
		events = append(events, NetworkEvent{Interface: name, Up: true, Addrs: li.Addrs})
		e.ifLog.Info("Interface up",
			zap.String("interface", name),
			zap.Stringer("transports", d.mask),
			zap.Stringer("ipv4", li.addr4),
			zap.Stringer("ipv6", li.addr6))
	}
	e.metrics.LiveInterfaces.Set(float64(len(e.live)))
	e.ifMu.Unlock()

	for _, ev := range events {
		e.events.emit(ev)
	}
	if added > 0 {
		e.reannounce()
	}
}

// openInterface opens every socket iface needs. Nothing stays open on
// failure.
func (e *engine) openInterface(iface netif.Interface, mask wire.TransportMask) (*liveInterface, error) {
	li := &liveInterface{Interface: iface, transports: mask}
	if e.cfg.EnableIPv4 {
		li.addr4, _ = iface.IPv4()
	}
	if e.cfg.EnableIPv6 {
		li.addr6, _ = iface.IPv6()
	}
	if !li.addr4.IsValid() && !li.addr6.IsValid() {
		return nil, nserrors.NewResourceError(iface.Name, "select address", nserrors.ErrNotFound)
	}

	var err error
	open := func(dst *netif.PacketConn, f func() (netif.PacketConn, error)) {
		if err == nil {
			*dst, err = f()
		}
	}
	multicast := func(group netip.Addr, port int) func() (netif.PacketConn, error) {
		return func() (netif.PacketConn, error) {
			return e.net.ListenMulticast(iface, netip.AddrPortFrom(group, uint16(port)))
		}
	}
	unicast := func(a netip.Addr) func() (netif.PacketConn, error) {
		return func() (netif.PacketConn, error) { return e.net.ListenUnicast(iface, a) }
	}

	if li.addr4.IsValid() {
		if e.cfg.EnableLegacy {
			open(&li.ns4, multicast(netif.NSGroupV4, e.cfg.NSPort))
		}
		if e.cfg.EnableMDNS {
			open(&li.mdns4, multicast(netif.MDNSGroupV4, e.cfg.MDNSPort))
		}
		open(&li.uni4, unicast(li.addr4))
	}
	if li.addr6.IsValid() {
		if e.cfg.EnableLegacy {
			open(&li.ns6, multicast(netif.NSGroupV6, e.cfg.NSPort))
		}
		if e.cfg.EnableMDNS {
			open(&li.mdns6, multicast(netif.MDNSGroupV6, e.cfg.MDNSPort))
		}
		open(&li.uni6, unicast(li.addr6))
	}
	if err != nil {
		return nil, multierr.Append(err, li.close())
	}
	return li, nil
}

// startReaders starts one goroutine per socket. Readers only copy
// datagrams into the engine's inbound queue.
func (e *engine) startReaders(ctx context.Context, li *liveInterface) {
	for _, r := range li.readables() {
		r := r
		name := li.Name
		e.group.Go(func() error {
			e.read(ctx, name, r.conn, r.format)
			return nil
		})
	}
}

func (e *engine) read(ctx context.Context, iface string, c netif.PacketConn, f wireFormat) {
	buf := make([]byte, e.cfg.MaxMessageSize+1)
	for {
		n, from, err := c.ReadFrom(buf)
		if err != nil {
			if !errors.Is(err, net.ErrClosed) && ctx.Err() == nil {
				e.ifLog.Warn("Socket read failed", zap.String("interface", iface), zap.Error(err))
			}
			return
		}
		if n > e.cfg.MaxMessageSize {
			e.metrics.PacketsDropped.WithLabelValues(metrics.DropOversize).Inc()
			continue
		}
		d := datagram{iface: iface, format: f, from: from, data: append([]byte(nil), buf[:n]...)}
		select {
		case e.inbound <- d:
		default:
			e.metrics.PacketsDropped.WithLabelValues(metrics.DropBacklog).Inc()
		}
	}
}

// eachLive runs f on the live interfaces in name order, or only on the one
// named, with ifMu read-held so teardown cannot interleave with the sends.
func (e *engine) eachLive(only string, f func(li *liveInterface)) {
	e.ifMu.RLock()
	defer e.ifMu.RUnlock()
	if only != "" {
		if li, ok := e.live[only]; ok {
			f(li)
		}
		return
	}
	names := make([]string, 0, len(e.live))
	for name := range e.live {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		f(e.live[name])
	}
}

// route picks the live interface to reach to from: the one on the same
// subnet, else any with a unicast socket of the right family.
func (e *engine) route(to netip.AddrPort, f func(li *liveInterface, c netif.PacketConn)) bool {
	e.ifMu.RLock()
	defer e.ifMu.RUnlock()
	var fallback *liveInterface
	names := make([]string, 0, len(e.live))
	for name := range e.live {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		li := e.live[name]
		if li.unicastFor(to) == nil {
			continue
		}
		if zone := to.Addr().Zone(); zone != "" && zone != li.Name {
			continue
		}
		if li.contains(to.Addr()) {
			f(li, li.unicastFor(to))
			return true
		}
		if fallback == nil {
			fallback = li
		}
	}
	if fallback == nil {
		return false
	}
	f(fallback, fallback.unicastFor(to))
	return true
}

func (e *engine) closeInterfaces() error {
	e.ifMu.Lock()
	defer e.ifMu.Unlock()
	var err error
	for name, li := range e.live {
		err = multierr.Append(err, li.close())
		delete(e.live, name)
	}
	e.metrics.LiveInterfaces.Set(0)
	return err
}
