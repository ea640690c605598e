package nameservice

import (
	"net/netip"

	"go.uber.org/zap"

	"github.com/DeBrosOfficial/nameservice/pkg/mdns"
	"github.com/DeBrosOfficial/nameservice/pkg/netif"
	"github.com/DeBrosOfficial/nameservice/pkg/wire"
)

// mdnsProtocolVersion is carried in sender-info payloads.
const mdnsProtocolVersion = 2

type wireFormat uint8

const (
	formatLegacy wireFormat = 1 << iota
	formatMDNS
)

func (f wireFormat) String() string {
	switch f {
	case formatLegacy:
		return "legacy"
	case formatMDNS:
		return "mdns"
	}
	return "legacy+mdns"
}

// answerSet is a snapshot of names to announce, or withdraw with timer 0,
// on one transport.
type answerSet struct {
	transport wire.TransportMask
	names     []string
	timer     uint8
	complete  bool
	ports     Ports
}

type sendOpts struct {
	// only restricts sending to one interface.
	only    string
	formats wireFormat
	// version is the legacy layout used for answers.
	version uint8
	// to sends mDNS unicast instead of to the group.
	to netip.AddrPort
	// id is the mDNS message ID.
	id uint16
}

// pack greedily groups names into as few datagrams as fit within max bytes.
// build returns the datagram for a group and its encoded size, or a
// negative size when it cannot be encoded.
func pack[P any](names []string, max int, build func(names []string) (P, int)) ([]P, []string) {
	var out []P
	var skipped []string
	var cur []string
	for _, n := range names {
		try := append(cur[:len(cur):len(cur)], n)
		if _, size := build(try); size >= 0 && size <= max {
			cur = try
			continue
		}
		if len(cur) > 0 {
			p, _ := build(cur)
			out = append(out, p)
		}
		cur = nil
		if _, size := build([]string{n}); size < 0 || size > max {
			skipped = append(skipped, n)
			continue
		}
		cur = []string{n}
	}
	if len(cur) > 0 {
		p, _ := build(cur)
		out = append(out, p)
	}
	return out, skipped
}

func endpointOf(a netip.Addr, port uint16) netip.AddrPort {
	if !a.IsValid() || port == 0 {
		return netip.AddrPort{}
	}
	return netip.AddrPortFrom(a.WithZone(""), port)
}

// fillIsAt sets the endpoint fields of an answer from li. It reports false
// when li offers no endpoint for the transport.
func fillIsAt(a *wire.IsAt, li *liveInterface, t wire.TransportMask, ports Ports) bool {
	if a.Version == wire.Version0 {
		a.TCP = t == wire.TransportTCP
		a.UDP = t == wire.TransportUDP
		a.Port = ports.port(t)
		a.IPv4 = li.addr4
		a.IPv6 = li.addr6.WithZone("")
		return a.Port != 0
	}
	a.Transport = t
	if t == wire.TransportUDP {
		a.UnreliableIPv4 = endpointOf(li.addr4, ports.Unreliable4)
		a.UnreliableIPv6 = endpointOf(li.addr6, ports.Unreliable6)
		return a.UnreliableIPv4.IsValid() || a.UnreliableIPv6.IsValid()
	}
	a.ReliableIPv4 = endpointOf(li.addr4, ports.Reliable4)
	a.ReliableIPv6 = endpointOf(li.addr6, ports.Reliable6)
	return a.ReliableIPv4.IsValid() || a.ReliableIPv6.IsValid()
}

func (e *engine) legacyAnswers(li *liveInterface, a answerSet, version uint8) []*wire.Header {
	base := wire.IsAt{Version: version, GUID: e.guid}
	if !fillIsAt(&base, li, a.transport, a.ports) {
		return nil
	}
	out, skipped := pack(a.names, e.cfg.MaxMessageSize, func(names []string) (*wire.Header, int) {
		isAt := base
		isAt.Names = names
		isAt.Complete = a.complete && len(names) == len(a.names)
		h := &wire.Header{SenderVersion: wire.CurrentVersion, Version: version, Timer: a.timer, Answers: []wire.IsAt{isAt}}
		return h, h.Size()
	})
	e.logSkipped(skipped)
	return out
}

func (e *engine) legacyQuestions(t wire.TransportMask, names []string) []*wire.Header {
	version := uint8(e.cfg.LegacyVersion)
	out, skipped := pack(names, e.cfg.MaxMessageSize, func(names []string) (*wire.Header, int) {
		q := wire.WhoHas{
			TCP:       t.Has(wire.TransportTCP),
			UDP:       t.Has(wire.TransportUDP),
			IPv4:      e.cfg.EnableIPv4,
			IPv6:      e.cfg.EnableIPv6,
			Transport: t,
			Names:     names,
		}
		h := &wire.Header{SenderVersion: wire.CurrentVersion, Version: version, Timer: e.advertTimer(), Questions: []wire.WhoHas{q}}
		return h, h.Size()
	})
	e.logSkipped(skipped)
	return out
}

func (e *engine) senderInfo(li *liveInterface) mdns.SenderInfo {
	s := mdns.SenderInfo{
		ProtocolVersion: mdnsProtocolVersion,
		BurstID:         e.burstID.Load(),
		Priority:        e.priority.Load(),
	}
	if li.uni4 != nil {
		s.IPv4 = li.addr4
		s.UnicastPortV4 = li.uni4.LocalAddr().Port()
	}
	if li.uni6 != nil {
		s.IPv6 = li.addr6.WithZone("")
		s.UnicastPortV6 = li.uni6.LocalAddr().Port()
	}
	return s
}

func (e *engine) mdnsAnswers(li *liveInterface, a answerSet, id uint16) []*mdns.Packet {
	port := a.ports.port(a.transport)
	if port == 0 {
		return nil
	}
	sender := e.senderInfo(li)
	out, skipped := pack(a.names, e.cfg.MaxMessageSize, func(names []string) (*mdns.Packet, int) {
		p := mdns.NewResponse(mdns.ResponseParams{
			ID:        id,
			GUID:      e.guid,
			TTL:       uint32(a.timer),
			Endpoints: []mdns.Endpoint{{Transport: a.transport, Port: port}},
			IPv4:      li.addr4,
			IPv6:      li.addr6.WithZone(""),
			Advertise: mdns.Advertise{Entries: []mdns.AdvertiseEntry{{Transport: a.transport, Names: names}}},
			Sender:    sender,
		})
		return p, p.Size()
	})
	e.logSkipped(skipped)
	return out
}

func (e *engine) mdnsQueries(li *liveInterface, t wire.TransportMask, names []string, id uint16) []*mdns.Packet {
	sender := e.senderInfo(li)
	out, skipped := pack(names, e.cfg.MaxMessageSize, func(names []string) (*mdns.Packet, int) {
		p := mdns.NewQuery(id, e.guid, mdns.Search{Transport: t, Names: names}, sender)
		return p, p.Size()
	})
	e.logSkipped(skipped)
	return out
}

func (e *engine) logSkipped(names []string) {
	if len(names) > 0 {
		e.log.Warn("Names too long for one datagram", zap.Strings("names", names))
	}
}

func (e *engine) writeTo(li *liveInterface, c netif.PacketConn, b []byte, to netip.AddrPort, f wireFormat, kind string) {
	if c == nil {
		return
	}
	if _, err := c.WriteTo(b, to); err != nil {
		e.metrics.SendErrors.WithLabelValues(li.Name).Inc()
		e.log.Debug("Send failed",
			zap.String("interface", li.Name),
			zap.Stringer("to", to),
			zap.Error(err))
		return
	}
	e.metrics.PacketsSent.WithLabelValues(f.String(), kind).Inc()
}

func (e *engine) writeLegacy(li *liveInterface, hdrs []*wire.Header, kind string) {
	for _, h := range hdrs {
		b, err := wire.Marshal(h)
		if err != nil {
			e.log.Error("Encoding legacy datagram", zap.Error(err))
			continue
		}
		e.writeTo(li, li.ns4, b, netip.AddrPortFrom(netif.NSGroupV4, uint16(e.cfg.NSPort)), formatLegacy, kind)
		e.writeTo(li, li.ns6, b, netip.AddrPortFrom(netif.NSGroupV6, uint16(e.cfg.NSPort)), formatLegacy, kind)
	}
}

// writeMDNS multicasts pkts on li, or unicasts them when to is set.
func (e *engine) writeMDNS(li *liveInterface, pkts []*mdns.Packet, to netip.AddrPort, kind string) {
	for _, p := range pkts {
		b, err := p.Marshal()
		if err != nil {
			e.log.Error("Encoding mDNS datagram", zap.Error(err))
			continue
		}
		if to.IsValid() {
			e.writeTo(li, li.unicastFor(to), b, to, formatMDNS, kind)
			continue
		}
		e.writeTo(li, li.mdns4, b, netip.AddrPortFrom(netif.MDNSGroupV4, uint16(e.cfg.MDNSPort)), formatMDNS, kind)
		e.writeTo(li, li.mdns6, b, netip.AddrPortFrom(netif.MDNSGroupV6, uint16(e.cfg.MDNSPort)), formatMDNS, kind)
	}
}

// sendAnswers announces or withdraws a on every live interface opened for
// its transport, or only on o.only.
func (e *engine) sendAnswers(a answerSet, o sendOpts) {
	if len(a.names) == 0 || a.ports.zero() {
		return
	}
	kind := "answer"
	if a.timer == wire.TimerWithdraw {
		kind = "withdraw"
	}
	e.eachLive(o.only, func(li *liveInterface) {
		if !li.transports.Has(a.transport) {
			return
		}
		if o.formats&formatLegacy != 0 {
			e.writeLegacy(li, e.legacyAnswers(li, a, o.version), kind)
		}
		if o.formats&formatMDNS != 0 {
			e.writeMDNS(li, e.mdnsAnswers(li, a, o.id), o.to, kind)
		}
	})
}

func (e *engine) sendQuestions(t wire.TransportMask, names []string) {
	formats := e.formats()
	e.eachLive("", func(li *liveInterface) {
		if !li.transports.Overlaps(t) {
			return
		}
		if formats&formatLegacy != 0 {
			e.writeLegacy(li, e.legacyQuestions(t, names), "question")
		}
		if formats&formatMDNS != 0 {
			e.writeMDNS(li, e.mdnsQueries(li, t, names, 0), netip.AddrPort{}, "question")
		}
	})
}

// sendUnicastQuery asks one peer directly, for a targeted cache refresh.
func (e *engine) sendUnicastQuery(to netip.AddrPort, t wire.TransportMask, names []string) bool {
	id := e.nextMessageID()
	return e.route(to, func(li *liveInterface, c netif.PacketConn) {
		e.writeMDNS(li, e.mdnsQueries(li, t, names, id), to, "refresh")
	})
}

func (e *engine) sendPing(to netip.AddrPort, name string) bool {
	id := e.nextMessageID()
	return e.route(to, func(li *liveInterface, c netif.PacketConn) {
		e.writeMDNS(li, []*mdns.Packet{mdns.NewPing(id, e.guid, name, e.senderInfo(li))}, to, "ping")
	})
}

func (e *engine) sendPingReply(iface string, to netip.AddrPort, id uint16, reply mdns.PingReply) {
	e.eachLive(iface, func(li *liveInterface) {
		e.writeMDNS(li, []*mdns.Packet{mdns.NewPingReply(id, e.guid, reply, e.senderInfo(li))}, to, "ping-reply")
	})
}

// rawSend is a caller-built mDNS packet queued by Query or Response.
type rawSend struct {
	data []byte
	to   netip.AddrPort
	kind string
}

func (e *engine) sendRaw(r rawSend) {
	if r.to.IsValid() {
		if !e.route(r.to, func(li *liveInterface, c netif.PacketConn) {
			e.writeTo(li, c, r.data, r.to, formatMDNS, r.kind)
		}) {
			e.log.Debug("No interface to reach destination", zap.Stringer("to", r.to))
		}
		return
	}
	e.eachLive("", func(li *liveInterface) {
		e.writeTo(li, li.mdns4, r.data, netip.AddrPortFrom(netif.MDNSGroupV4, uint16(e.cfg.MDNSPort)), formatMDNS, r.kind)
		e.writeTo(li, li.mdns6, r.data, netip.AddrPortFrom(netif.MDNSGroupV6, uint16(e.cfg.MDNSPort)), formatMDNS, r.kind)
	})
}
