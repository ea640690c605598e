package nameservice

import (
	"net/netip"
	"time"

	"go.uber.org/zap"

	nserrors "github.com/DeBrosOfficial/nameservice/pkg/errors"
	"github.com/DeBrosOfficial/nameservice/pkg/mdns"
	"github.com/DeBrosOfficial/nameservice/pkg/metrics"
	"github.com/DeBrosOfficial/nameservice/pkg/wire"
)

// datagram is one received packet, tagged with the socket it came from.
type datagram struct {
	iface  string
	format wireFormat
	from   netip.AddrPort
	data   []byte
}

// handle decodes and processes one datagram. Undecodable input is dropped.
func (e *engine) handle(d datagram) {
	switch d.format {
	case formatLegacy:
		var h wire.Header
		if _, err := h.Unmarshal(d.data); err != nil {
			e.malformed(d, err)
			return
		}
		e.metrics.PacketsReceived.WithLabelValues(formatLegacy.String()).Inc()
		e.handleLegacy(d, &h)
	case formatMDNS:
		var p mdns.Packet
		if _, err := p.Unmarshal(d.data); err != nil {
			e.malformed(d, err)
			return
		}
		e.metrics.PacketsReceived.WithLabelValues(formatMDNS.String()).Inc()
		if p.Response {
			e.handleResponse(d, &p)
		} else {
			e.handleQuery(d, &p)
		}
	}
}

// malformed drops a datagram that failed to decode. Anything other than
// bad peer data points at a codec bug and is logged louder.
func (e *engine) malformed(d datagram, err error) {
	e.metrics.PacketsDropped.WithLabelValues(metrics.DropMalformed).Inc()
	log := e.mdnsLog
	if d.format == formatLegacy {
		log = e.wireLog
	}
	logf := log.Debug
	if !nserrors.IsMalformed(err) {
		logf = log.Warn
	}
	logf("Dropping undecodable datagram",
		zap.String("interface", d.iface),
		zap.Stringer("from", d.from),
		zap.String("code", nserrors.GetErrorCode(err)),
		zap.Error(err))
}

// questionTransport is the transport a legacy question asks about. v1
// questions never carry one on the wire and so ask about every transport.
func questionTransport(q *wire.WhoHas) wire.TransportMask {
	if q.Version != wire.Version0 {
		return q.EffectiveTransport()
	}
	var t wire.TransportMask
	if q.TCP {
		t |= wire.TransportTCP
	}
	if q.UDP {
		t |= wire.TransportUDP
	}
	if t == 0 {
		return wire.TransportAll
	}
	return t
}

func answerTransport(a *wire.IsAt) wire.TransportMask {
	if a.Version != wire.Version0 {
		return a.Transport
	}
	var t wire.TransportMask
	if a.TCP {
		t |= wire.TransportTCP
	}
	if a.UDP {
		t |= wire.TransportUDP
	}
	return t
}

// legacyEndpoint picks the address a legacy answer offers for t, falling
// back to the datagram source for v0 answers without an address.
func legacyEndpoint(a *wire.IsAt, t wire.TransportMask, d datagram) (netip.AddrPort, bool) {
	if a.Version == wire.Version0 {
		if a.Port == 0 {
			return netip.AddrPort{}, false
		}
		addr := a.IPv4
		if !addr.IsValid() {
			addr = a.IPv6
		}
		if !addr.IsValid() {
			addr = d.from.Addr()
		}
		return netip.AddrPortFrom(zoned(addr, d.iface), a.Port), true
	}
	cands := [2]netip.AddrPort{a.ReliableIPv4, a.ReliableIPv6}
	if t == wire.TransportUDP {
		cands = [2]netip.AddrPort{a.UnreliableIPv4, a.UnreliableIPv6}
	}
	for _, c := range cands {
		if c.IsValid() {
			return netip.AddrPortFrom(zoned(c.Addr(), d.iface), c.Port()), true
		}
	}
	return netip.AddrPort{}, false
}

// zoned scopes a link-local IPv6 address to the receiving interface.
func zoned(a netip.Addr, iface string) netip.Addr {
	if a.Is6() && a.IsLinkLocalUnicast() && a.Zone() == "" {
		return a.WithZone(iface)
	}
	return a
}

// ttlTimer maps an mDNS TTL onto the answer timer scale.
func ttlTimer(ttl uint32) uint8 {
	if ttl >= uint32(wire.TimerPermanent) {
		return wire.TimerPermanent
	}
	return uint8(ttl)
}

func (e *engine) handleLegacy(d datagram, h *wire.Header) {
	var sends []func()
	var events []any

	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	for i := range h.Questions {
		q := &h.Questions[i]
		eachTransport(questionTransport(q), func(t wire.TransportMask) {
			names := e.state.matchAdvertised(t, q.Names)
			ports, ok := e.ports[t]
			if len(names) == 0 || !ok {
				return
			}
			// answer in the layout the question was asked in
			a := answerSet{transport: t, names: names, timer: e.advertTimer(), ports: ports}
			o := sendOpts{only: d.iface, formats: formatLegacy, version: h.Version}
			sends = append(sends, func() { e.sendAnswers(a, o) })
		})
	}
	for i := range h.Answers {
		a := &h.Answers[i]
		if a.GUID == "" {
			continue
		}
		if a.GUID == e.guid {
			e.metrics.PacketsDropped.WithLabelValues(metrics.DropOwnGUID).Inc()
			continue
		}
		timer := h.Timer
		eachTransport(answerTransport(a), func(t wire.TransportMask) {
			ep, ok := legacyEndpoint(a, t, d)
			if !ok {
				return
			}
			events = append(events, e.learn(a.GUID, t, a.Names, ep, timer, a.Complete, 0)...)
		})
	}
	e.mu.Unlock()

	for _, send := range sends {
		send()
	}
	for _, ev := range events {
		e.events.emit(ev)
	}
}

// learn records an answer from guid and returns the events it causes.
// mu must be held.
func (e *engine) learn(guid string, t wire.TransportMask, names []string, ep netip.AddrPort,
	timer uint8, complete bool, priority uint32) []any {
	names = e.state.interesting(t, names)
	if len(names) == 0 && !complete {
		return nil
	}
	endpoint, err := endpointAddr(t, ep)
	if err != nil {
		e.log.Debug("Unrepresentable endpoint", zap.Stringer("endpoint", ep), zap.Error(err))
		return nil
	}

	var expires uint64
	if timer != wire.TimerPermanent {
		expires = e.now + ticksFor(time.Duration(timer)*time.Second, e.cfg.TickInterval)
	}
	fresh, gone := e.cache.update(answer{
		key:      cacheKey{guid: guid, transport: t},
		names:    names,
		endpoint: endpoint,
		timer:    timer,
		complete: complete,
		priority: priority,
		expires:  expires,
	})

	if timer != wire.TimerWithdraw {
		for _, o := range e.outbound {
			if o.answeredBy(t, names) {
				o.state = stateExpired
			}
		}
	}

	var events []any
	if len(fresh) > 0 {
		events = append(events, FoundEvent{Endpoint: endpoint, GUID: guid, Names: fresh, Timer: timer, Transport: t, Priority: priority})
	}
	if len(gone) > 0 {
		events = append(events, FoundEvent{Endpoint: endpoint, GUID: guid, Names: gone, Timer: wire.TimerWithdraw, Transport: t, Priority: priority})
	}
	return events
}

// senderOf parses the sender-info payload guid attached to p.
func senderOf(p *mdns.Packet, guid string) (mdns.SenderInfo, bool) {
	for _, pl := range p.Payloads() {
		if pl.Kind == mdns.KindSenderInfo && pl.GUID == guid {
			s, err := mdns.ParseSenderInfo(pl.TXT)
			return s, err == nil
		}
	}
	return mdns.SenderInfo{}, false
}

// replyTo picks where to unicast a reply: the sender's advertised endpoint
// of the family it reached us on, else the datagram source. Queries sent
// from the mDNS port itself are answered on the group.
func (e *engine) replyTo(s mdns.SenderInfo, d datagram) netip.AddrPort {
	ep, ok := s.ReplyEndpointV4()
	if !d.from.Addr().Unmap().Is4() {
		ep, ok = s.ReplyEndpointV6()
	}
	if ok {
		return netip.AddrPortFrom(zoned(ep.Addr(), d.iface), ep.Port())
	}
	if int(d.from.Port()) == e.cfg.MDNSPort {
		return netip.AddrPort{}
	}
	return d.from
}

// heardFrom settles refreshes and pings waiting on guid. mu must be held.
func (e *engine) heardFrom(guid string, kind outboundKind, name string) bool {
	hit := false
	for _, o := range e.outbound {
		if o.guid != guid || o.kind != kind || o.finished() {
			continue
		}
		if kind == kindPing && o.names[0] != name {
			continue
		}
		o.heard = true
		o.state = stateExpired
		hit = true
	}
	return hit
}

func (e *engine) handleResponse(d datagram, p *mdns.Packet) {
	var events []any
	consumed := false

	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	for _, pl := range p.Payloads() {
		if pl.GUID == e.guid {
			consumed = true
			continue
		}
		switch pl.Kind {
		case mdns.KindAdvertise:
			consumed = true
			adv, err := mdns.ParseAdvertise(pl.TXT)
			if err != nil {
				e.malformed(d, err)
				continue
			}
			sender, _ := senderOf(p, pl.GUID)
			e.peers.heard(pl.GUID, sender, e.now, true)
			e.heardFrom(pl.GUID, kindRefresh, "")

			eps, v4, v6 := p.ServiceEndpoints(pl.GUID)
			addr := v4
			if !addr.IsValid() {
				addr = zoned(v6, d.iface)
			}
			if !addr.IsValid() {
				addr = d.from.Addr()
			}
			timer := ttlTimer(pl.TTL)
			for _, entry := range adv.Entries {
				eachTransport(entry.Transport, func(t wire.TransportMask) {
					for _, ep := range eps {
						if ep.Transport == t && ep.Port != 0 {
							events = append(events, e.learn(pl.GUID, t, entry.Names, netip.AddrPortFrom(addr, ep.Port), timer, false, sender.Priority)...)
							return
						}
					}
				})
			}
		case mdns.KindPingReply:
			consumed = true
			r, err := mdns.ParsePingReply(pl.TXT)
			if err != nil {
				e.malformed(d, err)
				continue
			}
			if sender, ok := senderOf(p, pl.GUID); ok {
				e.peers.heard(pl.GUID, sender, e.now, true)
			}
			if e.heardFrom(pl.GUID, kindPing, r.Name) {
				events = append(events, PingEvent{GUID: pl.GUID, Name: r.Name, Reply: r.ReplyCode})
			}
		case mdns.KindSenderInfo:
			consumed = true
		}
	}
	e.mu.Unlock()

	if !consumed {
		events = append(events, RawEvent{Interface: d.iface, From: d.from, Packet: p})
	}
	for _, ev := range events {
		e.events.emit(ev)
	}
}

func (e *engine) handleQuery(d datagram, p *mdns.Packet) {
	var sends []func()
	consumed := false

	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	for _, pl := range p.Payloads() {
		if pl.GUID == e.guid {
			// our own query looped back
			consumed = true
			break
		}
		switch pl.Kind {
		case mdns.KindSearch:
			consumed = true
			s, err := mdns.ParseSearch(pl.TXT)
			if err != nil {
				e.malformed(d, err)
				continue
			}
			sender, _ := senderOf(p, pl.GUID)
			e.peers.heard(pl.GUID, sender, e.now, false)
			to := e.replyTo(sender, d)
			sends = append(sends, e.answerSearch(d, s.Transport, s.Names, to, p.ID)...)
		case mdns.KindPing:
			consumed = true
			ping, err := mdns.ParsePing(pl.TXT)
			if err != nil {
				e.malformed(d, err)
				continue
			}
			sender, _ := senderOf(p, pl.GUID)
			e.peers.heard(pl.GUID, sender, e.now, false)
			reply := mdns.PingReply{Name: ping.Name, ReplyCode: mdns.ReplyUnknownName}
			if e.state.advertised(wire.TransportAll, ping.Name) {
				reply.ReplyCode = mdns.ReplySuccess
			}
			to, id := e.replyTo(sender, d), p.ID
			sends = append(sends, func() { e.sendPingReply(d.iface, to, id, reply) })
		}
	}
	if !consumed {
		// plain DNS-SD browsing for our service types
		for _, q := range p.Questions {
			var t wire.TransportMask
			switch mdns.Fqdn(q.Name) {
			case mdns.ServiceTCP:
				t = wire.TransportTCP
			case mdns.ServiceUDP:
				t = wire.TransportUDP
			default:
				continue
			}
			consumed = true
			var to netip.AddrPort
			if q.Class&mdns.QU != 0 || int(d.from.Port()) != e.cfg.MDNSPort {
				to = d.from
			}
			sends = append(sends, e.answerSearch(d, t, []string{"*"}, to, p.ID)...)
		}
	}
	e.mu.Unlock()

	for _, send := range sends {
		send()
	}
	if !consumed {
		e.events.emit(RawEvent{Interface: d.iface, From: d.from, Packet: p})
	}
}

// answerSearch answers an mDNS search with the matching local names,
// unicast to to when set. mu must be held.
func (e *engine) answerSearch(d datagram, mask wire.TransportMask, patterns []string, to netip.AddrPort, id uint16) []func() {
	var sends []func()
	eachTransport(mask, func(t wire.TransportMask) {
		names := e.state.matchAdvertised(t, patterns)
		ports, ok := e.ports[t]
		if len(names) == 0 || !ok {
			return
		}
		a := answerSet{transport: t, names: names, timer: e.advertTimer(), ports: ports}
		o := sendOpts{only: d.iface, formats: formatMDNS, to: to, id: id}
		sends = append(sends, func() { e.sendAnswers(a, o) })
	})
	return sends
}
