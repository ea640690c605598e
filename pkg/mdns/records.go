package mdns

import (
	"net/netip"
	"strings"

	"github.com/DeBrosOfficial/nameservice/pkg/wire"
)

// Well-known names.
const (
	LocalDomain   = "local."
	ServiceTCP    = "_busns._tcp.local."
	ServiceUDP    = "_busns._udp.local."
	serviceSuffix = "._busns._"
	DefaultTTL    = 120
)

// RecordKind identifies the TXT payloads carried under <kind>.<guid>.local.
type RecordKind string

const (
	KindAdvertise  RecordKind = "advertise"
	KindSearch     RecordKind = "search"
	KindPing       RecordKind = "ping"
	KindPingReply  RecordKind = "ping-reply"
	KindSenderInfo RecordKind = "sender-info"
)

// RecordName returns "<kind>.<guid>.local.".
func RecordName(kind RecordKind, guid string) string {
	return string(kind) + "." + guid + "." + LocalDomain
}

// ParseRecordName splits a payload record name into its kind and GUID.
func ParseRecordName(name string) (RecordKind, string, bool) {
	rest, ok := strings.CutSuffix(Fqdn(name), "."+LocalDomain)
	if !ok {
		return "", "", false
	}
	kind, guid, ok := strings.Cut(rest, ".")
	if !ok || guid == "" || strings.Contains(guid, ".") {
		return "", "", false
	}
	switch k := RecordKind(kind); k {
	case KindAdvertise, KindSearch, KindPing, KindPingReply, KindSenderInfo:
		return k, guid, true
	}
	return "", "", false
}

// ServiceName returns the DNS-SD service type for a single transport.
func ServiceName(t wire.TransportMask) string {
	if t == wire.TransportUDP {
		return ServiceUDP
	}
	return ServiceTCP
}

// InstanceName returns "<guid>.<service>".
func InstanceName(guid string, t wire.TransportMask) string {
	return guid + "." + ServiceName(t)
}

// HostName returns "<guid>.local.".
func HostName(guid string) string {
	return guid + "." + LocalDomain
}

// GUIDFromInstance extracts the GUID from a service instance name.
func GUIDFromInstance(instance string) (string, bool) {
	i := strings.Index(instance, serviceSuffix)
	if i <= 0 {
		return "", false
	}
	return instance[:i], true
}

// Endpoint is a service endpoint announced through PTR/SRV records.
type Endpoint struct {
	Transport wire.TransportMask
	Port      uint16
}

// ResponseParams describes a response announcing a daemon's names.
type ResponseParams struct {
	ID        uint16
	GUID      string
	TTL       uint32
	Endpoints []Endpoint
	IPv4      netip.Addr
	IPv6      netip.Addr
	Advertise Advertise
	Sender    SenderInfo
}

// NewResponse builds an unsolicited or solicited advertisement response.
// TTL 0 announces withdrawal.
func NewResponse(p ResponseParams) *Packet {
	pkt := &Packet{Header: Header{ID: p.ID, Response: true, Authoritative: true}}
	host := HostName(p.GUID)

	for _, ep := range p.Endpoints {
		instance := InstanceName(p.GUID, ep.Transport)
		pkt.Answers = append(pkt.Answers,
			Resource{Name: ServiceName(ep.Transport), Class: ClassIN, TTL: p.TTL, Data: &PTR{Target: instance}},
			Resource{Name: instance, Class: ClassIN | CacheFlush, TTL: p.TTL, Data: &SRV{Port: ep.Port, Target: host}},
		)
	}
	pkt.Answers = append(pkt.Answers, Resource{
		Name: RecordName(KindAdvertise, p.GUID), Class: ClassIN | CacheFlush, TTL: p.TTL, Data: p.Advertise.TXT(),
	})

	pkt.Additionals = append(pkt.Additionals, Resource{
		Name: RecordName(KindSenderInfo, p.GUID), Class: ClassIN | CacheFlush, TTL: p.TTL, Data: p.Sender.TXT(),
	})
	if p.IPv4.IsValid() {
		pkt.Additionals = append(pkt.Additionals, Resource{Name: host, Class: ClassIN | CacheFlush, TTL: p.TTL, Data: &A{Addr: p.IPv4}})
	}
	if p.IPv6.IsValid() {
		pkt.Additionals = append(pkt.Additionals, Resource{Name: host, Class: ClassIN | CacheFlush, TTL: p.TTL, Data: &AAAA{Addr: p.IPv6}})
	}
	return pkt
}

// NewQuery builds a search query. Questions ask for the service PTR of each
// requested transport; the search and sender-info payloads ride along as
// additional records.
func NewQuery(id uint16, guid string, search Search, sender SenderInfo) *Packet {
	pkt := &Packet{Header: Header{ID: id}}
	for _, t := range []wire.TransportMask{wire.TransportTCP, wire.TransportUDP} {
		if search.Transport.Overlaps(t) {
			pkt.Questions = append(pkt.Questions, Question{Name: ServiceName(t), Type: TypePTR, Class: ClassIN})
		}
	}
	pkt.Additionals = []Resource{
		{Name: RecordName(KindSearch, guid), Class: ClassIN, TTL: DefaultTTL, Data: search.TXT()},
		{Name: RecordName(KindSenderInfo, guid), Class: ClassIN, TTL: DefaultTTL, Data: sender.TXT()},
	}
	return pkt
}

// NewPing builds a unicast liveness query for one name.
func NewPing(id uint16, guid, name string, sender SenderInfo) *Packet {
	ping := Ping{Name: name}
	return &Packet{
		Header:    Header{ID: id},
		Questions: []Question{{Name: RecordName(KindPingReply, guid), Type: TypeTXT, Class: ClassIN | QU}},
		Additionals: []Resource{
			{Name: RecordName(KindPing, guid), Class: ClassIN, TTL: DefaultTTL, Data: ping.TXT()},
			{Name: RecordName(KindSenderInfo, guid), Class: ClassIN, TTL: DefaultTTL, Data: sender.TXT()},
		},
	}
}

// NewPingReply answers a ping with the responder's own GUID in the names.
func NewPingReply(id uint16, guid string, reply PingReply, sender SenderInfo) *Packet {
	return &Packet{
		Header: Header{ID: id, Response: true, Authoritative: true},
		Answers: []Resource{
			{Name: RecordName(KindPingReply, guid), Class: ClassIN, TTL: DefaultTTL, Data: reply.TXT()},
		},
		Additionals: []Resource{
			{Name: RecordName(KindSenderInfo, guid), Class: ClassIN, TTL: DefaultTTL, Data: sender.TXT()},
		},
	}
}

// Payload is a TXT payload located in a packet.
type Payload struct {
	Kind RecordKind
	GUID string
	TTL  uint32
	TXT  *TXT
}

// Payloads returns every recognised <kind>.<guid>.local. TXT record.
func (p *Packet) Payloads() []Payload {
	var out []Payload
	for _, section := range [][]Resource{p.Answers, p.Authorities, p.Additionals} {
		for i := range section {
			txt, ok := section[i].Data.(*TXT)
			if !ok {
				continue
			}
			kind, guid, ok := ParseRecordName(section[i].Name)
			if !ok {
				continue
			}
			out = append(out, Payload{Kind: kind, GUID: guid, TTL: section[i].TTL, TXT: txt})
		}
	}
	return out
}

// Payload returns the first payload of the given kind.
func (p *Packet) Payload(kind RecordKind) (Payload, bool) {
	for _, pl := range p.Payloads() {
		if pl.Kind == kind {
			return pl, true
		}
	}
	return Payload{}, false
}

// ServiceEndpoints resolves the SRV records that belong to guid into
// transport/port pairs, together with the host addresses.
func (p *Packet) ServiceEndpoints(guid string) (eps []Endpoint, v4, v6 netip.Addr) {
	host := HostName(guid)
	for _, r := range p.AllRecords() {
		switch d := r.Data.(type) {
		case *SRV:
			g, ok := GUIDFromInstance(r.Name)
			if !ok || g != guid {
				continue
			}
			t := wire.TransportTCP
			if strings.HasSuffix(r.Name, ServiceUDP) {
				t = wire.TransportUDP
			}
			eps = append(eps, Endpoint{Transport: t, Port: d.Port})
		case *A:
			if r.Name == host {
				v4 = d.Addr
			}
		case *AAAA:
			if r.Name == host {
				v6 = d.Addr
			}
		}
	}
	return eps, v4, v6
}
