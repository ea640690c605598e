package mdns

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"

	nserrors "github.com/DeBrosOfficial/nameservice/pkg/errors"
	"github.com/DeBrosOfficial/nameservice/pkg/wire"
)

// TXTVersion is the value of the txtv key in every payload this package builds.
const TXTVersion = "0"

// Uniquify appends the "_N" suffix that lets one TXT record repeat a
// logical key.
func Uniquify(key string, n int) string {
	return key + "_" + strconv.Itoa(n)
}

// BaseKey strips a "_N" suffix, if any.
func BaseKey(key string) string {
	i := strings.LastIndexByte(key, '_')
	if i <= 0 || i == len(key)-1 {
		return key
	}
	if _, err := strconv.Atoi(key[i+1:]); err != nil {
		return key
	}
	return key[:i]
}

type txtBuilder struct {
	fields []TXTField
	seq    map[string]int
}

func newTXTBuilder() *txtBuilder {
	b := &txtBuilder{seq: make(map[string]int)}
	b.set("txtv", TXTVersion)
	return b
}

func (b *txtBuilder) set(key, value string) {
	b.fields = append(b.fields, TXTField{Key: key, Value: value})
}

// add appends key under the next free uniquifier.
func (b *txtBuilder) add(key, value string) {
	b.seq[key]++
	b.set(Uniquify(key, b.seq[key]), value)
}

func (b *txtBuilder) txt() *TXT { return &TXT{Fields: b.fields} }

func parseMask(s string) (wire.TransportMask, error) {
	v, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, err
	}
	return wire.TransportMask(v), nil
}

// AdvertiseEntry groups names under the transports they are offered on.
type AdvertiseEntry struct {
	Transport wire.TransportMask
	Names     []string
}

// Advertise is the payload of an advertise.<guid>.local. TXT record:
// t_N=<mask> opens a group and the n_N entries after it belong to it.
type Advertise struct {
	Entries []AdvertiseEntry
}

// TXT renders the payload.
func (a *Advertise) TXT() *TXT {
	b := newTXTBuilder()
	for _, e := range a.Entries {
		b.add("t", strconv.FormatUint(uint64(e.Transport), 10))
		for _, n := range e.Names {
			b.add("n", n)
		}
	}
	return b.txt()
}

// Names returns every advertised name offered on any transport in mask.
func (a *Advertise) Names(mask wire.TransportMask) []string {
	var out []string
	for _, e := range a.Entries {
		if e.Transport.Overlaps(mask) {
			out = append(out, e.Names...)
		}
	}
	return out
}

// ParseAdvertise reads an advertise payload.
func ParseAdvertise(t *TXT) (Advertise, error) {
	var a Advertise
	for _, f := range t.Fields {
		switch BaseKey(f.Key) {
		case "t":
			mask, err := parseMask(f.Value)
			if err != nil {
				return Advertise{}, nserrors.NewMalformedError(0, fmt.Sprintf("bad transport %q", f.Value))
			}
			a.Entries = append(a.Entries, AdvertiseEntry{Transport: mask})
		case "n":
			if len(a.Entries) == 0 {
				return Advertise{}, nserrors.NewMalformedError(0, "name before any transport")
			}
			last := &a.Entries[len(a.Entries)-1]
			last.Names = append(last.Names, f.Value)
		}
	}
	return a, nil
}

// Search is the payload of a search.<guid>.local. TXT record.
type Search struct {
	Transport wire.TransportMask
	Names     []string
}

// TXT renders the payload.
func (s *Search) TXT() *TXT {
	b := newTXTBuilder()
	b.set("t", strconv.FormatUint(uint64(s.Transport), 10))
	for _, n := range s.Names {
		b.add("n", n)
	}
	return b.txt()
}

// ParseSearch reads a search payload. A missing transport means all.
func ParseSearch(t *TXT) (Search, error) {
	s := Search{Transport: wire.TransportAll}
	for _, f := range t.Fields {
		switch BaseKey(f.Key) {
		case "t":
			mask, err := parseMask(f.Value)
			if err != nil {
				return Search{}, nserrors.NewMalformedError(0, fmt.Sprintf("bad transport %q", f.Value))
			}
			s.Transport = mask
		case "n":
			s.Names = append(s.Names, f.Value)
		}
	}
	return s, nil
}

// Ping asks one daemon whether it still advertises Name.
type Ping struct {
	Name string
}

// TXT renders the payload.
func (p *Ping) TXT() *TXT {
	b := newTXTBuilder()
	b.set("n", p.Name)
	return b.txt()
}

// ParsePing reads a ping payload.
func ParsePing(t *TXT) (Ping, error) {
	n, ok := t.Get("n")
	if !ok {
		return Ping{}, nserrors.NewMalformedError(0, "ping without name")
	}
	return Ping{Name: n}, nil
}

// ReplyCode is the outcome carried by a ping reply.
type ReplyCode uint8

const (
	ReplySuccess     ReplyCode = 1
	ReplyUnknownName ReplyCode = 2
)

func (c ReplyCode) String() string {
	switch c {
	case ReplySuccess:
		return "success"
	case ReplyUnknownName:
		return "unknown-name"
	}
	return "code-" + strconv.Itoa(int(c))
}

// PingReply answers a Ping.
type PingReply struct {
	Name      string
	ReplyCode ReplyCode
}

// TXT renders the payload.
func (p *PingReply) TXT() *TXT {
	b := newTXTBuilder()
	b.set("n", p.Name)
	b.set("replycode", strconv.Itoa(int(p.ReplyCode)))
	return b.txt()
}

// ParsePingReply reads a ping reply payload.
func ParsePingReply(t *TXT) (PingReply, error) {
	n, ok := t.Get("n")
	if !ok {
		return PingReply{}, nserrors.NewMalformedError(0, "ping reply without name")
	}
	raw, _ := t.Get("replycode")
	code, err := strconv.ParseUint(raw, 10, 8)
	if err != nil {
		return PingReply{}, nserrors.NewMalformedError(0, fmt.Sprintf("bad reply code %q", raw))
	}
	return PingReply{Name: n, ReplyCode: ReplyCode(code)}, nil
}

// SenderInfo tells receivers where to send unicast replies, which burst a
// datagram belongs to, and the sender's router priority.
type SenderInfo struct {
	ProtocolVersion uint8
	BurstID         uint32
	IPv4            netip.Addr
	UnicastPortV4   uint16
	IPv6            netip.Addr
	UnicastPortV6   uint16
	Priority        uint32
}

// TXT renders the payload. Unset addresses are omitted.
func (s *SenderInfo) TXT() *TXT {
	b := newTXTBuilder()
	b.set("pv", strconv.Itoa(int(s.ProtocolVersion)))
	b.set("bid", strconv.FormatUint(uint64(s.BurstID), 10))
	if s.IPv4.IsValid() {
		b.set("ipv4", s.IPv4.String())
		b.set("upcv4", strconv.Itoa(int(s.UnicastPortV4)))
	}
	if s.IPv6.IsValid() {
		b.set("ipv6", s.IPv6.String())
		b.set("upcv6", strconv.Itoa(int(s.UnicastPortV6)))
	}
	b.set("pri", strconv.FormatUint(uint64(s.Priority), 10))
	return b.txt()
}

// ReplyEndpointV4 returns the IPv4 unicast endpoint, if advertised.
func (s *SenderInfo) ReplyEndpointV4() (netip.AddrPort, bool) {
	if !s.IPv4.IsValid() || s.UnicastPortV4 == 0 {
		return netip.AddrPort{}, false
	}
	return netip.AddrPortFrom(s.IPv4, s.UnicastPortV4), true
}

// ReplyEndpointV6 returns the IPv6 unicast endpoint, if advertised.
func (s *SenderInfo) ReplyEndpointV6() (netip.AddrPort, bool) {
	if !s.IPv6.IsValid() || s.UnicastPortV6 == 0 {
		return netip.AddrPort{}, false
	}
	return netip.AddrPortFrom(s.IPv6, s.UnicastPortV6), true
}

// ParseSenderInfo reads a sender-info payload.
func ParseSenderInfo(t *TXT) (SenderInfo, error) {
	var s SenderInfo
	for _, f := range t.Fields {
		var err error
		switch f.Key {
		case "pv":
			var v uint64
			v, err = strconv.ParseUint(f.Value, 10, 8)
			s.ProtocolVersion = uint8(v)
		case "bid":
			var v uint64
			v, err = strconv.ParseUint(f.Value, 10, 32)
			s.BurstID = uint32(v)
		case "ipv4":
			s.IPv4, err = netip.ParseAddr(f.Value)
			if err == nil && !s.IPv4.Is4() {
				err = fmt.Errorf("not IPv4")
			}
		case "upcv4":
			var v uint64
			v, err = strconv.ParseUint(f.Value, 10, 16)
			s.UnicastPortV4 = uint16(v)
		case "ipv6":
			s.IPv6, err = netip.ParseAddr(f.Value)
		case "upcv6":
			var v uint64
			v, err = strconv.ParseUint(f.Value, 10, 16)
			s.UnicastPortV6 = uint16(v)
		case "pri":
			var v uint64
			v, err = strconv.ParseUint(f.Value, 10, 32)
			s.Priority = uint32(v)
		}
		if err != nil {
			return SenderInfo{}, nserrors.NewMalformedError(0, fmt.Sprintf("sender-info %s=%q: %v", f.Key, f.Value, err))
		}
	}
	return s, nil
}
