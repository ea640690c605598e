package mdns

import (
	"encoding/binary"
	"net/netip"
	"strings"
	"testing"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	nserrors "github.com/DeBrosOfficial/nameservice/pkg/errors"
	"github.com/DeBrosOfficial/nameservice/pkg/wire"
)

const guid = "0123456789abcdef0123456789abcdef"

func sampleSender() SenderInfo {
	return SenderInfo{
		ProtocolVersion: 2,
		BurstID:         7,
		IPv4:            netip.MustParseAddr("192.168.1.20"),
		UnicastPortV4:   40000,
		IPv6:            netip.MustParseAddr("fe80::20"),
		UnicastPortV6:   40001,
		Priority:        65865,
	}
}

func samplePackets() map[string]*Packet {
	resp := NewResponse(ResponseParams{
		ID:   0,
		GUID: guid,
		TTL:  120,
		Endpoints: []Endpoint{
			{Transport: wire.TransportTCP, Port: 9955},
			{Transport: wire.TransportUDP, Port: 9956},
		},
		IPv4: netip.MustParseAddr("192.168.1.20"),
		IPv6: netip.MustParseAddr("fe80::20"),
		Advertise: Advertise{Entries: []AdvertiseEntry{
			{Transport: wire.TransportTCP, Names: []string{"org.foo.bar", "org.foo.baz"}},
			{Transport: wire.TransportUDP, Names: []string{"org.foo.bar"}},
		}},
		Sender: sampleSender(),
	})

	query := NewQuery(0x1234, guid, Search{Transport: wire.TransportAll, Names: []string{"org.foo.*"}}, sampleSender())

	custom := &Packet{
		Header: Header{ID: 9, Opcode: 2, Truncated: true, RecursionDesired: true, Z: 5, RCode: 3},
		Questions: []Question{
			{Name: ".", Type: TypeANY, Class: ClassIN | QU},
		},
		Authorities: []Resource{
			{Name: "host.local.", Class: ClassIN, TTL: 1, Data: &Opaque{RRType: TypeNSEC, Data: []byte{0xc0, 0x0c, 0, 1, 0x40}}},
			{Name: "empty.local.", Class: ClassIN, TTL: 2, Data: &TXT{}},
			{Name: "flags.local.", Class: ClassIN, TTL: 3, Data: &TXT{Fields: []TXTField{{Key: "bare", NoValue: true}, {Key: "k", Value: "a=b"}}}},
		},
	}

	return map[string]*Packet{
		"response": resp,
		"query":    query,
		"ping":     NewPing(1, guid, "org.foo.bar", sampleSender()),
		"reply":    NewPingReply(1, guid, PingReply{Name: "org.foo.bar", ReplyCode: ReplyUnknownName}, sampleSender()),
		"custom":   custom,
		"empty":    {},
	}
}

func TestPacketRoundTrip(t *testing.T) {
	for name, p := range samplePackets() {
		t.Run(name, func(t *testing.T) {
			b, err := p.Marshal()
			require.NoError(t, err)
			require.Equal(t, p.Size(), len(b))

			var got Packet
			n, err := got.Unmarshal(b)
			require.NoError(t, err)
			assert.Equal(t, len(b), n)
			assert.Equal(t, p, &got)

			// MarshalTo into a larger buffer writes exactly Size() bytes.
			buf := make([]byte, len(b)+10)
			n, err = p.MarshalTo(buf)
			require.NoError(t, err)
			assert.Equal(t, b, buf[:n])
		})
	}
}

func TestPacketTruncation(t *testing.T) {
	for name, p := range samplePackets() {
		t.Run(name, func(t *testing.T) {
			b, err := p.Marshal()
			require.NoError(t, err)

			for k := 0; k < len(b); k++ {
				got := Packet{Header: Header{ID: 42}}
				n, err := got.Unmarshal(b[:k])
				if n != 0 || err == nil {
					t.Fatalf("prefix %d/%d: consumed %d, err %v", k, len(b), n, err)
				}
				assert.Equal(t, Packet{Header: Header{ID: 42}}, got)
			}
		})
	}
}

func TestCompressionShortensRepeatedNames(t *testing.T) {
	const name = "advertise.0123456789abcdef.local."
	rec := func() Resource {
		return Resource{Name: name, Class: ClassIN, TTL: 5, Data: &A{Addr: netip.MustParseAddr("10.0.0.1")}}
	}
	p := &Packet{Answers: []Resource{rec(), rec()}}

	nameWire := len(name) + 1
	independent := headerLen + 2*(nameWire+10+4)
	assert.Less(t, p.Size(), independent)
	assert.Equal(t, independent-nameWire+2, p.Size())

	b, err := p.Marshal()
	require.NoError(t, err)
	var got Packet
	_, err = got.Unmarshal(b)
	require.NoError(t, err)
	assert.Equal(t, name, got.Answers[0].Name)
	assert.Equal(t, name, got.Answers[1].Name)
}

func TestCompressionOfRDataTargets(t *testing.T) {
	p := &Packet{Answers: []Resource{
		{Name: ServiceTCP, Class: ClassIN, TTL: 1, Data: &PTR{Target: InstanceName(guid, wire.TransportTCP)}},
	}}
	b, err := p.Marshal()
	require.NoError(t, err)

	// The PTR target is "<guid>" plus a pointer back to the owner name.
	rdlen := binary.BigEndian.Uint16(b[headerLen+len(ServiceTCP)+1+8:])
	assert.Equal(t, uint16(1+len(guid)+2), rdlen)
}

// message builds a raw query with the given question-name bytes appended
// verbatim after a 12-byte header.
func message(qdcount uint16, body ...byte) []byte {
	b := make([]byte, headerLen, headerLen+len(body))
	binary.BigEndian.PutUint16(b[4:], qdcount)
	return append(b, body...)
}

func TestDecodePointerChains(t *testing.T) {
	// q1: x.local. at 12; q2: y -> ptr(12) at 25; q3: z -> ptr(25)
	b := message(3,
		1, 'x', 5, 'l', 'o', 'c', 'a', 'l', 0, 0, 1, 0, 1,
		1, 'y', 0xc0, 12, 0, 1, 0, 1,
		1, 'z', 0xc0, 25, 0, 1, 0, 1,
	)
	var p Packet
	n, err := p.Unmarshal(b)
	require.NoError(t, err)
	assert.Equal(t, len(b), n)
	require.Len(t, p.Questions, 3)
	assert.Equal(t, "x.local.", p.Questions[0].Name)
	assert.Equal(t, "y.x.local.", p.Questions[1].Name)
	assert.Equal(t, "z.y.x.local.", p.Questions[2].Name)
}

func TestDecodePointerIntoUnseenSuffix(t *testing.T) {
	// q2 points at the "local" suffix in the middle of q1.
	b := message(2,
		1, 'x', 5, 'l', 'o', 'c', 'a', 'l', 0, 0, 1, 0, 1,
		0xc0, 14, 0, 1, 0, 1,
	)
	var p Packet
	_, err := p.Unmarshal(b)
	require.NoError(t, err)
	assert.Equal(t, "local.", p.Questions[1].Name)
}

func TestDecodeMalformedNames(t *testing.T) {
	long := make([]byte, 0, 330)
	for i := 0; i < 5; i++ {
		long = append(long, 63)
		long = append(long, []byte(strings.Repeat("a", 63))...)
	}
	long = append(long, 0, 0, 1, 0, 1)

	tests := []struct {
		name string
		msg  []byte
	}{
		{"forward pointer", message(1, 0xc0, 20, 0, 1, 0, 1, 0, 0, 0, 0)},
		{"self pointer", message(1, 0xc0, 12, 0, 1, 0, 1)},
		{"reserved label type", message(1, 0x40, 'a', 0, 0, 1, 0, 1)},
		{"truncated pointer", message(1, 0xc0)},
		{"name too long", message(1, long...)},
		{"dot in label", message(1, 3, 'a', '.', 'b', 0, 0, 1, 0, 1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p Packet
			n, err := p.Unmarshal(tt.msg)
			assert.Zero(t, n)
			assert.True(t, nserrors.IsMalformed(err), "got %v", err)
		})
	}
}

func TestEncodeRejectsBadNames(t *testing.T) {
	p := &Packet{Questions: []Question{{Name: strings.Repeat("a", 64) + ".local.", Type: TypeA, Class: ClassIN}}}
	_, err := p.Marshal()
	assert.True(t, nserrors.IsValidation(err))
	assert.Equal(t, -1, p.Size())

	p = &Packet{Questions: []Question{{Name: "a..local.", Type: TypeA, Class: ClassIN}}}
	_, err = p.Marshal()
	assert.Error(t, err)

	p = &Packet{Answers: []Resource{{Name: "x.local."}}}
	_, err = p.Marshal()
	assert.Error(t, err)
}

func TestEmptyTXTIsOneZeroLengthString(t *testing.T) {
	p := &Packet{Answers: []Resource{{Name: ".", Class: ClassIN, Data: &TXT{}}}}
	b, err := p.Marshal()
	require.NoError(t, err)
	// root name, type, class, ttl, rdlength=1, 0
	assert.Equal(t, []byte{0, 0, 16, 0, 1, 0, 0, 0, 0, 0, 1, 0}, b[headerLen:])
}

func TestMiekgDecodesOurEncoding(t *testing.T) {
	p := samplePackets()["response"]
	m, err := p.ToMsg()
	require.NoError(t, err)

	assert.True(t, m.Response)
	assert.True(t, m.Authoritative)
	require.Len(t, m.Answer, 5)

	ptr, ok := m.Answer[0].(*dns.PTR)
	require.True(t, ok)
	assert.Equal(t, ServiceTCP, ptr.Hdr.Name)
	assert.Equal(t, InstanceName(guid, wire.TransportTCP), ptr.Ptr)

	srv, ok := m.Answer[1].(*dns.SRV)
	require.True(t, ok)
	assert.Equal(t, uint16(9955), srv.Port)
	assert.Equal(t, HostName(guid), srv.Target)

	txt, ok := m.Answer[4].(*dns.TXT)
	require.True(t, ok)
	assert.Equal(t, []string{"txtv=0", "t_1=4", "n_1=org.foo.bar", "n_2=org.foo.baz", "t_2=256", "n_3=org.foo.bar"}, txt.Txt)

	var sawA bool
	for _, rr := range m.Extra {
		if a, ok := rr.(*dns.A); ok {
			sawA = true
			assert.Equal(t, "192.168.1.20", a.A.String())
		}
	}
	assert.True(t, sawA)
}

func TestWeDecodeMiekgEncoding(t *testing.T) {
	m := new(dns.Msg)
	m.Id = 77
	m.Response = true
	m.Compress = true
	m.Answer = []dns.RR{
		&dns.PTR{Hdr: dns.RR_Header{Name: ServiceTCP, Rrtype: dns.TypePTR, Class: dns.ClassINET, Ttl: 120}, Ptr: "abc." + ServiceTCP},
		&dns.SRV{Hdr: dns.RR_Header{Name: "abc." + ServiceTCP, Rrtype: dns.TypeSRV, Class: dns.ClassINET, Ttl: 120}, Port: 4000, Target: "abc.local."},
		&dns.TXT{Hdr: dns.RR_Header{Name: "ping.abc.local.", Rrtype: dns.TypeTXT, Class: dns.ClassINET, Ttl: 120}, Txt: []string{"txtv=0", "n=org.x"}},
		&dns.AAAA{Hdr: dns.RR_Header{Name: "abc.local.", Rrtype: dns.TypeAAAA, Class: dns.ClassINET, Ttl: 120}, AAAA: netip.MustParseAddr("fe80::1").AsSlice()},
	}

	p, err := FromMsg(m)
	require.NoError(t, err)
	assert.Equal(t, uint16(77), p.ID)
	require.Len(t, p.Answers, 4)
	assert.Equal(t, &PTR{Target: "abc." + ServiceTCP}, p.Answers[0].Data)
	assert.Equal(t, &SRV{Port: 4000, Target: "abc.local."}, p.Answers[1].Data)

	pl, ok := p.Payload(KindPing)
	require.True(t, ok)
	assert.Equal(t, "abc", pl.GUID)
	ping, err := ParsePing(pl.TXT)
	require.NoError(t, err)
	assert.Equal(t, "org.x", ping.Name)

	eps, _, v6 := p.ServiceEndpoints("abc")
	assert.Equal(t, []Endpoint{{Transport: wire.TransportTCP, Port: 4000}}, eps)
	assert.Equal(t, netip.MustParseAddr("fe80::1"), v6)
}
