package mdns

import (
	"fmt"

	"github.com/miekg/dns"
)

// FromMsg converts a miekg/dns message, for callers that build custom
// records with that library before handing them to Query or Response.
func FromMsg(m *dns.Msg) (*Packet, error) {
	b, err := m.Pack()
	if err != nil {
		return nil, fmt.Errorf("pack dns message: %w", err)
	}
	p := &Packet{}
	if _, err := p.Unmarshal(b); err != nil {
		return nil, err
	}
	return p, nil
}

// ToMsg converts the packet to a miekg/dns message.
func (p *Packet) ToMsg() (*dns.Msg, error) {
	b, err := p.Marshal()
	if err != nil {
		return nil, err
	}
	m := new(dns.Msg)
	if err := m.Unpack(b); err != nil {
		return nil, fmt.Errorf("unpack dns message: %w", err)
	}
	return m, nil
}

// String renders the packet in zone-file form.
func (p *Packet) String() string {
	m, err := p.ToMsg()
	if err != nil {
		return fmt.Sprintf("<invalid packet: %v>", err)
	}
	return m.String()
}
