// Package mdns implements the DNS-compatible name service datagram format:
// a 12-byte header followed by question and resource record sections with
// name compression.
package mdns

import (
	nserrors "github.com/DeBrosOfficial/nameservice/pkg/errors"
)

const headerLen = 12

// Header holds the fixed DNS header fields. Section counts are derived from
// the Packet's slices.
type Header struct {
	ID                 uint16
	Response           bool
	Opcode             uint8
	Authoritative      bool
	Truncated          bool
	RecursionDesired   bool
	RecursionAvailable bool
	// Z holds the three bits between RA and RCODE, preserved verbatim.
	Z     uint8
	RCode uint8
}

func (h Header) flags() uint16 {
	var f uint16
	if h.Response {
		f |= 1 << 15
	}
	f |= uint16(h.Opcode&0x0f) << 11
	if h.Authoritative {
		f |= 1 << 10
	}
	if h.Truncated {
		f |= 1 << 9
	}
	if h.RecursionDesired {
		f |= 1 << 8
	}
	if h.RecursionAvailable {
		f |= 1 << 7
	}
	f |= uint16(h.Z&0x07) << 4
	f |= uint16(h.RCode & 0x0f)
	return f
}

func headerFromFlags(id, f uint16) Header {
	return Header{
		ID:                 id,
		Response:           f&(1<<15) != 0,
		Opcode:             uint8(f>>11) & 0x0f,
		Authoritative:      f&(1<<10) != 0,
		Truncated:          f&(1<<9) != 0,
		RecursionDesired:   f&(1<<8) != 0,
		RecursionAvailable: f&(1<<7) != 0,
		Z:                  uint8(f>>4) & 0x07,
		RCode:              uint8(f & 0x0f),
	}
}

// Question asks for records of Type at Name.
type Question struct {
	Name  string
	Type  Type
	Class uint16
}

// Resource is a resource record. Its type is that of Data.
type Resource struct {
	Name  string
	Class uint16
	TTL   uint32
	Data  RData
}

// Type returns the record type, or 0 when Data is nil.
func (r *Resource) Type() Type {
	if r.Data == nil {
		return 0
	}
	return r.Data.Type()
}

// Packet is a complete mDNS message.
type Packet struct {
	Header
	Questions   []Question
	Answers     []Resource
	Authorities []Resource
	Additionals []Resource
}

func (p *Packet) encode(e *encoder) error {
	for _, n := range []int{len(p.Questions), len(p.Answers), len(p.Authorities), len(p.Additionals)} {
		if n > 0xffff {
			return nserrors.NewInvalidArgumentError("section count", int64(n), 0, 0xffff)
		}
	}

	e.u16(p.ID)
	e.u16(p.flags())
	e.u16(uint16(len(p.Questions)))
	e.u16(uint16(len(p.Answers)))
	e.u16(uint16(len(p.Authorities)))
	e.u16(uint16(len(p.Additionals)))

	for _, q := range p.Questions {
		if err := CheckName(q.Name); err != nil {
			return err
		}
		e.name(q.Name)
		e.u16(uint16(q.Type))
		e.u16(q.Class)
	}
	for _, section := range [][]Resource{p.Answers, p.Authorities, p.Additionals} {
		for i := range section {
			if err := encodeResource(e, &section[i]); err != nil {
				return err
			}
		}
	}
	return nil
}

func encodeResource(e *encoder, r *Resource) error {
	if r.Data == nil {
		return nserrors.NewValidationError("rdata", "resource record has no data", r.Name)
	}
	if err := CheckName(r.Name); err != nil {
		return err
	}
	e.name(r.Name)
	e.u16(uint16(r.Data.Type()))
	e.u16(r.Class)
	e.u32(r.TTL)

	lenAt := e.off
	e.u16(0)
	start := e.off
	if err := r.Data.encode(e); err != nil {
		return err
	}
	if e.off-start > 0xffff {
		return nserrors.NewInvalidArgumentError("rdata length", int64(e.off-start), 0, 0xffff)
	}
	e.patch16(lenAt, uint16(e.off-start))
	return nil
}

// Size returns the exact number of bytes MarshalTo writes, or -1 if the
// packet cannot be encoded.
func (p *Packet) Size() int {
	e := newEncoder(nil)
	if err := p.encode(e); err != nil {
		return -1
	}
	return e.off
}

// MarshalTo encodes the packet into b.
func (p *Packet) MarshalTo(b []byte) (int, error) {
	size := p.Size()
	if size < 0 {
		// Re-run to surface the error.
		return 0, p.encode(newEncoder(nil))
	}
	if len(b) < size {
		return 0, nserrors.Wrap(nserrors.ErrTooLarge, "destination buffer shorter than Size()")
	}
	e := newEncoder(b[:size])
	if err := p.encode(e); err != nil {
		return 0, err
	}
	return e.off, nil
}

// Marshal encodes the packet into a new buffer of exactly Size() bytes.
func (p *Packet) Marshal() ([]byte, error) {
	e := newEncoder(nil)
	if err := p.encode(e); err != nil {
		return nil, err
	}
	b := make([]byte, e.off)
	if err := p.encode(newEncoder(b)); err != nil {
		return nil, err
	}
	return b, nil
}

// Unmarshal decodes a packet from b. On failure it returns 0 and leaves p
// untouched.
func (p *Packet) Unmarshal(b []byte) (int, error) {
	if len(b) < headerLen {
		return 0, nserrors.NewMalformedError(0, "header truncated")
	}
	d := newDecoder(b)

	id, _ := d.u16("header")
	flags, _ := d.u16("header")
	qd, _ := d.u16("header")
	an, _ := d.u16("header")
	ns, _ := d.u16("header")
	ar, _ := d.u16("header")

	fresh := Packet{Header: headerFromFlags(id, flags)}

	// Every question is at least 5 bytes and every record 11; reject counts
	// the buffer cannot possibly hold before allocating for them.
	if int(qd)*5+(int(an)+int(ns)+int(ar))*11 > len(b)-headerLen {
		return 0, nserrors.NewMalformedError(4, "section counts exceed message")
	}

	if qd > 0 {
		fresh.Questions = make([]Question, 0, qd)
	}
	for i := 0; i < int(qd); i++ {
		name, err := d.name()
		if err != nil {
			return 0, err
		}
		t, err := d.u16("question")
		if err != nil {
			return 0, err
		}
		c, err := d.u16("question")
		if err != nil {
			return 0, err
		}
		fresh.Questions = append(fresh.Questions, Question{Name: name, Type: Type(t), Class: c})
	}

	var err error
	if fresh.Answers, err = decodeSection(d, int(an)); err != nil {
		return 0, err
	}
	if fresh.Authorities, err = decodeSection(d, int(ns)); err != nil {
		return 0, err
	}
	if fresh.Additionals, err = decodeSection(d, int(ar)); err != nil {
		return 0, err
	}

	*p = fresh
	return d.off, nil
}

func decodeSection(d *decoder, count int) ([]Resource, error) {
	if count == 0 {
		return nil, nil
	}
	out := make([]Resource, 0, count)
	for i := 0; i < count; i++ {
		name, err := d.name()
		if err != nil {
			return nil, err
		}
		t, err := d.u16("record")
		if err != nil {
			return nil, err
		}
		class, err := d.u16("record")
		if err != nil {
			return nil, err
		}
		ttl, err := d.u32("record")
		if err != nil {
			return nil, err
		}
		length, err := d.u16("record")
		if err != nil {
			return nil, err
		}
		data, err := decodeRData(d, Type(t), int(length))
		if err != nil {
			return nil, err
		}
		out = append(out, Resource{Name: name, Class: class, TTL: ttl, Data: data})
	}
	return out, nil
}

// AllRecords returns answers, authorities and additionals in order.
func (p *Packet) AllRecords() []Resource {
	out := make([]Resource, 0, len(p.Answers)+len(p.Authorities)+len(p.Additionals))
	out = append(out, p.Answers...)
	out = append(out, p.Authorities...)
	return append(out, p.Additionals...)
}

// Find returns the first record of type t named name in any section.
func (p *Packet) Find(name string, t Type) (*Resource, bool) {
	for _, section := range [][]Resource{p.Answers, p.Authorities, p.Additionals} {
		for i := range section {
			if section[i].Type() == t && section[i].Name == name {
				return &section[i], true
			}
		}
	}
	return nil, false
}
