package mdns

import (
	"fmt"
	"net/netip"
	"strings"

	nserrors "github.com/DeBrosOfficial/nameservice/pkg/errors"
)

// Type is a resource record type.
type Type uint16

const (
	TypeA    Type = 1
	TypePTR  Type = 12
	TypeTXT  Type = 16
	TypeAAAA Type = 28
	TypeSRV  Type = 33
	TypeNSEC Type = 47
	TypeANY  Type = 255
)

func (t Type) String() string {
	switch t {
	case TypeA:
		return "A"
	case TypePTR:
		return "PTR"
	case TypeTXT:
		return "TXT"
	case TypeAAAA:
		return "AAAA"
	case TypeSRV:
		return "SRV"
	case TypeNSEC:
		return "NSEC"
	case TypeANY:
		return "ANY"
	}
	return fmt.Sprintf("TYPE%d", uint16(t))
}

// Class values. The top bit is cache-flush on records and unicast-response
// on questions; it is kept inside Class so round trips are exact.
const (
	ClassIN    uint16 = 1
	CacheFlush uint16 = 0x8000
	QU         uint16 = 0x8000
)

// RData is the type-specific payload of a resource record.
type RData interface {
	Type() Type
	encode(e *encoder) error
}

// A is an IPv4 address record.
type A struct {
	Addr netip.Addr
}

func (*A) Type() Type { return TypeA }

func (r *A) encode(e *encoder) error {
	if !r.Addr.Is4() {
		return nserrors.NewValidationError("A", "not an IPv4 address", r.Addr.String())
	}
	v := r.Addr.As4()
	e.bytes(v[:])
	return nil
}

// AAAA is an IPv6 address record.
type AAAA struct {
	Addr netip.Addr
}

func (*AAAA) Type() Type { return TypeAAAA }

func (r *AAAA) encode(e *encoder) error {
	if !r.Addr.Is6() {
		return nserrors.NewValidationError("AAAA", "not an IPv6 address", r.Addr.String())
	}
	v := r.Addr.As16()
	e.bytes(v[:])
	return nil
}

// PTR points at another name. The target is compressed.
type PTR struct {
	Target string
}

func (*PTR) Type() Type { return TypePTR }

func (r *PTR) encode(e *encoder) error {
	if err := CheckName(r.Target); err != nil {
		return err
	}
	e.name(r.Target)
	return nil
}

// SRV locates a service instance. The target is compressed.
type SRV struct {
	Priority uint16
	Weight   uint16
	Port     uint16
	Target   string
}

func (*SRV) Type() Type { return TypeSRV }

func (r *SRV) encode(e *encoder) error {
	if err := CheckName(r.Target); err != nil {
		return err
	}
	e.u16(r.Priority)
	e.u16(r.Weight)
	e.u16(r.Port)
	e.name(r.Target)
	return nil
}

// TXTField is one key=value entry of a TXT record. Bare entries (no '=')
// have NoValue set.
type TXTField struct {
	Key     string
	Value   string
	NoValue bool
}

func (f TXTField) String() string {
	if f.NoValue {
		return f.Key
	}
	return f.Key + "=" + f.Value
}

// TXT is an ordered list of key/value fields.
type TXT struct {
	Fields []TXTField
}

func (*TXT) Type() Type { return TypeTXT }

func (r *TXT) encode(e *encoder) error {
	// An empty TXT record carries one zero-length string.
	if len(r.Fields) == 0 {
		e.u8(0)
		return nil
	}
	for _, f := range r.Fields {
		s := f.String()
		if len(s) > 255 {
			return nserrors.NewInvalidArgumentError("txt entry length", int64(len(s)), 0, 255)
		}
		e.u8(uint8(len(s)))
		e.bytes([]byte(s))
	}
	return nil
}

// Get returns the value of the first field with the given key.
func (r *TXT) Get(key string) (string, bool) {
	for _, f := range r.Fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return "", false
}

// Opaque carries the raw RDATA of a type this package does not interpret.
type Opaque struct {
	RRType Type
	Data   []byte
}

func (r *Opaque) Type() Type { return r.RRType }

func (r *Opaque) encode(e *encoder) error {
	e.bytes(r.Data)
	return nil
}

// decodeRData parses length bytes of RDATA of type t at the cursor.
func decodeRData(d *decoder, t Type, length int) (RData, error) {
	start := d.off
	if err := d.need(length, "rdata"); err != nil {
		return nil, err
	}
	end := start + length

	var rd RData
	switch t {
	case TypeA:
		if length != 4 {
			return nil, nserrors.NewMalformedError(start, "A record length")
		}
		b, _ := d.take(4, "A")
		rd = &A{Addr: netip.AddrFrom4([4]byte(b))}
	case TypeAAAA:
		if length != 16 {
			return nil, nserrors.NewMalformedError(start, "AAAA record length")
		}
		b, _ := d.take(16, "AAAA")
		rd = &AAAA{Addr: netip.AddrFrom16([16]byte(b))}
	case TypePTR:
		target, err := d.name()
		if err != nil {
			return nil, err
		}
		rd = &PTR{Target: target}
	case TypeSRV:
		var srv SRV
		var err error
		if srv.Priority, err = d.u16("SRV"); err != nil {
			return nil, err
		}
		if srv.Weight, err = d.u16("SRV"); err != nil {
			return nil, err
		}
		if srv.Port, err = d.u16("SRV"); err != nil {
			return nil, err
		}
		if srv.Target, err = d.name(); err != nil {
			return nil, err
		}
		rd = &srv
	case TypeTXT:
		txt := &TXT{}
		for d.off < end {
			n, _ := d.u8("TXT")
			if d.off+int(n) > end {
				return nil, nserrors.NewMalformedError(d.off, "TXT string overruns rdata")
			}
			b, _ := d.take(int(n), "TXT")
			if n == 0 {
				continue
			}
			s := string(b)
			if k, v, ok := strings.Cut(s, "="); ok {
				txt.Fields = append(txt.Fields, TXTField{Key: k, Value: v})
			} else {
				txt.Fields = append(txt.Fields, TXTField{Key: s, NoValue: true})
			}
		}
		rd = txt
	default:
		b, _ := d.take(length, "rdata")
		rd = &Opaque{RRType: t, Data: append([]byte(nil), b...)}
	}

	if d.off != end {
		return nil, nserrors.NewMalformedError(start, fmt.Sprintf("%s rdata length mismatch", t))
	}
	return rd, nil
}
