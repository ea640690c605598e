package mdns

import (
	"encoding/binary"
	"strings"

	nserrors "github.com/DeBrosOfficial/nameservice/pkg/errors"
)

const (
	maxLabelLen = 63
	maxNameLen  = 255

	pointerTag  = 0xC0
	pointerMask = 0x3FFF
)

// encoder writes a message, or only measures it when buf is nil. Both modes
// walk the same compression decisions, which is what keeps Size exact.
type encoder struct {
	buf   []byte
	off   int
	names map[string]int
}

func newEncoder(buf []byte) *encoder {
	return &encoder{buf: buf, names: make(map[string]int)}
}

func (e *encoder) u8(v uint8) {
	if e.buf != nil {
		e.buf[e.off] = v
	}
	e.off++
}

func (e *encoder) u16(v uint16) {
	if e.buf != nil {
		binary.BigEndian.PutUint16(e.buf[e.off:], v)
	}
	e.off += 2
}

func (e *encoder) u32(v uint32) {
	if e.buf != nil {
		binary.BigEndian.PutUint32(e.buf[e.off:], v)
	}
	e.off += 4
}

func (e *encoder) bytes(b []byte) {
	if e.buf != nil {
		copy(e.buf[e.off:], b)
	}
	e.off += len(b)
}

// patch16 overwrites a previously reserved 16-bit slot.
func (e *encoder) patch16(at int, v uint16) {
	if e.buf != nil {
		binary.BigEndian.PutUint16(e.buf[at:], v)
	}
}

// name writes a domain name, replacing the longest already-emitted suffix
// with a pointer.
func (e *encoder) name(n string) {
	labels := splitName(n)
	for i := range labels {
		suffix := strings.Join(labels[i:], ".") + "."
		if at, ok := e.names[suffix]; ok {
			e.u16(uint16(pointerTag)<<8 | uint16(at))
			return
		}
		if e.off <= pointerMask {
			e.names[suffix] = e.off
		}
		e.u8(uint8(len(labels[i])))
		e.bytes([]byte(labels[i]))
	}
	e.u8(0)
}

// splitName returns the labels of a fully or partially qualified name.
// The root name yields no labels.
func splitName(n string) []string {
	n = strings.TrimSuffix(n, ".")
	if n == "" {
		return nil
	}
	return strings.Split(n, ".")
}

// CheckName validates a domain name for encoding.
func CheckName(n string) error {
	if n == "." || n == "" {
		return nil
	}
	wireLen := 1
	for _, l := range splitName(n) {
		if l == "" {
			return nserrors.NewValidationError("name", "empty label", n)
		}
		if len(l) > maxLabelLen {
			return nserrors.NewValidationError("name", "label longer than 63 bytes", n)
		}
		wireLen += 1 + len(l)
	}
	if wireLen > maxNameLen {
		return nserrors.NewValidationError("name", "name longer than 255 bytes", n)
	}
	return nil
}

// Fqdn returns n with a trailing dot.
func Fqdn(n string) string {
	if strings.HasSuffix(n, ".") {
		return n
	}
	return n + "."
}

// decoder reads a message and remembers every name suffix by the offset it
// started at, including suffixes only reached through pointers.
type decoder struct {
	buf   []byte
	off   int
	names map[int]string
}

func newDecoder(buf []byte) *decoder {
	return &decoder{buf: buf, names: make(map[int]string)}
}

func (d *decoder) need(n int, what string) error {
	if d.off+n > len(d.buf) {
		return nserrors.NewMalformedError(d.off, what+" truncated")
	}
	return nil
}

func (d *decoder) u8(what string) (uint8, error) {
	if err := d.need(1, what); err != nil {
		return 0, err
	}
	v := d.buf[d.off]
	d.off++
	return v, nil
}

func (d *decoder) u16(what string) (uint16, error) {
	if err := d.need(2, what); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(d.buf[d.off:])
	d.off += 2
	return v, nil
}

func (d *decoder) u32(what string) (uint32, error) {
	if err := d.need(4, what); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(d.buf[d.off:])
	d.off += 4
	return v, nil
}

func (d *decoder) take(n int, what string) ([]byte, error) {
	if err := d.need(n, what); err != nil {
		return nil, err
	}
	b := d.buf[d.off : d.off+n]
	d.off += n
	return b, nil
}

// name reads a possibly compressed name at the cursor.
func (d *decoder) name() (string, error) {
	n, next, err := d.nameAt(d.off)
	if err != nil {
		return "", err
	}
	d.off = next
	return n, nil
}

// nameAt decodes the name starting at off and returns it with the offset
// just past its in-place encoding. Pointers must point strictly backwards,
// which rules out loops.
func (d *decoder) nameAt(off int) (string, int, error) {
	type label struct {
		at   int
		text string
	}
	var labels []label
	var tail string
	p := off

	for {
		if p >= len(d.buf) {
			return "", 0, nserrors.NewMalformedError(p, "name truncated")
		}
		l := int(d.buf[p])
		switch {
		case l == 0:
			p++
			tail = "."
		case l&pointerTag == pointerTag:
			if p+1 >= len(d.buf) {
				return "", 0, nserrors.NewMalformedError(p, "pointer truncated")
			}
			target := int(binary.BigEndian.Uint16(d.buf[p:]) & pointerMask)
			if target >= p {
				return "", 0, nserrors.NewMalformedError(p, "forward compression pointer")
			}
			p += 2
			if s, ok := d.names[target]; ok {
				tail = s
			} else {
				s, _, err := d.nameAt(target)
				if err != nil {
					return "", 0, err
				}
				tail = s
			}
		case l&pointerTag != 0:
			return "", 0, nserrors.NewMalformedError(p, "reserved label type")
		default:
			if p+1+l > len(d.buf) {
				return "", 0, nserrors.NewMalformedError(p, "label truncated")
			}
			text := string(d.buf[p+1 : p+1+l])
			if strings.Contains(text, ".") {
				return "", 0, nserrors.NewMalformedError(p, "label contains a dot")
			}
			labels = append(labels, label{at: p, text: text})
			p += 1 + l
			continue
		}
		break
	}

	// Record each suffix so later pointers into this name resolve from the map.
	full := tail
	for i := len(labels) - 1; i >= 0; i-- {
		if full == "." {
			full = labels[i].text + "."
		} else {
			full = labels[i].text + "." + full
		}
		d.names[labels[i].at] = full
	}
	if full != "." && len(full)+1 > maxNameLen {
		return "", 0, nserrors.NewMalformedError(off, "name longer than 255 bytes")
	}
	return full, p, nil
}
