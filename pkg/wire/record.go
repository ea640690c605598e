// Package wire implements the legacy (v0/v1) name service datagram format.
//
// Every type follows the same contract: Size reports exactly how many bytes
// MarshalTo writes, and Unmarshal decodes into a fresh value, returning the
// number of bytes consumed, or 0 and an error if the input is malformed. The
// receiver is only overwritten on success.
package wire

import (
	"fmt"

	nserrors "github.com/DeBrosOfficial/nameservice/pkg/errors"
)

// Message versions carried in the low nibble of the header version byte.
const (
	Version0 uint8 = 0
	Version1 uint8 = 1

	// CurrentVersion is the name service version this implementation speaks.
	CurrentVersion = Version1
)

// MaxStringLen is the longest name a StringRecord can carry.
const MaxStringLen = 255

// TransportMask identifies the transports an advertisement or query concerns.
type TransportMask uint16

const (
	TransportNone TransportMask = 0x0000
	TransportTCP  TransportMask = 0x0004
	TransportUDP  TransportMask = 0x0100
	TransportAll  TransportMask = TransportTCP | TransportUDP
)

// Has reports whether every bit of o is set in m.
func (m TransportMask) Has(o TransportMask) bool { return o != 0 && m&o == o }

// Overlaps reports whether m and o share a transport.
func (m TransportMask) Overlaps(o TransportMask) bool { return m&o != 0 }

func (m TransportMask) String() string {
	switch m {
	case TransportNone:
		return "none"
	case TransportTCP:
		return "tcp"
	case TransportUDP:
		return "udp"
	case TransportAll:
		return "tcp|udp"
	}
	return fmt.Sprintf("0x%04x", uint16(m))
}

// Codec is implemented by every wire type.
type Codec interface {
	Size() int
	MarshalTo(b []byte) (int, error)
	Unmarshal(b []byte) (int, error)
}

// Marshal allocates a buffer of exactly c.Size() bytes and encodes into it.
func Marshal(c Codec) ([]byte, error) {
	b := make([]byte, c.Size())
	n, err := c.MarshalTo(b)
	if err != nil {
		return nil, err
	}
	return b[:n], nil
}

// StringRecord is a length-prefixed name: one length byte then the bytes.
type StringRecord string

// Size implements Codec.
func (s StringRecord) Size() int { return 1 + len(s) }

// MarshalTo implements Codec.
func (s StringRecord) MarshalTo(b []byte) (int, error) {
	if len(s) > MaxStringLen {
		return 0, nserrors.NewInvalidArgumentError("string length", int64(len(s)), 0, MaxStringLen)
	}
	if len(b) < s.Size() {
		return 0, errShortBuffer
	}
	b[0] = byte(len(s))
	copy(b[1:], s)
	return s.Size(), nil
}

// Unmarshal implements Codec.
func (s *StringRecord) Unmarshal(b []byte) (int, error) {
	v, n, err := readString(b, 0)
	if err != nil {
		return 0, err
	}
	*s = StringRecord(v)
	return n, nil
}

var errShortBuffer = nserrors.Wrap(nserrors.ErrTooLarge, "destination buffer shorter than Size()")

func checkString(s string) error {
	if len(s) > MaxStringLen {
		return nserrors.NewInvalidArgumentError("string length", int64(len(s)), 0, MaxStringLen)
	}
	return nil
}

func checkCount(what string, n int) error {
	if n > 255 {
		return nserrors.NewInvalidArgumentError(what, int64(n), 0, 255)
	}
	return nil
}

// putString writes a string record at b[0:] and returns the bytes written.
// Callers have already validated lengths and sized b.
func putString(b []byte, s string) int {
	b[0] = byte(len(s))
	return 1 + copy(b[1:], s)
}

// readString decodes a string record at b[off:]. It returns the string and
// the bytes consumed.
func readString(b []byte, off int) (string, int, error) {
	if off >= len(b) {
		return "", 0, nserrors.NewMalformedError(off, "missing string length")
	}
	n := int(b[off])
	if off+1+n > len(b) {
		return "", 0, nserrors.NewMalformedError(off, "string record truncated")
	}
	return string(b[off+1 : off+1+n]), 1 + n, nil
}

func namesSize(names []string) int {
	n := 0
	for _, s := range names {
		n += 1 + len(s)
	}
	return n
}

func checkNames(names []string) error {
	if err := checkCount("name count", len(names)); err != nil {
		return err
	}
	for _, s := range names {
		if err := checkString(s); err != nil {
			return err
		}
	}
	return nil
}

func readNames(b []byte, off, count int) ([]string, int, error) {
	if count == 0 {
		return nil, off, nil
	}
	names := make([]string, 0, count)
	for i := 0; i < count; i++ {
		s, n, err := readString(b, off)
		if err != nil {
			return nil, 0, err
		}
		names = append(names, s)
		off += n
	}
	return names, off, nil
}
