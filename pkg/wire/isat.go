package wire

import (
	"encoding/binary"
	"net/netip"

	nserrors "github.com/DeBrosOfficial/nameservice/pkg/errors"
)

// Type tags in the top two bits of the first record byte.
const (
	tagMask   = 0xC0
	tagIsAt   = 0x40
	tagWhoHas = 0x80
)

// IsAt flag bits, byte 0.
const (
	isAtGUID     = 0x20
	isAtComplete = 0x10

	// v0
	isAtTCP  = 0x08
	isAtUDP  = 0x04
	isAtIPv6 = 0x02
	isAtIPv4 = 0x01

	// v1
	isAtR4 = 0x08
	isAtU4 = 0x04
	isAtR6 = 0x02
	isAtU6 = 0x01
)

const isAtFixed = 4

// IsAt is an answer: the names a daemon hosts and where to reach it.
type IsAt struct {
	// Version selects the v0 or v1 layout. It is not itself serialized; the
	// enclosing Header carries it.
	Version uint8

	// Complete marks Names as the full set rather than an increment.
	Complete bool
	// GUID of the originating daemon, omitted from the wire when empty.
	GUID  string
	Names []string

	// v0 fields
	TCP  bool
	UDP  bool
	Port uint16
	IPv4 netip.Addr
	IPv6 netip.Addr

	// v1 fields
	Transport      TransportMask
	ReliableIPv4   netip.AddrPort
	UnreliableIPv4 netip.AddrPort
	ReliableIPv6   netip.AddrPort
	UnreliableIPv6 netip.AddrPort
}

// Size implements Codec.
func (a *IsAt) Size() int {
	n := isAtFixed
	if a.Version == Version0 {
		if a.IPv4.IsValid() {
			n += 4
		}
		if a.IPv6.IsValid() {
			n += 16
		}
	} else {
		for _, ep := range a.v1Endpoints() {
			if ep.ap.IsValid() {
				n += ep.width + 2
			}
		}
	}
	if a.GUID != "" {
		n += 1 + len(a.GUID)
	}
	return n + namesSize(a.Names)
}

type v1Endpoint struct {
	flag  byte
	width int
	ap    netip.AddrPort
}

// v1Endpoints lists the tuples in wire order.
func (a *IsAt) v1Endpoints() [4]v1Endpoint {
	return [4]v1Endpoint{
		{isAtR4, 4, a.ReliableIPv4},
		{isAtU4, 4, a.UnreliableIPv4},
		{isAtR6, 16, a.ReliableIPv6},
		{isAtU6, 16, a.UnreliableIPv6},
	}
}

func (a *IsAt) validate() error {
	if a.Version > Version1 {
		return nserrors.NewInvalidArgumentError("message version", int64(a.Version), 0, 1)
	}
	if err := checkNames(a.Names); err != nil {
		return err
	}
	if err := checkString(a.GUID); err != nil {
		return err
	}
	if a.Version == Version0 {
		if a.IPv4.IsValid() && !a.IPv4.Is4() {
			return nserrors.NewValidationError("IPv4", "not an IPv4 address", a.IPv4.String())
		}
		if a.IPv6.IsValid() && !a.IPv6.Is6() {
			return nserrors.NewValidationError("IPv6", "not an IPv6 address", a.IPv6.String())
		}
		return nil
	}
	for _, ep := range a.v1Endpoints() {
		if !ep.ap.IsValid() {
			continue
		}
		if (ep.width == 4) != ep.ap.Addr().Is4() {
			return nserrors.NewValidationError("endpoint", "address family does not match slot", ep.ap.String())
		}
	}
	return nil
}

// MarshalTo implements Codec.
func (a *IsAt) MarshalTo(b []byte) (int, error) {
	if err := a.validate(); err != nil {
		return 0, err
	}
	size := a.Size()
	if len(b) < size {
		return 0, errShortBuffer
	}

	flags := byte(tagIsAt)
	if a.GUID != "" {
		flags |= isAtGUID
	}
	if a.Complete {
		flags |= isAtComplete
	}

	off := isAtFixed
	if a.Version == Version0 {
		if a.TCP {
			flags |= isAtTCP
		}
		if a.UDP {
			flags |= isAtUDP
		}
		binary.BigEndian.PutUint16(b[2:], a.Port)
		if a.IPv4.IsValid() {
			flags |= isAtIPv4
			v4 := a.IPv4.As4()
			off += copy(b[off:], v4[:])
		}
		if a.IPv6.IsValid() {
			flags |= isAtIPv6
			v6 := a.IPv6.As16()
			off += copy(b[off:], v6[:])
		}
	} else {
		binary.BigEndian.PutUint16(b[2:], uint16(a.Transport))
		for _, ep := range a.v1Endpoints() {
			if !ep.ap.IsValid() {
				continue
			}
			flags |= ep.flag
			if ep.width == 4 {
				v4 := ep.ap.Addr().As4()
				off += copy(b[off:], v4[:])
			} else {
				v6 := ep.ap.Addr().As16()
				off += copy(b[off:], v6[:])
			}
			binary.BigEndian.PutUint16(b[off:], ep.ap.Port())
			off += 2
		}
	}
	b[0] = flags
	b[1] = byte(len(a.Names))

	if a.GUID != "" {
		off += putString(b[off:], a.GUID)
	}
	for _, name := range a.Names {
		off += putString(b[off:], name)
	}
	return off, nil
}

// Unmarshal implements Codec. a.Version must be set by the caller.
func (a *IsAt) Unmarshal(b []byte) (int, error) {
	if len(b) < isAtFixed {
		return 0, nserrors.NewMalformedError(0, "answer header truncated")
	}
	if b[0]&tagMask != tagIsAt {
		return 0, nserrors.NewMalformedError(0, "not an answer record")
	}
	if a.Version > Version1 {
		return 0, nserrors.NewMalformedError(0, "unknown message version")
	}

	flags := b[0]
	fresh := IsAt{
		Version:  a.Version,
		Complete: flags&isAtComplete != 0,
	}
	count := int(b[1])
	off := isAtFixed

	need := func(n int) error {
		if off+n > len(b) {
			return nserrors.NewMalformedError(off, "answer address truncated")
		}
		return nil
	}

	if a.Version == Version0 {
		fresh.TCP = flags&isAtTCP != 0
		fresh.UDP = flags&isAtUDP != 0
		fresh.Port = binary.BigEndian.Uint16(b[2:])
		if flags&isAtIPv4 != 0 {
			if err := need(4); err != nil {
				return 0, err
			}
			fresh.IPv4 = netip.AddrFrom4([4]byte(b[off : off+4]))
			off += 4
		}
		if flags&isAtIPv6 != 0 {
			if err := need(16); err != nil {
				return 0, err
			}
			fresh.IPv6 = netip.AddrFrom16([16]byte(b[off : off+16]))
			off += 16
		}
	} else {
		fresh.Transport = TransportMask(binary.BigEndian.Uint16(b[2:]))
		slots := [4]*netip.AddrPort{&fresh.ReliableIPv4, &fresh.UnreliableIPv4, &fresh.ReliableIPv6, &fresh.UnreliableIPv6}
		for i, ep := range fresh.v1Endpoints() {
			if flags&ep.flag == 0 {
				continue
			}
			if err := need(ep.width + 2); err != nil {
				return 0, err
			}
			var addr netip.Addr
			if ep.width == 4 {
				addr = netip.AddrFrom4([4]byte(b[off : off+4]))
			} else {
				addr = netip.AddrFrom16([16]byte(b[off : off+16]))
			}
			off += ep.width
			*slots[i] = netip.AddrPortFrom(addr, binary.BigEndian.Uint16(b[off:]))
			off += 2
		}
	}

	if flags&isAtGUID != 0 {
		guid, n, err := readString(b, off)
		if err != nil {
			return 0, err
		}
		fresh.GUID = guid
		off += n
	}

	names, end, err := readNames(b, off, count)
	if err != nil {
		return 0, err
	}
	fresh.Names = names

	*a = fresh
	return end, nil
}
