package wire

import (
	nserrors "github.com/DeBrosOfficial/nameservice/pkg/errors"
)

// WhoHas flag bits, byte 0 (v0 only; v1 writes zero).
const (
	whoHasTCP  = 0x08
	whoHasUDP  = 0x04
	whoHasIPv6 = 0x02
	whoHasIPv4 = 0x01
)

const whoHasFixed = 2

// WhoHas is a question: which daemons host any of Names.
type WhoHas struct {
	// Version selects the v0 or v1 layout; see IsAt.Version.
	Version uint8

	// v0 transport and address family interest
	TCP  bool
	UDP  bool
	IPv6 bool
	IPv4 bool

	// Transport is kept in memory only. v1 never serialized it, and peers
	// depend on that, so a decoded v1 question always has TransportNone and
	// receivers must treat it as asking about every transport.
	Transport TransportMask

	Names []string
}

// Size implements Codec.
func (q *WhoHas) Size() int {
	return whoHasFixed + namesSize(q.Names)
}

// MarshalTo implements Codec.
func (q *WhoHas) MarshalTo(b []byte) (int, error) {
	if q.Version > Version1 {
		return 0, nserrors.NewInvalidArgumentError("message version", int64(q.Version), 0, 1)
	}
	if err := checkNames(q.Names); err != nil {
		return 0, err
	}
	if len(b) < q.Size() {
		return 0, errShortBuffer
	}

	flags := byte(tagWhoHas)
	if q.Version == Version0 {
		if q.TCP {
			flags |= whoHasTCP
		}
		if q.UDP {
			flags |= whoHasUDP
		}
		if q.IPv6 {
			flags |= whoHasIPv6
		}
		if q.IPv4 {
			flags |= whoHasIPv4
		}
	}
	b[0] = flags
	b[1] = byte(len(q.Names))

	off := whoHasFixed
	for _, name := range q.Names {
		off += putString(b[off:], name)
	}
	return off, nil
}

// Unmarshal implements Codec. q.Version must be set by the caller.
func (q *WhoHas) Unmarshal(b []byte) (int, error) {
	if len(b) < whoHasFixed {
		return 0, nserrors.NewMalformedError(0, "question header truncated")
	}
	if b[0]&tagMask != tagWhoHas {
		return 0, nserrors.NewMalformedError(0, "not a question record")
	}
	if q.Version > Version1 {
		return 0, nserrors.NewMalformedError(0, "unknown message version")
	}

	fresh := WhoHas{Version: q.Version}
	if q.Version == Version0 {
		fresh.TCP = b[0]&whoHasTCP != 0
		fresh.UDP = b[0]&whoHasUDP != 0
		fresh.IPv6 = b[0]&whoHasIPv6 != 0
		fresh.IPv4 = b[0]&whoHasIPv4 != 0
	}

	names, end, err := readNames(b, whoHasFixed, int(b[1]))
	if err != nil {
		return 0, err
	}
	fresh.Names = names

	*q = fresh
	return end, nil
}

// EffectiveTransport returns the transports the question concerns once it
// has crossed the wire.
func (q *WhoHas) EffectiveTransport() TransportMask {
	if q.Version == Version0 {
		var m TransportMask
		if q.TCP {
			m |= TransportTCP
		}
		if q.UDP {
			m |= TransportUDP
		}
		if m == 0 {
			return TransportAll
		}
		return m
	}
	if q.Transport == TransportNone {
		return TransportAll
	}
	return q.Transport
}
