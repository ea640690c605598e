package wire

import (
	"net/netip"

	nserrors "github.com/DeBrosOfficial/nameservice/pkg/errors"
)

// Timer values with special meaning.
const (
	TimerWithdraw  uint8 = 0
	TimerPermanent uint8 = 255
)

const headerFixed = 4

// Header is a complete legacy datagram: questions always precede answers.
type Header struct {
	// SenderVersion is the name service version of the sender (high nibble).
	SenderVersion uint8
	// Version is the message layout version (low nibble) shared by every
	// question and answer in the datagram.
	Version uint8
	Timer   uint8

	Questions []WhoHas
	Answers   []IsAt

	// Bookkeeping for the retry engine; never serialized.
	Destination   netip.AddrPort
	Retries       int
	LastRetryTick uint64
}

// Size implements Codec.
func (h *Header) Size() int {
	n := headerFixed
	for i := range h.Questions {
		q := h.Questions[i]
		q.Version = h.Version
		n += q.Size()
	}
	for i := range h.Answers {
		a := h.Answers[i]
		a.Version = h.Version
		n += a.Size()
	}
	return n
}

// MarshalTo implements Codec. Questions and answers are encoded in the
// header's Version regardless of their own Version field.
func (h *Header) MarshalTo(b []byte) (int, error) {
	if h.Version > Version1 || h.SenderVersion > 0x0f {
		return 0, nserrors.NewInvalidArgumentError("version", int64(h.Version), 0, 1)
	}
	if err := checkCount("question count", len(h.Questions)); err != nil {
		return 0, err
	}
	if err := checkCount("answer count", len(h.Answers)); err != nil {
		return 0, err
	}
	if len(b) < h.Size() {
		return 0, errShortBuffer
	}

	b[0] = h.SenderVersion<<4 | h.Version
	b[1] = byte(len(h.Questions))
	b[2] = byte(len(h.Answers))
	b[3] = h.Timer

	off := headerFixed
	for i := range h.Questions {
		q := h.Questions[i]
		q.Version = h.Version
		n, err := q.MarshalTo(b[off:])
		if err != nil {
			return 0, err
		}
		off += n
	}
	for i := range h.Answers {
		a := h.Answers[i]
		a.Version = h.Version
		n, err := a.MarshalTo(b[off:])
		if err != nil {
			return 0, err
		}
		off += n
	}
	return off, nil
}

// Unmarshal implements Codec. Bookkeeping fields of h are preserved only on
// failure; a successful decode resets them.
func (h *Header) Unmarshal(b []byte) (int, error) {
	if len(b) < headerFixed {
		return 0, nserrors.NewMalformedError(0, "header truncated")
	}

	fresh := Header{
		SenderVersion: b[0] >> 4,
		Version:       b[0] & 0x0f,
		Timer:         b[3],
	}
	if fresh.Version > Version1 {
		return 0, nserrors.NewMalformedError(0, "unknown message version")
	}

	qcount, acount := int(b[1]), int(b[2])
	off := headerFixed
	if qcount > 0 {
		fresh.Questions = make([]WhoHas, qcount)
	}
	for i := 0; i < qcount; i++ {
		fresh.Questions[i].Version = fresh.Version
		n, err := fresh.Questions[i].Unmarshal(b[off:])
		if err != nil {
			return 0, offsetBy(err, off)
		}
		off += n
	}
	if acount > 0 {
		fresh.Answers = make([]IsAt, acount)
	}
	for i := 0; i < acount; i++ {
		fresh.Answers[i].Version = fresh.Version
		n, err := fresh.Answers[i].Unmarshal(b[off:])
		if err != nil {
			return 0, offsetBy(err, off)
		}
		off += n
	}

	*h = fresh
	return off, nil
}

// offsetBy rebases a nested decode error onto the enclosing buffer.
func offsetBy(err error, base int) error {
	if m, ok := err.(*nserrors.MalformedError); ok {
		return nserrors.NewMalformedError(m.Offset+base, m.Message())
	}
	return err
}

// Clone returns a copy whose slices can be mutated independently.
func (h *Header) Clone() *Header {
	c := *h
	c.Questions = append([]WhoHas(nil), h.Questions...)
	c.Answers = append([]IsAt(nil), h.Answers...)
	return &c
}
