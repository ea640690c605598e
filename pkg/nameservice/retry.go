package nameservice

import (
	"time"

	"github.com/DeBrosOfficial/nameservice/pkg/wire"
)

// RetryPolicy selects when a question stops being retransmitted.
type RetryPolicy int

const (
	// AlwaysRetry sends every scheduled retransmission.
	AlwaysRetry RetryPolicy = iota
	// UntilFirstAnswer stops at the first matching answer.
	UntilFirstAnswer
	// UntilAllAnswered stops once every requested name has been answered.
	// Wildcard patterns count as answered by any match.
	UntilAllAnswered
)

func (p RetryPolicy) String() string {
	switch p {
	case AlwaysRetry:
		return "always"
	case UntilFirstAnswer:
		return "until-first-answer"
	case UntilAllAnswered:
		return "until-all-answered"
	}
	return "unknown"
}

type packetState int

const (
	stateQueued packetState = iota
	stateSent
	stateRetry
	stateExpired
)

func (s packetState) String() string {
	return [...]string{"queued", "sent", "retry", "expired"}[s]
}

type outboundKind int

const (
	kindQuestion outboundKind = iota
	kindRefresh
	kindPing
)

// outbound is one logical transmission tracked by the retry schedule.
// Each send renders a fresh datagram, so retransmissions may use different
// packet boundaries than the first send.
type outbound struct {
	id        uint64
	kind      outboundKind
	transport wire.TransportMask
	names     []string
	policy    RetryPolicy

	// guid targets kindRefresh and kindPing at one peer.
	guid string

	state    packetState
	sent     int
	limit    int
	next     uint64
	answered nameSet
	heard    bool
}

// schedule converts retry gaps into ticks.
type schedule struct {
	gaps []uint64
}

func newSchedule(intervals []time.Duration, tick time.Duration) schedule {
	s := schedule{gaps: make([]uint64, len(intervals))}
	for i, d := range intervals {
		s.gaps[i] = ticksFor(d, tick)
	}
	return s
}

// ticksFor rounds d up to whole ticks, with a minimum of one.
func ticksFor(d, tick time.Duration) uint64 {
	if tick <= 0 {
		return 1
	}
	n := uint64((d + tick - 1) / tick)
	if n == 0 {
		n = 1
	}
	return n
}

// due reports whether o should be sent at tick now.
func (o *outbound) due(now uint64) bool {
	return o.state != stateExpired && o.next <= now
}

// step sends o when due. A due item that already used up its sends
// expires instead, so the last send still gets one gap to be answered.
func (o *outbound) step(now uint64, s schedule) bool {
	if !o.due(now) {
		return false
	}
	if o.sent >= o.limit {
		o.state = stateExpired
		return false
	}
	o.markSent(now, s)
	return true
}

// markSent advances o after a send at tick now.
func (o *outbound) markSent(now uint64, s schedule) {
	o.sent++
	if o.state == stateQueued {
		o.state = stateSent
	} else {
		o.state = stateRetry
	}
	gap := uint64(1)
	if i := o.sent - 1; i < len(s.gaps) {
		gap = s.gaps[i]
	} else if len(s.gaps) > 0 {
		gap = s.gaps[len(s.gaps)-1]
	}
	o.next = now + gap
}

// answeredBy records names found on transport t and reports whether the
// policy now considers the question settled.
func (o *outbound) answeredBy(t wire.TransportMask, names []string) bool {
	if o.kind != kindQuestion || !o.transport.Overlaps(t) || len(names) == 0 {
		return false
	}
	hit := false
	for _, p := range o.names {
		for _, n := range names {
			if matchName(p, n) {
				o.answered[p] = struct{}{}
				hit = true
				break
			}
		}
	}
	if !hit {
		return false
	}
	switch o.policy {
	case UntilFirstAnswer:
		return true
	case UntilAllAnswered:
		return len(o.answered) == len(o.names)
	}
	return false
}

func (o *outbound) finished() bool {
	return o.state == stateExpired
}
