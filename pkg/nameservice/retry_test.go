package nameservice

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/DeBrosOfficial/nameservice/pkg/wire"
)

func TestRetryScheduleDefaultGaps(t *testing.T) {
	s := newSchedule([]time.Duration{time.Second, 2 * time.Second, 6 * time.Second, 18 * time.Second}, time.Second)
	o := &outbound{kind: kindQuestion, limit: len(s.gaps) + 1, names: []string{"org.foo"}, answered: nameSet{}}

	var sends []uint64
	for now := uint64(0); now < 100; now++ {
		if o.step(now, s) {
			sends = append(sends, now)
		}
	}
	assert.Equal(t, []uint64{0, 1, 3, 9, 27}, sends)
	assert.Equal(t, stateExpired, o.state)
	assert.True(t, o.finished())
}

func TestRetryStates(t *testing.T) {
	s := newSchedule([]time.Duration{time.Second}, time.Second)
	o := &outbound{limit: 2}
	assert.Equal(t, stateQueued, o.state)
	assert.True(t, o.step(0, s))
	assert.Equal(t, stateSent, o.state)
	assert.False(t, o.step(0, s), "not due again in the same tick")
	assert.True(t, o.step(1, s))
	assert.Equal(t, stateRetry, o.state)
	assert.Equal(t, uint64(2), o.next, "gap past the table repeats the last one")

	// the last send is given one more gap before expiry
	assert.False(t, o.step(2, s))
	assert.Equal(t, stateExpired, o.state)
	assert.False(t, o.due(100))
}

func TestTicksFor(t *testing.T) {
	assert.Equal(t, uint64(1), ticksFor(0, time.Second))
	assert.Equal(t, uint64(1), ticksFor(100*time.Millisecond, time.Second))
	assert.Equal(t, uint64(2), ticksFor(1500*time.Millisecond, time.Second))
	assert.Equal(t, uint64(120), ticksFor(120*time.Second, time.Second))
}

func TestRetryPolicies(t *testing.T) {
	newQ := func(p RetryPolicy) *outbound {
		return &outbound{kind: kindQuestion, transport: wire.TransportTCP, policy: p,
			names: []string{"org.a", "org.b.*"}, answered: nameSet{}}
	}

	q := newQ(AlwaysRetry)
	assert.False(t, q.answeredBy(wire.TransportTCP, []string{"org.a", "org.b.x"}))

	q = newQ(UntilFirstAnswer)
	assert.False(t, q.answeredBy(wire.TransportUDP, []string{"org.a"}), "other transport")
	assert.False(t, q.answeredBy(wire.TransportTCP, []string{"com.x"}))
	assert.True(t, q.answeredBy(wire.TransportTCP, []string{"org.b.c"}))

	q = newQ(UntilAllAnswered)
	assert.False(t, q.answeredBy(wire.TransportTCP, []string{"org.a"}))
	assert.True(t, q.answeredBy(wire.TransportTCP, []string{"org.b.c"}))
}
