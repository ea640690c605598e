package nameservice

import (
	"fmt"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/DeBrosOfficial/nameservice/pkg/config"
	"github.com/DeBrosOfficial/nameservice/pkg/logging"
	"github.com/DeBrosOfficial/nameservice/pkg/mdns"
	"github.com/DeBrosOfficial/nameservice/pkg/metrics"
	"github.com/DeBrosOfficial/nameservice/pkg/netif"
	"github.com/DeBrosOfficial/nameservice/pkg/wire"
)

// newIdleEngine returns an engine that is never started, so tests drive
// it with tick and flush.
func newIdleEngine(t *testing.T) *engine {
	t.Helper()
	e, err := newEngine(fastConfig(), StaticScoreMin, PriorityMax-StaticScoreMin,
		netif.NewMemNetwork().Host(), clock.NewMock(), logging.Wrap(zaptest.NewLogger(t)), metrics.NewNop())
	require.NoError(t, err)
	return e
}

func queuedEvent(t *testing.T, e *engine) any {
	t.Helper()
	select {
	case ev := <-e.events.queue:
		return ev
	default:
		t.Fatal("no event queued")
	}
	return nil
}

func TestCacheEntryExpiresOnTicks(t *testing.T) {
	e := newIdleEngine(t)
	e.state.find(wire.TransportTCP, "org.*")

	e.mu.Lock()
	evs := e.learn("peer", wire.TransportTCP, []string{testName, "com.other"},
		netip.MustParseAddrPort("10.0.0.7:9955"), 1, false, 0)
	e.mu.Unlock()
	require.Len(t, evs, 1)
	fresh := evs[0].(FoundEvent)
	assert.Equal(t, []string{testName}, fresh.Names, "names nobody looks for are not reported")
	assert.Equal(t, "/ip4/10.0.0.7/tcp/9955", fresh.Endpoint)

	life := ticksFor(time.Second, e.cfg.TickInterval)
	for i := uint64(1); i < life; i++ {
		e.tick()
	}
	assert.Equal(t, 1, e.cache.len())

	e.tick()
	assert.Equal(t, 0, e.cache.len())
	gone := queuedEvent(t, e).(FoundEvent)
	assert.True(t, gone.Withdrawn())
	assert.Equal(t, []string{testName}, gone.Names)
	assert.Equal(t, "peer", gone.GUID)
}

func TestPermanentEntriesNeverExpire(t *testing.T) {
	e := newIdleEngine(t)
	e.state.find(wire.TransportUDP, "*")

	e.mu.Lock()
	e.learn("peer", wire.TransportUDP, []string{testName}, netip.MustParseAddrPort("10.0.0.7:9955"), wire.TimerPermanent, false, 0)
	e.mu.Unlock()
	for i := 0; i < 1000; i++ {
		e.tick()
	}
	assert.Equal(t, 1, e.cache.len())
}

func TestQuestionRetransmitSchedule(t *testing.T) {
	e := newIdleEngine(t)

	e.mu.Lock()
	e.queueQuestion(wire.TransportTCP, []string{testName}, AlwaysRetry)
	o := e.outbound[0]
	e.mu.Unlock()

	e.flush()
	sends := []uint64{0}
	for e.now < 20 && len(e.outbound) > 0 {
		before := o.sent
		e.tick()
		if o.sent > before {
			sends = append(sends, e.now)
		}
	}
	assert.Equal(t, []uint64{0, 1, 3, 7}, sends)
	assert.Empty(t, e.outbound)
	assert.Equal(t, uint64(11), e.now)
}

func TestAnsweredQuestionStops(t *testing.T) {
	e := newIdleEngine(t)
	e.state.find(wire.TransportTCP, "org.*")
	e.state.find(wire.TransportTCP, "com.*")

	e.mu.Lock()
	e.queueQuestion(wire.TransportTCP, []string{"org.*", "com.*"}, UntilAllAnswered)
	ep := netip.MustParseAddrPort("10.0.0.7:9955")
	e.learn("peer", wire.TransportTCP, []string{testName}, ep, 120, false, 0)
	assert.False(t, e.outbound[0].finished(), "one pattern is still unanswered")
	e.learn("peer", wire.TransportTCP, []string{"com.example"}, ep, 120, false, 0)
	assert.True(t, e.outbound[0].finished())
	e.mu.Unlock()

	e.flush()
	assert.Empty(t, e.outbound)
}

func TestRefreshWithoutAnswerLosesPeer(t *testing.T) {
	e := newIdleEngine(t)
	s := &Service{eng: e, log: e.log}
	e.state.find(wire.TransportTCP, "*")

	e.mu.Lock()
	e.peers.heard("peer", mdns.SenderInfo{IPv4: netip.MustParseAddr("10.0.0.7"), UnicastPortV4: 40000}, 0, true)
	e.learn("peer", wire.TransportTCP, []string{testName}, netip.MustParseAddrPort("10.0.0.7:9955"), 120, false, 0)
	e.mu.Unlock()

	require.NoError(t, s.RefreshCache(wire.TransportTCP, "peer"))
	e.flush()
	for i := 0; i < 20 && e.peers.len() > 0; i++ {
		e.tick()
	}
	assert.Equal(t, 0, e.peers.len())
	assert.Equal(t, 0, e.cache.len())

	ev := queuedEvent(t, e).(FoundEvent)
	assert.True(t, ev.Withdrawn())
	assert.Equal(t, "peer", ev.GUID)
}

func TestPingTimeoutEvent(t *testing.T) {
	e := newIdleEngine(t)
	s := &Service{eng: e, log: e.log}

	e.mu.Lock()
	e.peers.heard("peer", mdns.SenderInfo{IPv4: netip.MustParseAddr("10.0.0.7"), UnicastPortV4: 40000}, 0, true)
	e.mu.Unlock()

	require.NoError(t, s.Ping("peer", testName))
	e.flush()
	for i := 0; i < 20 && len(e.outbound) > 0; i++ {
		e.tick()
	}
	ev := queuedEvent(t, e).(PingEvent)
	assert.True(t, ev.TimedOut)
	assert.Equal(t, testName, ev.Name)
}

func TestPeriodicRefreshSkippedDuringBurst(t *testing.T) {
	e := newIdleEngine(t)
	e.refreshAt[wire.TransportTCP] = 1
	e.ports[wire.TransportTCP] = Ports{Reliable4: 9955}
	e.state.advertise(wire.TransportTCP, testName, false)

	e.bursts.start(announceKey(wire.TransportTCP), func() {}, nil)
	e.now = 1
	assert.Empty(t, e.periodicRefresh())
	assert.Equal(t, uint64(1), e.refreshAt[wire.TransportTCP])

	e.bursts = newBurster(clock.NewMock(), time.Millisecond, 1)
	assert.Len(t, e.periodicRefresh(), 1)
	assert.Equal(t, 1+e.refreshPeriod, e.refreshAt[wire.TransportTCP])
}

func testInterface() *liveInterface {
	iface := lanInterface("10.0.0.1/24")
	addr, _ := iface.IPv4()
	return &liveInterface{Interface: iface, transports: wire.TransportAll, addr4: addr}
}

func manyNames(n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("org.alljoyn.bus.%03d.%s", i, strings.Repeat("x", 40))
	}
	return names
}

func TestAnswersSplitAcrossDatagrams(t *testing.T) {
	e := newIdleEngine(t)
	li := testInterface()
	names := manyNames(120)
	a := answerSet{transport: wire.TransportTCP, names: names, timer: 120, complete: true, ports: Ports{Reliable4: 9955}}

	pkts := e.mdnsAnswers(li, a, 0)
	require.Greater(t, len(pkts), 1)
	var got []string
	for _, p := range pkts {
		assert.LessOrEqual(t, p.Size(), config.DefaultMaxMessageSize)
		pl, ok := p.Payload(mdns.KindAdvertise)
		require.True(t, ok)
		adv, err := mdns.ParseAdvertise(pl.TXT)
		require.NoError(t, err)
		require.Len(t, adv.Entries, 1)
		got = append(got, adv.Entries[0].Names...)
	}
	assert.Equal(t, names, got)

	hdrs := e.legacyAnswers(li, a, wire.Version1)
	require.Greater(t, len(hdrs), 1)
	got = nil
	for _, h := range hdrs {
		assert.LessOrEqual(t, h.Size(), config.DefaultMaxMessageSize)
		require.Len(t, h.Answers, 1)
		assert.False(t, h.Answers[0].Complete, "a split list is never complete")
		got = append(got, h.Answers[0].Names...)
	}
	assert.Equal(t, names, got)
}

func TestQuestionsSplitAcrossDatagrams(t *testing.T) {
	e := newIdleEngine(t)
	names := manyNames(80)

	hdrs := e.legacyQuestions(wire.TransportUDP, names)
	require.Greater(t, len(hdrs), 1)
	var got []string
	for _, h := range hdrs {
		assert.LessOrEqual(t, h.Size(), config.DefaultMaxMessageSize)
		got = append(got, h.Questions[0].Names...)
	}
	assert.Equal(t, names, got)

	pkts := e.mdnsQueries(testInterface(), wire.TransportUDP, names, 0)
	require.Greater(t, len(pkts), 1)
	for _, p := range pkts {
		assert.LessOrEqual(t, p.Size(), config.DefaultMaxMessageSize)
	}
}

func TestPackSkipsOversizeNames(t *testing.T) {
	size := func(names []string) ([]string, int) {
		n := 0
		for _, s := range names {
			n += len(s)
		}
		return names, n
	}
	out, skipped := pack([]string{"aa", "bbb", "cccccccccc", "d"}, 5, size)
	assert.Equal(t, [][]string{{"aa", "bbb"}, {"d"}}, out)
	assert.Equal(t, []string{"cccccccccc"}, skipped)
}

func TestHandleIgnoresOwnAnswers(t *testing.T) {
	e := newIdleEngine(t)
	e.state.find(wire.TransportTCP, "*")

	h := &wire.Header{
		SenderVersion: wire.CurrentVersion,
		Version:       wire.Version1,
		Timer:         120,
		Answers: []wire.IsAt{{
			GUID:         e.guid,
			Transport:    wire.TransportTCP,
			ReliableIPv4: netip.MustParseAddrPort("10.0.0.1:9955"),
			Names:        []string{testName},
		}},
	}
	b, err := wire.Marshal(h)
	require.NoError(t, err)
	e.handle(datagram{iface: "eth0", format: formatLegacy, from: netip.MustParseAddrPort("10.0.0.1:9956"), data: b})
	assert.Equal(t, 0, e.cache.len())

	h.Answers[0].GUID = "someoneelse"
	b, err = wire.Marshal(h)
	require.NoError(t, err)
	e.handle(datagram{iface: "eth0", format: formatLegacy, from: netip.MustParseAddrPort("10.0.0.8:9956"), data: b})
	assert.Equal(t, 1, e.cache.len())
	ev := queuedEvent(t, e).(FoundEvent)
	assert.Equal(t, "/ip4/10.0.0.1/tcp/9955", ev.Endpoint)
	assert.Equal(t, uint8(120), ev.Timer)
}

func TestLinkLocalEndpointsAreZoned(t *testing.T) {
	e := newIdleEngine(t)
	e.state.find(wire.TransportTCP, "*")

	h := &wire.Header{
		SenderVersion: wire.CurrentVersion,
		Version:       wire.Version1,
		Timer:         120,
		Answers: []wire.IsAt{{
			GUID:         "peer",
			Transport:    wire.TransportTCP,
			ReliableIPv6: netip.MustParseAddrPort("[fe80::7]:9955"),
			Names:        []string{testName},
		}},
	}
	b, err := wire.Marshal(h)
	require.NoError(t, err)
	e.handle(datagram{iface: "eth0", format: formatLegacy, from: netip.MustParseAddrPort("[fe80::7%eth0]:9956"), data: b})

	ev := queuedEvent(t, e).(FoundEvent)
	assert.Equal(t, "/ip6zone/eth0/ip6/fe80::7/tcp/9955", ev.Endpoint)
}

func TestUndecodableDatagramsLoggedPerFormat(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	e, err := newEngine(fastConfig(), StaticScoreMin, PriorityMax-StaticScoreMin,
		netif.NewMemNetwork().Host(), clock.NewMock(), logging.Wrap(zap.New(core)), metrics.NewNop())
	require.NoError(t, err)

	from := netip.MustParseAddrPort("10.0.0.9:5353")
	e.handle(datagram{iface: "eth0", format: formatLegacy, from: from, data: []byte{0xff}})
	e.handle(datagram{iface: "eth0", format: formatMDNS, from: from, data: []byte{0x00, 0x01}})

	dropped := logs.FilterMessage("Dropping undecodable datagram").All()
	require.Len(t, dropped, 2)
	var components []string
	for _, entry := range dropped {
		assert.Equal(t, zapcore.DebugLevel, entry.Level)
		assert.Equal(t, "DATA_LOSS", entry.ContextMap()["code"])
		components = append(components, entry.ContextMap()["component"].(string))
	}
	assert.Equal(t, []string{"WIRE", "MDNS"}, components)
}
