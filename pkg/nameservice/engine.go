package nameservice

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DeBrosOfficial/nameservice/pkg/config"
	"github.com/DeBrosOfficial/nameservice/pkg/logging"
	"github.com/DeBrosOfficial/nameservice/pkg/metrics"
	"github.com/DeBrosOfficial/nameservice/pkg/netif"
	"github.com/DeBrosOfficial/nameservice/pkg/wire"
)

// engine owns the sockets and every timer. One goroutine runs the
// maintenance loop, one paces bursts, one per socket reads, and one
// dispatches events.
type engine struct {
	cfg     config.NameServiceConfig
	guid    string
	net     netif.Network
	clock   clock.Clock
	log     *zap.Logger
	ifLog   *zap.Logger
	wireLog *zap.Logger
	mdnsLog *zap.Logger
	metrics *metrics.Metrics

	sched         schedule
	refreshPeriod uint64
	static        uint32

	// mu guards everything below up to ifMu.
	mu        sync.Mutex
	state     *state
	cache     *answerCache
	peers     *peerMap
	outbound  []*outbound
	raw       []rawSend
	ports     map[wire.TransportMask]Ports
	requests  map[wire.TransportMask]nameSet
	virtual   map[string]netif.Interface
	refreshAt map[wire.TransportMask]uint64
	now       uint64
	nextOut   uint64
	rescanNow bool
	started   bool
	stopped   bool

	// ifMu guards live and is held across sends and teardown.
	ifMu sync.RWMutex
	live map[string]*liveInterface

	priority atomic.Uint32
	burstID  atomic.Uint32
	msgID    atomic.Uint32
	seq      atomic.Uint64

	wake    chan struct{}
	inbound chan datagram
	events  *dispatcher
	bursts  *burster

	group  *errgroup.Group
	cancel context.CancelFunc
}

func newEngine(cfg config.NameServiceConfig, static, priority uint32, network netif.Network,
	clk clock.Clock, logger *logging.ColoredLogger, m *metrics.Metrics) (*engine, error) {
	peers, err := newPeerMap(cfg.PeerCacheSize)
	if err != nil {
		return nil, fmt.Errorf("peer cache: %w", err)
	}

	e := &engine{
		cfg:           cfg,
		guid:          cfg.GUID,
		net:           network,
		clock:         clk,
		log:           logger.For(logging.ComponentEngine).With(zap.String("guid", cfg.GUID)),
		ifLog:         logger.For(logging.ComponentInterface),
		wireLog:       logger.For(logging.ComponentWire),
		mdnsLog:       logger.For(logging.ComponentMDNS),
		metrics:       m,
		sched:         newSchedule(cfg.RetryIntervals, cfg.TickInterval),
		refreshPeriod: ticksFor(cfg.AdvertDuration/3, cfg.TickInterval),
		static:        static,
		state:         newState(),
		cache:         newAnswerCache(),
		peers:         peers,
		ports:         make(map[wire.TransportMask]Ports),
		requests:      make(map[wire.TransportMask]nameSet),
		virtual:       make(map[string]netif.Interface),
		refreshAt:     make(map[wire.TransportMask]uint64),
		live:          make(map[string]*liveInterface),
		wake:          make(chan struct{}, 1),
		inbound:       make(chan datagram, cfg.InboundBuffer),
		events:        newDispatcher(cfg.EventBuffer),
		bursts:        newBurster(clk, cfg.BurstInterval, cfg.BurstCount),
	}
	e.priority.Store(priority)
	e.burstID.Store(rand.Uint32())
	e.events.onDrop = func(kind string) {
		m.PacketsDropped.WithLabelValues(metrics.DropEvents).Inc()
	}
	e.events.onDeliver = func(kind string) {
		m.Events.WithLabelValues(kind).Inc()
	}
	for _, t := range transports {
		e.requests[t] = nameSet{}
		for _, match := range cfg.Interfaces {
			e.requests[t][match] = struct{}{}
		}
		e.refreshAt[t] = e.refreshPeriod
	}
	return e, nil
}

func (e *engine) start(ctx context.Context) {
	e.mu.Lock()
	if e.started || e.stopped {
		e.mu.Unlock()
		return
	}
	e.started = true
	e.mu.Unlock()

	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	g, gctx := errgroup.WithContext(ctx)
	e.group = g
	e.cancel = cancel

	go e.events.run()
	g.Go(func() error { return e.run(gctx) })
	g.Go(func() error { return e.bursts.run(gctx) })
	e.log.Info("Name service started",
		zap.Stringer("tick", e.cfg.TickInterval),
		zap.Uint32("priority", e.priority.Load()))
}

// stop refuses new work, joins every goroutine, closes the sockets and
// finally the event subscriptions.
func (e *engine) stop() error {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return nil
	}
	e.stopped = true
	started := e.started
	e.mu.Unlock()

	var err error
	if started {
		e.cancel()
		err = multierr.Append(err, e.closeInterfaces())
		err = multierr.Append(err, e.group.Wait())
	}
	e.events.close(started)
	e.log.Info("Name service stopped")
	return err
}

func (e *engine) run(ctx context.Context) error {
	ticker := e.clock.Ticker(e.cfg.TickInterval)
	defer ticker.Stop()
	rescan := e.clock.Timer(e.rescanDelay())
	defer rescan.Stop()

	e.rescan(ctx)
	e.flush()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			e.tick()
		case <-rescan.C:
			e.rescan(ctx)
			rescan.Reset(e.rescanDelay())
		case <-e.wake:
			if e.takeRescan() {
				e.rescan(ctx)
				rescan.Reset(e.rescanDelay())
			}
			e.flush()
		case d := <-e.inbound:
			e.handle(d)
		}
	}
}

// rescanDelay is uniformly jittered between RescanMin and RescanMax.
func (e *engine) rescanDelay() time.Duration {
	span := e.cfg.RescanMax - e.cfg.RescanMin
	if span <= 0 {
		return e.cfg.RescanMin
	}
	return e.cfg.RescanMin + time.Duration(rand.Int63n(int64(span)))
}

func (e *engine) poke() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func (e *engine) takeRescan() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	r := e.rescanNow
	e.rescanNow = false
	return r
}

func (e *engine) requestRescan() {
	e.mu.Lock()
	e.rescanNow = true
	e.mu.Unlock()
	e.poke()
}

func (e *engine) tick()  { e.service(true) }
func (e *engine) flush() { e.service(false) }

// service does one round of timer work. With advance set it also moves the
// tick counter, which drives cache expiry and periodic refresh.
func (e *engine) service(advance bool) {
	var sends []func()
	var events []any

	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	if advance {
		e.now++
		for _, c := range e.cache.expire(e.now) {
			events = append(events, e.withdrawEvent(c))
		}
		sends = append(sends, e.periodicRefresh()...)
	}
	s, ev := e.serviceOutbound()
	sends = append(sends, s...)
	events = append(events, ev...)
	raw := e.raw
	e.raw = nil
	e.metrics.CacheEntries.Set(float64(e.cache.len()))
	e.metrics.Peers.Set(float64(e.peers.len()))
	e.mu.Unlock()

	for _, send := range sends {
		send()
	}
	for _, r := range raw {
		e.sendRaw(r)
	}
	for _, ev := range events {
		e.events.emit(ev)
	}
}

// periodicRefresh re-announces loud names every third of the advertised
// duration, as an incomplete list like announce. A transport with a burst in flight is skipped; the burst
// completing counts as its refresh.
func (e *engine) periodicRefresh() []func() {
	var sends []func()
	for _, t := range transports {
		if e.now < e.refreshAt[t] {
			continue
		}
		if e.bursts.active(announceKey(t)) {
			continue
		}
		e.refreshAt[t] = e.now + e.refreshPeriod
		names := e.state.loudNames(t)
		ports, ok := e.ports[t]
		if len(names) == 0 || !ok {
			continue
		}
		e.metrics.Retransmissions.Inc()
		a := answerSet{transport: t, names: names, timer: e.advertTimer(), ports: ports}
		formats := e.formats()
		version := uint8(e.cfg.LegacyVersion)
		sends = append(sends, func() { e.sendAnswers(a, sendOpts{formats: formats, version: version}) })
	}
	return sends
}

// serviceOutbound sends due questions, refreshes and pings, and settles the
// ones that ran out of retries.
func (e *engine) serviceOutbound() ([]func(), []any) {
	var sends []func()
	var events []any
	keep := e.outbound[:0]
	for _, o := range e.outbound {
		retry := o.sent > 0
		if o.step(e.now, e.sched) {
			if retry {
				e.metrics.Retransmissions.Inc()
			}
			if send := e.transmit(o); send != nil {
				sends = append(sends, send)
			}
		}
		if !o.finished() {
			keep = append(keep, o)
			continue
		}
		if o.heard {
			continue
		}
		switch o.kind {
		case kindRefresh:
			events = append(events, e.destinationLost(o.guid)...)
		case kindPing:
			events = append(events, PingEvent{GUID: o.guid, Name: o.names[0], TimedOut: true})
		}
	}
	for i := len(keep); i < len(e.outbound); i++ {
		e.outbound[i] = nil
	}
	e.outbound = keep
	return sends, events
}

// transmit snapshots what o needs so the send can run without mu.
func (e *engine) transmit(o *outbound) func() {
	names := append([]string(nil), o.names...)
	t := o.transport
	switch o.kind {
	case kindQuestion:
		return func() {
			eachTransport(t, func(t wire.TransportMask) { e.sendQuestions(t, names) })
		}
	case kindRefresh, kindPing:
		p, ok := e.peers.get(o.guid)
		if !ok {
			o.state = stateExpired
			return nil
		}
		to, ok := p.Endpoint()
		if !ok {
			o.state = stateExpired
			return nil
		}
		if o.kind == kindPing {
			return func() { e.sendPing(to, names[0]) }
		}
		e.peers.queried(o.guid, e.now)
		return func() {
			eachTransport(t, func(t wire.TransportMask) { e.sendUnicastQuery(to, t, names) })
		}
	}
	return nil
}

// destinationLost forgets a peer that did not answer a refresh.
func (e *engine) destinationLost(guid string) []any {
	e.peers.remove(guid)
	var events []any
	for _, c := range e.cache.removeGUID(guid) {
		events = append(events, e.withdrawEvent(c))
	}
	e.log.Info("Peer lost", zap.String("peer", guid), zap.Int("withdrawn", len(events)))
	return events
}

func (e *engine) withdrawEvent(c cached) FoundEvent {
	return FoundEvent{
		Endpoint:  c.endpoint,
		GUID:      c.key.guid,
		Names:     c.names,
		Timer:     wire.TimerWithdraw,
		Transport: c.key.transport,
		Priority:  c.priority,
	}
}

// advertTimer is the advertised duration in whole seconds, kept below the
// permanent marker.
func (e *engine) advertTimer() uint8 {
	s := int(e.cfg.AdvertDuration / time.Second)
	if s < 1 {
		s = 1
	}
	if s >= int(wire.TimerPermanent) {
		s = int(wire.TimerPermanent) - 1
	}
	return uint8(s)
}

func (e *engine) formats() wireFormat {
	var f wireFormat
	if e.cfg.EnableLegacy {
		f |= formatLegacy
	}
	if e.cfg.EnableMDNS {
		f |= formatMDNS
	}
	return f
}

func (e *engine) nextMessageID() uint16 {
	return uint16(e.msgID.Add(1))
}

func announceKey(t wire.TransportMask) string {
	return "announce/" + t.String()
}

// startAnnounce begins a burst of gratuitous answers for t.
func (e *engine) startAnnounce(t wire.TransportMask) {
	e.burstID.Add(1)
	e.metrics.Bursts.Inc()
	e.bursts.start(announceKey(t), func() { e.announce(t) }, func() {
		e.mu.Lock()
		e.refreshAt[t] = e.now + e.refreshPeriod
		e.mu.Unlock()
	})
}

// announce sends the loud names on t. Quiet names are left out, so the
// list is never marked complete.
func (e *engine) announce(t wire.TransportMask) {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	a := answerSet{transport: t, names: e.state.loudNames(t), timer: e.advertTimer(), ports: e.ports[t]}
	e.mu.Unlock()
	e.sendAnswers(a, sendOpts{formats: e.formats(), version: uint8(e.cfg.LegacyVersion)})
}

// startWithdraw bursts a timer-0 answer for names. Names advertised again
// by the time a send happens are left out of it.
func (e *engine) startWithdraw(t wire.TransportMask, names []string) {
	e.metrics.Bursts.Inc()
	key := "withdraw/" + strconv.FormatUint(e.seq.Add(1), 10)
	e.bursts.start(key, func() {
		e.mu.Lock()
		if e.stopped {
			e.mu.Unlock()
			return
		}
		var gone []string
		for _, n := range names {
			if !e.state.advertised(t, n) {
				gone = append(gone, n)
			}
		}
		ports := e.ports[t]
		e.mu.Unlock()
		a := answerSet{transport: t, names: gone, timer: wire.TimerWithdraw, ports: ports}
		e.sendAnswers(a, sendOpts{formats: e.formats(), version: uint8(e.cfg.LegacyVersion)})
	}, nil)
}

// reannounce runs after new interfaces come up: loud names are burst again
// and every find is asked anew.
func (e *engine) reannounce() {
	e.mu.Lock()
	var loud []wire.TransportMask
	for _, t := range transports {
		if len(e.state.loudNames(t)) > 0 {
			loud = append(loud, t)
		}
		if patterns := e.state.findPatterns(t); len(patterns) > 0 {
			e.queueQuestion(t, patterns, UntilAllAnswered)
		}
	}
	e.mu.Unlock()
	for _, t := range loud {
		e.startAnnounce(t)
	}
	e.poke()
}

// queueQuestion schedules a question for an immediate first send. mu must
// be held.
func (e *engine) queueQuestion(t wire.TransportMask, names []string, policy RetryPolicy) {
	e.nextOut++
	e.outbound = append(e.outbound, &outbound{
		id:        e.nextOut,
		kind:      kindQuestion,
		transport: t,
		names:     names,
		policy:    policy,
		limit:     len(e.sched.gaps) + 1,
		next:      e.now,
		answered:  nameSet{},
	})
}
