// Package nameservice discovers bus names on the local network. A Service
// advertises the names local transports host and finds the names remote
// daemons advertise, over the legacy and the mDNS wire formats.
package nameservice

import (
	"context"
	"net/netip"
	"strings"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DeBrosOfficial/nameservice/pkg/config"
	nserrors "github.com/DeBrosOfficial/nameservice/pkg/errors"
	"github.com/DeBrosOfficial/nameservice/pkg/logging"
	"github.com/DeBrosOfficial/nameservice/pkg/mdns"
	"github.com/DeBrosOfficial/nameservice/pkg/metrics"
	"github.com/DeBrosOfficial/nameservice/pkg/netif"
	"github.com/DeBrosOfficial/nameservice/pkg/wire"
)

// Options configures a Service. Zero-valued collaborators get defaults.
type Options struct {
	Config config.NameServiceConfig
	Router config.RouterConfig

	Network netif.Network          // default: the host's interfaces and sockets
	Clock   clock.Clock            // default: wall clock
	Logger  *logging.ColoredLogger // default: discard
	Metrics *metrics.Metrics       // default: unregistered collectors
}

// Service is the name service entry point shared by every transport in a
// process. The first Acquire starts it and the last Release stops it for
// good; afterwards every operation is a no-op that returns nil.
type Service struct {
	eng *engine
	log *zap.Logger

	mu     sync.Mutex
	refs   int
	closed bool
}

// NewGUID returns a fresh daemon GUID: 32 lower-case hex digits.
func NewGUID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// New creates a stopped Service.
func New(opts Options) (*Service, error) {
	cfg := opts.Config
	if cfg.GUID == "" {
		cfg.GUID = NewGUID()
	}
	if err := checkOptions(&cfg); err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = logging.Wrap(zap.NewNop())
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewNop()
	}
	if opts.Network == nil {
		opts.Network = netif.NewSystem(opts.Logger.For(logging.ComponentInterface))
	}
	log := opts.Logger.For(logging.ComponentNameService)

	r := opts.Router
	availability := r.Availability
	if availability == 0 {
		availability = hostAvailability()
	}
	static, err := StaticScore(r.PowerSource, r.Mobility, availability, r.NodeConnection)
	if err != nil {
		log.DPanic("Invalid router configuration", zap.Error(err))
		return nil, err
	}
	dynamic, err := DynamicScore(r.MaxTCP, r.MaxTCP, r.MaxUDP, r.MaxUDP, r.MaxRemote, r.MaxRemote)
	if err != nil {
		log.DPanic("Invalid router capacity", zap.Error(err))
		return nil, err
	}
	priority, err := Priority(static, dynamic)
	if err != nil {
		log.DPanic("Invalid router priority", zap.Error(err))
		return nil, err
	}

	eng, err := newEngine(cfg, static, priority, opts.Network, opts.Clock, opts.Logger, opts.Metrics)
	if err != nil {
		return nil, err
	}
	return &Service{eng: eng, log: log}, nil
}

func checkOptions(cfg *config.NameServiceConfig) error {
	switch {
	case cfg.TickInterval <= 0:
		return nserrors.NewValidationError("tick_interval", "must be positive", cfg.TickInterval)
	case cfg.BurstCount < 1:
		return nserrors.NewValidationError("burst_count", "must be at least 1", cfg.BurstCount)
	case cfg.MaxMessageSize < 512:
		return nserrors.NewValidationError("max_message_size", "must be at least 512", cfg.MaxMessageSize)
	case cfg.InboundBuffer < 1 || cfg.EventBuffer < 1:
		return nserrors.NewValidationError("inbound_buffer", "buffers must hold at least one entry", cfg.InboundBuffer)
	case cfg.PeerCacheSize < 1:
		return nserrors.NewValidationError("peer_cache_size", "must be at least 1", cfg.PeerCacheSize)
	case cfg.LegacyVersion != 0 && cfg.LegacyVersion != 1:
		return nserrors.NewValidationError("legacy_version", "must be 0 or 1", cfg.LegacyVersion)
	}
	if cfg.RefreshAttempts < 1 {
		cfg.RefreshAttempts = 1
	}
	return nil
}

// GUID identifies this daemon on the network.
func (s *Service) GUID() string { return s.eng.guid }

// Acquire takes a reference. The first reference starts the engine.
func (s *Service) Acquire(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.refs++
	if s.refs == 1 {
		s.eng.start(ctx)
	}
	return nil
}

// Release drops a reference. The last one stops the engine and closes every
// subscription.
func (s *Service) Release() error {
	s.mu.Lock()
	if s.closed || s.refs == 0 {
		s.mu.Unlock()
		return nil
	}
	s.refs--
	if s.refs > 0 {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.eng.stop()
}

// Close stops the Service regardless of outstanding references.
func (s *Service) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.refs = 0
	s.mu.Unlock()
	return s.eng.stop()
}

// locked runs f with the engine lock held unless the Service is shutting
// down, in which case f is skipped.
func (s *Service) locked(f func(e *engine)) bool {
	e := s.eng
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return false
	}
	f(e)
	return true
}

func checkTransport(t wire.TransportMask) error {
	if t == wire.TransportNone || t&^wire.TransportAll != 0 {
		return nserrors.NewValidationError("transport", "must be tcp, udp or both", t.String())
	}
	return nil
}

func checkName(name string) error {
	if name == "" {
		return nserrors.NewValidationError("name", "must not be empty", name)
	}
	if len(name) > wire.MaxStringLen {
		return nserrors.NewValidationError("name", "longer than 255 bytes", len(name))
	}
	return nil
}

// Enable declares the ports transport t listens on. Zero Ports disables t:
// its names are no longer advertised or answered.
func (s *Service) Enable(t wire.TransportMask, ports Ports) error {
	if err := checkTransport(t); err != nil {
		return err
	}
	var announce []wire.TransportMask
	s.locked(func(e *engine) {
		eachTransport(t, func(t wire.TransportMask) {
			if ports.zero() {
				delete(e.ports, t)
				return
			}
			if old, ok := e.ports[t]; ok && old == ports {
				return
			}
			e.ports[t] = ports
			if len(e.state.loudNames(t)) > 0 {
				announce = append(announce, t)
			}
		})
	})
	for _, t := range announce {
		s.eng.startAnnounce(t)
	}
	return nil
}

// Enabled returns the ports declared for a single transport.
func (s *Service) Enabled(t wire.TransportMask) (Ports, bool) {
	var p Ports
	var ok bool
	s.locked(func(e *engine) { p, ok = e.ports[t] })
	return p, ok
}

// OpenInterface asks for t to use the interfaces match selects: an interface
// name, an IP literal, or "*" for every interface.
func (s *Service) OpenInterface(t wire.TransportMask, match string) error {
	if err := checkTransport(t); err != nil {
		return err
	}
	if match == "" {
		return nserrors.NewValidationError("interface", "must not be empty", match)
	}
	if s.locked(func(e *engine) {
		eachTransport(t, func(t wire.TransportMask) { e.requests[t][match] = struct{}{} })
	}) {
		s.eng.requestRescan()
	}
	return nil
}

// CloseInterface withdraws an OpenInterface request.
func (s *Service) CloseInterface(t wire.TransportMask, match string) error {
	if err := checkTransport(t); err != nil {
		return err
	}
	if s.locked(func(e *engine) {
		eachTransport(t, func(t wire.TransportMask) { delete(e.requests[t], match) })
	}) {
		s.eng.requestRescan()
	}
	return nil
}

// RegisterVirtualInterface adds an interface the host cannot enumerate. It
// is used like any enumerated interface that matches a request.
func (s *Service) RegisterVirtualInterface(iface netif.Interface) error {
	if iface.Name == "" {
		return nserrors.NewValidationError("interface", "virtual interface needs a name", iface.Name)
	}
	iface.Virtual = true
	if s.locked(func(e *engine) { e.virtual[iface.Name] = iface }) {
		s.eng.requestRescan()
	}
	return nil
}

// UnregisterVirtualInterface removes a virtual interface.
func (s *Service) UnregisterVirtualInterface(name string) error {
	if s.locked(func(e *engine) { delete(e.virtual, name) }) {
		s.eng.requestRescan()
	}
	return nil
}

// NotifyNetworkChange triggers an immediate interface rescan.
func (s *Service) NotifyNetworkChange() {
	s.eng.requestRescan()
}

// AdvertiseName starts advertising name on the transports in t. Loud names
// are announced unsolicited; quiet names are only given in answers.
// Advertising a name already advertised is a no-op.
func (s *Service) AdvertiseName(t wire.TransportMask, name string, quiet bool) error {
	if err := checkTransport(t); err != nil {
		return err
	}
	if err := checkName(name); err != nil {
		return err
	}
	var changed wire.TransportMask
	s.locked(func(e *engine) { changed = e.state.advertise(t, name, quiet) })
	if changed == 0 {
		return nil
	}
	s.log.Debug("Advertising", zap.String("name", name), zap.Stringer("transport", changed), zap.Bool("quiet", quiet))
	if !quiet {
		eachTransport(changed, s.eng.startAnnounce)
	}
	return nil
}

// CancelAdvertiseName stops advertising name and withdraws it from peers.
// Cancelling a name that is not advertised is a no-op.
func (s *Service) CancelAdvertiseName(t wire.TransportMask, name string) error {
	if err := checkTransport(t); err != nil {
		return err
	}
	var changed wire.TransportMask
	s.locked(func(e *engine) { changed = e.state.cancelAdvertise(t, name) })
	eachTransport(changed, func(t wire.TransportMask) {
		s.eng.startWithdraw(t, []string{name})
	})
	return nil
}

// FindAdvertisement starts looking for names matching the patterns on the
// transports in t. The question is sent at once and retransmitted as policy
// allows. Matching names already known are reported immediately.
func (s *Service) FindAdvertisement(t wire.TransportMask, policy RetryPolicy, patterns ...string) error {
	if err := checkTransport(t); err != nil {
		return err
	}
	if len(patterns) == 0 {
		return nserrors.NewValidationError("pattern", "at least one pattern is required", nil)
	}
	for _, p := range patterns {
		if err := checkName(p); err != nil {
			return err
		}
	}

	var events []any
	s.locked(func(e *engine) {
		var changed wire.TransportMask
		for _, p := range patterns {
			changed |= e.state.find(t, p)
		}
		if changed == 0 {
			return
		}
		e.queueQuestion(changed, append([]string(nil), patterns...), policy)
		eachTransport(changed, func(t wire.TransportMask) {
			for _, p := range patterns {
				for _, c := range e.cache.match(t, p) {
					events = append(events, FoundEvent{
						Endpoint:  c.endpoint,
						GUID:      c.key.guid,
						Names:     c.names,
						Timer:     c.timer,
						Transport: t,
						Priority:  c.priority,
					})
				}
			}
		})
	})
	for _, ev := range events {
		s.eng.events.emit(ev)
	}
	s.eng.poke()
	return nil
}

// CancelFindAdvertisement stops looking for the patterns. Retransmissions
// of questions whose patterns are all cancelled stop too.
func (s *Service) CancelFindAdvertisement(t wire.TransportMask, patterns ...string) error {
	if err := checkTransport(t); err != nil {
		return err
	}
	s.locked(func(e *engine) {
		for _, p := range patterns {
			e.state.cancelFind(t, p)
		}
		for _, o := range e.outbound {
			if o.kind != kindQuestion {
				continue
			}
			live := false
			eachTransport(o.transport, func(t wire.TransportMask) {
				wanted := e.state.byTransport[t].finds
				for _, p := range o.names {
					if _, ok := wanted[p]; ok {
						live = true
					}
				}
			})
			if !live {
				o.state = stateExpired
			}
		}
	})
	return nil
}

// RefreshCache asks one peer directly for its names on t instead of
// querying the whole network. A peer that does not answer within the
// refresh attempts is considered gone and its names are withdrawn.
func (s *Service) RefreshCache(t wire.TransportMask, guid string) error {
	if err := checkTransport(t); err != nil {
		return err
	}
	if err := s.checkUnicast(); err != nil {
		return err
	}
	var err error
	queued := s.locked(func(e *engine) {
		if _, ok := e.peers.get(guid); !ok {
			err = nserrors.NewNotFoundError("peer", guid)
			return
		}
		var names []string
		eachTransport(t, func(t wire.TransportMask) { names = append(names, e.state.findPatterns(t)...) })
		if len(names) == 0 {
			names = []string{"*"}
		}
		e.nextOut++
		e.outbound = append(e.outbound, &outbound{
			id:        e.nextOut,
			kind:      kindRefresh,
			transport: t,
			names:     names,
			guid:      guid,
			limit:     e.cfg.RefreshAttempts,
			next:      e.now,
		})
	})
	if queued && err == nil {
		s.eng.poke()
	}
	return err
}

// Ping asks peer guid whether it still advertises name. The outcome arrives
// on SubscribePing.
func (s *Service) Ping(guid, name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	if err := s.checkUnicast(); err != nil {
		return err
	}
	var err error
	queued := s.locked(func(e *engine) {
		if _, ok := e.peers.get(guid); !ok {
			err = nserrors.NewNotFoundError("peer", guid)
			return
		}
		e.nextOut++
		e.outbound = append(e.outbound, &outbound{
			id:     e.nextOut,
			kind:   kindPing,
			names:  []string{name},
			guid:   guid,
			policy: UntilFirstAnswer,
			limit:  len(e.sched.gaps) + 1,
			next:   e.now,
		})
	})
	if queued && err == nil {
		s.eng.poke()
	}
	return err
}

// checkUnicast rejects peer operations when mDNS is off: peers are only
// learned from mDNS sender info, so none would ever be known.
func (s *Service) checkUnicast() error {
	if !s.eng.cfg.EnableMDNS {
		return nserrors.NewValidationError("nameservice.enable_mdns", "peer refresh and ping need mDNS", false)
	}
	return nil
}

// Peer returns what is known about reaching guid directly.
func (s *Service) Peer(guid string) (PeerInfo, bool) {
	var p PeerInfo
	var ok bool
	s.locked(func(e *engine) {
		var pi *PeerInfo
		if pi, ok = e.peers.get(guid); ok {
			p = *pi
		}
	})
	return p, ok
}

func (s *Service) queueRaw(p *mdns.Packet, to netip.AddrPort, kind string) error {
	if size := p.Size(); size < 0 || size > s.eng.cfg.MaxMessageSize {
		return nserrors.ErrTooLarge
	}
	b, err := p.Marshal()
	if err != nil {
		return err
	}
	if s.locked(func(e *engine) { e.raw = append(e.raw, rawSend{data: b, to: to, kind: kind}) }) {
		s.eng.poke()
	}
	return nil
}

// Query multicasts a caller-built mDNS query on every live interface.
func (s *Service) Query(p *mdns.Packet) error {
	return s.queueRaw(p, netip.AddrPort{}, "raw-query")
}

// Response sends a caller-built mDNS response to to, or multicasts it when
// to is the zero value.
func (s *Service) Response(p *mdns.Packet, to netip.AddrPort) error {
	return s.queueRaw(p, to, "raw-response")
}

// UpdateDynamicScore recomputes the advertised priority from the current
// spare connection capacity.
func (s *Service) UpdateDynamicScore(tcpAvail, tcpMax, udpAvail, udpMax, tclAvail, tclMax int) error {
	d, err := DynamicScore(tcpAvail, tcpMax, udpAvail, udpMax, tclAvail, tclMax)
	if err != nil {
		s.log.DPanic("Invalid dynamic score input", zap.Error(err))
		return err
	}
	p, err := Priority(s.eng.static, d)
	if err != nil {
		s.log.DPanic("Invalid priority input", zap.Error(err))
		return err
	}
	s.eng.priority.Store(p)
	return nil
}

// Priority returns the currently advertised router priority.
func (s *Service) Priority() uint32 { return s.eng.priority.Load() }

// SubscribeDiscovery returns a channel of found and withdrawn names. Events
// are dropped when the channel is full. It is closed when the Service stops.
func (s *Service) SubscribeDiscovery(buffer int) <-chan FoundEvent {
	return s.eng.events.discovery.subscribe(buffer)
}

// SubscribeNetwork returns a channel of interface changes.
func (s *Service) SubscribeNetwork(buffer int) <-chan NetworkEvent {
	return s.eng.events.network.subscribe(buffer)
}

// SubscribePing returns a channel of ping outcomes.
func (s *Service) SubscribePing(buffer int) <-chan PingEvent {
	return s.eng.events.ping.subscribe(buffer)
}

// SubscribeRaw returns a channel of mDNS datagrams the name service did not
// consume itself.
func (s *Service) SubscribeRaw(buffer int) <-chan RawEvent {
	return s.eng.events.raw.subscribe(buffer)
}
