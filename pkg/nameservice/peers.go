package nameservice

import (
	"net/netip"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/DeBrosOfficial/nameservice/pkg/mdns"
)

// PeerInfo is what is known about reaching one remote daemon directly.
type PeerInfo struct {
	GUID     string
	IPv4     netip.AddrPort
	IPv6     netip.AddrPort
	Priority uint32

	// Ticks of the last unicast query sent to the peer and the last
	// response heard from it.
	LastQuery    uint64
	LastResponse uint64
}

// Endpoint returns the peer's unicast endpoint, preferring IPv4.
func (p *PeerInfo) Endpoint() (netip.AddrPort, bool) {
	if p.IPv4.IsValid() {
		return p.IPv4, true
	}
	return p.IPv6, p.IPv6.IsValid()
}

// peerMap is a bounded GUID -> PeerInfo map; the least recently heard peer
// is evicted first.
type peerMap struct {
	cache *lru.Cache[string, *PeerInfo]
}

func newPeerMap(size int) (*peerMap, error) {
	c, err := lru.New[string, *PeerInfo](size)
	if err != nil {
		return nil, err
	}
	return &peerMap{cache: c}, nil
}

// heard records sender information from a datagram.
func (m *peerMap) heard(guid string, s mdns.SenderInfo, now uint64, response bool) *PeerInfo {
	p, ok := m.cache.Get(guid)
	if !ok {
		p = &PeerInfo{GUID: guid}
	}
	if ep, ok := s.ReplyEndpointV4(); ok {
		p.IPv4 = ep
	}
	if ep, ok := s.ReplyEndpointV6(); ok {
		p.IPv6 = ep
	}
	p.Priority = s.Priority
	if response {
		p.LastResponse = now
	}
	m.cache.Add(guid, p)
	return p
}

func (m *peerMap) get(guid string) (*PeerInfo, bool) {
	return m.cache.Peek(guid)
}

func (m *peerMap) queried(guid string, now uint64) {
	if p, ok := m.cache.Peek(guid); ok {
		p.LastQuery = now
	}
}

func (m *peerMap) remove(guid string) bool {
	return m.cache.Remove(guid)
}

func (m *peerMap) len() int {
	return m.cache.Len()
}
