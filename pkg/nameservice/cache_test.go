package nameservice

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DeBrosOfficial/nameservice/pkg/mdns"
	"github.com/DeBrosOfficial/nameservice/pkg/wire"
)

func TestCacheUpdate(t *testing.T) {
	c := newAnswerCache()
	key := cacheKey{guid: "g1", transport: wire.TransportTCP}
	ep := "/ip4/10.0.0.1/tcp/9955"

	fresh, gone := c.update(answer{key: key, names: []string{"a", "b"}, endpoint: ep, timer: 120, expires: 10})
	assert.Equal(t, []string{"a", "b"}, fresh)
	assert.Empty(t, gone)

	// refresh at the same endpoint reports nothing new
	fresh, _ = c.update(answer{key: key, names: []string{"a"}, endpoint: ep, timer: 120, expires: 20})
	assert.Empty(t, fresh)

	// complete list drops what is missing
	fresh, gone = c.update(answer{key: key, names: []string{"a", "c"}, endpoint: ep, timer: 120, complete: true, expires: 20})
	assert.Equal(t, []string{"c"}, fresh)
	assert.Equal(t, []string{"b"}, gone)

	// endpoint change re-reports everything
	fresh, _ = c.update(answer{key: key, names: []string{"a"}, endpoint: "/ip4/10.0.0.2/tcp/9955", timer: 120, expires: 20})
	assert.Equal(t, []string{"a", "c"}, fresh)

	_, gone = c.update(answer{key: key, names: []string{"a", "zzz"}, timer: wire.TimerWithdraw})
	assert.Equal(t, []string{"a"}, gone)
	assert.Equal(t, 1, c.len())
}

func TestCacheExpire(t *testing.T) {
	c := newAnswerCache()
	c.update(answer{key: cacheKey{"g1", wire.TransportTCP}, names: []string{"a"}, endpoint: "e", timer: 5, expires: 5})
	c.update(answer{key: cacheKey{"g2", wire.TransportTCP}, names: []string{"b"}, endpoint: "e", timer: 255})

	assert.Empty(t, c.expire(4))
	out := c.expire(5)
	require.Len(t, out, 1)
	assert.Equal(t, "g1", out[0].key.guid)
	assert.Equal(t, []string{"a"}, out[0].names)

	assert.Empty(t, c.expire(1<<40), "permanent entries never lapse")
	assert.Len(t, c.match(wire.TransportTCP, "*"), 1)
	assert.Empty(t, c.match(wire.TransportUDP, "*"))

	out = c.removeGUID("g2")
	require.Len(t, out, 1)
	assert.Zero(t, c.len())
}

func TestPeerMapEviction(t *testing.T) {
	m, err := newPeerMap(2)
	require.NoError(t, err)

	info := func(port uint16) mdns.SenderInfo {
		return mdns.SenderInfo{IPv4: netip.MustParseAddr("10.0.0.1"), UnicastPortV4: port, Priority: 7}
	}
	m.heard("a", info(1), 1, true)
	m.heard("b", info(2), 2, false)
	m.heard("c", info(3), 3, true)

	_, ok := m.get("a")
	assert.False(t, ok, "oldest peer evicted")
	p, ok := m.get("c")
	require.True(t, ok)
	ep, ok := p.Endpoint()
	require.True(t, ok)
	assert.Equal(t, "10.0.0.1:3", ep.String())
	assert.Equal(t, uint64(3), p.LastResponse)

	m.queried("b", 9)
	p, _ = m.get("b")
	assert.Equal(t, uint64(9), p.LastQuery)
	assert.True(t, m.remove("b"))
	assert.Equal(t, 1, m.len())
}
