package nameservice

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DeBrosOfficial/nameservice/pkg/wire"
)

func TestEndpointAddr(t *testing.T) {
	s, err := endpointAddr(wire.TransportTCP, netip.MustParseAddrPort("10.0.0.5:9955"))
	require.NoError(t, err)
	assert.Equal(t, "/ip4/10.0.0.5/tcp/9955", s)

	s, err = endpointAddr(wire.TransportUDP, netip.MustParseAddrPort("[2001:db8::1]:9955"))
	require.NoError(t, err)
	assert.Equal(t, "/ip6/2001:db8::1/udp/9955", s)

	ap, err := ParseEndpoint("/ip4/10.0.0.5/tcp/9955")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5:9955", ap.String())

	_, err = ParseEndpoint("not a multiaddr")
	assert.Error(t, err)
}

func TestDispatcherDeliversAndCloses(t *testing.T) {
	d := newDispatcher(4)
	var drops []string
	d.onDrop = func(kind string) { drops = append(drops, kind) }

	found := d.discovery.subscribe(4)
	pings := d.ping.subscribe(0)

	go d.run()
	d.emit(FoundEvent{GUID: "g", Names: []string{"org.foo"}, Timer: 120})
	d.emit(PingEvent{GUID: "g"})

	ev := <-found
	assert.Equal(t, "g", ev.GUID)
	assert.False(t, ev.Withdrawn())

	d.close(true)
	_, ok := <-found
	assert.False(t, ok)
	_, ok = <-pings
	assert.False(t, ok)
	assert.Equal(t, []string{"ping"}, drops, "unbuffered subscriber misses the event")

	// late emits and subscriptions are harmless
	d.emit(FoundEvent{})
	_, ok = <-d.discovery.subscribe(1)
	assert.False(t, ok)
}

func TestDiscoveryWaitsForSlowSubscriber(t *testing.T) {
	d := newDispatcher(8)
	var drops []string
	d.onDrop = func(kind string) { drops = append(drops, kind) }
	found := d.discovery.subscribe(1)
	go d.run()

	names := []string{"org.a", "org.b", "org.c"}
	for _, n := range names {
		d.emit(FoundEvent{GUID: "g", Names: []string{n}, Timer: 120})
	}
	time.Sleep(50 * time.Millisecond)
	for _, n := range names {
		select {
		case ev := <-found:
			assert.Equal(t, []string{n}, ev.Names)
		case <-time.After(time.Second):
			t.Fatalf("%s never delivered", n)
		}
	}

	d.close(true)
	_, ok := <-found
	assert.False(t, ok)
	assert.Empty(t, drops)
}

func TestCloseReleasesBlockedDiscovery(t *testing.T) {
	d := newDispatcher(8)
	var drops []string
	d.onDrop = func(kind string) { drops = append(drops, kind) }
	stuck := d.discovery.subscribe(0)
	go d.run()
	d.emit(FoundEvent{GUID: "g", Names: []string{"org.a"}})

	closed := make(chan struct{})
	go func() {
		d.close(true)
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("close blocked on a subscriber that never reads")
	}
	_, ok := <-stuck
	assert.False(t, ok)
	assert.Equal(t, []string{"found"}, drops)
}
