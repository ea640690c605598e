package nameservice

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/DeBrosOfficial/nameservice/pkg/wire"
)

func TestAdvertiseIdempotent(t *testing.T) {
	s := newState()

	assert.Equal(t, wire.TransportTCP, s.advertise(wire.TransportTCP, "org.foo", false))
	assert.Equal(t, wire.TransportNone, s.advertise(wire.TransportTCP, "org.foo", false))
	assert.Equal(t, []string{"org.foo"}, s.loudNames(wire.TransportTCP))
	assert.Empty(t, s.loudNames(wire.TransportUDP))

	assert.Equal(t, wire.TransportNone, s.cancelAdvertise(wire.TransportTCP, "org.absent"))
	assert.Equal(t, wire.TransportTCP, s.cancelAdvertise(wire.TransportAll, "org.foo"))
	assert.Empty(t, s.loudNames(wire.TransportTCP))
	assert.True(t, s.empty())
}

func TestAdvertiseLoudQuietExclusive(t *testing.T) {
	s := newState()
	s.advertise(wire.TransportAll, "org.foo", false)
	assert.Equal(t, wire.TransportUDP, s.advertise(wire.TransportUDP, "org.foo", true))

	assert.Equal(t, []string{"org.foo"}, s.loudNames(wire.TransportTCP))
	assert.Empty(t, s.loudNames(wire.TransportUDP))
	assert.True(t, s.advertised(wire.TransportUDP, "org.foo"))
	assert.Equal(t, []string{"org.foo"}, s.matchAdvertised(wire.TransportUDP, []string{"org.*"}))
}

func TestFindIdempotent(t *testing.T) {
	s := newState()
	assert.Equal(t, wire.TransportAll, s.find(wire.TransportAll, "org.*"))
	assert.Equal(t, wire.TransportNone, s.find(wire.TransportTCP, "org.*"))
	assert.Equal(t, wire.TransportNone, s.cancelFind(wire.TransportTCP, "com.*"))

	assert.Equal(t, []string{"org.a"}, s.interesting(wire.TransportTCP, []string{"org.a", "com.b"}))
	assert.Equal(t, wire.TransportTCP, s.cancelFind(wire.TransportTCP, "org.*"))
	assert.Empty(t, s.interesting(wire.TransportTCP, []string{"org.a"}))
	assert.Equal(t, []string{"org.a"}, s.interesting(wire.TransportUDP, []string{"org.a"}))
}

func TestMatchName(t *testing.T) {
	cases := []struct {
		pattern, name string
		want          bool
	}{
		{"org.foo.bar", "org.foo.bar", true},
		{"org.foo.bar", "org.foo.baz", false},
		{"org.foo.*", "org.foo.bar", true},
		{"org.foo.*", "org.foobar", false},
		{"org.foo.ba?", "org.foo.baz", true},
		{"*", "anything.at.all", true},
		{"[", "[", true},
		{"[*", "[x", false},
	}
	for _, c := range cases {
		if got := matchName(c.pattern, c.name); got != c.want {
			t.Errorf("matchName(%q, %q) = %v, want %v", c.pattern, c.name, got, c.want)
		}
	}
}
