package netif

import (
	"errors"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	nserrors "github.com/DeBrosOfficial/nameservice/pkg/errors"
)

func lan(name string, index int, addrs ...string) Interface {
	iface := Interface{Name: name, Index: index, MTU: 1500, Flags: net.FlagUp | net.FlagMulticast | net.FlagBroadcast}
	for _, a := range addrs {
		iface.Addrs = append(iface.Addrs, netip.MustParsePrefix(a))
	}
	return iface
}

func read(t *testing.T, c PacketConn) (string, netip.AddrPort) {
	t.Helper()
	type result struct {
		s    string
		from netip.AddrPort
	}
	ch := make(chan result, 1)
	go func() {
		b := make([]byte, 1500)
		n, from, err := c.ReadFrom(b)
		if err == nil {
			ch <- result{string(b[:n]), from}
		}
	}()
	select {
	case r := <-ch:
		return r.s, r.from
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for datagram")
		return "", netip.AddrPort{}
	}
}

func TestMemMulticastReachesEveryMember(t *testing.T) {
	hub := NewMemNetwork()
	a := hub.Host(lan("eth0", 1, "10.0.0.1/24"))
	b := hub.Host(lan("eth0", 1, "10.0.0.2/24"))
	group := netip.AddrPortFrom(NSGroupV4, 9956)

	ca, err := a.ListenMulticast(lan("eth0", 1, "10.0.0.1/24"), group)
	require.NoError(t, err)
	cb, err := b.ListenMulticast(lan("eth0", 1, "10.0.0.2/24"), group)
	require.NoError(t, err)
	defer ca.Close()
	defer cb.Close()

	_, err = ca.WriteTo([]byte("hello"), group)
	require.NoError(t, err)

	msg, from := read(t, cb)
	assert.Equal(t, "hello", msg)
	assert.Equal(t, netip.MustParseAddrPort("10.0.0.1:9956"), from)

	// multicast loops back to the sender's own socket
	msg, _ = read(t, ca)
	assert.Equal(t, "hello", msg)
}

func TestMemUnicastAndTap(t *testing.T) {
	hub := NewMemNetwork()
	tap := hub.Tap(8)
	iface := lan("eth0", 1, "10.0.0.1/24")
	h := hub.Host(iface)

	u1, err := h.ListenUnicast(iface, netip.MustParseAddr("10.0.0.1"))
	require.NoError(t, err)
	u2, err := h.ListenUnicast(iface, netip.MustParseAddr("10.0.0.1"))
	require.NoError(t, err)
	assert.NotEqual(t, u1.LocalAddr(), u2.LocalAddr())

	_, err = u1.WriteTo([]byte("x"), u2.LocalAddr())
	require.NoError(t, err)
	msg, from := read(t, u2)
	assert.Equal(t, "x", msg)
	assert.Equal(t, u1.LocalAddr(), from)

	d := <-tap
	assert.Equal(t, u2.LocalAddr(), d.To)
}

func TestMemDrop(t *testing.T) {
	hub := NewMemNetwork()
	iface := lan("eth0", 1, "10.0.0.1/24")
	h := hub.Host(iface)
	hub.SetDrop(func(d Datagram) bool { return string(d.Data) == "lost" })

	u1, _ := h.ListenUnicast(iface, netip.MustParseAddr("10.0.0.1"))
	u2, _ := h.ListenUnicast(iface, netip.MustParseAddr("10.0.0.1"))
	_, _ = u1.WriteTo([]byte("lost"), u2.LocalAddr())
	_, _ = u1.WriteTo([]byte("kept"), u2.LocalAddr())

	msg, _ := read(t, u2)
	assert.Equal(t, "kept", msg)
}

func TestMemCloseUnblocksReader(t *testing.T) {
	hub := NewMemNetwork()
	iface := lan("eth0", 1, "10.0.0.1/24")
	c, err := hub.Host(iface).ListenUnicast(iface, netip.MustParseAddr("10.0.0.1"))
	require.NoError(t, err)

	errc := make(chan error, 1)
	go func() {
		_, _, err := c.ReadFrom(make([]byte, 10))
		errc <- err
	}()
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	select {
	case err := <-errc:
		assert.True(t, errors.Is(err, net.ErrClosed))
	case <-time.After(time.Second):
		t.Fatal("reader not released by Close")
	}
	_, err = c.WriteTo([]byte("x"), netip.MustParseAddrPort("10.0.0.1:1"))
	assert.ErrorIs(t, err, net.ErrClosed)
}

func TestMemFailOpen(t *testing.T) {
	hub := NewMemNetwork()
	iface := lan("eth1", 2, "10.0.1.1/24")
	h := hub.Host(iface)
	h.FailOpen("eth1", true)

	_, err := h.ListenMulticast(iface, netip.AddrPortFrom(NSGroupV4, 9956))
	assert.True(t, nserrors.IsResource(err))

	// IPv6 group on an interface without IPv6
	h.FailOpen("eth1", false)
	_, err = h.ListenMulticast(iface, netip.AddrPortFrom(NSGroupV6, 9956))
	assert.True(t, nserrors.IsResource(err))
}

func TestInterfaceHelpers(t *testing.T) {
	iface := lan("eth0", 3, "192.168.1.5/24", "2001:db8::5/64", "fe80::5/64")

	v4, ok := iface.IPv4()
	require.True(t, ok)
	assert.Equal(t, "192.168.1.5", v4.String())

	v6, ok := iface.IPv6()
	require.True(t, ok)
	assert.Equal(t, "fe80::5%eth0", v6.String())

	assert.True(t, iface.Matches("*"))
	assert.True(t, iface.Matches("eth0"))
	assert.True(t, iface.Matches("192.168.1.5"))
	assert.True(t, iface.Matches("fe80::5"))
	assert.False(t, iface.Matches("eth1"))
	assert.False(t, iface.Matches("10.0.0.1"))

	assert.True(t, iface.Up())
	assert.True(t, iface.Multicast())
	assert.False(t, iface.Loopback())
}

func TestDiscoveryGroups(t *testing.T) {
	assert.Equal(t, "224.0.0.113", NSGroupV4.String())
	assert.Equal(t, "ff02::13a", NSGroupV6.String())
	assert.Equal(t, "224.0.0.251", MDNSGroupV4.String())
	assert.Equal(t, "ff02::fb", MDNSGroupV6.String())
	for _, g := range []netip.Addr{NSGroupV4, NSGroupV6, MDNSGroupV4, MDNSGroupV6} {
		assert.True(t, g.IsLinkLocalMulticast(), g.String())
	}
}
