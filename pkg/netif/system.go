package netif

import (
	"context"
	"fmt"
	"net"
	"net/netip"

	"go.uber.org/zap"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"

	nserrors "github.com/DeBrosOfficial/nameservice/pkg/errors"
)

// System is the operating system Network.
type System struct {
	logger *zap.Logger
}

// NewSystem returns the OS-backed Network.
func NewSystem(logger *zap.Logger) *System {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &System{logger: logger.With(zap.String("component", "netif"))}
}

// Interfaces implements Lister.
func (s *System) Interfaces() ([]Interface, error) {
	ifs, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("list interfaces: %w", err)
	}

	out := make([]Interface, 0, len(ifs))
	for _, ifi := range ifs {
		iface := Interface{Name: ifi.Name, Index: ifi.Index, MTU: ifi.MTU, Flags: ifi.Flags}
		addrs, err := ifi.Addrs()
		if err != nil {
			s.logger.Debug("Skipping interface addresses", zap.String("iface", ifi.Name), zap.Error(err))
		}
		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			ip, ok := netip.AddrFromSlice(ipnet.IP)
			if !ok {
				continue
			}
			ones, _ := ipnet.Mask.Size()
			iface.Addrs = append(iface.Addrs, netip.PrefixFrom(ip.Unmap(), ones))
		}
		out = append(out, iface)
	}
	return out, nil
}

func (s *System) listen(network string, addr netip.AddrPort, broadcast bool) (*net.UDPConn, error) {
	lc := net.ListenConfig{Control: socketControl(broadcast)}
	pc, err := lc.ListenPacket(context.Background(), network, addr.String())
	if err != nil {
		return nil, err
	}
	return pc.(*net.UDPConn), nil
}

// ListenMulticast implements Opener.
func (s *System) ListenMulticast(iface Interface, group netip.AddrPort) (PacketConn, error) {
	ifi, err := net.InterfaceByIndex(iface.Index)
	if err != nil {
		return nil, nserrors.NewResourceError(iface.Name, "lookup", err)
	}
	gaddr := &net.UDPAddr{IP: group.Addr().AsSlice(), Port: int(group.Port())}

	if group.Addr().Is4() {
		uc, err := s.listen("udp4", netip.AddrPortFrom(netip.IPv4Unspecified(), group.Port()), false)
		if err != nil {
			return nil, nserrors.NewResourceError(iface.Name, "listen", err)
		}
		pc := ipv4.NewPacketConn(uc)
		if err := pc.JoinGroup(ifi, gaddr); err != nil {
			uc.Close()
			return nil, nserrors.NewResourceError(iface.Name, "join "+group.Addr().String(), err)
		}
		if err := pc.SetMulticastInterface(ifi); err != nil {
			uc.Close()
			return nil, nserrors.NewResourceError(iface.Name, "set multicast interface", err)
		}
		_ = pc.SetMulticastLoopback(true)
		_ = pc.SetMulticastTTL(255)
		if err := pc.SetControlMessage(ipv4.FlagInterface, true); err != nil {
			s.logger.Debug("No interface control messages; accepting all", zap.String("iface", iface.Name), zap.Error(err))
		}
		return &sysConn4{pc: pc, uc: uc, ifindex: iface.Index}, nil
	}

	uc, err := s.listen("udp6", netip.AddrPortFrom(netip.IPv6Unspecified(), group.Port()), false)
	if err != nil {
		return nil, nserrors.NewResourceError(iface.Name, "listen", err)
	}
	pc := ipv6.NewPacketConn(uc)
	if err := pc.JoinGroup(ifi, gaddr); err != nil {
		uc.Close()
		return nil, nserrors.NewResourceError(iface.Name, "join "+group.Addr().String(), err)
	}
	if err := pc.SetMulticastInterface(ifi); err != nil {
		uc.Close()
		return nil, nserrors.NewResourceError(iface.Name, "set multicast interface", err)
	}
	_ = pc.SetMulticastLoopback(true)
	_ = pc.SetMulticastHopLimit(255)
	if err := pc.SetControlMessage(ipv6.FlagInterface, true); err != nil {
		s.logger.Debug("No interface control messages; accepting all", zap.String("iface", iface.Name), zap.Error(err))
	}
	return &sysConn6{pc: pc, uc: uc, ifindex: iface.Index, zone: iface.Name}, nil
}

// ListenUnicast implements Opener.
func (s *System) ListenUnicast(iface Interface, addr netip.Addr) (PacketConn, error) {
	network := "udp6"
	if addr.Is4() {
		network = "udp4"
	} else if addr.IsLinkLocalUnicast() && addr.Zone() == "" {
		addr = addr.WithZone(iface.Name)
	}
	uc, err := s.listen(network, netip.AddrPortFrom(addr, 0), addr.Is4())
	if err != nil {
		return nil, nserrors.NewResourceError(iface.Name, "listen unicast", err)
	}
	return &sysUnicast{uc: uc}, nil
}

type sysConn4 struct {
	pc      *ipv4.PacketConn
	uc      *net.UDPConn
	ifindex int
}

func (c *sysConn4) ReadFrom(b []byte) (int, netip.AddrPort, error) {
	for {
		n, cm, src, err := c.pc.ReadFrom(b)
		if err != nil {
			return 0, netip.AddrPort{}, err
		}
		if cm != nil && cm.IfIndex != 0 && cm.IfIndex != c.ifindex {
			continue
		}
		return n, udpAddrPort(src), nil
	}
}

func (c *sysConn4) WriteTo(b []byte, to netip.AddrPort) (int, error) {
	return c.pc.WriteTo(b, &ipv4.ControlMessage{IfIndex: c.ifindex}, net.UDPAddrFromAddrPort(to))
}

func (c *sysConn4) LocalAddr() netip.AddrPort { return udpAddrPort(c.uc.LocalAddr()) }
func (c *sysConn4) Close() error              { return c.uc.Close() }

type sysConn6 struct {
	pc      *ipv6.PacketConn
	uc      *net.UDPConn
	ifindex int
	zone    string
}

func (c *sysConn6) ReadFrom(b []byte) (int, netip.AddrPort, error) {
	for {
		n, cm, src, err := c.pc.ReadFrom(b)
		if err != nil {
			return 0, netip.AddrPort{}, err
		}
		if cm != nil && cm.IfIndex != 0 && cm.IfIndex != c.ifindex {
			continue
		}
		return n, udpAddrPort(src), nil
	}
}

func (c *sysConn6) WriteTo(b []byte, to netip.AddrPort) (int, error) {
	if to.Addr().IsLinkLocalMulticast() || to.Addr().IsLinkLocalUnicast() {
		to = netip.AddrPortFrom(to.Addr().WithZone(c.zone), to.Port())
	}
	return c.pc.WriteTo(b, &ipv6.ControlMessage{IfIndex: c.ifindex}, net.UDPAddrFromAddrPort(to))
}

func (c *sysConn6) LocalAddr() netip.AddrPort { return udpAddrPort(c.uc.LocalAddr()) }
func (c *sysConn6) Close() error              { return c.uc.Close() }

type sysUnicast struct {
	uc *net.UDPConn
}

func (c *sysUnicast) ReadFrom(b []byte) (int, netip.AddrPort, error) {
	n, ap, err := c.uc.ReadFromUDPAddrPort(b)
	return n, netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port()), err
}

func (c *sysUnicast) WriteTo(b []byte, to netip.AddrPort) (int, error) {
	return c.uc.WriteToUDPAddrPort(b, to)
}

func (c *sysUnicast) LocalAddr() netip.AddrPort { return udpAddrPort(c.uc.LocalAddr()) }
func (c *sysUnicast) Close() error              { return c.uc.Close() }

func udpAddrPort(a net.Addr) netip.AddrPort {
	if ua, ok := a.(*net.UDPAddr); ok {
		ap := ua.AddrPort()
		return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
	}
	return netip.AddrPort{}
}
