//go:build unix

package netif

import (
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"
)

// socketControl lets every per-interface socket share the well-known ports.
func socketControl(broadcast bool) func(network, address string, c syscall.RawConn) error {
	return func(_, _ string, c syscall.RawConn) error {
		var opErr error
		err := c.Control(func(fd uintptr) {
			if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
				opErr = fmt.Errorf("set SO_REUSEADDR: %w", err)
				return
			}
			// Not every kernel has SO_REUSEPORT; SO_REUSEADDR is enough there.
			_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
			if broadcast {
				if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1); err != nil {
					opErr = fmt.Errorf("set SO_BROADCAST: %w", err)
				}
			}
		})
		if err != nil {
			return err
		}
		return opErr
	}
}
