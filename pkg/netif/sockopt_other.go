//go:build !unix

package netif

import "syscall"

// socketControl is a no-op where x/sys/unix is unavailable. Only one daemon
// per host can then bind the well-known ports.
func socketControl(bool) func(network, address string, c syscall.RawConn) error {
	return nil
}
