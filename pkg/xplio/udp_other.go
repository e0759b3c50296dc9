//go:build !unix

package xplio

import (
	"net"
	"syscall"
)

// udpBroadcastControl is a no-op on non-unix targets; the upstream
// project's UDP transport is unix-only (see
// _examples/original_source/src/sys/unix/io_udp.c, guarded by
// `#ifdef __unix__`).
func udpBroadcastControl(_ string, _ string, _ syscall.RawConn) error {
	return nil
}

func udpMaximizeRxBuffer(_ *net.UDPConn) {}
