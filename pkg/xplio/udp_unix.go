//go:build unix

package xplio

import (
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// udpBroadcastControl is passed to net.ListenConfig.Control so the
// outbound socket can send to a broadcast address (spec.md §4.2:
// SO_BROADCAST on the outbound socket).
func udpBroadcastControl(_ string, _ string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}

// udpMaximizeRxBuffer down-ramps from 1 MB until setsockopt accepts a
// receive buffer size (spec.md §4.2, grounded on
// _examples/original_source/src/sys/unix/io_udp.c prvMaximizeRxbufferSize).
func udpMaximizeRxBuffer(conn *net.UDPConn) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return
	}
	for size := 1024000; size > 0; size -= 64000 {
		var setErr error
		_ = raw.Control(func(fd uintptr) {
			setErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, size)
		})
		if setErr == nil {
			return
		}
	}
}
