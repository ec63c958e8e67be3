//go:build unix

package tcp

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// setReuseAddr lets the port be rebound immediately after a restart while old
// connections sit in TIME_WAIT.
func setReuseAddr(network, address string, rawConn syscall.RawConn) error {
	var sockErr error
	err := rawConn.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}
