//go:build !unix

package tcp

import "syscall"

func setReuseAddr(network, address string, rawConn syscall.RawConn) error {
	return nil
}
