//go:build !unix && !windows

package network

import "syscall"

func reuseAddr(_, _ string, _ syscall.RawConn) error { return nil }
