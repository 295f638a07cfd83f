//go:build unix

package netutil

import "golang.org/x/sys/unix"

// errConnRefused is the errno returned by connect(2) when nothing listens.
var errConnRefused error = unix.ECONNREFUSED
