//go:build windows

package netutil

import "golang.org/x/sys/windows"

// errConnRefused is the Winsock error returned when nothing listens.
var errConnRefused error = windows.WSAECONNREFUSED
