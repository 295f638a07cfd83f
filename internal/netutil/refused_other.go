//go:build !unix && !windows

package netutil

import "errors"

// errConnRefused never matches on platforms without a connect errno; refused
// probes there report StateInconclusive.
var errConnRefused = errors.New("connection refused")
