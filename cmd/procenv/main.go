// Command procenv starts a service, confirms its listen address is bound and
// confirms the address is released again after shutdown. It also exposes the
// underlying address probe and poll for use in shell scripts.
//
// Exit codes: 0 on success, 2 when an address did not reach the awaited
// state in time, 3 when the service exited before it was ready, 4 when the
// service could not be launched, and 1 for anything else.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/giantswarm/procenv"
)

const (
	exitFailure      = 1
	exitPollTimeout  = 2
	exitServiceEnded = 3
	exitLaunchFailed = 4
)

func main() {
	root := NewRootCmd()

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps err to the process exit status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, procenv.ErrProcessExited):
		return exitServiceEnded
	case errors.Is(err, procenv.ErrPollTimeout):
		return exitPollTimeout
	case errors.Is(err, procenv.ErrExecutableNotFound),
		errors.Is(err, procenv.ErrPermissionDenied),
		errors.Is(err, procenv.ErrSpawnFailed):
		return exitLaunchFailed
	default:
		return exitFailure
	}
}
