package procenv

import "github.com/giantswarm/procenv/internal/core"

// Sentinel errors for error inspection with errors.Is.
// These are immutable constants safe for use in wrapped error chain comparison.
const (
	// ErrSupervisorClosed is returned by every Supervisor operation after Close.
	ErrSupervisorClosed = core.ErrSupervisorClosed

	// ErrInvalidService is returned by StartAndConfirm when the Service has
	// no command path or an invalid listen address.
	ErrInvalidService = core.ErrInvalidService

	// ErrExecutableNotFound is a launch failure: the command path does not
	// exist or is not on PATH.
	ErrExecutableNotFound = core.ErrExecutableNotFound

	// ErrPermissionDenied is a launch failure: the command exists but may
	// not be executed.
	ErrPermissionDenied = core.ErrPermissionDenied

	// ErrSpawnFailed is any other launch failure reported by the OS.
	ErrSpawnFailed = core.ErrSpawnFailed

	// ErrWaitTimeout is returned by Process.WaitForExit when the process is
	// still running at the deadline.
	ErrWaitTimeout = core.ErrWaitTimeout

	// ErrPollTimeout is matched by every *TimeoutError: the address did not
	// reach the desired state before the deadline.
	ErrPollTimeout = core.ErrPollTimeout

	// ErrProcessExited is returned by StartAndConfirm when the launched
	// process exits before its address is bound (see WithAbortOnExit).
	ErrProcessExited = core.ErrProcessExited

	// ErrPoolClosed is returned by a background Session started after Close.
	ErrPoolClosed = core.ErrPoolClosed
)
