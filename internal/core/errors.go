package core

import (
	"fmt"

	"github.com/giantswarm/procenv/internal/netutil"
	"github.com/giantswarm/procenv/internal/poll"
	"github.com/giantswarm/procenv/internal/process"
	"github.com/giantswarm/procenv/internal/sentinel"
)

// ErrSupervisorClosed is returned by every Supervisor operation after Close.
const ErrSupervisorClosed = sentinel.Error("supervisor is closed")

// ErrInvalidService is wrapped by StartAndConfirm when the Service is
// missing a command path or has an invalid listen address.
const ErrInvalidService = sentinel.Error("invalid service")

// Re-exported so the public API imports error values only from core.
const (
	ErrExecutableNotFound = process.ErrExecutableNotFound
	ErrPermissionDenied   = process.ErrPermissionDenied
	ErrSpawnFailed        = process.ErrSpawnFailed
	ErrWaitTimeout        = process.ErrWaitTimeout
	ErrPollTimeout        = poll.ErrPollTimeout
	ErrProcessExited      = poll.ErrProcessExited
	ErrPoolClosed         = poll.ErrPoolClosed
)

// Operation names recorded in SupervisionError.Op.
const (
	OpStart = "start"
	OpStop  = "stop"
)

// SupervisionError reports a failed StartAndConfirm or StopAndConfirm. Err is
// the underlying *process.LaunchError, *poll.TimeoutError, context error or
// termination error; errors.Is and errors.As see through it.
type SupervisionError struct {
	Op      string
	Name    string
	Address netutil.Address
	Err     error
}

// Error implements the error interface.
func (e *SupervisionError) Error() string {
	return fmt.Sprintf("%s %s on %s: %v", e.Op, e.Name, e.Address, e.Err)
}

// Unwrap returns the underlying error.
func (e *SupervisionError) Unwrap() error {
	return e.Err
}
