package core

import (
	"errors"
	"fmt"
	"time"

	"github.com/giantswarm/procenv/internal/process"
)

// MinWorkerPoolSize is the smallest accepted probe worker pool. Two workers
// let a test supervise a service and its dependency at the same time.
const MinWorkerPoolSize = 2

// SupervisorConfig holds configuration for Supervisor instances.
//
// All fields are immutable after construction via NewSupervisorWithConfig.
// Env is copied by the constructor so later changes to the caller's slice
// are not observed.
type SupervisorConfig struct {
	// PollInterval is the delay between the starts of consecutive probe
	// attempts in every poll session.
	PollInterval time.Duration

	// ProbeTimeout bounds a single connection attempt.
	ProbeTimeout time.Duration

	// ReadyTimeout is the default deadline for StartAndConfirm when the
	// Service does not set its own.
	ReadyTimeout time.Duration

	// ReleaseTimeout is the default deadline for StopAndConfirm when the
	// caller passes zero.
	ReleaseTimeout time.Duration

	// TerminateGracePeriod is how long a process gets to exit after SIGTERM
	// before it is killed.
	TerminateGracePeriod time.Duration

	// WorkerPoolSize is the number of probe workers shared by all poll
	// sessions. Must be at least MinWorkerPoolSize.
	WorkerPoolSize int

	// Output selects what happens to child stdout and stderr.
	Output process.OutputMode

	// LogDir receives captured output. Required when Output is
	// process.OutputCapture.
	LogDir string

	// LockDir enables cross-process address locks when non-empty. Each
	// listen address gets one lock file in this directory, held from launch
	// until release is confirmed.
	LockDir string

	// Env entries are added to every launched process, before the
	// service's own entries.
	Env []string

	// AbortOnExit ends a start poll as soon as the launched process exits
	// instead of polling until the ready timeout.
	AbortOnExit bool

	// ProcessGroup starts each child in its own process group so
	// termination reaches its descendants.
	ProcessGroup bool
}

// Validate checks all SupervisorConfig invariants and returns an error
// describing every violation found, joined with errors.Join.
//
// Validate is called by NewSupervisorWithConfig, which panics on error since
// invalid config is a programmer error.
func (c SupervisorConfig) Validate() error {
	var errs []error

	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll interval must be greater than 0, got %s", c.PollInterval))
	}
	if c.ProbeTimeout <= 0 {
		errs = append(errs, fmt.Errorf("probe timeout must be greater than 0, got %s", c.ProbeTimeout))
	}
	if c.ReadyTimeout <= 0 {
		errs = append(errs, fmt.Errorf("ready timeout must be greater than 0, got %s", c.ReadyTimeout))
	}
	if c.ReleaseTimeout <= 0 {
		errs = append(errs, fmt.Errorf("release timeout must be greater than 0, got %s", c.ReleaseTimeout))
	}
	if c.TerminateGracePeriod <= 0 {
		errs = append(errs, fmt.Errorf("terminate grace period must be greater than 0, got %s", c.TerminateGracePeriod))
	}
	if c.WorkerPoolSize < MinWorkerPoolSize {
		errs = append(errs, fmt.Errorf("worker pool size must be at least %d, got %d", MinWorkerPoolSize, c.WorkerPoolSize))
	}
	if !c.Output.IsValid() {
		errs = append(errs, fmt.Errorf("invalid output mode: %v", c.Output))
	}
	if c.Output == process.OutputCapture && c.LogDir == "" {
		errs = append(errs, errors.New("log directory must not be empty when capturing output"))
	}

	return errors.Join(errs...)
}
