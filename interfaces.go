package procenv

import (
	"context"
	"time"
)

// Supervisor launches services and confirms their network-visible effect.
//
// Callers follow this lifecycle:
//
//	New → StartAndConfirm/StopAndConfirm (repeatable) → Close
//
// A Supervisor is safe for concurrent use. After Close, operations fail with
// ErrSupervisorClosed: StartPoll returns a finished Session carrying it,
// Probe returns an inconclusive result carrying it. ReleaseAddress and Close
// stay safe to call.
type Supervisor interface {
	// StartAndConfirm launches svc and polls svc.Address until it is bound,
	// or until svc.ReadyTimeout (default WithReadyTimeout) elapses.
	//
	// If the launch fails, no poll is attempted and the Process is nil. If
	// only the poll fails, the Process is still returned with the failed
	// Outcome so the caller can terminate it or assert on it. Failures are
	// *SupervisionError values wrapping a *LaunchError, a *TimeoutError,
	// ErrProcessExited or a context error.
	StartAndConfirm(ctx context.Context, svc Service) (Process, Outcome, error)

	// StopAndConfirm terminates p and polls addr until it is unbound or
	// releaseTimeout elapses. A zero releaseTimeout uses the configured
	// default. It works on processes that have already exited; a nil p
	// only polls.
	StopAndConfirm(ctx context.Context, p Process, addr Address, releaseTimeout time.Duration) (Outcome, error)

	// StartAllAndConfirm starts every service concurrently. Results are in
	// input order. The first failure cancels the remaining polls and is
	// returned as the error; processes that launched are still returned.
	StartAllAndConfirm(ctx context.Context, svcs []Service) ([]StartResult, error)

	// AwaitBound polls addr until it is bound. A zero timeout uses the
	// configured ready timeout.
	AwaitBound(ctx context.Context, addr Address, timeout time.Duration) (Outcome, error)

	// AwaitUnbound polls addr until it is unbound. A zero timeout uses the
	// configured release timeout. An already unbound address succeeds on
	// the first attempt without waiting.
	AwaitUnbound(ctx context.Context, addr Address, timeout time.Duration) (Outcome, error)

	// StartPoll begins polling addr for desired in the background. Cancel
	// the returned Session to stop it; no further probes run afterwards.
	// A zero timeout uses the ready timeout for StateBound and the release
	// timeout otherwise, as AwaitBound and AwaitUnbound do.
	StartPoll(ctx context.Context, addr Address, desired State, timeout time.Duration) *Session

	// Probe checks the bind state of addr once.
	Probe(ctx context.Context, addr Address) ProbeResult

	// AllocateAddress returns a free loopback address that no other caller
	// of this Supervisor will receive until ReleaseAddress.
	AllocateAddress() (Address, error)

	// ReleaseAddress returns an address from AllocateAddress.
	ReleaseAddress(addr Address)

	// Close terminates processes started by this Supervisor that were
	// never stopped, stops the probe workers and releases address locks.
	// Safe to call multiple times.
	Close()
}

// Process is a launched child process. It is owned by the caller that
// started it and must not be terminated by two uncoordinated owners.
type Process interface {
	// ID returns an opaque identity that never changes.
	ID() string

	// Name returns the service name used in logs.
	Name() string

	// PID returns the OS process ID.
	PID() int

	// Args returns a copy of the full command line.
	Args() []string

	// IsAlive reports whether the process is still running. Never blocks.
	IsAlive() bool

	// Exited is closed once the process has exited and been reaped.
	Exited() <-chan struct{}

	// ExitCode returns the exit code once the process has exited. A
	// process killed by a signal reports -1.
	ExitCode() (int, bool)

	// Terminate sends SIGTERM, waits up to grace and then sends SIGKILL.
	// Calling it on a terminated or exited process is a no-op.
	Terminate(grace time.Duration) error

	// WaitForExit blocks until the process exits or timeout elapses, in
	// which case it returns ErrWaitTimeout.
	WaitForExit(timeout time.Duration) (int, error)

	// StdoutPath and StderrPath return the captured output files, or ""
	// when output is not captured.
	StdoutPath() string
	StderrPath() string
}

// StartResult is the per-service result of StartAllAndConfirm.
type StartResult struct {
	Service Service
	Process Process // nil if the launch failed
	Outcome Outcome
	Err     error
}
