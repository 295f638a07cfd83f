package procenv

import (
	"context"
	"time"

	"github.com/giantswarm/procenv/internal/core"
	"github.com/giantswarm/procenv/internal/process"
)

// Compile-time interface satisfaction checks.
var (
	_ Supervisor = (*supervisorWrapper)(nil)
	_ Process    = (*process.Handle)(nil)
)

// supervisorWrapper wraps core.Supervisor to implement the Supervisor
// interface, returning Process interfaces instead of *process.Handle.
//
// The core.Supervisor is stored as a named (unexported) field rather than
// embedded so callers cannot reach internal methods through type assertions.
type supervisorWrapper struct {
	sup *core.Supervisor
}

// asProcess converts h to a Process, keeping a nil handle a nil interface.
//
//nolint:ireturn // Returns Process interface by design for testability (mockable).
func asProcess(h *process.Handle) Process {
	if h == nil {
		return nil
	}
	return h
}

// StartAndConfirm implements Supervisor.StartAndConfirm.
//
//nolint:ireturn // Returns Process interface by design for testability (mockable).
func (w *supervisorWrapper) StartAndConfirm(ctx context.Context, svc Service) (Process, Outcome, error) {
	h, out, err := w.sup.StartAndConfirm(ctx, svc)
	return asProcess(h), out, err
}

// StopAndConfirm implements Supervisor.StopAndConfirm.
func (w *supervisorWrapper) StopAndConfirm(ctx context.Context, p Process, addr Address, releaseTimeout time.Duration) (Outcome, error) {
	return w.sup.StopAndConfirm(ctx, p, addr, releaseTimeout)
}

// StartAllAndConfirm implements Supervisor.StartAllAndConfirm.
func (w *supervisorWrapper) StartAllAndConfirm(ctx context.Context, svcs []Service) ([]StartResult, error) {
	results, err := w.sup.StartAllAndConfirm(ctx, svcs)
	out := make([]StartResult, len(results))
	for i, r := range results {
		out[i] = StartResult{Service: r.Service, Process: asProcess(r.Handle), Outcome: r.Outcome, Err: r.Err}
	}
	return out, err
}

// AwaitBound wraps core.Supervisor.AwaitBound.
func (w *supervisorWrapper) AwaitBound(ctx context.Context, addr Address, timeout time.Duration) (Outcome, error) {
	return w.sup.AwaitBound(ctx, addr, timeout)
}

// AwaitUnbound wraps core.Supervisor.AwaitUnbound.
func (w *supervisorWrapper) AwaitUnbound(ctx context.Context, addr Address, timeout time.Duration) (Outcome, error) {
	return w.sup.AwaitUnbound(ctx, addr, timeout)
}

// StartPoll wraps core.Supervisor.StartPoll.
func (w *supervisorWrapper) StartPoll(ctx context.Context, addr Address, desired State, timeout time.Duration) *Session {
	return w.sup.StartPoll(ctx, addr, desired, timeout)
}

// Probe wraps core.Supervisor.Probe.
func (w *supervisorWrapper) Probe(ctx context.Context, addr Address) ProbeResult {
	return w.sup.Probe(ctx, addr)
}

// AllocateAddress wraps core.Supervisor.AllocateAddress.
func (w *supervisorWrapper) AllocateAddress() (Address, error) {
	return w.sup.AllocateAddress()
}

// ReleaseAddress wraps core.Supervisor.ReleaseAddress.
func (w *supervisorWrapper) ReleaseAddress(addr Address) {
	w.sup.ReleaseAddress(addr)
}

// Close wraps core.Supervisor.Close.
func (w *supervisorWrapper) Close() {
	w.sup.Close()
}

// defaultSupervisorConfig returns a supervisorConfig populated with all
// default values. Both New and test helpers use this to avoid duplicating
// the default field assignments.
func defaultSupervisorConfig() supervisorConfig {
	return supervisorConfig{core.SupervisorConfig{
		PollInterval:         DefaultPollInterval,
		ProbeTimeout:         DefaultProbeTimeout,
		ReadyTimeout:         DefaultReadyTimeout,
		ReleaseTimeout:       DefaultReleaseTimeout,
		TerminateGracePeriod: DefaultTerminateGracePeriod,
		WorkerPoolSize:       DefaultWorkerPoolSize,
		Output:               DefaultOutput,
		AbortOnExit:          DefaultAbortOnExit,
	}}
}

// New returns a Supervisor configured by opts. Every call returns an
// independent Supervisor with its own worker pool; there is no shared
// global instance. Call Close when done.
//
// Panics if any option receives an invalid value or the combined options
// are inconsistent (e.g., WithOutput(OutputCapture) without WithLogDir).
// See individual With* functions for constraints.
//
//nolint:ireturn // Returns Supervisor interface by design for testability (mockable).
func New(opts ...Option) Supervisor {
	cfg := defaultSupervisorConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &supervisorWrapper{sup: core.NewSupervisorWithConfig(cfg.toCoreConfig())}
}
