package core

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"github.com/giantswarm/procenv/internal/fileutil"
	"github.com/giantswarm/procenv/internal/netutil"
	"github.com/giantswarm/procenv/internal/poll"
	"github.com/giantswarm/procenv/internal/process"
)

// Service describes a process to start and the address it is expected to
// bind.
type Service struct {
	Name    string   // For logging and log files; defaults to the base name of Path
	Path    string   // Executable path; bare names are resolved via PATH
	Args    []string // Passed verbatim, in order
	Env     []string // KEY=VALUE entries added after SupervisorConfig.Env
	Dir     string   // Working directory; empty inherits the parent's
	Address netutil.Address

	// ReadyTimeout overrides SupervisorConfig.ReadyTimeout when positive.
	ReadyTimeout time.Duration
}

// displayName returns Name, or the base name of Path when Name is empty.
func (s Service) displayName() string {
	if s.Name != "" {
		return s.Name
	}
	return filepath.Base(s.Path)
}

func (s Service) validate() error {
	var errs []error
	if s.Path == "" {
		errs = append(errs, process.ErrEmptyCmdPath)
	}
	if err := s.Address.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("address: %w", err))
	}
	if s.ReadyTimeout < 0 {
		errs = append(errs, fmt.Errorf("ready timeout must not be negative, got %s", s.ReadyTimeout))
	}
	if s.Dir != "" {
		if err := fileutil.RequireDir(s.Dir); err != nil {
			errs = append(errs, err)
		}
	}
	return ErrInvalidService.Wrap(errors.Join(errs...))
}

// Terminator is the part of a process handle StopAndConfirm needs.
// *process.Handle implements it.
type Terminator interface {
	ID() string
	Name() string
	Terminate(grace time.Duration) error
}

// StartResult is the per-service result of StartAllAndConfirm.
type StartResult struct {
	Service Service
	Handle  *process.Handle // nil if the launch failed
	Outcome poll.Outcome
	Err     error
}

// Supervisor launches services and confirms their listen addresses through a
// shared probe worker pool. It is safe for concurrent use by multiple
// goroutines.
//
// Handles returned by StartAndConfirm are owned by the caller. The Supervisor
// keeps a reference only so Close can terminate processes the caller never
// stopped.
type Supervisor struct {
	cfg    SupervisorConfig
	prober *netutil.Prober
	pool   *poll.Pool
	poller *poll.Poller
	ports  *netutil.PortRegistry
	locks  *addressLocks // nil when LockDir is empty

	mu        sync.Mutex
	closed    bool
	handles   map[string]*process.Handle
	heldLocks map[string]heldLock // by handle ID
}

// heldLock is the address lock taken for one launched process.
type heldLock struct {
	addr netutil.Address
	fl   *flock.Flock
}

// NewSupervisorWithConfig creates a Supervisor with the provided
// configuration and starts its worker pool. It performs no other I/O.
//
// Panics if cfg.Validate() reports any errors.
func NewSupervisorWithConfig(cfg SupervisorConfig) *Supervisor {
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("procenv: invalid supervisor config: %v", err))
	}
	cfg.Env = slices.Clone(cfg.Env)

	log := currentLogger()
	prober := netutil.NewProber(cfg.ProbeTimeout)
	pool := poll.NewPool(cfg.WorkerPoolSize, log)
	s := &Supervisor{
		cfg:       cfg,
		prober:    prober,
		pool:      pool,
		poller:    poll.New(pool, prober, log),
		ports:     netutil.NewPortRegistry(log),
		handles:   make(map[string]*process.Handle),
		heldLocks: make(map[string]heldLock),
	}
	if cfg.LockDir != "" {
		s.locks = newAddressLocks(cfg.LockDir, log)
	}
	return s
}

// Config returns a copy of the supervisor's configuration.
func (s *Supervisor) Config() SupervisorConfig {
	cfg := s.cfg
	cfg.Env = slices.Clone(s.cfg.Env)
	return cfg
}

func (s *Supervisor) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// track records h for termination on Close, together with the address lock
// taken for it. It reports false when the supervisor closed while h was
// being launched.
func (s *Supervisor) track(h *process.Handle, lock heldLock) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.handles[h.ID()] = h
	if lock.fl != nil {
		s.heldLocks[h.ID()] = lock
	}
	return true
}

// releaseHandleLock drops the address lock taken for the process with the
// given ID. It reports false when there was none left to release.
func (s *Supervisor) releaseHandleLock(id string) bool {
	s.mu.Lock()
	lock, ok := s.heldLocks[id]
	delete(s.heldLocks, id)
	s.mu.Unlock()

	if ok && s.locks != nil {
		s.locks.releaseOwned(lock.addr, lock.fl)
	}
	return ok
}

// releaseLockOnExit frees h's address lock as soon as h exits, so a process
// stopped without StopAndConfirm cannot keep its address locked.
func (s *Supervisor) releaseLockOnExit(h *process.Handle) {
	<-h.Exited()
	if s.releaseHandleLock(h.ID()) {
		Logger().Debug("address lock released on process exit", "service", h.Name(), "pid", h.PID())
	}
}

func (s *Supervisor) untrack(id string) {
	s.mu.Lock()
	delete(s.handles, id)
	s.mu.Unlock()
}

// StartAndConfirm launches svc and polls its address until it is bound.
//
// If the launch fails no poll is attempted, the handle is nil and the error
// wraps the *process.LaunchError. If the poll fails the handle is still
// returned with the failed outcome; the caller decides whether to stop it.
// Either failure is reported as a *SupervisionError.
//
// With address locks enabled, waiting for the lock is bounded by the same
// ready timeout as the poll. The lock is released by StopAndConfirm, or as
// soon as the process exits, whichever comes first.
func (s *Supervisor) StartAndConfirm(ctx context.Context, svc Service) (*process.Handle, poll.Outcome, error) {
	name := svc.displayName()
	out := poll.Outcome{Address: svc.Address, Desired: netutil.StateBound}
	fail := func(err error) error {
		return &SupervisionError{Op: OpStart, Name: name, Address: svc.Address, Err: err}
	}

	if s.isClosed() {
		return nil, out, fail(ErrSupervisorClosed)
	}
	if err := svc.validate(); err != nil {
		return nil, out, fail(err)
	}

	timeout := svc.ReadyTimeout
	if timeout == 0 {
		timeout = s.cfg.ReadyTimeout
	}

	var lock heldLock
	if s.locks != nil {
		lockCtx, cancel := context.WithTimeout(ctx, timeout)
		fl, err := s.locks.acquire(lockCtx, svc.Address)
		cancel()
		if err != nil {
			return nil, out, fail(err)
		}
		lock = heldLock{addr: svc.Address, fl: fl}
	}

	h, err := process.Launch(process.LaunchConfig{
		Name:         name,
		Path:         svc.Path,
		Args:         svc.Args,
		Env:          append(slices.Clone(s.cfg.Env), svc.Env...),
		Dir:          svc.Dir,
		Output:       s.cfg.Output,
		LogDir:       s.cfg.LogDir,
		ProcessGroup: s.cfg.ProcessGroup,
		Logger:       Logger(),
	})
	if err != nil {
		s.releaseOwnedLock(lock)
		return nil, out, fail(err)
	}

	if !s.track(h, lock) {
		s.terminate(h)
		s.releaseOwnedLock(lock)
		return nil, out, fail(ErrSupervisorClosed)
	}
	if lock.fl != nil {
		go s.releaseLockOnExit(h)
	}
	req := poll.Request{
		Name:     name,
		Address:  svc.Address,
		Desired:  netutil.StateBound,
		Interval: s.cfg.PollInterval,
		Timeout:  timeout,
	}
	if s.cfg.AbortOnExit {
		req.Exited = h.Exited()
	}

	out, err = s.poller.PollUntil(ctx, req)
	if err != nil {
		Logger().Warn("service did not become ready",
			"service", name, "address", svc.Address.String(),
			"attempts", out.Attempts, "elapsed", out.Elapsed, "error", err)
		return h, out, fail(err)
	}

	Logger().Info("service ready",
		"service", name, "address", svc.Address.String(), "pid", h.PID(),
		"attempts", out.Attempts, "elapsed", out.Elapsed)
	return h, out, nil
}

// StopAndConfirm terminates p and polls addr until it is unbound.
// releaseTimeout falls back to SupervisorConfig.ReleaseTimeout when zero.
//
// It works on processes that have already exited, in which case termination
// is a no-op and only the poll runs. A nil p skips termination entirely.
// The address lock taken for p is released once polling ends, unless p's
// exit already released it. With a nil p the lock held for addr, if any, is
// released instead.
func (s *Supervisor) StopAndConfirm(ctx context.Context, p Terminator, addr netutil.Address, releaseTimeout time.Duration) (poll.Outcome, error) {
	name := addr.String()
	if p != nil {
		name = p.Name()
	}
	out := poll.Outcome{Address: addr, Desired: netutil.StateUnbound}
	fail := func(err error) error {
		return &SupervisionError{Op: OpStop, Name: name, Address: addr, Err: err}
	}

	if s.isClosed() {
		return out, fail(ErrSupervisorClosed)
	}
	if releaseTimeout < 0 {
		return out, fail(fmt.Errorf("release timeout must not be negative, got %s", releaseTimeout))
	}
	if releaseTimeout == 0 {
		releaseTimeout = s.cfg.ReleaseTimeout
	}

	var termErr error
	if p != nil {
		termErr = p.Terminate(s.cfg.TerminateGracePeriod)
		s.untrack(p.ID())
		if termErr != nil {
			Logger().Warn("terminate did not confirm exit", "service", name, "error", termErr)
		}
	}

	out, err := s.poller.PollUntil(ctx, poll.Request{
		Name:     name,
		Address:  addr,
		Desired:  netutil.StateUnbound,
		Interval: s.cfg.PollInterval,
		Timeout:  releaseTimeout,
	})
	if p != nil {
		s.releaseHandleLock(p.ID())
	} else {
		s.releaseLock(addr)
	}

	if err := errors.Join(termErr, err); err != nil {
		return out, fail(err)
	}
	Logger().Info("service address released",
		"service", name, "address", addr.String(),
		"attempts", out.Attempts, "elapsed", out.Elapsed)
	return out, nil
}

// StartAllAndConfirm starts every service concurrently and waits until all
// of them are bound. The first failure cancels the polls still running.
//
// One StartResult is returned per service, in input order, including the
// handles of services that launched. The returned error is the first
// failure; every failure is also recorded in its StartResult.
func (s *Supervisor) StartAllAndConfirm(ctx context.Context, svcs []Service) ([]StartResult, error) {
	results := make([]StartResult, len(svcs))
	g, gctx := errgroup.WithContext(ctx)
	for i, svc := range svcs {
		g.Go(func() error {
			h, out, err := s.StartAndConfirm(gctx, svc)
			results[i] = StartResult{Service: svc, Handle: h, Outcome: out, Err: err}
			return err
		})
	}
	err := g.Wait()
	return results, err
}

// AwaitBound polls addr until it is bound or timeout elapses. A zero timeout
// uses SupervisorConfig.ReadyTimeout.
func (s *Supervisor) AwaitBound(ctx context.Context, addr netutil.Address, timeout time.Duration) (poll.Outcome, error) {
	return s.await(ctx, addr, netutil.StateBound, timeout)
}

// AwaitUnbound polls addr until it is unbound or timeout elapses. A zero
// timeout uses SupervisorConfig.ReleaseTimeout.
func (s *Supervisor) AwaitUnbound(ctx context.Context, addr netutil.Address, timeout time.Duration) (poll.Outcome, error) {
	return s.await(ctx, addr, netutil.StateUnbound, timeout)
}

func (s *Supervisor) await(ctx context.Context, addr netutil.Address, desired netutil.State, timeout time.Duration) (poll.Outcome, error) {
	if s.isClosed() {
		return poll.Outcome{Address: addr, Desired: desired}, ErrSupervisorClosed
	}
	return s.poller.PollUntil(ctx, s.pollRequest(addr, desired, timeout))
}

// pollRequest builds a request for addr. A zero timeout falls back to the
// configured ready timeout when waiting for Bound and to the release timeout
// otherwise.
func (s *Supervisor) pollRequest(addr netutil.Address, desired netutil.State, timeout time.Duration) poll.Request {
	if timeout == 0 {
		timeout = s.cfg.ReleaseTimeout
		if desired == netutil.StateBound {
			timeout = s.cfg.ReadyTimeout
		}
	}
	return poll.Request{
		Address:  addr,
		Desired:  desired,
		Interval: s.cfg.PollInterval,
		Timeout:  timeout,
	}
}

// StartPoll begins polling addr for desired in the background and returns the
// running session. Timeouts follow AwaitBound and AwaitUnbound. After Close
// the session is already finished with ErrSupervisorClosed.
func (s *Supervisor) StartPoll(ctx context.Context, addr netutil.Address, desired netutil.State, timeout time.Duration) *poll.Session {
	if s.isClosed() {
		return poll.Finished(poll.Outcome{Address: addr, Desired: desired}, ErrSupervisorClosed)
	}
	return s.poller.Start(ctx, s.pollRequest(addr, desired, timeout))
}

// Probe checks the bind state of addr once. After Close the result is
// inconclusive with ErrSupervisorClosed.
func (s *Supervisor) Probe(ctx context.Context, addr netutil.Address) netutil.ProbeResult {
	if s.isClosed() {
		return netutil.ProbeResult{State: netutil.StateInconclusive, Err: ErrSupervisorClosed}
	}
	return s.prober.Probe(ctx, addr)
}

// AllocateAddress returns a free loopback address reserved for this
// supervisor. Release it with ReleaseAddress once the service is gone.
func (s *Supervisor) AllocateAddress() (netutil.Address, error) {
	if s.isClosed() {
		return netutil.Address{}, ErrSupervisorClosed
	}
	return s.ports.AllocateAddress(netutil.LoopbackHost)
}

// ReleaseAddress returns an address obtained from AllocateAddress. It has no
// error to report and stays usable after Close.
func (s *Supervisor) ReleaseAddress(addr netutil.Address) {
	s.ports.Release(addr.Port)
}

// Close terminates processes started by this supervisor that are still
// running, stops the worker pool and releases address locks. Safe to call
// multiple times; only the first call does any work.
func (s *Supervisor) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	handles := make([]*process.Handle, 0, len(s.handles))
	for _, h := range s.handles {
		handles = append(handles, h)
	}
	clear(s.handles)
	clear(s.heldLocks)
	s.mu.Unlock()

	// Stop leftovers in parallel so shutdown costs one grace period, not N.
	var wg sync.WaitGroup
	for _, h := range handles {
		if !h.IsAlive() {
			continue
		}
		Logger().Warn("terminating process that was never stopped", "service", h.Name(), "pid", h.PID())
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.terminate(h)
		}()
	}
	wg.Wait()

	s.pool.Close()
	if s.locks != nil {
		s.locks.releaseAll()
	}
	Logger().Debug("supervisor closed")
}

// terminate stops h and logs failures. Used on cleanup paths where the error
// has nowhere to go.
func (s *Supervisor) terminate(h *process.Handle) {
	if err := h.Terminate(s.cfg.TerminateGracePeriod); err != nil {
		Logger().Warn("failed to terminate process", "service", h.Name(), "pid", h.PID(), "error", err)
	}
}

func (s *Supervisor) releaseLock(addr netutil.Address) {
	if s.locks != nil {
		s.locks.release(addr)
	}
}

func (s *Supervisor) releaseOwnedLock(lock heldLock) {
	if s.locks != nil {
		s.locks.releaseOwned(lock.addr, lock.fl)
	}
}
