package poll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/giantswarm/procenv/internal/netutil"
	"github.com/giantswarm/procenv/internal/sentinel"
)

// Sentinel errors returned by PollUntil for invalid requests and process
// lifecycle conditions. Callers can match these with errors.Is through
// wrapped error chains.
var (
	// ErrIntervalNotPositive indicates a non-positive poll interval.
	ErrIntervalNotPositive = errors.New("interval must be positive")

	// ErrTimeoutNotPositive indicates a non-positive timeout.
	ErrTimeoutNotPositive = errors.New("timeout must be positive")

	// ErrInvalidState indicates a desired state other than bound or unbound.
	ErrInvalidState = errors.New("desired state must be bound or unbound")
)

// ErrPollTimeout is matched by every *TimeoutError.
const ErrPollTimeout = sentinel.Error("address state not reached before deadline")

// ErrProcessExited indicates the supervised process exited while the poller
// was still waiting for its address.
const ErrProcessExited = sentinel.Error("process exited before address reached desired state")

// Prober checks the bind state of an address once. *netutil.Prober is the
// production implementation.
type Prober interface {
	Probe(ctx context.Context, addr netutil.Address) netutil.ProbeResult
}

// Request describes one poll session.
type Request struct {
	Name     string          // For logging (e.g., "webserver"); optional
	Address  netutil.Address // Endpoint to observe
	Desired  netutil.State   // StateBound or StateUnbound
	Interval time.Duration   // Delay between the starts of consecutive attempts
	Timeout  time.Duration   // Overall deadline for the session

	// Exited, if non-nil, aborts the session with ErrProcessExited when
	// closed. Used while waiting for a freshly launched process to bind.
	Exited <-chan struct{}
}

// validate reports every problem with the request at once.
func (r Request) validate() error {
	var errs []error
	if err := r.Address.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("address: %w", err))
	}
	if !r.Desired.IsTarget() {
		errs = append(errs, ErrInvalidState)
	}
	if r.Interval <= 0 {
		errs = append(errs, ErrIntervalNotPositive)
	}
	if r.Timeout <= 0 {
		errs = append(errs, ErrTimeoutNotPositive)
	}
	return errors.Join(errs...)
}

// Outcome summarizes a finished poll session. It is returned for failed
// sessions too, so callers can report how far polling got.
type Outcome struct {
	Address   netutil.Address
	Desired   netutil.State
	Succeeded bool
	Attempts  int
	Elapsed   time.Duration

	// Last is the result of the final completed attempt.
	Last netutil.ProbeResult
}

// TimeoutError reports a poll session that hit its deadline without
// observing the desired state.
type TimeoutError struct {
	Address  netutil.Address
	Desired  netutil.State
	Attempts int
	Elapsed  time.Duration
	Timeout  time.Duration
	LastErr  error // last inconclusive probe error, if any
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("%s did not become %s within %s (%d attempts, %s elapsed)",
		e.Address, e.Desired, e.Timeout, e.Attempts, e.Elapsed.Round(time.Millisecond))
	if e.LastErr != nil {
		msg += ": last probe: " + e.LastErr.Error()
	}
	return msg
}

// Unwrap makes errors.Is(err, ErrPollTimeout) hold.
func (e *TimeoutError) Unwrap() error {
	return ErrPollTimeout
}

// Poller repeatedly probes an address on a shared Pool until it reaches a
// desired state. A Poller is safe for concurrent use; sessions share only the
// pool.
type Poller struct {
	pool   *Pool
	prober Prober
	log    *slog.Logger
}

// New returns a Poller that runs prober on pool. If logger is nil,
// slog.Default() is used. Panics if pool or prober is nil.
func New(pool *Pool, prober Prober, logger *slog.Logger) *Poller {
	if pool == nil {
		panic("procenv: poll.New pool must not be nil")
	}
	if prober == nil {
		panic("procenv: poll.New prober must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{pool: pool, prober: prober, log: logger}
}

// PollUntil blocks until req.Address reaches req.Desired, the deadline
// passes, req.Exited closes, or ctx is canceled.
//
// The first attempt runs immediately, so an address already in the desired
// state succeeds without any wait. Attempts are strictly sequential: each
// one is submitted to the pool and awaited before the next is scheduled.
// Inconclusive probes are logged and retried.
//
// On deadline the error is a *TimeoutError. On cancellation it wraps
// ctx.Err(). The returned Outcome is always populated.
func (p *Poller) PollUntil(ctx context.Context, req Request) (Outcome, error) {
	out := Outcome{Address: req.Address, Desired: req.Desired}
	if err := req.validate(); err != nil {
		return out, fmt.Errorf("poll %s: %w", req.Address, err)
	}

	log := p.log.With("address", req.Address.String(), "desired", req.Desired.String())
	if req.Name != "" {
		log = log.With("name", req.Name)
	}

	start := time.Now()
	// attempts and last are safe without synchronization because
	// PollUntilContextTimeout invokes the condition function sequentially.
	attempts := 0
	var last netutil.ProbeResult
	err := wait.PollUntilContextTimeout(ctx, req.Interval, req.Timeout, true,
		func(pollCtx context.Context) (bool, error) {
			// Abort early when the process is gone; it can no longer
			// change the address state.
			if req.Exited != nil {
				select {
				case <-req.Exited:
					return false, ErrProcessExited
				default:
				}
			}

			res, ok, err := p.probeOnPool(pollCtx, req.Address)
			if err != nil {
				return false, err
			}
			if !ok {
				// Session ended while waiting; the loop sees ctx done.
				return false, nil
			}
			if pollCtx.Err() != nil && res.State != req.Desired {
				// Cut off by the session deadline. Its i/o timeout says
				// nothing about the address, so it is not an attempt.
				return false, nil
			}
			attempts++
			last = res

			if res.State == req.Desired {
				log.Debug("address reached desired state", "attempt", attempts)
				return true, nil
			}
			if res.State == netutil.StateInconclusive {
				log.Debug("probe inconclusive", "attempt", attempts, "error", res.Err)
			} else {
				log.Debug("address not yet in desired state", "attempt", attempts, "state", res.State.String())
			}
			return false, nil
		})

	out.Attempts = attempts
	out.Elapsed = time.Since(start)
	out.Last = last

	switch {
	case err == nil:
		out.Succeeded = true
		return out, nil
	case errors.Is(err, ErrProcessExited):
		return out, fmt.Errorf("poll %s for %s after %d attempts: %w", req.Address, req.Desired, attempts, err)
	case ctx.Err() != nil:
		return out, fmt.Errorf("poll %s for %s canceled after %d attempts: %w", req.Address, req.Desired, attempts, ctx.Err())
	case wait.Interrupted(err):
		log.Debug("poll deadline reached", "attempts", attempts, "elapsed", out.Elapsed)
		return out, &TimeoutError{
			Address:  req.Address,
			Desired:  req.Desired,
			Attempts: attempts,
			Elapsed:  out.Elapsed,
			Timeout:  req.Timeout,
			LastErr:  last.Err,
		}
	default:
		return out, fmt.Errorf("poll %s for %s: %w", req.Address, req.Desired, err)
	}
}

// probeOnPool runs one probe on the worker pool and waits for it. ok is false
// when ctx ended before a result arrived; err is non-nil only when the pool
// is closed.
func (p *Poller) probeOnPool(ctx context.Context, addr netutil.Address) (netutil.ProbeResult, bool, error) {
	results := make(chan netutil.ProbeResult, 1)
	if err := p.pool.Submit(ctx, func(taskCtx context.Context) {
		results <- p.prober.Probe(taskCtx, addr)
	}); err != nil {
		if errors.Is(err, ErrPoolClosed) {
			return netutil.ProbeResult{}, false, err
		}
		return netutil.ProbeResult{}, false, nil
	}

	select {
	case res := <-results:
		return res, true, nil
	case <-ctx.Done():
		// The task context derives from ctx, so the probe aborts promptly
		// and its send lands in the buffered channel.
		return netutil.ProbeResult{}, false, nil
	}
}

// Session is a poll running in the background.
type Session struct {
	done    chan struct{}
	cancel  context.CancelFunc
	outcome Outcome
	err     error
}

// Start runs PollUntil in a new goroutine and returns immediately.
func (p *Poller) Start(ctx context.Context, req Request) *Session {
	sctx, cancel := context.WithCancel(ctx)
	s := &Session{done: make(chan struct{}), cancel: cancel}
	go func() {
		defer close(s.done)
		defer cancel()
		s.outcome, s.err = p.PollUntil(sctx, req)
	}()
	return s
}

// Finished returns a Session that has already ended with out and err. It
// lets callers reject a request up front while keeping the Session API.
func Finished(out Outcome, err error) *Session {
	s := &Session{done: make(chan struct{}), cancel: func() {}, outcome: out, err: err}
	close(s.done)
	return s
}

// Done is closed when the session has finished.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Cancel stops the session. No probe attempts start after Cancel returns
// except one already being scheduled.
func (s *Session) Cancel() {
	s.cancel()
}

// Wait blocks until the session finishes and returns its result.
func (s *Session) Wait() (Outcome, error) {
	<-s.done
	return s.outcome, s.err
}
