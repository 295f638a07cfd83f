package poll

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/giantswarm/procenv/internal/sentinel"
)

// ErrPoolClosed is returned by Submit after Close has been called.
const ErrPoolClosed = sentinel.Error("worker pool is closed")

// Pool runs probe attempts on a bounded set of workers shared by every poll
// session of a Supervisor. At most size tasks run at once; further
// submissions wait for a free worker or for their context to end.
//
// It is safe for concurrent use by multiple goroutines.
type Pool struct {
	sem  *semaphore.Weighted
	size int
	log  *slog.Logger

	// ctx is canceled by Close; every running task observes it.
	ctx    context.Context
	cancel context.CancelFunc

	// mu protects closed and orders wg.Add against Close's wg.Wait.
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewPool creates a Pool with size workers. If logger is nil, slog.Default()
// is used. Panics if size < 1.
func NewPool(size int, logger *slog.Logger) *Pool {
	if size < 1 {
		panic(fmt.Sprintf("procenv: NewPool size must be at least 1, got %d", size))
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		sem:    semaphore.NewWeighted(int64(size)),
		size:   size,
		log:    logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return p.size
}

// Submit schedules task on a worker. It blocks until a worker is free, ctx
// ends, or the pool closes. The task's context is canceled when either ctx
// or the pool is done, so cancelling a session releases its in-flight work
// without touching other sessions.
//
// Submit returns once the task has been handed to a worker; it does not wait
// for the task to finish.
func (p *Pool) Submit(ctx context.Context, task func(ctx context.Context)) error {
	taskCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(p.ctx, cancel)

	if err := p.sem.Acquire(taskCtx, 1); err != nil {
		stop()
		cancel()
		if p.ctx.Err() != nil {
			return ErrPoolClosed
		}
		return fmt.Errorf("wait for worker: %w", err)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.sem.Release(1)
		stop()
		cancel()
		return ErrPoolClosed
	}
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()
		defer p.sem.Release(1)
		defer cancel()
		defer stop()
		task(taskCtx)
	}()
	return nil
}

// Close cancels every running task and waits for the workers to return.
// Subsequent Submit calls return ErrPoolClosed. Safe to call multiple times.
func (p *Pool) Close() {
	p.mu.Lock()
	already := p.closed
	p.closed = true
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()
	if !already {
		p.log.Debug("worker pool closed", "size", p.size)
	}
}
