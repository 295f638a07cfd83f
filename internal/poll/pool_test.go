package poll

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewPool_PanicsOnInvalidSize(t *testing.T) {
	t.Parallel()

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for size 0")
		}
	}()
	NewPool(0, nil)
}

func TestPool_BoundsConcurrency(t *testing.T) {
	t.Parallel()

	const size = 2
	p := NewPool(size, nil)
	t.Cleanup(p.Close)

	var running, peak atomic.Int32
	release := make(chan struct{})
	var wg sync.WaitGroup

	for range 2 * size {
		wg.Add(1)
		go func() {
			err := p.Submit(context.Background(), func(context.Context) {
				defer wg.Done()
				n := running.Add(1)
				for {
					old := peak.Load()
					if n <= old || peak.CompareAndSwap(old, n) {
						break
					}
				}
				<-release
				running.Add(-1)
			})
			if err != nil {
				wg.Done()
				t.Errorf("Submit: %v", err)
			}
		}()
	}

	// Let the first wave occupy every worker before releasing them.
	time.Sleep(100 * time.Millisecond)
	if got := running.Load(); got != size {
		t.Errorf("running = %d, want %d while workers are blocked", got, size)
	}
	close(release)
	wg.Wait()

	if got := peak.Load(); got > size {
		t.Errorf("peak concurrency = %d, want at most %d", got, size)
	}
}

func TestPool_SubmitCanceledWhileFull(t *testing.T) {
	t.Parallel()

	p := NewPool(1, nil)
	t.Cleanup(p.Close)

	block := make(chan struct{})
	defer close(block)
	if err := p.Submit(context.Background(), func(context.Context) { <-block }); err != nil {
		t.Fatalf("first Submit: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := p.Submit(ctx, func(context.Context) { t.Error("task must not run") })
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Submit error = %v, want context.DeadlineExceeded", err)
	}
	if errors.Is(err, ErrPoolClosed) {
		t.Error("a canceled submission must not report the pool as closed")
	}
}

func TestPool_CloseCancelsRunningTasks(t *testing.T) {
	t.Parallel()

	p := NewPool(2, nil)

	started := make(chan struct{})
	var sawCancel atomic.Bool
	if err := p.Submit(context.Background(), func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		sawCancel.Store(true)
	}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	<-started

	done := make(chan struct{})
	go func() {
		p.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not return")
	}
	if !sawCancel.Load() {
		t.Error("Close returned before the running task observed cancellation")
	}

	if err := p.Submit(context.Background(), func(context.Context) {}); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("Submit after Close = %v, want ErrPoolClosed", err)
	}

	// Idempotent.
	p.Close()
}

func TestPool_SubmitterCancelIsolated(t *testing.T) {
	t.Parallel()

	p := NewPool(2, nil)
	t.Cleanup(p.Close)

	ctxA, cancelA := context.WithCancel(context.Background())
	aDone := make(chan struct{})
	bCanceled := make(chan struct{}, 1)
	bRelease := make(chan struct{})

	if err := p.Submit(ctxA, func(ctx context.Context) {
		<-ctx.Done()
		close(aDone)
	}); err != nil {
		t.Fatalf("Submit A: %v", err)
	}
	if err := p.Submit(context.Background(), func(ctx context.Context) {
		select {
		case <-ctx.Done():
			bCanceled <- struct{}{}
		case <-bRelease:
		}
	}); err != nil {
		t.Fatalf("Submit B: %v", err)
	}

	cancelA()
	select {
	case <-aDone:
	case <-time.After(5 * time.Second):
		t.Fatal("task A did not observe its submitter's cancellation")
	}

	select {
	case <-bCanceled:
		t.Fatal("cancelling A's submitter canceled B")
	case <-time.After(50 * time.Millisecond):
	}
	close(bRelease)
}
