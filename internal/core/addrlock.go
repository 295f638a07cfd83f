package core

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/giantswarm/procenv/internal/fileutil"
	"github.com/giantswarm/procenv/internal/netutil"
)

// lockRetryInterval is the interval between consecutive attempts to acquire
// an address lock held by another supervisor.
const lockRetryInterval = 50 * time.Millisecond

// addressLocks serializes use of a listen address across processes. Test
// binaries that run in parallel and supervise a service on the same fixed
// port take turns instead of racing for the bind.
type addressLocks struct {
	dir string
	log *slog.Logger

	mu   sync.Mutex
	held map[netutil.Address]*flock.Flock
}

func newAddressLocks(dir string, log *slog.Logger) *addressLocks {
	return &addressLocks{dir: dir, log: log, held: make(map[netutil.Address]*flock.Flock)}
}

// lockPath returns the lock file for addr. Hosts are sanitized so IPv6
// literals produce valid file names.
func (l *addressLocks) lockPath(addr netutil.Address) string {
	host := strings.Map(func(r rune) rune {
		switch r {
		case ':', '/', '\\', '%':
			return '_'
		}
		return r
	}, addr.Host)
	return filepath.Join(l.dir, "procenv-"+host+"-"+strconv.Itoa(addr.Port)+".lock")
}

// acquire blocks until the lock for addr is held or ctx is done, and returns
// the held lock. Acquiring an address this supervisor already holds waits
// for its release, like any other holder.
func (l *addressLocks) acquire(ctx context.Context, addr netutil.Address) (*flock.Flock, error) {
	if err := fileutil.EnsureDir(l.dir); err != nil {
		return nil, fmt.Errorf("prepare lock dir: %w", err)
	}
	path := l.lockPath(addr)
	fl := flock.New(path)

	locked, err := fl.TryLockContext(ctx, lockRetryInterval)
	if err != nil {
		return nil, fmt.Errorf("acquire address lock %s: %w", path, err)
	}
	if !locked {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("acquire address lock %s: %w", path, ctx.Err())
		}
		return nil, fmt.Errorf("acquire address lock %s: lock not acquired", path)
	}

	l.mu.Lock()
	l.held[addr] = fl
	l.mu.Unlock()
	l.log.Debug("address lock acquired", "address", addr.String(), "path", path)
	return fl, nil
}

// release drops the lock for addr if this supervisor holds it. The lock file
// stays on disk; removing it could invalidate a lock another process has
// just taken on the same path.
func (l *addressLocks) release(addr netutil.Address) {
	l.releaseIf(addr, nil)
}

// releaseOwned drops the lock for addr only while fl is the current holder.
// A lock taken again after fl was released is left alone.
func (l *addressLocks) releaseOwned(addr netutil.Address, fl *flock.Flock) {
	if fl == nil {
		return
	}
	l.releaseIf(addr, fl)
}

// releaseIf drops the lock for addr; a non-nil want must match the holder.
func (l *addressLocks) releaseIf(addr netutil.Address, want *flock.Flock) {
	l.mu.Lock()
	fl, ok := l.held[addr]
	if ok && want != nil && fl != want {
		ok = false
	}
	if ok {
		delete(l.held, addr)
	}
	l.mu.Unlock()

	if !ok {
		return
	}
	if err := fl.Close(); err != nil {
		l.log.Debug("failed to release address lock", "path", fl.Path(), "err", err)
		return
	}
	l.log.Debug("address lock released", "address", addr.String())
}

// releaseAll drops every held lock.
func (l *addressLocks) releaseAll() {
	l.mu.Lock()
	addrs := make([]netutil.Address, 0, len(l.held))
	for addr := range l.held {
		addrs = append(addrs, addr)
	}
	l.mu.Unlock()

	for _, addr := range addrs {
		l.release(addr)
	}
}

// isHeld reports whether this supervisor holds the lock for addr.
func (l *addressLocks) isHeld(addr netutil.Address) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.held[addr]
	return ok
}
