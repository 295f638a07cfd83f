package procenv

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/giantswarm/procenv/internal/core"
)

// requirePositive panics if v <= 0 with a descriptive message.
func requirePositive[T int | time.Duration](name string, v T) {
	if v <= 0 {
		panic(fmt.Sprintf("procenv: %s must be greater than 0, got %v", name, v))
	}
}

// requireNonEmpty panics if s is empty with a descriptive message.
func requireNonEmpty(name, s string) {
	if s == "" {
		panic(fmt.Sprintf("procenv: %s must not be empty", name))
	}
}

// Option configures a Supervisor during construction via New.
// Each With* function returns an Option that sets a specific field.
//
// Several With* functions panic on invalid input (non-positive durations,
// empty paths, malformed environment entries). Option values are typically
// constants, so an invalid value is a programmer error; the pattern mirrors
// [regexp.MustCompile].
type Option func(*supervisorConfig)

// WithPollInterval sets the delay between the starts of consecutive probe
// attempts.
//
// Default: 200ms.
//
// Panics if d <= 0.
func WithPollInterval(d time.Duration) Option {
	requirePositive("poll interval", d)
	return func(c *supervisorConfig) {
		c.PollInterval = d
	}
}

// WithProbeTimeout sets the bound on a single connection attempt.
//
// Default: 500ms.
//
// Panics if d <= 0.
func WithProbeTimeout(d time.Duration) Option {
	requirePositive("probe timeout", d)
	return func(c *supervisorConfig) {
		c.ProbeTimeout = d
	}
}

// WithReadyTimeout sets how long StartAndConfirm waits for a service to
// bind when the Service has no ReadyTimeout of its own.
//
// Default: 30 seconds.
//
// Panics if d <= 0.
func WithReadyTimeout(d time.Duration) Option {
	requirePositive("ready timeout", d)
	return func(c *supervisorConfig) {
		c.ReadyTimeout = d
	}
}

// WithReleaseTimeout sets how long StopAndConfirm waits for an address to
// be released when the caller passes zero.
//
// Default: 30 seconds.
//
// Panics if d <= 0.
func WithReleaseTimeout(d time.Duration) Option {
	requirePositive("release timeout", d)
	return func(c *supervisorConfig) {
		c.ReleaseTimeout = d
	}
}

// WithTerminateGracePeriod sets the time between SIGTERM and SIGKILL.
//
// Default: 5 seconds.
//
// Panics if d <= 0.
func WithTerminateGracePeriod(d time.Duration) Option {
	requirePositive("terminate grace period", d)
	return func(c *supervisorConfig) {
		c.TerminateGracePeriod = d
	}
}

// WithWorkerPoolSize sets the number of probe workers shared by all poll
// sessions. Size it to the number of addresses observed at the same time.
//
// Default: 2.
//
// Panics if size < 2.
func WithWorkerPoolSize(size int) Option {
	if size < core.MinWorkerPoolSize {
		panic(fmt.Sprintf("procenv: worker pool size must be at least %d, got %d", core.MinWorkerPoolSize, size))
	}
	return func(c *supervisorConfig) {
		c.WorkerPoolSize = size
	}
}

// WithOutput selects what happens to child stdout and stderr.
// OutputCapture also requires WithLogDir.
//
// Default: OutputDiscard.
//
// Panics if m is not a known mode.
func WithOutput(m OutputMode) Option {
	if !m.IsValid() {
		panic(fmt.Sprintf("procenv: invalid output mode: %v", m))
	}
	return func(c *supervisorConfig) {
		c.Output = m
	}
}

// WithLogDir sets the directory for captured child output. Files are named
// <service>-<id>-stdout.log and <service>-<id>-stderr.log.
//
// Panics if dir is empty.
func WithLogDir(dir string) Option {
	requireNonEmpty("log directory", dir)
	return func(c *supervisorConfig) {
		c.LogDir = dir
	}
}

// WithAddressLockDir enables cross-process address locks. Supervisors in
// different processes that share dir take turns on a listen address: the
// lock is held from launch until StopAndConfirm has confirmed release.
//
// Default: disabled.
//
// Panics if dir is empty.
func WithAddressLockDir(dir string) Option {
	requireNonEmpty("address lock directory", dir)
	return func(c *supervisorConfig) {
		c.LockDir = dir
	}
}

// WithEnv adds KEY=VALUE entries to the environment of every launched
// process. Repeated calls accumulate.
//
// Panics if an entry has no '=' or an empty key.
func WithEnv(env ...string) Option {
	for _, kv := range env {
		if k, _, ok := strings.Cut(kv, "="); !ok || k == "" {
			panic(fmt.Sprintf("procenv: environment entry must be KEY=VALUE, got %q", kv))
		}
	}
	env = slices.Clone(env)
	return func(c *supervisorConfig) {
		c.Env = append(c.Env, env...)
	}
}

// WithAbortOnExit controls whether StartAndConfirm fails with
// ErrProcessExited as soon as the launched process exits, instead of
// polling until the ready timeout.
//
// Default: true.
func WithAbortOnExit(abort bool) Option {
	return func(c *supervisorConfig) {
		c.AbortOnExit = abort
	}
}

// WithProcessGroup starts each child in its own process group so that
// termination also reaches processes the child spawned. Unix only.
//
// Default: false.
func WithProcessGroup(enabled bool) Option {
	return func(c *supervisorConfig) {
		c.ProcessGroup = enabled
	}
}
