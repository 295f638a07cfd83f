package procenv

import "time"

// ConfigSnapshot holds a copy of supervisorConfig fields for test assertions.
// Exported only via export_test.go so that the _test package can verify
// option closures actually mutate the config without accessing internals.
type ConfigSnapshot struct {
	PollInterval         time.Duration
	ProbeTimeout         time.Duration
	ReadyTimeout         time.Duration
	ReleaseTimeout       time.Duration
	TerminateGracePeriod time.Duration
	WorkerPoolSize       int
	Output               OutputMode
	LogDir               string
	LockDir              string
	Env                  []string
	AbortOnExit          bool
	ProcessGroup         bool
}

// ApplyOptionsForTesting creates a default supervisorConfig, applies the
// given options, and returns a ConfigSnapshot of the result without
// starting a Supervisor.
func ApplyOptionsForTesting(opts ...Option) ConfigSnapshot {
	cfg := defaultSupervisorConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return ConfigSnapshot{
		PollInterval:         cfg.PollInterval,
		ProbeTimeout:         cfg.ProbeTimeout,
		ReadyTimeout:         cfg.ReadyTimeout,
		ReleaseTimeout:       cfg.ReleaseTimeout,
		TerminateGracePeriod: cfg.TerminateGracePeriod,
		WorkerPoolSize:       cfg.WorkerPoolSize,
		Output:               cfg.Output,
		LogDir:               cfg.LogDir,
		LockDir:              cfg.LockDir,
		Env:                  cfg.Env,
		AbortOnExit:          cfg.AbortOnExit,
		ProcessGroup:         cfg.ProcessGroup,
	}
}
