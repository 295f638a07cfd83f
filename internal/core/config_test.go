package core

import (
	"strings"
	"testing"
	"time"

	"github.com/giantswarm/procenv/internal/process"
)

func validConfig() SupervisorConfig {
	return SupervisorConfig{
		PollInterval:         200 * time.Millisecond,
		ProbeTimeout:         500 * time.Millisecond,
		ReadyTimeout:         30 * time.Second,
		ReleaseTimeout:       30 * time.Second,
		TerminateGracePeriod: 5 * time.Second,
		WorkerPoolSize:       MinWorkerPoolSize,
		AbortOnExit:          true,
	}
}

func TestSupervisorConfig_Validate(t *testing.T) {
	t.Parallel()

	t.Run("valid config returns nil", func(t *testing.T) {
		t.Parallel()
		if err := validConfig().Validate(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	tests := map[string]struct {
		modify       func(c *SupervisorConfig)
		wantContains string
	}{
		"zero poll interval": {
			modify:       func(c *SupervisorConfig) { c.PollInterval = 0 },
			wantContains: "poll interval",
		},
		"negative probe timeout": {
			modify:       func(c *SupervisorConfig) { c.ProbeTimeout = -time.Second },
			wantContains: "probe timeout",
		},
		"zero ready timeout": {
			modify:       func(c *SupervisorConfig) { c.ReadyTimeout = 0 },
			wantContains: "ready timeout",
		},
		"zero release timeout": {
			modify:       func(c *SupervisorConfig) { c.ReleaseTimeout = 0 },
			wantContains: "release timeout",
		},
		"zero grace period": {
			modify:       func(c *SupervisorConfig) { c.TerminateGracePeriod = 0 },
			wantContains: "grace period",
		},
		"pool of one": {
			modify:       func(c *SupervisorConfig) { c.WorkerPoolSize = 1 },
			wantContains: "worker pool size must be at least 2",
		},
		"unknown output mode": {
			modify:       func(c *SupervisorConfig) { c.Output = process.OutputMode(42) },
			wantContains: "invalid output mode",
		},
		"capture without log dir": {
			modify:       func(c *SupervisorConfig) { c.Output = process.OutputCapture },
			wantContains: "log directory",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tc.modify(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.wantContains) {
				t.Errorf("error %q does not contain %q", err, tc.wantContains)
			}
		})
	}

	t.Run("reports every violation", func(t *testing.T) {
		t.Parallel()
		cfg := validConfig()
		cfg.PollInterval = 0
		cfg.WorkerPoolSize = 0
		err := cfg.Validate()
		if err == nil {
			t.Fatal("expected error, got nil")
		}
		for _, want := range []string{"poll interval", "worker pool size"} {
			if !strings.Contains(err.Error(), want) {
				t.Errorf("joined error %q is missing %q", err, want)
			}
		}
	})
}

func TestNewSupervisorWithConfig_PanicsOnInvalidConfig(t *testing.T) {
	t.Parallel()

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected panic for invalid config")
		}
		if msg, ok := r.(string); !ok || !strings.Contains(msg, "invalid supervisor config") {
			t.Errorf("panic = %v", r)
		}
	}()
	cfg := validConfig()
	cfg.PollInterval = 0
	NewSupervisorWithConfig(cfg)
}

func TestSupervisor_ConfigIsCopy(t *testing.T) {
	t.Parallel()

	env := []string{"A=1"}
	cfg := validConfig()
	cfg.Env = env
	s := NewSupervisorWithConfig(cfg)
	t.Cleanup(s.Close)

	env[0] = "A=mutated"
	got := s.Config()
	if got.Env[0] != "A=1" {
		t.Errorf("supervisor observed caller's slice mutation: %v", got.Env)
	}
	got.Env[0] = "B=2"
	if s.Config().Env[0] != "A=1" {
		t.Error("Config must return a copy of Env")
	}
}
