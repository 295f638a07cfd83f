//go:build integration

// Package testutil holds shared setup for the procenv integration tests.
package testutil

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/giantswarm/procenv"
	"github.com/giantswarm/procenv/internal/testproc"
)

// FixedAddr is the listen address used by the fixed-port scenarios.
const FixedAddr = "127.0.0.1:9999"

// SetupTestLogging configures slog based on the PROCENV_LOG_LEVEL environment
// variable. This only affects test runs; the library itself inherits the
// application's logging config.
func SetupTestLogging() {
	levelStr := os.Getenv("PROCENV_LOG_LEVEL")
	if levelStr == "" {
		levelStr = "INFO"
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(levelStr)); err != nil {
		level = slog.LevelInfo
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))

	procenv.SetLogger(slog.Default().With("component", "procenv"))
}

// LockDir returns the address lock directory shared by every integration
// test binary, so packages run in parallel by go test take turns on
// FixedAddr.
func LockDir() string {
	return filepath.Join(os.TempDir(), "procenv-test-locks")
}

// MustParseAddress parses s or fails the test.
func MustParseAddress(t *testing.T, s string) procenv.Address {
	t.Helper()

	addr, err := procenv.ParseAddress(s)
	if err != nil {
		t.Fatalf("parse address %q: %v", s, err)
	}
	return addr
}

// HelperService returns a Service that runs the test binary in helper mode.
// The binary's TestMain must call testproc.RunIfRequested.
func HelperService(t *testing.T, name string, addr procenv.Address, b testproc.Behavior) procenv.Service {
	t.Helper()

	b.Addr = addr.String()
	path, env, err := testproc.Command(b)
	if err != nil {
		t.Fatalf("helper command: %v", err)
	}
	return procenv.Service{Name: name, Path: path, Env: env, Address: addr}
}

// RunTestMain sets up signal handling for graceful shutdown, runs all tests,
// then closes the supervisor so no child outlives the test binary. Returns
// the exit code.
func RunTestMain(m *testing.M, sup procenv.Supervisor) int {
	sigCh := make(chan os.Signal, 1)
	done := make(chan struct{})
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			signal.Stop(sigCh) // Restore default handler so a second signal force-kills
			fmt.Fprintf(os.Stderr, "\nReceived %s, shutting down...\n", sig)
			sup.Close()
			os.Exit(1)
		case <-done:
			return
		}
	}()

	code := m.Run()

	signal.Stop(sigCh)
	close(done)
	sup.Close()

	return code
}
