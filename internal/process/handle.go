package process

import (
	"fmt"
	"log/slog"
	"os/exec"
	"slices"
	"sync"
	"time"

	"github.com/giantswarm/procenv/internal/sentinel"
)

// ErrWaitTimeout is returned by WaitForExit when the process is still running
// after the timeout.
const ErrWaitTimeout = sentinel.Error("timed out waiting for process exit")

// Handle owns one launched child process.
//
// The identity fields (ID, PID, Name, Args) are immutable for the lifetime
// of the handle. Exit state is written once by the reaper goroutine before
// Exited is closed, so it is safe to read from any goroutine after that.
//
// A Handle belongs to whoever launched it. Terminate is serialized
// internally, but two owners terminating the same process without
// coordination will race on the shutdown budget.
type Handle struct {
	id           string
	name         string
	args         []string
	pid          int
	processGroup bool
	cmd          *exec.Cmd
	log          *slog.Logger

	exited  chan struct{} // closed after cmd.Wait returns
	waitErr error         // written by the reaper before exited is closed

	// mu serializes Terminate and guards terminated and logFiles.
	mu         sync.Mutex
	terminated bool
	logFiles   LogFiles
}

// newHandle wraps a started command and starts the single reaper goroutine.
func newHandle(id string, cfg LaunchConfig, cmd *exec.Cmd, logFiles LogFiles, log *slog.Logger) *Handle {
	h := &Handle{
		id:           id,
		name:         cfg.Name,
		args:         slices.Clone(cmd.Args),
		pid:          cmd.Process.Pid,
		processGroup: cfg.ProcessGroup,
		cmd:          cmd,
		log:          log,
		exited:       make(chan struct{}),
		logFiles:     logFiles,
	}

	// cmd.Wait must be called exactly once per started process; calling it
	// a second time is undefined behavior and may block indefinitely.
	go func() {
		err := cmd.Wait()
		h.waitErr = err
		close(h.exited)
		code, _ := h.ExitCode()
		h.log.Debug("process exited", "process", h.name, "pid", h.pid, "exit_code", code)
		h.mu.Lock()
		h.logFiles.Close()
		h.mu.Unlock()
	}()
	return h
}

// ID returns the handle's opaque identity.
func (h *Handle) ID() string { return h.id }

// Name returns the name the process was launched with.
func (h *Handle) Name() string { return h.name }

// PID returns the OS process ID.
func (h *Handle) PID() int { return h.pid }

// Args returns a copy of the full command line, including the command path.
func (h *Handle) Args() []string { return slices.Clone(h.args) }

// Exited returns a channel that is closed once the process has exited and
// been reaped. It is safe to select on from any number of goroutines.
func (h *Handle) Exited() <-chan struct{} { return h.exited }

// IsAlive reports whether the process has not yet been reaped. It never blocks.
func (h *Handle) IsAlive() bool {
	select {
	case <-h.exited:
		return false
	default:
		return true
	}
}

// ExitCode returns the process exit code and true once the process has
// exited. A process killed by a signal reports -1.
func (h *Handle) ExitCode() (int, bool) {
	if h.IsAlive() {
		return 0, false
	}
	if h.cmd.ProcessState == nil {
		// Wait failed before the process state was collected.
		return -1, true
	}
	return h.cmd.ProcessState.ExitCode(), true
}

// WaitErr returns the error from cmd.Wait, or nil while the process runs or
// when it exited with status zero.
func (h *Handle) WaitErr() error {
	if h.IsAlive() {
		return nil
	}
	return h.waitErr
}

// WaitForExit blocks until the process exits or timeout elapses. It returns
// the exit code, or an error wrapping ErrWaitTimeout.
func (h *Handle) WaitForExit(timeout time.Duration) (int, error) {
	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case <-h.exited:
		code, _ := h.ExitCode()
		return code, nil
	case <-t.C:
		return 0, fmt.Errorf("%s (pid %d) after %s: %w", h.name, h.pid, timeout, ErrWaitTimeout)
	}
}

// Terminate stops the process: SIGTERM first, SIGKILL once grace has
// elapsed, then a bounded wait for the reaper. It is a no-op on a process
// that already exited or was already terminated.
//
// The returned error is non-nil only when the exit could not be confirmed;
// signal-induced exit statuses are expected and not reported.
func (h *Handle) Terminate(grace time.Duration) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.terminated {
		return nil
	}
	h.terminated = true

	if !h.IsAlive() {
		return nil
	}

	h.log.Debug("terminating process", "process", h.name, "pid", h.pid, "grace", grace)
	if err := terminate(h.cmd, h.exited, grace, h.processGroup, h.name); err != nil {
		h.log.Warn("process termination failed; process may be orphaned",
			"process", h.name, "pid", h.pid, "error", err)
		return err
	}
	h.logFiles.Close()
	return nil
}

// StdoutPath returns the captured stdout file path, or "" when output is not
// captured.
func (h *Handle) StdoutPath() string {
	if h.logFiles.stdoutName == "" {
		return ""
	}
	return h.logFiles.StdoutPath()
}

// StderrPath returns the captured stderr file path, or "" when output is not
// captured.
func (h *Handle) StderrPath() string {
	if h.logFiles.stderrName == "" {
		return ""
	}
	return h.logFiles.StderrPath()
}
