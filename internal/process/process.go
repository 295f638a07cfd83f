package process

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// LogFiles manages stdout/stderr file handles for a captured process.
type LogFiles struct {
	stdoutFile *os.File
	stderrFile *os.File
	dataDir    string
	stdoutName string // e.g., "webserver-1a2b3c4d-stdout.log"
	stderrName string // e.g., "webserver-1a2b3c4d-stderr.log"
}

// create creates stdout and stderr log files.
// Both files are assigned to the struct only after both creates succeed.
func (l *LogFiles) create() error {
	stdoutFile, err := os.Create(l.StdoutPath())
	if err != nil {
		return fmt.Errorf("create stdout log: %w", err)
	}
	stderrFile, err := os.Create(l.StderrPath())
	if err != nil {
		_ = stdoutFile.Close()
		return fmt.Errorf("create stderr log: %w", err)
	}
	l.stdoutFile = stdoutFile
	l.stderrFile = stderrFile
	return nil
}

// Close closes both log file handles and nils them to prevent double-close.
func (l *LogFiles) Close() {
	if l.stdoutFile != nil {
		_ = l.stdoutFile.Close()
		l.stdoutFile = nil
	}
	if l.stderrFile != nil {
		_ = l.stderrFile.Close()
		l.stderrFile = nil
	}
}

// StdoutPath returns the absolute path to the stdout log file.
func (l *LogFiles) StdoutPath() string {
	return filepath.Join(l.dataDir, l.stdoutName)
}

// StderrPath returns the absolute path to the stderr log file.
func (l *LogFiles) StderrPath() string {
	return filepath.Join(l.dataDir, l.stderrName)
}

// NewLogFiles creates and initializes log files for a process.
// The prefix is used to generate log file names (e.g., "web-1a2b" -> "web-1a2b-stdout.log").
func NewLogFiles(dataDir, prefix string) (LogFiles, error) {
	l := LogFiles{
		dataDir:    dataDir,
		stdoutName: prefix + "-stdout.log",
		stderrName: prefix + "-stderr.log",
	}
	if err := l.create(); err != nil {
		return LogFiles{}, err
	}
	return l, nil
}

// DefaultGracePeriod is the time Terminate callers typically allow between
// SIGTERM and SIGKILL.
const DefaultGracePeriod = 5 * time.Second

// killDrainTimeout is the hard upper bound for waiting on the reaper after
// SIGKILL has been sent (or after signaling failed because the process had
// already exited). SIGKILL cannot be caught, so this only fires if cmd.Wait
// is stuck on I/O held open by a grandchild.
const killDrainTimeout = 10 * time.Second

// drainExited waits for the exited channel with timeout as a hard upper
// bound. It reports whether the channel closed in time.
func drainExited(exited <-chan struct{}, timeout time.Duration) bool {
	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case <-exited:
		return true
	case <-t.C:
		return false
	}
}

// terminate implements the SIGTERM-then-SIGKILL shutdown sequence against a
// process whose reaper goroutine closes exited.
//
// Shutdown flow:
//  1. Send SIGTERM (to the process group when group is set).
//  2. Wait up to grace for the reaper.
//  3. Send SIGKILL and drain for at most killDrainTimeout.
//
// Worst-case blocking duration is grace + killDrainTimeout.
func terminate(cmd *exec.Cmd, exited <-chan struct{}, grace time.Duration, group bool, name string) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}

	if err := signalTerminate(cmd, group); err != nil {
		// Signal delivery fails once the process is gone; confirm via the
		// reaper rather than trusting the error.
		if drainExited(exited, killDrainTimeout) {
			return nil
		}
		return fmt.Errorf("%s: timed out draining process after signal failure: %w", name, err)
	}

	if grace > 0 && drainExited(exited, grace) {
		return nil
	}

	// Kill after exit is harmless: it returns "process already finished",
	// which is discarded.
	_ = signalKill(cmd, group)
	if !drainExited(exited, killDrainTimeout) {
		return fmt.Errorf("%s: timed out waiting for process to exit after SIGKILL", name)
	}
	return nil
}
