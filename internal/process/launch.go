package process

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/google/uuid"

	"github.com/giantswarm/procenv/internal/fileutil"
	"github.com/giantswarm/procenv/internal/sentinel"
)

// Launch failure kinds. A *LaunchError matches exactly one of them with
// errors.Is.
const (
	// ErrExecutableNotFound means the command path does not resolve to a file.
	ErrExecutableNotFound = sentinel.Error("executable not found")

	// ErrPermissionDenied means the file exists but cannot be executed.
	ErrPermissionDenied = sentinel.Error("permission denied")

	// ErrSpawnFailed covers every other OS-level failure to create the process.
	ErrSpawnFailed = sentinel.Error("spawn failed")
)

// Configuration errors returned by Launch before anything is spawned.
const (
	// ErrEmptyName is returned when LaunchConfig.Name is empty.
	ErrEmptyName = sentinel.Error("process name must not be empty")

	// ErrEmptyCmdPath is returned when LaunchConfig.Path is empty.
	ErrEmptyCmdPath = sentinel.Error("command path must not be empty")

	// ErrEmptyLogDir is returned when OutputCapture is requested without a LogDir.
	ErrEmptyLogDir = sentinel.Error("log directory must not be empty when capturing output")
)

// OutputMode selects where the child's stdout and stderr go.
type OutputMode int

const (
	// OutputDiscard connects stdout and stderr to the null device.
	OutputDiscard OutputMode = iota

	// OutputInherit shares the parent's stdout and stderr.
	OutputInherit

	// OutputCapture writes stdout and stderr to per-process files in LogDir.
	OutputCapture
)

// String returns the mode name used by flags and logs.
func (m OutputMode) String() string {
	switch m {
	case OutputDiscard:
		return "discard"
	case OutputInherit:
		return "inherit"
	case OutputCapture:
		return "capture"
	default:
		return fmt.Sprintf("OutputMode(%d)", int(m))
	}
}

// IsValid reports whether m is a recognized OutputMode value.
func (m OutputMode) IsValid() bool {
	switch m {
	case OutputDiscard, OutputInherit, OutputCapture:
		return true
	default:
		return false
	}
}

// ParseOutputMode parses the String form of an OutputMode.
func ParseOutputMode(s string) (OutputMode, error) {
	for _, m := range []OutputMode{OutputDiscard, OutputInherit, OutputCapture} {
		if m.String() == s {
			return m, nil
		}
	}
	return OutputDiscard, fmt.Errorf("unknown output mode %q (want discard, inherit or capture)", s)
}

// LaunchConfig describes one child process.
type LaunchConfig struct {
	Name string   // For logging and log file names (e.g., "webserver")
	Path string   // Executable path; bare names are resolved via PATH
	Args []string // Passed verbatim, in order, after Path
	Env  []string // KEY=VALUE entries appended to the parent environment
	Dir  string   // Working directory; empty inherits the parent's

	Output OutputMode
	LogDir string // Required for OutputCapture

	// ProcessGroup places the child in its own process group (unix) so
	// Terminate signals the child and everything it spawned.
	ProcessGroup bool

	// Logger (optional, defaults to slog.Default())
	Logger *slog.Logger
}

// validate checks the fields Launch needs and reports every violation.
func (c LaunchConfig) validate() error {
	var errs []error
	if c.Name == "" {
		errs = append(errs, ErrEmptyName)
	}
	if c.Path == "" {
		errs = append(errs, ErrEmptyCmdPath)
	}
	if !c.Output.IsValid() {
		errs = append(errs, fmt.Errorf("invalid output mode: %v", c.Output))
	}
	if c.Output == OutputCapture && c.LogDir == "" {
		errs = append(errs, ErrEmptyLogDir)
	}
	return errors.Join(errs...)
}

// LaunchError reports why a child process could not be created. Kind is one
// of ErrExecutableNotFound, ErrPermissionDenied or ErrSpawnFailed.
type LaunchError struct {
	Kind sentinel.Error
	Name string
	Path string
	Err  error
}

// Error implements the error interface.
func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch %s (%s): %s: %v", e.Name, e.Path, e.Kind, e.Err)
}

// Unwrap returns the underlying OS error.
func (e *LaunchError) Unwrap() error {
	return e.Err
}

// Is matches the launch failure kind.
func (e *LaunchError) Is(target error) bool {
	k, ok := target.(sentinel.Error)
	return ok && k == e.Kind
}

// classifyStartErr maps an exec.Cmd.Start error onto a launch failure kind.
func classifyStartErr(err error) sentinel.Error {
	switch {
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, fs.ErrNotExist):
		return ErrExecutableNotFound
	case errors.Is(err, fs.ErrPermission):
		return ErrPermissionDenied
	default:
		return ErrSpawnFailed
	}
}

// Launch starts the configured command and returns a Handle that owns it.
// Launch never retries; the first failure is returned as a *LaunchError.
//
// A single goroutine calling cmd.Wait is started here so that exactly one
// Wait call is made per process. Its completion closes Handle.Exited.
func Launch(cfg LaunchConfig) (*Handle, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid launch config: %w", err)
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	id := uuid.NewString()
	cmd := exec.Command(cfg.Path, cfg.Args...) //nolint:gosec // G204: launching the caller's command is the purpose
	cmd.Dir = cfg.Dir
	if len(cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), cfg.Env...)
	}
	configureSysProcAttr(cmd, cfg.ProcessGroup)

	var logFiles LogFiles
	switch cfg.Output {
	case OutputInherit:
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	case OutputCapture:
		if err := fileutil.EnsureDir(cfg.LogDir); err != nil {
			return nil, fmt.Errorf("prepare log dir for %s: %w", cfg.Name, err)
		}
		lf, err := NewLogFiles(cfg.LogDir, logFilePrefix(cfg.Name, id))
		if err != nil {
			return nil, fmt.Errorf("create %s logs: %w", cfg.Name, err)
		}
		logFiles = lf
		cmd.Stdout = logFiles.stdoutFile
		cmd.Stderr = logFiles.stderrFile
	case OutputDiscard:
		// nil Stdout/Stderr connect to the null device.
	}

	if err := cmd.Start(); err != nil {
		logFiles.Close()
		lerr := &LaunchError{Kind: classifyStartErr(err), Name: cfg.Name, Path: cfg.Path, Err: err}
		log.Debug("launch failed", "process", cfg.Name, "path", cfg.Path, "kind", string(lerr.Kind), "error", err)
		return nil, lerr
	}

	h := newHandle(id, cfg, cmd, logFiles, log)
	log.Info("process launched", "process", cfg.Name, "pid", h.PID(), "id", id)
	return h, nil
}

// logFilePrefix builds a file-name-safe prefix unique to one launch.
func logFilePrefix(name, id string) string {
	safe := strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == os.PathSeparator {
			return '_'
		}
		return r
	}, name)
	return safe + "-" + id[:8]
}
