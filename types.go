package procenv

import (
	"github.com/giantswarm/procenv/internal/core"
	"github.com/giantswarm/procenv/internal/netutil"
	"github.com/giantswarm/procenv/internal/poll"
	"github.com/giantswarm/procenv/internal/process"
)

// Address is a TCP listen endpoint. The zero value is invalid; build one with
// NewAddress or ParseAddress.
type Address = netutil.Address

// NewAddress returns a validated Address.
func NewAddress(host string, port int) (Address, error) {
	return netutil.NewAddress(host, port)
}

// ParseAddress parses "host:port" into a validated Address.
func ParseAddress(s string) (Address, error) {
	return netutil.ParseAddress(s)
}

// State is the bind state of an address as observed by one probe.
type State = netutil.State

// Probe states.
const (
	StateInconclusive = netutil.StateInconclusive
	StateBound        = netutil.StateBound
	StateUnbound      = netutil.StateUnbound
)

// ParseState parses "bound" or "unbound".
func ParseState(s string) (State, error) {
	return netutil.ParseState(s)
}

// ProbeResult is the result of a single probe. Err is set only for
// inconclusive results.
type ProbeResult = netutil.ProbeResult

// Outcome summarizes a finished poll session, successful or not.
type Outcome = poll.Outcome

// Session is a poll running in the background.
type Session = poll.Session

// Service describes a process to start and the address it binds.
type Service = core.Service

// OutputMode selects what happens to child stdout and stderr.
type OutputMode = process.OutputMode

// Output modes.
const (
	OutputDiscard = process.OutputDiscard
	OutputInherit = process.OutputInherit
	OutputCapture = process.OutputCapture
)

// ParseOutputMode parses "discard", "inherit" or "capture".
func ParseOutputMode(s string) (OutputMode, error) {
	return process.ParseOutputMode(s)
}

// LaunchError reports why a process could not be created. Match its kind
// with errors.Is against ErrExecutableNotFound, ErrPermissionDenied or
// ErrSpawnFailed.
type LaunchError = process.LaunchError

// TimeoutError reports a poll that hit its deadline, with the attempt count
// and elapsed time for diagnosis.
type TimeoutError = poll.TimeoutError

// SupervisionError reports a failed StartAndConfirm or StopAndConfirm.
type SupervisionError = core.SupervisionError
