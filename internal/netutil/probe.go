package netutil

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// DefaultProbeTimeout bounds a single connection attempt when NewProber is
// given a non-positive timeout. Refused connections on a reachable host
// return well inside this; it only matters for filtered or unreachable
// endpoints where the SYN goes unanswered.
const DefaultProbeTimeout = 500 * time.Millisecond

// State is the observed bind state of an address.
type State int

const (
	// StateInconclusive means the probe could not decide: timeout, DNS
	// failure, unreachable network. Pollers retry on it.
	StateInconclusive State = iota

	// StateBound means a TCP connection was accepted.
	StateBound

	// StateUnbound means the connection attempt was actively refused.
	StateUnbound
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case StateInconclusive:
		return "inconclusive"
	case StateBound:
		return "bound"
	case StateUnbound:
		return "unbound"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// IsTarget reports whether s is a state a caller can wait for.
func (s State) IsTarget() bool {
	return s == StateBound || s == StateUnbound
}

// ParseState parses "bound" or "unbound".
func ParseState(s string) (State, error) {
	switch s {
	case "bound":
		return StateBound, nil
	case "unbound":
		return StateUnbound, nil
	default:
		return StateInconclusive, fmt.Errorf("unknown address state %q (want bound or unbound)", s)
	}
}

// ProbeResult is the outcome of one probe. Err is set only when State is
// StateInconclusive.
type ProbeResult struct {
	State State
	Err   error
}

// Prober checks the bind state of TCP addresses. A Prober is safe for
// concurrent use.
type Prober struct {
	dialer  net.Dialer
	timeout time.Duration
}

// NewProber returns a Prober whose attempts never last longer than timeout.
// A non-positive timeout selects DefaultProbeTimeout.
func NewProber(timeout time.Duration) *Prober {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	return &Prober{
		dialer:  net.Dialer{Timeout: timeout},
		timeout: timeout,
	}
}

// Timeout returns the per-attempt timeout.
func (p *Prober) Timeout() time.Duration {
	return p.timeout
}

// Probe attempts one TCP connection to addr and closes it immediately. No
// data is exchanged. The attempt is bounded by the prober timeout and by ctx.
func (p *Prober) Probe(ctx context.Context, addr Address) ProbeResult {
	if err := addr.Validate(); err != nil {
		return ProbeResult{State: StateInconclusive, Err: fmt.Errorf("probe %s: %w", addr, err)}
	}

	dialCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	conn, err := p.dialer.DialContext(dialCtx, "tcp", addr.String())
	if err == nil {
		_ = conn.Close() // best-effort close of the liveness connection
		return ProbeResult{State: StateBound}
	}
	if IsConnRefused(err) {
		return ProbeResult{State: StateUnbound}
	}
	return ProbeResult{State: StateInconclusive, Err: fmt.Errorf("probe %s: %w", addr, err)}
}

// IsConnRefused reports whether err is an actively refused connection.
func IsConnRefused(err error) bool {
	return errors.Is(err, errConnRefused)
}
