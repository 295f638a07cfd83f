package procenv

import "time"

// Default configuration values for New.
// These constants are exported so callers can reference the defaults
// when building custom configurations relative to them (e.g.,
// 2 * DefaultReadyTimeout).
const (
	// DefaultPollInterval is the delay between the starts of consecutive
	// probe attempts.
	DefaultPollInterval = 200 * time.Millisecond

	// DefaultProbeTimeout bounds a single connection attempt. A probe never
	// blocks longer than this, whatever the network does.
	DefaultProbeTimeout = 500 * time.Millisecond

	// DefaultReadyTimeout is how long StartAndConfirm waits for a service
	// to bind when the Service sets no timeout of its own.
	DefaultReadyTimeout = 30 * time.Second

	// DefaultReleaseTimeout is how long StopAndConfirm waits for the
	// address to be released when the caller passes zero.
	DefaultReleaseTimeout = 30 * time.Second

	// DefaultTerminateGracePeriod is the time between SIGTERM and SIGKILL.
	DefaultTerminateGracePeriod = 5 * time.Second

	// DefaultWorkerPoolSize is the number of probe workers shared by all
	// poll sessions of a Supervisor. It is also the minimum.
	DefaultWorkerPoolSize = 2

	// DefaultOutput discards child output.
	DefaultOutput = OutputDiscard

	// DefaultAbortOnExit makes StartAndConfirm fail as soon as the launched
	// process exits instead of polling until the ready timeout.
	DefaultAbortOnExit = true
)
