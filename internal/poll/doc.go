// Package poll confirms that an address reaches a bind state within a
// deadline.
//
// Pool is the bounded worker pool shared by all sessions of one Supervisor.
// Poller.PollUntil drives one session: it submits probe attempts to the pool
// at a fixed interval, treats inconclusive probes as retryable, and fails
// with a *TimeoutError carrying attempt count and elapsed time when the
// deadline passes. Poller.Start runs the same session in the background.
package poll
