// Package core provides the internal implementation of procenv.
// It contains the Supervisor, which composes process launching
// (internal/process) with address polling (internal/poll) into
// start-and-confirm and stop-and-confirm operations, plus the optional
// cross-process address locks and the package-level logger.
package core
