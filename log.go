package procenv

import (
	"log/slog"

	"github.com/giantswarm/procenv/internal/core"
)

// SetLogger replaces the package-level logger used by procenv.
// This allows applications to integrate procenv logging with their own
// logging infrastructure. The provided logger should already have any
// desired attributes; procenv will not add additional attributes.
//
// If l is nil, the logger resets to the default: slog.Default() with
// "component" attribute, re-derived on the next Logger() call and then
// cached. Call SetLogger(nil) after slog.SetDefault() to pick up changes.
//
// SetLogger is safe to call concurrently with other procenv operations and
// takes effect for existing Supervisors as well as new ones.
//
// Example:
//
//	procenv.SetLogger(myLogger.With("component", "procenv"))
func SetLogger(l *slog.Logger) {
	core.SetLogger(l)
}
