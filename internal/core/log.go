package core

import (
	"context"
	"log/slog"
	"slices"
	"sync/atomic"
)

// logger is set by SetLogger. Nil means "derive from slog.Default()".
var logger atomic.Pointer[slog.Logger]

// defaultLogger memoizes slog.Default() with the component attribute.
// SetLogger clears it, so SetLogger(nil) after slog.SetDefault picks up the
// new default.
var defaultLogger atomic.Pointer[slog.Logger]

// Logger returns the logger procenv writes to: the one passed to SetLogger,
// or slog.Default() tagged with component=procenv. Safe for concurrent use.
func Logger() *slog.Logger {
	if l := logger.Load(); l != nil {
		return l
	}
	if l := defaultLogger.Load(); l != nil {
		return l
	}
	l := slog.Default().With("component", "procenv")
	if defaultLogger.CompareAndSwap(nil, l) {
		return l
	}
	// Lost the race to another caller, or SetLogger cleared the cache in
	// between. Either way l is a usable logger.
	if cur := defaultLogger.Load(); cur != nil {
		return cur
	}
	return l
}

// SetLogger replaces the logger used by procenv. Nil restores the default.
// Supervisors created earlier switch over too.
func SetLogger(l *slog.Logger) {
	logger.Store(l)
	defaultLogger.Store(nil)
}

// currentLogger returns a logger that resolves Logger() on every record.
// Long-lived components (pool, poller, port registry, address locks) hold it
// so a later SetLogger reaches them as well.
func currentLogger() *slog.Logger {
	return slog.New(currentHandler{})
}

// currentHandler forwards to Logger().Handler(), replaying any WithAttrs and
// WithGroup calls in order.
type currentHandler struct {
	wrap []func(slog.Handler) slog.Handler
}

func (h currentHandler) resolve() slog.Handler {
	hd := Logger().Handler()
	for _, w := range h.wrap {
		hd = w(hd)
	}
	return hd
}

func (h currentHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return Logger().Handler().Enabled(ctx, level)
}

func (h currentHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.resolve().Handle(ctx, r)
}

func (h currentHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	attrs = slices.Clone(attrs)
	return h.with(func(hd slog.Handler) slog.Handler { return hd.WithAttrs(attrs) })
}

func (h currentHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return h.with(func(hd slog.Handler) slog.Handler { return hd.WithGroup(name) })
}

func (h currentHandler) with(w func(slog.Handler) slog.Handler) currentHandler {
	return currentHandler{wrap: append(slices.Clone(h.wrap), w)}
}
