// Package logging holds the slog logger shared by every goshadermixer package.
// Nothing is logged until the host installs a logger with SetLogger.
package logging

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// nopHandler discards every record. Enabled reports false so callers skip
// formatting entirely.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(slog.New(nopHandler{}))
}

// SetLogger installs l as the process-wide logger. Passing nil restores the
// silent default. Safe for concurrent use.
//
// Levels:
//   - [slog.LevelDebug]: per-tick diagnostics (uniform misses, dropped frames)
//   - [slog.LevelInfo]: lifecycle events (program compiled, recording started)
//   - [slog.LevelWarn]: recoverable failures (compile errors, encoder unavailable)
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(nopHandler{})
	}
	loggerPtr.Store(l)
}

// Logger returns the current logger.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}
