// Package log provides the package-level logger shared across the
// engine. It wraps zap the way the teacher's runtime dependencies
// (go.uber.org/zap, already pulled in transitively) are used elsewhere
// in the pack.
package log

import (
	"sync"

	"go.uber.org/zap"
)

var (
	mu     sync.RWMutex
	logger *zap.SugaredLogger
)

func init() {
	l, err := zap.NewProduction()
	if err != nil {
		l = zap.NewNop()
	}
	logger = l.Sugar()
}

// Set replaces the package logger. Hosts embedding the engine can call
// this once at startup to route logs through their own zap core.
func Set(l *zap.SugaredLogger) {
	mu.Lock()
	defer mu.Unlock()
	logger = l
}

func get() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Debugw logs an index rebuild, transaction commit/rollback, or other
// internal-detail event.
func Debugw(msg string, keysAndValues ...any) {
	get().Debugw(msg, keysAndValues...)
}

// Warnw logs a best-effort failure (e.g. persistence flush) that does
// not roll back in-memory state.
func Warnw(msg string, keysAndValues ...any) {
	get().Warnw(msg, keysAndValues...)
}

// Errorw logs an unexpected internal defect.
func Errorw(msg string, keysAndValues ...any) {
	get().Errorw(msg, keysAndValues...)
}
