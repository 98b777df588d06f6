// Package slog is the ambient structured logger used across the module. The
// teacher (_examples/cloudfly-readgo/runtime) has no logging library of its
// own — invariant violations go straight through a bare throw() that aborts
// the process. This package gives that same "fatal means fatal" behavior a
// structured backing, using go.uber.org/zap the way _examples/nmxmxh-inos_v1
// does.
package slog

import (
	"sync"

	"go.uber.org/zap"
)

var (
	mu     sync.RWMutex
	logger *zap.Logger
)

func init() {
	l, err := zap.NewProduction()
	if err != nil {
		l = zap.NewNop()
	}
	logger = l
}

// Set installs a logger for the process, e.g. zap.NewDevelopment() for
// sicmctl's -v flag. Safe to call concurrently with L().
func Set(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	logger = l
}

// L returns the current ambient logger.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Fatal logs at fatal level and aborts the process, mirroring the teacher's
// throw() for structural invariant violations (spec.md §7).
func Fatal(msg string, fields ...zap.Field) {
	L().Fatal(msg, fields...)
}

// Error logs a recoverable error, e.g. a dropped sampler batch (spec.md §7).
func Error(msg string, fields ...zap.Field) {
	L().Error(msg, fields...)
}

// Warn logs a warning.
func Warn(msg string, fields ...zap.Field) {
	L().Warn(msg, fields...)
}

// Info logs an informational event.
func Info(msg string, fields ...zap.Field) {
	L().Info(msg, fields...)
}

// Debug logs a debug-level event.
func Debug(msg string, fields ...zap.Field) {
	L().Debug(msg, fields...)
}

// Sync flushes any buffered log entries. Call during Fini().
func Sync() error {
	return L().Sync()
}
