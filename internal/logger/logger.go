// Package logger provides structured logging on top of log/slog.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"
)

// LogLevel is the minimum severity a logger emits.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// ParseLevel converts a level name to a LogLevel, defaulting to info.
func ParseLevel(s string) LogLevel {
	switch LogLevel(s) {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return LogLevel(s)
	default:
		return LogLevelInfo
	}
}

func (l LogLevel) slogLevel() slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Logger is the structured logging interface used across the codebase.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	With(fields ...Field) Logger
	Module(name string) Logger
}

// SlogLogger implements Logger with a JSON slog handler.
type SlogLogger struct {
	inner *slog.Logger
}

// NewSlogLogger creates a JSON logger writing to w. Timestamps are rendered in
// tz, or UTC when tz is nil.
func NewSlogLogger(w io.Writer, level LogLevel, tz *time.Location) *SlogLogger {
	if tz == nil {
		tz = time.UTC
	}
	opts := &slog.HandlerOptions{
		Level: level.slogLevel(),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) == 0 && a.Key == slog.TimeKey {
				a.Value = slog.TimeValue(a.Value.Time().In(tz))
			}
			return a
		},
	}
	return &SlogLogger{inner: slog.New(slog.NewJSONHandler(w, opts))}
}

func (l *SlogLogger) log(level slog.Level, msg string, fields []Field) {
	if !l.inner.Enabled(context.Background(), level) {
		return
	}
	l.inner.LogAttrs(context.Background(), level, msg, toAttrs(fields)...)
}

// Debug logs at debug level.
func (l *SlogLogger) Debug(msg string, fields ...Field) { l.log(slog.LevelDebug, msg, fields) }

// Info logs at info level.
func (l *SlogLogger) Info(msg string, fields ...Field) { l.log(slog.LevelInfo, msg, fields) }

// Warn logs at warn level.
func (l *SlogLogger) Warn(msg string, fields ...Field) { l.log(slog.LevelWarn, msg, fields) }

// Error logs at error level.
func (l *SlogLogger) Error(msg string, fields ...Field) { l.log(slog.LevelError, msg, fields) }

// With returns a logger that always includes fields.
func (l *SlogLogger) With(fields ...Field) Logger {
	args := make([]any, 0, len(fields))
	for _, a := range toAttrs(fields) {
		args = append(args, a)
	}
	return &SlogLogger{inner: l.inner.With(args...)}
}

// Module returns a logger tagged with a module name.
func (l *SlogLogger) Module(name string) Logger {
	return l.With(String("module", name))
}

var (
	global   Logger = NewSlogLogger(os.Stderr, LogLevelInfo, nil)
	globalMu sync.RWMutex
)

// Global returns the process-wide logger.
func Global() Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return global
}

// SetGlobal replaces the process-wide logger.
func SetGlobal(l Logger) {
	if l == nil {
		return
	}
	globalMu.Lock()
	defer globalMu.Unlock()
	global = l
}
