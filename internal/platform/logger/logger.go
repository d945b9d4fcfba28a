// Package logger provides structured logging for the simulation server.
// Every run, spawn and stop request should be traceable through this.
//
// A nil *Logger is valid and discards everything, so components take a
// *Logger without checking it.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	slogmulti "github.com/samber/slog-multi"
)

// Logger provides leveled, structured logging with context.
type Logger struct {
	slog  *slog.Logger
	level *slog.LevelVar
}

// Options selects the sinks of a Logger.
type Options struct {
	Level  string    // debug, info, warn or error; empty means info
	Output io.Writer // text sink; nil means stdout
	JSON   io.Writer // optional JSON sink, e.g. a log file
}

// NewLogger creates a logger writing text lines to stdout at info level.
func NewLogger() *Logger {
	return New(Options{})
}

// New creates a logger fanning out to the configured sinks.
func New(opts Options) *Logger {
	level := new(slog.LevelVar)
	level.Set(ParseLevel(opts.Level))

	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	handlers := []slog.Handler{
		slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}),
	}
	if opts.JSON != nil {
		handlers = append(handlers, slog.NewJSONHandler(opts.JSON, &slog.HandlerOptions{Level: level}))
	}

	return &Logger{
		slog:  slog.New(slogmulti.Fanout(handlers...)),
		level: level,
	}
}

// ParseLevel maps a level name to a slog.Level. Unknown names mean info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetLevel changes the minimum level at runtime.
func (l *Logger) SetLevel(name string) {
	if l == nil {
		return
	}
	l.level.Set(ParseLevel(name))
}

// Level returns the current minimum level.
func (l *Logger) Level() slog.Level {
	if l == nil {
		return slog.LevelInfo
	}
	return l.level.Level()
}

// Slog exposes the underlying *slog.Logger.
func (l *Logger) Slog() *slog.Logger {
	if l == nil {
		return slog.New(slog.DiscardHandler)
	}
	return l.slog
}

// With returns a logger that adds attrs to every record.
func (l *Logger) With(args ...any) *Logger {
	if l == nil {
		return nil
	}
	return &Logger{slog: l.slog.With(args...), level: l.level}
}

// Debug logs debug messages with optional key/value attrs.
func (l *Logger) Debug(msg string, args ...any) {
	if l == nil {
		return
	}
	l.slog.Debug(msg, args...)
}

// Info logs informational messages.
func (l *Logger) Info(msg string, args ...any) {
	if l == nil {
		return
	}
	l.slog.Info(msg, args...)
}

// Warn logs warning messages.
func (l *Logger) Warn(msg string, args ...any) {
	if l == nil {
		return
	}
	l.slog.Warn(msg, args...)
}

// Error logs error messages.
func (l *Logger) Error(msg string, args ...any) {
	if l == nil {
		return
	}
	l.slog.Error(msg, args...)
}

// Event logs a specific simulation event.
func (l *Logger) Event(eventType string, actorID string, details string) {
	if l == nil {
		return
	}
	l.slog.Info(details, "event", eventType, "actor", actorID)
}
