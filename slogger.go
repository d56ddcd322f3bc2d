//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: https://github.com/ooni/probe-cli/blob/v3.20.1/internal/netxlite/dialer.go
// Adapted from: https://github.com/rbmk-project/rbmk/blob/v0.17.0/pkg/x/netcore/dialer.go
//

package ormos

import "log/slog"

// SLogger abstracts the [*slog.Logger] behavior.
//
// By using an abstraction we allow for unit testing and alternative implementations.
//
// This package uses two log levels:
//   - Info for lifecycle and protocol events (connect, close, TLS handshake,
//     DNS exchange, DNS query/response, parse, rule decision, splice)
//   - Debug for per-I/O events (read, write, set deadline)
//
// With returns a logger that carries args on every subsequent call; the
// listener uses it to attach a [NewSpanID] value to every log line
// produced while handling one connection.
//
// Wrap a [*slog.Logger] with [NewSLogger] to obtain an [SLogger]: because
// [*slog.Logger.With] returns *slog.Logger rather than SLogger, the raw
// type cannot satisfy this interface directly.
type SLogger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	With(args ...any) SLogger
}

// DefaultSLogger returns the default [SLogger] to use.
//
// The default is a no-op logger that discards all output. This follows the
// library convention of not writing to stdout/stderr unless explicitly configured.
//
// Use [NewSLogger] to wrap a custom [*slog.Logger] for emitting logs.
func DefaultSLogger() SLogger {
	return discardSLogger{}
}

// NewSLogger wraps l so it satisfies [SLogger], including a [SLogger.With]
// that stays within the interface instead of returning a bare
// [*slog.Logger].
func NewSLogger(l *slog.Logger) SLogger {
	return slogAdapter{l}
}

// slogAdapter adapts a [*slog.Logger] to [SLogger]. Debug and Info are
// promoted directly from the embedded logger; With is overridden to
// return [SLogger] instead of [*slog.Logger].
type slogAdapter struct {
	*slog.Logger
}

var _ SLogger = slogAdapter{}

// With implements [SLogger].
func (s slogAdapter) With(args ...any) SLogger {
	return slogAdapter{s.Logger.With(args...)}
}

// discardSLogger is a no-op [SLogger] that discards all log messages.
type discardSLogger struct{}

var _ SLogger = discardSLogger{}

// Debug implements [SLogger].
func (discardSLogger) Debug(msg string, args ...any) {
	// nothing
}

// Info implements [SLogger].
func (discardSLogger) Info(msg string, args ...any) {
	// nothing
}

// With implements [SLogger]. The discard logger ignores attached args
// since it discards every message regardless.
func (discardSLogger) With(args ...any) SLogger {
	return discardSLogger{}
}
