// Package logging is the structured logger every gophauth component takes.
// The slog implementation masks attributes that carry secrets.
package logging

import "context"

// Logger is a context-aware, structured logger.
//
// The variadic args are interpreted as key–value pairs, e.g.:
//
//	log.Info(ctx, "credential created", "sub", sub, "type", typ)
type Logger interface {
	// Debug logs diagnostic detail, e.g. why a candidate credential did not match.
	Debug(ctx context.Context, msg string, args ...any)

	// Info logs lifecycle events: credential created, session expired.
	Info(ctx context.Context, msg string, args ...any)

	// Warn logs recoverable trouble such as a failed notification.
	Warn(ctx context.Context, msg string, args ...any)

	Error(ctx context.Context, msg string, args ...any)

	// With returns a child logger that always includes the given key–value pairs.
	With(args ...any) Logger
}

type nopLogger struct{}

func (nopLogger) Debug(context.Context, string, ...any) {}
func (nopLogger) Info(context.Context, string, ...any)  {}
func (nopLogger) Warn(context.Context, string, ...any)  {}
func (nopLogger) Error(context.Context, string, ...any) {}
func (n nopLogger) With(...any) Logger                  { return n }

// Nop returns a Logger that discards everything.
func Nop() Logger {
	return nopLogger{}
}
