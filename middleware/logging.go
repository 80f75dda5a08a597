// Package middleware provides ready-made commandbus middlewares for logging,
// panic recovery, Prometheus metrics and OpenTelemetry tracing.
package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/bjaus/commandbus"
)

// Logging logs every dispatch: debug on entry, info on success and error on
// failure. A nil logger uses slog.Default().
func Logging(l *slog.Logger) commandbus.Middleware {
	if l == nil {
		l = slog.Default()
	}
	l = l.With("component", "commandbus")

	return commandbus.MiddlewareFunc(func(next commandbus.HandlerFunc) commandbus.HandlerFunc {
		return func(ctx context.Context, msg commandbus.Message) error {
			l.DebugContext(ctx, "dispatching command", "command", msg.Type)

			start := time.Now()
			err := next(ctx, msg)
			elapsed := time.Since(start)

			if err != nil {
				l.ErrorContext(ctx, "command failed", "command", msg.Type, "duration", elapsed, "error", err)
				return err
			}
			l.InfoContext(ctx, "command handled", "command", msg.Type, "duration", elapsed)
			return nil
		}
	})
}
