package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/bjaus/commandbus"
	"github.com/bjaus/commandbus/retry"
)

const tracerName = "github.com/bjaus/commandbus"

// Span attribute keys.
const (
	AttrCommand = "commandbus.command"
	AttrAttempt = "commandbus.retry_attempt"
)

// Tracing starts a span around every dispatch. A nil tracer uses the global
// tracer provider.
func Tracing(tracer trace.Tracer) commandbus.Middleware {
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}

	return commandbus.MiddlewareFunc(func(next commandbus.HandlerFunc) commandbus.HandlerFunc {
		return func(ctx context.Context, msg commandbus.Message) error {
			attrs := []attribute.KeyValue{attribute.String(AttrCommand, msg.Type)}
			if v := msg.Headers.Get(retry.HeaderAttempt); v != "" {
				attrs = append(attrs, attribute.String(AttrAttempt, v))
			}

			ctx, span := tracer.Start(ctx, "commandbus.dispatch",
				trace.WithAttributes(attrs...),
				trace.WithSpanKind(trace.SpanKindInternal),
			)
			defer span.End()

			err := next(ctx, msg)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
			return err
		}
	})
}
