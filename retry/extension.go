package retry

import (
	"context"
	"log/slog"

	"github.com/bjaus/commandbus"
)

// Extension routes every dispatch failure through the policy resolved for the
// command type.
type Extension struct {
	resolver *Resolver
	logger   *slog.Logger
}

// Option configures an Extension.
type Option func(*Extension)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Extension) {
		e.logger = l
	}
}

// NewExtension creates a retry extension. A nil resolver throws every
// failure.
func NewExtension(r *Resolver, opts ...Option) *Extension {
	if r == nil {
		r = NewResolver(nil, nil)
	}
	e := &Extension{resolver: r}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	e.logger = e.logger.With("component", "retry")
	return e
}

// Resolver returns the policy resolver.
func (e *Extension) Resolver() *Resolver {
	return e.resolver
}

// Setup implements commandbus.Extension.
func (e *Extension) Setup(p *commandbus.Pipeline) {
	p.Middleware(commandbus.MiddlewareFunc(e.wrap))
}

func (e *Extension) wrap(next commandbus.HandlerFunc) commandbus.HandlerFunc {
	again := func(ctx context.Context, msg commandbus.Message) error {
		err := next(ctx, msg)
		if err != nil {
			e.logger.WarnContext(ctx, "retry attempt failed",
				"command", msg.Type,
				"attempt", Attempt(msg),
				"error", err,
			)
		}
		return err
	}

	return func(ctx context.Context, msg commandbus.Message) error {
		err := next(ctx, msg)
		if err == nil {
			return nil
		}
		return e.resolver.PolicyFor(msg.Type).Retry(ctx, msg, err, again)
	}
}

var _ commandbus.Extension = (*Extension)(nil)
