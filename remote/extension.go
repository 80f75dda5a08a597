package remote

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bjaus/commandbus"
)

// Headers set by the remote extension.
const (
	// HeaderReceived marks a message that arrived from a transport. Such
	// messages are always handled locally.
	HeaderReceived = "remote.received"

	// HeaderEnvelopeID carries the ID of the envelope a received message was
	// decoded from.
	HeaderEnvelopeID = "remote.envelope_id"
)

// Extension sends commands to a transport instead of handling them locally.
//
// Commands listed with WithLocal and commands that were received from a
// transport continue down the chain to their local handler. Every other
// command is serialized and sent, and the dispatch succeeds once the
// transport accepts the envelope.
type Extension struct {
	transport  Transport
	serializer Serializer
	local      map[string]struct{}
	logger     *slog.Logger
}

// Option configures an Extension.
type Option func(*Extension)

// WithLocal lists command types that are always handled in-process.
func WithLocal(commandTypes ...string) Option {
	return func(e *Extension) {
		for _, t := range commandTypes {
			e.local[t] = struct{}{}
		}
	}
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Extension) {
		e.logger = l
	}
}

// NewExtension creates a remote extension sending through t.
func NewExtension(t Transport, s Serializer, opts ...Option) *Extension {
	e := &Extension{
		transport:  t,
		serializer: s,
		local:      make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	e.logger = e.logger.With("component", "remote")
	return e
}

// Setup implements commandbus.Extension.
func (e *Extension) Setup(p *commandbus.Pipeline) {
	p.Middleware(commandbus.MiddlewareFunc(e.wrap))
}

// IsLocal reports whether the command type is always handled in-process.
func (e *Extension) IsLocal(commandType string) bool {
	_, ok := e.local[commandType]
	return ok
}

func (e *Extension) wrap(next commandbus.HandlerFunc) commandbus.HandlerFunc {
	return func(ctx context.Context, msg commandbus.Message) error {
		if e.IsLocal(msg.Type) || msg.Headers.Has(HeaderReceived) {
			return next(ctx, msg)
		}

		env, err := e.serializer.Serialize(msg)
		if err != nil {
			return fmt.Errorf("serialize %s: %w", msg.Type, err)
		}
		if err := e.transport.Send(ctx, env); err != nil {
			return fmt.Errorf("send %s: %w", msg.Type, err)
		}

		e.logger.DebugContext(ctx, "command sent", "command", msg.Type, "envelope_id", env.ID)
		return nil
	}
}

// Receive decodes an envelope taken from a transport and dispatches it
// locally.
//
// Example:
//
//	env, err := transport.Receive(ctx)
//	if err != nil {
//	    return err
//	}
//	return ext.Receive(ctx, dispatcher, env)
func (e *Extension) Receive(ctx context.Context, d *commandbus.Dispatcher, env Envelope) error {
	msg, err := e.serializer.Deserialize(env)
	if err != nil {
		return fmt.Errorf("deserialize %s: %w", env.Type, err)
	}
	msg = msg.WithHeader(HeaderReceived, "true").WithHeader(HeaderEnvelopeID, env.ID)

	e.logger.DebugContext(ctx, "command received", "command", msg.Type, "envelope_id", env.ID)
	return d.Send(ctx, msg)
}

var _ commandbus.Extension = (*Extension)(nil)
