package commandbus

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Dispatcher routes commands to their handlers through the middleware chain.
//
// A Dispatcher is produced by Builder.Build and cannot be reconfigured. It is
// safe for concurrent use.
type Dispatcher struct {
	handlers   map[string]Handler
	chain      HandlerFunc
	hooks      hooks
	extensions []Extension
}

// Dispatch wraps cmd in a Message and sends it through the pipeline.
//
// Example:
//
//	err := d.Dispatch(ctx, orders.CreateOrder{OrderID: "42"})
func (d *Dispatcher) Dispatch(ctx context.Context, cmd any) error {
	return d.Send(ctx, NewMessage(cmd))
}

// Send dispatches a prepared message. An empty Type is filled from the
// command.
//
// The dispatch flow:
//  1. Store the dispatcher in the context (see FromContext)
//  2. Call OnDispatch hooks: global, then extensions
//  3. Run the middleware chain, which ends in the registered handler
//  4. Call OnSuccess or OnFailure hooks: global, then extensions
//
// Failures are returned as *DispatchError.
func (d *Dispatcher) Send(ctx context.Context, msg Message) error {
	if msg.Type == "" {
		msg.Type = TypeOf(msg.Command)
	}
	if msg.Headers == nil {
		msg.Headers = Headers{}
	}

	ctx = WithDispatcher(ctx, d)
	ctx = d.callOnDispatch(ctx, msg.Type)

	start := time.Now()
	err := d.chain(ctx, msg)
	duration := time.Since(start)

	if err != nil {
		d.callOnFailure(ctx, msg.Type, err, duration)
		return wrapDispatchError(msg.Type, err)
	}

	d.callOnSuccess(ctx, msg.Type, duration)
	return nil
}

// HasHandler reports whether a handler is registered for the command type.
func (d *Dispatcher) HasHandler(commandType string) bool {
	_, ok := d.handlers[commandType]
	return ok
}

// handle is the innermost step of the chain.
func (d *Dispatcher) handle(ctx context.Context, msg Message) error {
	h, found := d.handlers[msg.Type]
	if !found {
		return d.handleNoHandler(ctx, msg.Type)
	}
	return h.Handle(ctx, msg)
}

// callOnDispatch calls global and extension OnDispatch hooks.
func (d *Dispatcher) callOnDispatch(ctx context.Context, commandType string) context.Context {
	for _, fn := range d.hooks.onDispatch {
		ctx = fn(ctx, commandType)
	}
	for _, ext := range d.extensions {
		if h, ok := ext.(OnDispatchHook); ok {
			ctx = h.OnDispatch(ctx, commandType)
		}
	}
	return ctx
}

// callOnSuccess calls global and extension OnSuccess hooks.
func (d *Dispatcher) callOnSuccess(ctx context.Context, commandType string, duration time.Duration) {
	for _, fn := range d.hooks.onSuccess {
		fn(ctx, commandType, duration)
	}
	for _, ext := range d.extensions {
		if h, ok := ext.(OnSuccessHook); ok {
			h.OnSuccess(ctx, commandType, duration)
		}
	}
}

// callOnFailure calls global and extension OnFailure hooks.
func (d *Dispatcher) callOnFailure(ctx context.Context, commandType string, err error, duration time.Duration) {
	for _, fn := range d.hooks.onFailure {
		fn(ctx, commandType, err, duration)
	}
	for _, ext := range d.extensions {
		if h, ok := ext.(OnFailureHook); ok {
			h.OnFailure(ctx, commandType, err, duration)
		}
	}
}

// handleNoHandler handles the case when no handler is registered.
func (d *Dispatcher) handleNoHandler(ctx context.Context, commandType string) error {
	for _, fn := range d.hooks.onNoHandler {
		if err := fn(ctx, commandType); err != nil {
			return err
		}
	}
	if len(d.hooks.onNoHandler) > 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrNoHandler, commandType)
}

func wrapDispatchError(commandType string, err error) error {
	var de *DispatchError
	if errors.As(err, &de) && de.Type == commandType {
		return err
	}
	return &DispatchError{Type: commandType, Err: err}
}

type dispatcherKey struct{}

// WithDispatcher returns a context carrying d. Send does this automatically so
// handlers can dispatch follow-up commands.
func WithDispatcher(ctx context.Context, d *Dispatcher) context.Context {
	return context.WithValue(ctx, dispatcherKey{}, d)
}

// FromContext returns the dispatcher handling the current message.
//
// Example:
//
//	func (h *CreateOrderHandler) Handle(ctx context.Context, msg commandbus.Message) error {
//	    d, _ := commandbus.FromContext(ctx)
//	    return d.Dispatch(ctx, billing.OpenInvoice{OrderID: msg.Command.(orders.CreateOrder).OrderID})
//	}
func FromContext(ctx context.Context) (*Dispatcher, bool) {
	d, ok := ctx.Value(dispatcherKey{}).(*Dispatcher)
	return d, ok && d != nil
}
