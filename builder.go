package commandbus

import (
	"fmt"
	"maps"
	"slices"
)

// Middleware wraps the handler invocation. Middlewares are applied in declared
// order: the first registered middleware is the outermost.
type Middleware interface {
	Wrap(next HandlerFunc) HandlerFunc
}

// MiddlewareFunc is a function adapter for Middleware.
//
//	timing := commandbus.MiddlewareFunc(func(next commandbus.HandlerFunc) commandbus.HandlerFunc {
//	    return func(ctx context.Context, msg commandbus.Message) error {
//	        start := time.Now()
//	        defer func() { log.Printf("%s took %v", msg.Type, time.Since(start)) }()
//	        return next(ctx, msg)
//	    }
//	})
type MiddlewareFunc func(next HandlerFunc) HandlerFunc

// Wrap implements the Middleware interface.
func (f MiddlewareFunc) Wrap(next HandlerFunc) HandlerFunc {
	return f(next)
}

// Extension hooks into the pipeline while it is being built. Extensions may
// add middlewares and handlers through the Pipeline, and may implement
// OnDispatchHook, OnSuccessHook or OnFailureHook to observe dispatches.
type Extension interface {
	Setup(p *Pipeline)
}

// Pipeline is the staging area handed to extensions during Build.
type Pipeline struct {
	middlewares []Middleware
	handlers    map[string]Handler
	err         error
}

// Middleware appends middlewares after those already staged.
func (p *Pipeline) Middleware(ms ...Middleware) {
	for _, m := range ms {
		if m == nil {
			p.fail(fmt.Errorf("%w: nil middleware", ErrInvalidContribution))
			continue
		}
		p.middlewares = append(p.middlewares, m)
	}
}

// Handle registers a handler, replacing any earlier one for the command type.
func (p *Pipeline) Handle(commandType string, h Handler) {
	if h == nil {
		p.fail(fmt.Errorf("%w: nil handler for %s", ErrInvalidContribution, commandType))
		return
	}
	p.handlers[commandType] = h
}

// HasHandler reports whether a handler is staged for the command type.
func (p *Pipeline) HasHandler(commandType string) bool {
	_, ok := p.handlers[commandType]
	return ok
}

func (p *Pipeline) fail(err error) {
	if p.err == nil {
		p.err = err
	}
}

type binding struct {
	commandType string
	handler     Handler
}

// Builder collects handlers, extensions and middlewares and produces an
// immutable Dispatcher.
//
// Usage:
//  1. Create a builder with NewBuilder
//  2. Register handlers with Handle
//  3. Register extensions with Use and middlewares with Middleware
//  4. Call Build
//
// Builder is not safe for concurrent use. Build does not modify the builder,
// so it may be called more than once and each call yields an equivalent
// Dispatcher.
type Builder struct {
	bindings    []binding
	extensions  []Extension
	middlewares []Middleware
	hooks       hooks
}

// NewBuilder creates a Builder with the given hook options.
//
// Example:
//
//	b := commandbus.NewBuilder(
//	    commandbus.WithOnFailure(func(ctx context.Context, commandType string, err error, d time.Duration) {
//	        metrics.Incr("commandbus.failure", "command:"+commandType)
//	    }),
//	)
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{}
	for _, opt := range opts {
		opt(&b.hooks)
	}
	return b
}

// Handle registers a handler for a command type. A later registration for the
// same type replaces the earlier one.
//
// Example:
//
//	b.Handle("orders.CreateOrder", &CreateOrderHandler{db: db})
func (b *Builder) Handle(commandType string, h Handler) *Builder {
	b.bindings = append(b.bindings, binding{commandType: commandType, handler: h})
	return b
}

// Use registers extensions. Their Setup methods run during Build in
// registration order.
func (b *Builder) Use(exts ...Extension) *Builder {
	b.extensions = append(b.extensions, exts...)
	return b
}

// Middleware registers middlewares. They wrap every dispatch in declared order
// and sit outside any middleware contributed by extensions.
func (b *Builder) Middleware(ms ...Middleware) *Builder {
	b.middlewares = append(b.middlewares, ms...)
	return b
}

// Build assembles the Dispatcher.
//
// The build steps:
//  1. Bind handlers in registration order; the last binding per type wins
//  2. Stage the builder's middlewares
//  3. Run every extension's Setup in registration order
//  4. Wrap the handler lookup with the staged middlewares, outermost first
//
// Build fails with ErrInvalidContribution if a nil handler, extension or
// middleware was registered.
func (b *Builder) Build() (*Dispatcher, error) {
	p := &Pipeline{handlers: make(map[string]Handler, len(b.bindings))}
	for _, bind := range b.bindings {
		p.Handle(bind.commandType, bind.handler)
	}
	p.Middleware(b.middlewares...)

	for i, ext := range b.extensions {
		if ext == nil {
			return nil, fmt.Errorf("%w: nil extension at position %d", ErrInvalidContribution, i)
		}
		ext.Setup(p)
	}
	if p.err != nil {
		return nil, p.err
	}

	d := &Dispatcher{
		handlers:   maps.Clone(p.handlers),
		hooks:      b.hooks.clone(),
		extensions: slices.Clone(b.extensions),
	}

	chain := HandlerFunc(d.handle)
	for _, m := range slices.Backward(p.middlewares) {
		chain = m.Wrap(chain)
	}
	d.chain = chain

	return d, nil
}
