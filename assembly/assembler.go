package assembly

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/bjaus/commandbus"
	"github.com/bjaus/commandbus/remote"
	"github.com/bjaus/commandbus/retry"
	"github.com/bjaus/commandbus/serializer"
)

// Input is everything Assemble composes into a dispatcher.
type Input struct {
	Handlers    map[string]commandbus.Handler
	Bindings    []HandlerBinding
	Env         Resolver
	Retry       *retry.Extension
	Remote      *remote.Extension
	Extensions  []commandbus.Extension
	Middlewares []commandbus.Middleware
	Hooks       []commandbus.Option
}

// Assemble builds a dispatcher from in.
//
// Handlers are registered first, then Bindings in order; the last
// registration for a command type wins. Bound references are resolved in Env
// on every dispatch. Extensions run in the order retry, remote, then
// in.Extensions. in.Middlewares wrap everything contributed by extensions.
//
// Assemble fails with ErrMissingRetryExtension when in.Retry is nil.
func Assemble(in Input) (*commandbus.Dispatcher, error) {
	if in.Retry == nil {
		return nil, ErrMissingRetryExtension
	}

	b := commandbus.NewBuilder(in.Hooks...)
	for commandType, h := range in.Handlers {
		b.Handle(commandType, h)
	}
	for _, bind := range in.Bindings {
		b.Handle(bind.Type, lazyHandler(in.Env, bind.Ref))
	}

	b.Use(in.Retry)
	if in.Remote != nil {
		b.Use(in.Remote)
	}
	b.Use(in.Extensions...)
	b.Middleware(in.Middlewares...)

	return b.Build()
}

// Assembler turns a Config into a dispatcher and the transports behind it.
//
// Route and default keys are validated by New. Transports, the serializer
// and retry policies are resolved when first needed. Assembler is safe for
// concurrent use.
type Assembler struct {
	cfg         *Config
	env         Resolver
	types       commandbus.TypeRegistry
	serializers *serializer.Resolver
	factory     *TransportFactory
	extensions  []commandbus.Extension
	middlewares []commandbus.Middleware
	hooks       []commandbus.Option
	base        *slog.Logger
	logger      *slog.Logger

	registry *TransportRegistry
	table    *RouteTable

	transportOnce sync.Once
	transport     remote.Transport
	transportErr  error
	closed        atomic.Bool

	dispatcherOnce sync.Once
	dispatcher     *commandbus.Dispatcher
	dispatcherErr  error
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithTypes sets the registry used to deserialize received commands.
func WithTypes(types commandbus.TypeRegistry) Option {
	return func(a *Assembler) {
		a.types = types
	}
}

// WithSerializers replaces the serializer resolver.
func WithSerializers(r *serializer.Resolver) Option {
	return func(a *Assembler) {
		a.serializers = r
	}
}

// WithTransportFactory replaces the transport factory.
func WithTransportFactory(f *TransportFactory) Option {
	return func(a *Assembler) {
		a.factory = f
	}
}

// WithExtensions appends extensions after those named in configuration.
func WithExtensions(exts ...commandbus.Extension) Option {
	return func(a *Assembler) {
		a.extensions = append(a.extensions, exts...)
	}
}

// WithMiddlewares appends middlewares after those named in configuration.
func WithMiddlewares(ms ...commandbus.Middleware) Option {
	return func(a *Assembler) {
		a.middlewares = append(a.middlewares, ms...)
	}
}

// WithHooks sets dispatcher hook options.
func WithHooks(opts ...commandbus.Option) Option {
	return func(a *Assembler) {
		a.hooks = append(a.hooks, opts...)
	}
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *Assembler) {
		a.base = l
	}
}

// New creates an Assembler for cfg with references resolved in env. A nil
// cfg is the zero Config and a nil env is an empty Container.
//
// New fails with *UnknownTransportError when the default or a route names an
// undeclared connection.
func New(cfg *Config, env Resolver, opts ...Option) (*Assembler, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	if env == nil {
		env = NewContainer()
	}

	a := &Assembler{cfg: cfg, env: env}
	for _, opt := range opts {
		opt(a)
	}
	if a.base == nil {
		a.base = slog.Default()
	}
	a.logger = a.base.With("component", "assembly")
	if a.types == nil {
		a.types = commandbus.FactoryMap{}
	}
	if a.serializers == nil {
		a.serializers = serializer.NewResolver()
	}
	if a.factory == nil {
		a.factory = NewTransportFactory(a.base)
	}

	a.registry = NewTransportRegistry(cfg.Remote.Transport.Connections, env, a.factory)
	table, err := NewRouteTable(cfg.Remote.Transport, a.registry.Keys())
	if err != nil {
		return nil, err
	}
	a.table = table
	return a, nil
}

// Config returns the configuration.
func (a *Assembler) Config() *Config {
	return a.cfg
}

// Registry returns the transport registry.
func (a *Assembler) Registry() *TransportRegistry {
	return a.registry
}

// Routes returns the validated route table.
func (a *Assembler) Routes() *RouteTable {
	return a.table
}

// Transport returns the transport commands are sent through: the fallback
// transport, the single connection, or a router. It is built once. After
// Close it returns remote.ErrClosed.
func (a *Assembler) Transport() (remote.Transport, error) {
	if a.closed.Load() {
		return nil, fmt.Errorf("transport: %w", remote.ErrClosed)
	}
	a.transportOnce.Do(func() {
		a.transport, a.transportErr = BuildTransport(a.table, a.registry)
		if a.transportErr == nil {
			a.logger.Debug("transport ready",
				"connections", a.registry.Len(),
				"default", a.table.Default(),
			)
		}
	})
	return a.transport, a.transportErr
}

// Route returns the transport a command type is sent through.
func (a *Assembler) Route(commandType string) (remote.Transport, error) {
	t, err := a.Transport()
	if err != nil {
		return nil, err
	}
	if r, ok := t.(*remote.Router); ok {
		return r.Route(commandType), nil
	}
	return t, nil
}

// Serializer creates the configured serializer.
func (a *Assembler) Serializer() (remote.Serializer, error) {
	sc := a.cfg.Remote.Serializer
	return a.serializers.Resolve(sc.Type, a.types, sc.Options)
}

// Retries builds the retry policy resolver.
func (a *Assembler) Retries() (*retry.Resolver, error) {
	return ResolveRetries(a.cfg.Retries, a.env)
}

// Build creates a new dispatcher. Each call resolves contributions again and
// returns a distinct, equivalent dispatcher.
func (a *Assembler) Build() (*commandbus.Dispatcher, error) {
	retries, err := a.Retries()
	if err != nil {
		return nil, err
	}
	in := Input{
		Bindings: a.cfg.Handlers,
		Env:      a.env,
		Retry:    retry.NewExtension(retries, retry.WithLogger(a.base)),
		Hooks:    a.hooks,
	}

	if a.cfg.Remote.Enabled {
		s, err := a.Serializer()
		if err != nil {
			return nil, err
		}
		t, err := a.Transport()
		if err != nil {
			return nil, err
		}
		in.Remote = remote.NewExtension(t, s,
			remote.WithLocal(a.cfg.Remote.Local...),
			remote.WithLogger(a.base),
		)
	}

	c, err := CollectContributions(a.cfg, a.env, a.extensions, a.middlewares)
	if err != nil {
		return nil, err
	}
	in.Extensions, in.Middlewares = c.Extensions, c.Middlewares

	d, err := Assemble(in)
	if err != nil {
		return nil, fmt.Errorf("assemble dispatcher: %w", err)
	}

	a.logger.Info("dispatcher built",
		"handlers", len(a.cfg.Handlers),
		"extensions", len(in.Extensions),
		"middlewares", len(in.Middlewares),
		"remote", a.cfg.Remote.Enabled,
	)
	return d, nil
}

// Dispatcher builds the dispatcher on first call and returns the same
// instance afterwards.
func (a *Assembler) Dispatcher() (*commandbus.Dispatcher, error) {
	a.dispatcherOnce.Do(func() {
		a.dispatcher, a.dispatcherErr = a.Build()
	})
	return a.dispatcher, a.dispatcherErr
}

// Close closes the transports the registry constructed, and the fallback
// transport if one was built. Later calls to Transport, Route, Build and an
// unbuilt Dispatcher with remote enabled fail with remote.ErrClosed.
func (a *Assembler) Close() error {
	a.closed.Store(true)
	a.transportOnce.Do(func() {
		a.transportErr = fmt.Errorf("transport: %w", remote.ErrClosed)
	})
	err := a.registry.Close()
	if a.registry.Len() > 0 {
		return err
	}
	if c, ok := a.transport.(io.Closer); ok {
		err = errors.Join(err, c.Close())
	}
	return err
}
