// Package commandbus provides a command bus: commands are routed to a single
// handler through an ordered chain of middlewares, and optionally sent to a
// remote transport instead of being handled in-process.
//
// The root package is the bus engine. Subpackages add the pieces a deployed
// bus needs:
//
//   - remote: transports, envelopes, serializers, the route table and the
//     extension that sends non-local commands over a transport
//   - serializer: the native (gob), json and cbor serializers
//   - retry: retry policies and the extension that applies them
//   - middleware: logging, panic recovery, Prometheus metrics and tracing
//   - assembly: builds a Dispatcher from declarative configuration
//
// # Quick Start
//
// Define a command and a handler:
//
//	type CreateOrder struct {
//	    OrderID string `json:"order_id"`
//	}
//
//	type CreateOrderHandler struct {
//	    orders OrderStore
//	}
//
//	func (h *CreateOrderHandler) Handle(ctx context.Context, msg commandbus.Message) error {
//	    cmd := msg.Command.(CreateOrder)
//	    return h.orders.Create(ctx, cmd.OrderID)
//	}
//
// Register it and build the dispatcher:
//
//	d, err := commandbus.NewBuilder().
//	    Handle("orders.CreateOrder", &CreateOrderHandler{orders: store}).
//	    Build()
//	if err != nil {
//	    return err
//	}
//
//	err = d.Dispatch(ctx, CreateOrder{OrderID: "42"})
//
// # Command Types
//
// Every command has a command-type identifier. It is used to look up the
// handler, to pick a transport route and to pick a retry policy. Commands that
// implement Typed name themselves; all others are identified by their Go type
// with pointers dereferenced:
//
//	commandbus.TypeOf(CreateOrder{})  // "orders.CreateOrder"
//	commandbus.TypeOf(&CreateOrder{}) // "orders.CreateOrder"
//
// # Handlers
//
// Handlers receive the whole Message. Use HandleFunc for a typed function:
//
//	b.Handle("orders.CreateOrder", commandbus.HandleFunc(func(ctx context.Context, cmd CreateOrder) error {
//	    return nil
//	}))
//
// A later registration for the same command type replaces the earlier one.
//
// # Middlewares and Extensions
//
// A Middleware wraps every dispatch. An Extension is set up once during Build
// and may add middlewares and handlers to the Pipeline being built:
//
//	type auditExtension struct{ log *slog.Logger }
//
//	func (e *auditExtension) Setup(p *commandbus.Pipeline) {
//	    p.Middleware(commandbus.MiddlewareFunc(func(next commandbus.HandlerFunc) commandbus.HandlerFunc {
//	        return func(ctx context.Context, msg commandbus.Message) error {
//	            e.log.InfoContext(ctx, "command", "type", msg.Type)
//	            return next(ctx, msg)
//	        }
//	    }))
//	}
//
// The chain order is fixed:
//
//  1. Middlewares registered with Builder.Middleware, in declared order
//  2. Middlewares contributed by extensions, in extension order
//  3. The handler
//
// # Hooks
//
// Hooks observe dispatches without becoming part of the chain:
//
//	b := commandbus.NewBuilder(
//	    commandbus.WithOnSuccess(func(ctx context.Context, commandType string, d time.Duration) {
//	        metrics.Timing("commandbus.success", d, "command:"+commandType)
//	    }),
//	    commandbus.WithOnNoHandler(func(ctx context.Context, commandType string) error {
//	        return nil // skip
//	    }),
//	)
//
// Extensions may implement OnDispatchHook, OnSuccessHook or OnFailureHook.
// Extension hooks run after global hooks.
//
// # Error Handling
//
// Dispatch failures are returned as *DispatchError carrying the command type.
// Use errors.Is and errors.As to inspect the cause:
//
//	if errors.Is(err, commandbus.ErrNoHandler) {
//	    // nothing registered for the command type
//	}
//
// # Thread Safety
//
// Builder is not safe for concurrent use. Dispatcher is immutable and safe for
// concurrent use. Handlers may dispatch follow-up commands through the
// dispatcher returned by FromContext.
package commandbus
