package commandbus

import (
	"context"
	"fmt"
	"maps"
	"reflect"
)

// Typed is implemented by commands that name their own command type. Commands
// that don't implement it are identified by their Go type (see TypeOf).
//
// Example:
//
//	type CreateOrder struct {
//	    OrderID string `json:"order_id"`
//	}
//
//	func (CreateOrder) CommandType() string { return "orders.create" }
type Typed interface {
	CommandType() string
}

// TypeOf returns the command-type identifier for cmd.
//
// Commands implementing Typed return their own identifier. Everything else is
// identified by its dereferenced Go type, so *orders.CreateOrder and
// orders.CreateOrder both map to "orders.CreateOrder". A nil command has an
// empty identifier.
func TypeOf(cmd any) string {
	if cmd == nil {
		return ""
	}
	if t, ok := cmd.(Typed); ok {
		return t.CommandType()
	}
	rt := reflect.TypeOf(cmd)
	for rt.Kind() == reflect.Pointer {
		rt = rt.Elem()
	}
	return rt.String()
}

// Headers carries string metadata alongside a command. Headers travel with the
// message through middlewares and, for remote dispatch, across transports.
type Headers map[string]string

// Get returns the header value for key, or "" if absent.
func (h Headers) Get(key string) string {
	return h[key]
}

// Has reports whether the header is present.
func (h Headers) Has(key string) bool {
	_, ok := h[key]
	return ok
}

// Clone returns a copy of the headers. Cloning a nil Headers yields an empty,
// non-nil map.
func (h Headers) Clone() Headers {
	out := make(Headers, len(h))
	maps.Copy(out, h)
	return out
}

// Message is a command on its way through the dispatch pipeline.
type Message struct {
	// Type is the command-type identifier used for handler lookup, routing
	// and retry policy resolution.
	Type string

	// Command is the command value itself.
	Command any

	// Headers holds metadata. Treat it as read-only and use WithHeader to
	// derive a message with changed headers.
	Headers Headers
}

// NewMessage wraps cmd in a Message identified by TypeOf(cmd).
func NewMessage(cmd any) Message {
	return Message{Type: TypeOf(cmd), Command: cmd, Headers: Headers{}}
}

// WithHeader returns a copy of the message with the header set. The receiver's
// headers are left untouched.
func (m Message) WithHeader(key, value string) Message {
	h := m.Headers.Clone()
	h[key] = value
	m.Headers = h
	return m
}

// Handler processes a single command.
//
// Example:
//
//	type CreateOrderHandler struct {
//	    db *sql.DB
//	}
//
//	func (h *CreateOrderHandler) Handle(ctx context.Context, msg commandbus.Message) error {
//	    cmd := msg.Command.(orders.CreateOrder)
//	    _, err := h.db.ExecContext(ctx, "INSERT INTO orders ...", cmd.OrderID)
//	    return err
//	}
type Handler interface {
	Handle(ctx context.Context, msg Message) error
}

// HandlerFunc is a function adapter for Handler.
type HandlerFunc func(ctx context.Context, msg Message) error

// Handle implements the Handler interface.
func (f HandlerFunc) Handle(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// HandleFunc adapts a function taking a typed command into a Handler. The
// command may have been dispatched as T or *T.
//
//	b.Handle("orders.CreateOrder", commandbus.HandleFunc(func(ctx context.Context, cmd orders.CreateOrder) error {
//	    return nil
//	}))
func HandleFunc[T any](fn func(ctx context.Context, cmd T) error) Handler {
	return HandlerFunc(func(ctx context.Context, msg Message) error {
		switch c := msg.Command.(type) {
		case T:
			return fn(ctx, c)
		case *T:
			if c != nil {
				return fn(ctx, *c)
			}
		}
		var zero T
		return fmt.Errorf("command %s: got %T, want %T", msg.Type, msg.Command, zero)
	})
}

// TypeRegistry creates empty command values by command type. Serializers use
// it to decode payloads received from a transport.
type TypeRegistry interface {
	// New returns a pointer to a fresh zero value for the command type, or
	// false if the type is unknown.
	New(commandType string) (any, bool)
}

// FactoryMap is a simple TypeRegistry keyed by command type.
type FactoryMap map[string]func() any

// New implements TypeRegistry.
func (m FactoryMap) New(commandType string) (any, bool) {
	if f, ok := m[commandType]; ok {
		return f(), true
	}
	return nil, false
}

// RegisterType adds T to the map under its command type and returns the
// identifier.
func RegisterType[T any](m FactoryMap) string {
	var zero T
	name := TypeOf(&zero)
	m[name] = func() any { return new(T) }
	return name
}

var _ TypeRegistry = (FactoryMap)(nil)
