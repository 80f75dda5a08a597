// Package serializer resolves named serializers for remote dispatch.
//
// Built-in types:
//   - native: Go's encoding/gob (the default)
//   - json: encoding/json, optionally reading and writing foreign envelopes
//   - cbor: RFC 8949 CBOR
//
// Deserializing needs the Go type behind a command type, so every serializer
// is created with a commandbus.TypeRegistry.
package serializer

import (
	"errors"
	"fmt"
	"reflect"
	"sort"

	"github.com/bjaus/commandbus"
	"github.com/bjaus/commandbus/remote"
)

// Default is the serializer type used when none is configured.
const Default = "native"

// ErrUnknownCommand is returned when an envelope's command type is not in the
// type registry.
var ErrUnknownCommand = errors.New("unknown command type")

// UnresolvedTypeError is returned by Resolve for an unregistered serializer
// type.
type UnresolvedTypeError struct {
	Type      string
	Available []string
}

func (e *UnresolvedTypeError) Error() string {
	return fmt.Sprintf("unresolved serializer type %q (available: %v)", e.Type, e.Available)
}

// Factory creates a serializer from the type registry and free-form options.
type Factory func(types commandbus.TypeRegistry, options map[string]any) (remote.Serializer, error)

// Resolver maps serializer type names to factories.
type Resolver struct {
	factories map[string]Factory
}

// NewResolver creates a resolver with the built-in types registered.
func NewResolver() *Resolver {
	r := &Resolver{factories: make(map[string]Factory)}
	r.Register("native", NewNative)
	r.Register("json", NewJSON)
	r.Register("cbor", NewCBOR)
	return r
}

// Register adds or replaces a serializer type.
func (r *Resolver) Register(name string, f Factory) {
	r.factories[name] = f
}

// Resolve creates the serializer named typ. An empty typ means Default.
func (r *Resolver) Resolve(typ string, types commandbus.TypeRegistry, options map[string]any) (remote.Serializer, error) {
	if typ == "" {
		typ = Default
	}
	f, ok := r.factories[typ]
	if !ok {
		return nil, &UnresolvedTypeError{Type: typ, Available: r.Types()}
	}
	s, err := f(types, options)
	if err != nil {
		return nil, fmt.Errorf("serializer %s: %w", typ, err)
	}
	return s, nil
}

// Types returns the registered type names, sorted.
func (r *Resolver) Types() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// decodeInto creates the command value for commandType and fills it with
// unmarshal. The returned command is a value, not a pointer.
func decodeInto(types commandbus.TypeRegistry, commandType string, unmarshal func(ptr any) error) (any, error) {
	if types == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, commandType)
	}
	ptr, ok := types.New(commandType)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, commandType)
	}
	if err := unmarshal(ptr); err != nil {
		return nil, fmt.Errorf("decode %s: %w", commandType, err)
	}
	return reflect.ValueOf(ptr).Elem().Interface(), nil
}

func message(env remote.Envelope, cmd any) commandbus.Message {
	return commandbus.Message{
		Type:    env.Type,
		Command: cmd,
		Headers: env.Headers.Clone(),
	}
}
