// Package remote sends commands to other processes through transports.
//
// A Transport moves Envelopes. A Serializer turns a commandbus.Message into an
// Envelope and back. The Router picks a transport per command type from an
// ordered table of glob patterns, and the Extension installs the middleware
// that sends non-local commands instead of handling them in-process.
package remote

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/bjaus/commandbus"
)

// ErrClosed is returned by transports after Close.
var ErrClosed = errors.New("transport closed")

// Envelope is a serialized command as it travels over a transport.
type Envelope struct {
	ID      string
	Type    string
	Payload []byte
	Headers commandbus.Headers
}

// NewEnvelope creates an envelope with a fresh ID. The headers are copied.
func NewEnvelope(commandType string, payload []byte, headers commandbus.Headers) Envelope {
	return Envelope{
		ID:      uuid.NewString(),
		Type:    commandType,
		Payload: payload,
		Headers: headers.Clone(),
	}
}

// Transport sends and receives envelopes.
//
// Implementations must not perform network I/O when constructed; connections
// are opened on first use.
type Transport interface {
	Send(ctx context.Context, env Envelope) error

	// Receive blocks until an envelope is available or ctx is done.
	Receive(ctx context.Context) (Envelope, error)
}

// Serializer converts messages to envelopes and back.
type Serializer interface {
	Serialize(msg commandbus.Message) (Envelope, error)
	Deserialize(env Envelope) (commandbus.Message, error)
}
