package serializer

import (
	"bytes"
	"encoding/gob"

	"github.com/bjaus/commandbus"
	"github.com/bjaus/commandbus/internal/options"
	"github.com/bjaus/commandbus/remote"
)

// Native serializes commands with encoding/gob. It is only suitable when both
// ends of the transport are Go processes sharing the command types.
type Native struct {
	types commandbus.TypeRegistry
}

// NewNative creates the native serializer. It takes no options.
func NewNative(types commandbus.TypeRegistry, opts map[string]any) (remote.Serializer, error) {
	if err := options.Decode(opts, &struct{}{}); err != nil {
		return nil, err
	}
	return &Native{types: types}, nil
}

// Serialize implements remote.Serializer.
func (n *Native) Serialize(msg commandbus.Message) (remote.Envelope, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(msg.Command); err != nil {
		return remote.Envelope{}, err
	}
	return remote.NewEnvelope(msg.Type, buf.Bytes(), msg.Headers), nil
}

// Deserialize implements remote.Serializer.
func (n *Native) Deserialize(env remote.Envelope) (commandbus.Message, error) {
	cmd, err := decodeInto(n.types, env.Type, func(ptr any) error {
		return gob.NewDecoder(bytes.NewReader(env.Payload)).Decode(ptr)
	})
	if err != nil {
		return commandbus.Message{}, err
	}
	return message(env, cmd), nil
}
