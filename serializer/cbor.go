package serializer

import (
	"github.com/fxamacker/cbor/v2"

	"github.com/bjaus/commandbus"
	"github.com/bjaus/commandbus/internal/options"
	"github.com/bjaus/commandbus/remote"
)

// CBOR serializes commands as CBOR.
type CBOR struct {
	types commandbus.TypeRegistry
	enc   cbor.EncMode
}

type cborOptions struct {
	// Canonical selects the RFC 8949 core deterministic encoding.
	Canonical bool `mapstructure:"canonical"`
}

// NewCBOR creates the CBOR serializer.
//
// Options:
//   - canonical: use deterministic encoding (sorted map keys, shortest forms)
func NewCBOR(types commandbus.TypeRegistry, opts map[string]any) (remote.Serializer, error) {
	var o cborOptions
	if err := options.Decode(opts, &o); err != nil {
		return nil, err
	}

	encOpts := cbor.EncOptions{}
	if o.Canonical {
		encOpts = cbor.CoreDetEncOptions()
	}
	enc, err := encOpts.EncMode()
	if err != nil {
		return nil, err
	}

	return &CBOR{types: types, enc: enc}, nil
}

// Serialize implements remote.Serializer.
func (c *CBOR) Serialize(msg commandbus.Message) (remote.Envelope, error) {
	payload, err := c.enc.Marshal(msg.Command)
	if err != nil {
		return remote.Envelope{}, err
	}
	return remote.NewEnvelope(msg.Type, payload, msg.Headers), nil
}

// Deserialize implements remote.Serializer.
func (c *CBOR) Deserialize(env remote.Envelope) (commandbus.Message, error) {
	cmd, err := decodeInto(c.types, env.Type, func(ptr any) error {
		return cbor.Unmarshal(env.Payload, ptr)
	})
	if err != nil {
		return commandbus.Message{}, err
	}
	return message(env, cmd), nil
}
