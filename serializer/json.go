package serializer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/bjaus/commandbus"
	"github.com/bjaus/commandbus/internal/options"
	"github.com/bjaus/commandbus/remote"
)

// ErrInvalidJSON is returned when a payload is not valid JSON.
var ErrInvalidJSON = errors.New("invalid JSON")

// JSON serializes commands with encoding/json.
//
// With no options the payload is the command object itself. The type_path and
// payload_path options describe an envelope document instead, which lets the
// bus exchange commands with producers that wrap them:
//
//	{"kind": "orders.CreateOrder", "data": {"order_id": "42"}}
//
// is read and written with type_path "kind" and payload_path "data". Paths use
// dotted gjson syntax.
type JSON struct {
	types       commandbus.TypeRegistry
	typePath    string
	payloadPath string
}

type jsonOptions struct {
	TypePath    string `mapstructure:"type_path"`
	PayloadPath string `mapstructure:"payload_path"`
}

// NewJSON creates the JSON serializer.
//
// Options:
//   - type_path: path of the command type inside the document
//   - payload_path: path of the command object inside the document
func NewJSON(types commandbus.TypeRegistry, opts map[string]any) (remote.Serializer, error) {
	var o jsonOptions
	if err := options.Decode(opts, &o); err != nil {
		return nil, err
	}
	if overlaps(o.TypePath, o.PayloadPath) {
		return nil, fmt.Errorf("type_path %q and payload_path %q overlap", o.TypePath, o.PayloadPath)
	}
	return &JSON{types: types, typePath: o.TypePath, payloadPath: o.PayloadPath}, nil
}

// overlaps reports whether writing one path would clobber the other: the
// paths are equal or one is a parent of the other.
func overlaps(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return a == b || strings.HasPrefix(a, b+".") || strings.HasPrefix(b, a+".")
}

// Serialize implements remote.Serializer.
func (j *JSON) Serialize(msg commandbus.Message) (remote.Envelope, error) {
	payload, err := json.Marshal(msg.Command)
	if err != nil {
		return remote.Envelope{}, err
	}

	if j.typePath != "" || j.payloadPath != "" {
		payload, err = j.wrap(msg.Type, payload)
		if err != nil {
			return remote.Envelope{}, err
		}
	}

	return remote.NewEnvelope(msg.Type, payload, msg.Headers), nil
}

func (j *JSON) wrap(commandType string, payload []byte) ([]byte, error) {
	doc := map[string]any{}
	if j.payloadPath != "" {
		setPath(doc, j.payloadPath, json.RawMessage(payload))
	} else {
		// The command object is the document; the type is written into it.
		dec := json.NewDecoder(bytes.NewReader(payload))
		dec.UseNumber()
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("type_path requires a JSON object command: %w", err)
		}
	}
	if j.typePath != "" {
		setPath(doc, j.typePath, commandType)
	}
	return json.Marshal(doc)
}

// Deserialize implements remote.Serializer. When type_path is set and present
// in the document it takes precedence over the envelope type.
func (j *JSON) Deserialize(env remote.Envelope) (commandbus.Message, error) {
	if !gjson.ValidBytes(env.Payload) {
		return commandbus.Message{}, ErrInvalidJSON
	}

	if j.typePath != "" {
		if r := gjson.GetBytes(env.Payload, j.typePath); r.Exists() && r.Type == gjson.String {
			env.Type = r.String()
		}
	}

	raw := env.Payload
	if j.payloadPath != "" {
		r := gjson.GetBytes(env.Payload, j.payloadPath)
		if !r.Exists() {
			return commandbus.Message{}, fmt.Errorf("payload path %q not found", j.payloadPath)
		}
		raw = []byte(r.Raw)
	}

	cmd, err := decodeInto(j.types, env.Type, func(ptr any) error {
		return json.Unmarshal(raw, ptr)
	})
	if err != nil {
		return commandbus.Message{}, err
	}
	return message(env, cmd), nil
}

// setPath stores v at a dotted path, creating intermediate objects.
func setPath(doc map[string]any, path string, v any) {
	parts := strings.Split(path, ".")
	for _, p := range parts[:len(parts)-1] {
		next, ok := doc[p].(map[string]any)
		if !ok {
			next = map[string]any{}
			doc[p] = next
		}
		doc = next
	}
	doc[parts[len(parts)-1]] = v
}
