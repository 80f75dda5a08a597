package assembly

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Environment variables read by Load and LoadFromEnv.
const (
	EnvConfig           = "COMMANDBUS_CONFIG"
	EnvRemoteEnabled    = "COMMANDBUS_REMOTE_ENABLED"
	EnvTransportDefault = "COMMANDBUS_TRANSPORT_DEFAULT"
	EnvLogLevel         = "COMMANDBUS_LOG_LEVEL"
	EnvLogFormat        = "COMMANDBUS_LOG_FORMAT"
)

// BuiltinThrow is the retry reference that always resolves to retry.Throw.
const BuiltinThrow = "throw"

// Config is the declarative description of a command bus.
type Config struct {
	Remote      RemoteConfig  `yaml:"remote"`
	Retries     RetriesConfig `yaml:"retries"`
	Handlers    Handlers      `yaml:"handlers"`
	Extensions  []string      `yaml:"extensions"`
	Middlewares []string      `yaml:"middlewares"`
	Logging     LoggingConfig `yaml:"logging"`
}

// RemoteConfig controls sending commands through transports.
type RemoteConfig struct {
	Enabled    bool             `yaml:"enabled"`
	Serializer SerializerConfig `yaml:"serializer"`
	Transport  TransportSection `yaml:"transport"`

	// Local lists command types that are always handled in-process.
	Local []string `yaml:"local"`
}

// SerializerConfig selects a serializer type and its options.
type SerializerConfig struct {
	Type    string         `yaml:"type"`
	Options map[string]any `yaml:"options"`
}

// TransportSection declares the transports and how commands are routed to
// them.
type TransportSection struct {
	// Default names the connection used when no route matches. Empty means
	// the first declared connection.
	Default     string      `yaml:"default"`
	Connections Connections `yaml:"connections"`
	Routes      Routes      `yaml:"routes"`
}

// RetriesConfig maps command types to retry policy references.
type RetriesConfig struct {
	Default  string            `yaml:"default"`
	Policies map[string]string `yaml:"policies"`
}

// RefFor returns the policy reference used for the command type: the exact
// override, else the default, else BuiltinThrow.
func (r RetriesConfig) RefFor(commandType string) string {
	if ref, ok := r.Policies[commandType]; ok && ref != "" {
		return ref
	}
	if r.Default != "" {
		return r.Default
	}
	return BuiltinThrow
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Format    string `yaml:"format"`
	Level     string `yaml:"level"`
	AddSource bool   `yaml:"add_source"`
}

// TransportConfig is one connection entry. It is either a string (an
// environment reference or a DSN) or a record with a DSN and options.
type TransportConfig struct {
	Ref    string
	Record *TransportRecord
}

// TransportRecord is the record form of a TransportConfig. URL is accepted as
// an alias for DSN.
type TransportRecord struct {
	DSN     string         `yaml:"dsn"`
	URL     string         `yaml:"url"`
	Options map[string]any `yaml:"options"`
}

// Address returns the DSN, falling back to URL.
func (r TransportRecord) Address() string {
	if r.DSN != "" {
		return r.DSN
	}
	return r.URL
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (c *TransportConfig) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		return n.Decode(&c.Ref)
	case yaml.MappingNode:
		var r TransportRecord
		if err := n.Decode(&r); err != nil {
			return err
		}
		c.Record = &r
		return nil
	default:
		return fmt.Errorf("line %d: transport must be a string or a mapping", n.Line)
	}
}

// Connection is a named transport entry.
type Connection struct {
	Key       string
	Transport TransportConfig
}

// Connections keeps transport entries in declaration order.
type Connections []Connection

// Keys returns the connection keys in declaration order.
func (c Connections) Keys() []string {
	keys := make([]string, len(c))
	for i, conn := range c {
		keys[i] = conn.Key
	}
	return keys
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (c *Connections) UnmarshalYAML(n *yaml.Node) error {
	return pairs(n, func(key string, value *yaml.Node) error {
		var tc TransportConfig
		if err := value.Decode(&tc); err != nil {
			return fmt.Errorf("connection %s: %w", key, err)
		}
		*c = append(*c, Connection{Key: key, Transport: tc})
		return nil
	})
}

// RouteConfig maps a command type pattern to a connection key.
type RouteConfig struct {
	Pattern   string
	Transport string
}

// Routes keeps route entries in declaration order.
type Routes []RouteConfig

// UnmarshalYAML implements yaml.Unmarshaler.
func (r *Routes) UnmarshalYAML(n *yaml.Node) error {
	return pairs(n, func(key string, value *yaml.Node) error {
		var target string
		if err := value.Decode(&target); err != nil {
			return fmt.Errorf("route %s: %w", key, err)
		}
		*r = append(*r, RouteConfig{Pattern: key, Transport: target})
		return nil
	})
}

// HandlerBinding binds a command type to a handler reference.
type HandlerBinding struct {
	Type string
	Ref  string
}

// Handlers keeps handler bindings in declaration order. Duplicate command
// types are kept; the later binding wins when the dispatcher is built.
type Handlers []HandlerBinding

// UnmarshalYAML implements yaml.Unmarshaler.
func (h *Handlers) UnmarshalYAML(n *yaml.Node) error {
	return pairs(n, func(key string, value *yaml.Node) error {
		var ref string
		if err := value.Decode(&ref); err != nil {
			return fmt.Errorf("handler %s: %w", key, err)
		}
		*h = append(*h, HandlerBinding{Type: key, Ref: ref})
		return nil
	})
}

// pairs walks a mapping node in document order without rejecting duplicate
// keys.
func pairs(n *yaml.Node, fn func(key string, value *yaml.Node) error) error {
	if n.Kind == yaml.ScalarNode && n.ShortTag() == "!!null" {
		return nil
	}
	if n.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: expected a mapping", n.Line)
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		var key string
		if err := n.Content[i].Decode(&key); err != nil {
			return err
		}
		if err := fn(key, n.Content[i+1]); err != nil {
			return err
		}
	}
	return nil
}

// Parse decodes a YAML (or JSON) document. Unknown top-level fields are
// rejected. An empty document yields the zero Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

// Load reads the file at path and applies environment overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromEnv loads the file named by COMMANDBUS_CONFIG, else commandbus.yaml
// in the working directory. Without either, the zero Config with environment
// overrides is returned.
func LoadFromEnv() (*Config, error) {
	path, err := findConfigPath()
	if err != nil {
		return nil, err
	}
	if path != "" {
		return Load(path)
	}

	cfg := &Config{}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func findConfigPath() (string, error) {
	if value := strings.TrimSpace(os.Getenv(EnvConfig)); value != "" {
		if info, err := os.Stat(value); err == nil && !info.IsDir() {
			return value, nil
		}
		return "", fmt.Errorf("%s does not point to a file: %s", EnvConfig, value)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get current working directory: %w", err)
	}

	for _, name := range []string{"commandbus.yaml", "commandbus.yml"} {
		candidate := filepath.Join(cwd, name)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}
	return "", nil
}

// applyEnvOverrides injects env-driven settings on top of file config.
func applyEnvOverrides(cfg *Config) error {
	if cfg == nil {
		return nil
	}

	if raw := strings.TrimSpace(os.Getenv(EnvRemoteEnabled)); raw != "" {
		enabled, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvRemoteEnabled, err)
		}
		cfg.Remote.Enabled = enabled
	}

	if value := strings.TrimSpace(os.Getenv(EnvTransportDefault)); value != "" {
		cfg.Remote.Transport.Default = value
	}

	if value := strings.TrimSpace(os.Getenv(EnvLogLevel)); value != "" {
		cfg.Logging.Level = value
	}

	if value := strings.TrimSpace(os.Getenv(EnvLogFormat)); value != "" {
		cfg.Logging.Format = value
	}
	return nil
}
