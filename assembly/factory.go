package assembly

import (
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/bjaus/commandbus/remote"
	"github.com/bjaus/commandbus/remote/amqp"
	"github.com/bjaus/commandbus/remote/kafka"
	"github.com/bjaus/commandbus/remote/memory"
	"github.com/bjaus/commandbus/remote/nats"
)

// DefaultDSN is the DSN of the fallback transport.
const DefaultDSN = "memory://"

// Constructor creates a transport from a DSN and free-form options. It must
// not perform network I/O.
type Constructor func(dsn string, options map[string]any, logger *slog.Logger) (remote.Transport, error)

// TransportFactory creates transports from DSNs by scheme.
type TransportFactory struct {
	mu      sync.RWMutex
	schemes map[string]Constructor
	logger  *slog.Logger
}

// NewTransportFactory creates a factory with the built-in schemes registered:
// memory, amqp, amqps, nats, tls (NATS over TLS) and kafka. A nil logger means
// slog.Default().
func NewTransportFactory(logger *slog.Logger) *TransportFactory {
	if logger == nil {
		logger = slog.Default()
	}
	f := &TransportFactory{
		schemes: make(map[string]Constructor),
		logger:  logger,
	}
	f.Register("memory", newMemory)
	f.Register("amqp", newAMQP)
	f.Register("amqps", newAMQP)
	f.Register("nats", newNATS)
	f.Register("tls", newNATS)
	f.Register("kafka", newKafka)
	return f
}

// Register adds or replaces the constructor for a scheme.
func (f *TransportFactory) Register(scheme string, c Constructor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.schemes[strings.ToLower(scheme)] = c
}

// Schemes returns the registered schemes, sorted.
func (f *TransportFactory) Schemes() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	names := make([]string, 0, len(f.schemes))
	for s := range f.schemes {
		names = append(names, s)
	}
	sort.Strings(names)
	return names
}

// Create builds the transport for dsn. A DSN without a registered scheme
// fails with *BadTransportDSNError.
func (f *TransportFactory) Create(dsn string, opts map[string]any) (remote.Transport, error) {
	scheme, ok := schemeOf(dsn)
	if !ok {
		return nil, &BadTransportDSNError{DSN: dsn}
	}

	f.mu.RLock()
	c, ok := f.schemes[scheme]
	f.mu.RUnlock()
	if !ok {
		return nil, &BadTransportDSNError{DSN: dsn}
	}

	t, err := c(dsn, opts, f.logger)
	if err != nil {
		return nil, fmt.Errorf("create %s transport: %w", scheme, err)
	}
	return t, nil
}

// Default returns a new fallback transport.
func (f *TransportFactory) Default() remote.Transport {
	return memory.New()
}

// IsDSN reports whether s looks like a DSN: a URL with a scheme followed by
// "://".
func IsDSN(s string) bool {
	_, ok := schemeOf(s)
	return ok
}

func schemeOf(dsn string) (string, bool) {
	if !strings.Contains(dsn, "://") {
		return "", false
	}
	u, err := url.Parse(dsn)
	if err != nil || u.Scheme == "" {
		return "", false
	}
	return strings.ToLower(u.Scheme), true
}

func newMemory(string, map[string]any, *slog.Logger) (remote.Transport, error) {
	return memory.New(), nil
}

func newAMQP(dsn string, opts map[string]any, logger *slog.Logger) (remote.Transport, error) {
	return amqp.New(dsn, opts, amqp.WithLogger(logger))
}

func newNATS(dsn string, opts map[string]any, logger *slog.Logger) (remote.Transport, error) {
	return nats.New(dsn, opts, nats.WithLogger(logger))
}

func newKafka(dsn string, opts map[string]any, logger *slog.Logger) (remote.Transport, error) {
	return kafka.New(dsn, opts, kafka.WithLogger(logger))
}
