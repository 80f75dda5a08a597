package assembly

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"

	"github.com/bjaus/commandbus/remote"
)

type registryEntry struct {
	cfg       TransportConfig
	once      sync.Once
	transport remote.Transport
	owned     bool
	err       error
}

// TransportRegistry resolves connection entries to transports. Each key is
// constructed at most once, on first use, and the outcome is kept for the
// lifetime of the registry.
type TransportRegistry struct {
	keys    []string
	entries map[string]*registryEntry
	env     Resolver
	factory *TransportFactory
}

// NewTransportRegistry creates a registry over conns. References are looked
// up in env, which may be nil. When a key is declared twice the later entry
// wins and the key keeps its first position.
func NewTransportRegistry(conns Connections, env Resolver, factory *TransportFactory) *TransportRegistry {
	if factory == nil {
		factory = NewTransportFactory(nil)
	}
	r := &TransportRegistry{
		entries: make(map[string]*registryEntry, len(conns)),
		env:     env,
		factory: factory,
	}
	for _, c := range conns {
		if _, ok := r.entries[c.Key]; !ok {
			r.keys = append(r.keys, c.Key)
		}
		r.entries[c.Key] = &registryEntry{cfg: c.Transport}
	}
	return r
}

// Keys returns the connection keys in declaration order.
func (r *TransportRegistry) Keys() []string {
	return slices.Clone(r.keys)
}

// Has reports whether key is declared.
func (r *TransportRegistry) Has(key string) bool {
	_, ok := r.entries[key]
	return ok
}

// Len returns the number of declared connections.
func (r *TransportRegistry) Len() int {
	return len(r.keys)
}

// Resolve returns the transport for key, constructing it on first call. Safe
// for concurrent use.
func (r *TransportRegistry) Resolve(key string) (remote.Transport, error) {
	e, ok := r.entries[key]
	if !ok {
		return nil, &UnknownTransportError{Key: key, Available: r.Keys()}
	}
	e.once.Do(func() {
		e.transport, e.owned, e.err = r.build(key, e.cfg)
	})
	return e.transport, e.err
}

// build constructs the transport for an entry. owned is false for
// transports taken from the environment.
func (r *TransportRegistry) build(key string, cfg TransportConfig) (t remote.Transport, owned bool, err error) {
	if cfg.Record != nil {
		dsn := cfg.Record.Address()
		if dsn == "" {
			return nil, false, &InvalidTransportError{Key: key, Err: errors.New("record has no dsn")}
		}
		t, err = r.create(key, dsn, cfg.Record.Options)
		return t, err == nil, err
	}

	if cfg.Ref == "" {
		return nil, false, &InvalidTransportError{Key: key}
	}

	if r.env != nil {
		v, err := r.env.Resolve(cfg.Ref)
		switch {
		case err == nil:
			t, ok := v.(remote.Transport)
			if !ok {
				return nil, false, &InvalidTransportError{
					Key: key,
					Err: fmt.Errorf("%s is %T, not a remote.Transport", cfg.Ref, v),
				}
			}
			return t, false, nil
		case !errors.Is(err, ErrNotFound):
			return nil, false, &InvalidTransportError{Key: key, Err: err}
		}
	}

	if IsDSN(cfg.Ref) {
		t, err = r.create(key, cfg.Ref, nil)
		return t, err == nil, err
	}
	return nil, false, &InvalidTransportError{Key: key}
}

func (r *TransportRegistry) create(key, dsn string, opts map[string]any) (remote.Transport, error) {
	t, err := r.factory.Create(dsn, opts)
	if err != nil {
		return nil, fmt.Errorf("transport %s: %w", key, err)
	}
	return t, nil
}

// Close closes every transport the registry constructed that implements
// io.Closer. Transports taken from the environment are left to their owner.
// Keys not yet resolved fail with remote.ErrClosed afterwards.
func (r *TransportRegistry) Close() error {
	var errs []error
	for _, key := range r.keys {
		e := r.entries[key]
		e.once.Do(func() {
			e.err = &InvalidTransportError{Key: key, Err: remote.ErrClosed}
		})
		if !e.owned {
			continue
		}
		if c, ok := e.transport.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close transport %s: %w", key, err))
			}
		}
	}
	return errors.Join(errs...)
}
