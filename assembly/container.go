package assembly

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrNotFound is returned by a Resolver when no entry exists for a name.
var ErrNotFound = errors.New("not found")

// Resolver looks up named services: handlers, transports, retry policies,
// extensions and middlewares. Implementations return an error wrapping
// ErrNotFound for unknown names.
type Resolver interface {
	Resolve(name string) (any, error)
}

// ResolverFunc is a function adapter for Resolver.
type ResolverFunc func(name string) (any, error)

// Resolve implements the Resolver interface.
func (f ResolverFunc) Resolve(name string) (any, error) {
	return f(name)
}

type entry struct {
	value   any
	factory func() (any, error)
}

// Container is a concurrency-safe Resolver backed by values and factories.
type Container struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// NewContainer creates an empty container.
func NewContainer() *Container {
	return &Container{entries: make(map[string]*entry)}
}

// Set registers a value under name, replacing any earlier entry.
func (c *Container) Set(name string, v any) *Container {
	return c.put(name, &entry{value: v})
}

// Factory registers a factory that runs on every Resolve.
func (c *Container) Factory(name string, fn func() (any, error)) *Container {
	return c.put(name, &entry{factory: fn})
}

// Singleton registers a factory that runs on the first Resolve. Its value or
// error is returned for every later call.
func (c *Container) Singleton(name string, fn func() (any, error)) *Container {
	var (
		once  sync.Once
		value any
		err   error
	)
	return c.put(name, &entry{
		factory: func() (any, error) {
			once.Do(func() { value, err = fn() })
			return value, err
		},
	})
}

func (c *Container) put(name string, e *entry) *Container {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[name] = e
	return c
}

// Resolve implements the Resolver interface.
func (c *Container) Resolve(name string) (any, error) {
	c.mu.RLock()
	e, ok := c.entries[name]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrNotFound)
	}
	if e.factory == nil {
		return e.value, nil
	}
	v, err := e.factory()
	if err != nil {
		return nil, fmt.Errorf("%q: %w", name, err)
	}
	return v, nil
}

// Has reports whether name is registered.
func (c *Container) Has(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.entries[name]
	return ok
}

// Names returns the registered names, sorted.
func (c *Container) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.entries))
	for name := range c.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var _ Resolver = (*Container)(nil)
