package assembly

import (
	"fmt"
	"slices"

	"github.com/bjaus/commandbus/remote"
)

// RouteTable is the validated routing decision over connection keys.
//
// With no connections the table is empty and Lookup returns "". With one
// connection every command type maps to it. Otherwise routes are tried in
// declared order and the default key is used when none matches.
type RouteTable struct {
	keys   []string
	def    string
	routes []RouteConfig
}

// NewRouteTable validates section against the declared connection keys. The
// default and every route must name a declared key, otherwise
// *UnknownTransportError is returned. Routes are ignored when there are no
// connections.
func NewRouteTable(section TransportSection, keys []string) (*RouteTable, error) {
	if len(keys) == 0 {
		return &RouteTable{}, nil
	}

	t := &RouteTable{
		keys:   slices.Clone(keys),
		def:    section.Default,
		routes: slices.Clone(section.Routes),
	}
	if t.def == "" {
		t.def = keys[0]
	}

	if !slices.Contains(keys, t.def) {
		return nil, &UnknownTransportError{Key: t.def, Available: t.Keys()}
	}
	for _, r := range t.routes {
		if !slices.Contains(keys, r.Transport) {
			return nil, fmt.Errorf("route %s: %w", r.Pattern, &UnknownTransportError{Key: r.Transport, Available: t.Keys()})
		}
	}
	return t, nil
}

// Keys returns the connection keys in declaration order.
func (t *RouteTable) Keys() []string {
	return slices.Clone(t.keys)
}

// Default returns the default key, or "" when there are no connections.
func (t *RouteTable) Default() string {
	return t.def
}

// Routes returns the routes in declared order.
func (t *RouteTable) Routes() []RouteConfig {
	return slices.Clone(t.routes)
}

// Lookup returns the key a command type is sent through.
func (t *RouteTable) Lookup(commandType string) string {
	switch len(t.keys) {
	case 0:
		return ""
	case 1:
		return t.keys[0]
	}
	for _, r := range t.routes {
		if remote.Match(r.Pattern, commandType) {
			return r.Transport
		}
	}
	return t.def
}

// BuildTransport selects the transport for a validated table: the fallback
// transport for no connections, the single transport for one, and a
// remote.Router over the resolved transports otherwise. Every key the router
// references is resolved here.
func BuildTransport(table *RouteTable, reg *TransportRegistry) (remote.Transport, error) {
	switch len(table.keys) {
	case 0:
		return reg.factory.Default(), nil
	case 1:
		return reg.Resolve(table.keys[0])
	}

	def, err := reg.Resolve(table.def)
	if err != nil {
		return nil, err
	}

	routes := make([]remote.Route, 0, len(table.routes))
	for _, r := range table.routes {
		t, err := reg.Resolve(r.Transport)
		if err != nil {
			return nil, err
		}
		routes = append(routes, remote.Route{Pattern: r.Pattern, Transport: t})
	}
	return remote.NewRouter(def, routes...), nil
}
