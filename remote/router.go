package remote

import (
	"context"
	"sync"

	"github.com/tidwall/match"
)

// Route maps a command-type pattern to a transport.
type Route struct {
	Pattern   string
	Transport Transport
}

// Router picks a transport for each command type.
//
// Routes are tried in declaration order and the first matching pattern wins.
// Commands matching no route go to the default transport. Patterns use glob
// syntax: '*' matches any sequence of characters, '?' matches one.
//
// Router is itself a Transport: Send routes by Envelope.Type and Receive reads
// from the default transport.
type Router struct {
	def    Transport
	routes []Route

	// Decisions for command types matching a route are cached. The cache
	// grows with the set of distinct routed types; unmatched types are
	// resolved on every call.
	cache sync.Map // map[string]Transport
}

// NewRouter creates a router over an ordered route list.
//
// Example:
//
//	r := remote.NewRouter(events,
//	    remote.Route{Pattern: "orders.*", Transport: orders},
//	    remote.Route{Pattern: "billing.?nvoice", Transport: billing},
//	)
func NewRouter(def Transport, routes ...Route) *Router {
	return &Router{
		def:    def,
		routes: append([]Route(nil), routes...),
	}
}

// Match reports whether commandType matches the glob pattern.
func Match(pattern, commandType string) bool {
	return match.Match(commandType, pattern)
}

// Route returns the transport for the command type.
func (r *Router) Route(commandType string) Transport {
	if t, ok := r.cache.Load(commandType); ok {
		return t.(Transport)
	}

	for _, route := range r.routes {
		if Match(route.Pattern, commandType) {
			r.cache.Store(commandType, route.Transport)
			return route.Transport
		}
	}
	return r.def
}

// Send sends the envelope through the transport routed for its type.
func (r *Router) Send(ctx context.Context, env Envelope) error {
	return r.Route(env.Type).Send(ctx, env)
}

// Receive reads from the default transport.
func (r *Router) Receive(ctx context.Context) (Envelope, error) {
	return r.def.Receive(ctx)
}

var _ Transport = (*Router)(nil)
