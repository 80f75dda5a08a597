package retry

import (
	"maps"
)

// Resolver picks the retry policy for a command type.
//
// Lookup is by exact command type only; patterns are not supported.
// Command types without an override use the default policy, and Throw when no
// default is set.
type Resolver struct {
	def       Policy
	overrides map[string]Policy
}

// NewResolver creates a resolver. A nil def means Throw.
func NewResolver(def Policy, overrides map[string]Policy) *Resolver {
	if def == nil {
		def = Throw
	}
	return &Resolver{
		def:       def,
		overrides: maps.Clone(overrides),
	}
}

// PolicyFor returns the policy for the command type.
func (r *Resolver) PolicyFor(commandType string) Policy {
	if p, ok := r.overrides[commandType]; ok && p != nil {
		return p
	}
	return r.def
}

// Default returns the policy used for command types without an override.
func (r *Resolver) Default() Policy {
	return r.def
}
