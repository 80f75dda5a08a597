package assembly

import (
	"context"
	"fmt"

	"github.com/bjaus/commandbus"
	"github.com/bjaus/commandbus/retry"
)

// Contributions are the extensions and middlewares named in configuration
// followed by those supplied in code, in that order.
type Contributions struct {
	Extensions  []commandbus.Extension
	Middlewares []commandbus.Middleware
}

// CollectContributions resolves the configured references in env and appends
// the supplied values. A reference lacking the capability fails with
// *InvalidContributionError.
func CollectContributions(cfg *Config, env Resolver, exts []commandbus.Extension, mws []commandbus.Middleware) (Contributions, error) {
	var c Contributions

	for _, ref := range cfg.Extensions {
		ext, err := resolveAs[commandbus.Extension](env, "extension", ref)
		if err != nil {
			return Contributions{}, err
		}
		c.Extensions = append(c.Extensions, ext)
	}
	c.Extensions = append(c.Extensions, exts...)

	for _, ref := range cfg.Middlewares {
		mw, err := resolveAs[commandbus.Middleware](env, "middleware", ref)
		if err != nil {
			return Contributions{}, err
		}
		c.Middlewares = append(c.Middlewares, mw)
	}
	c.Middlewares = append(c.Middlewares, mws...)

	return c, nil
}

// ResolveRetries builds the retry resolver from configuration. The reference
// "throw" always means retry.Throw; any other reference is resolved in env.
// An empty default means retry.Throw.
func ResolveRetries(cfg RetriesConfig, env Resolver) (*retry.Resolver, error) {
	var def retry.Policy
	if cfg.Default != "" {
		p, err := resolvePolicy(env, cfg.Default)
		if err != nil {
			return nil, fmt.Errorf("retries default: %w", err)
		}
		def = p
	}

	overrides := make(map[string]retry.Policy, len(cfg.Policies))
	for commandType, ref := range cfg.Policies {
		if ref == "" {
			continue
		}
		p, err := resolvePolicy(env, ref)
		if err != nil {
			return nil, fmt.Errorf("retries %s: %w", commandType, err)
		}
		overrides[commandType] = p
	}
	return retry.NewResolver(def, overrides), nil
}

func resolvePolicy(env Resolver, ref string) (retry.Policy, error) {
	if ref == BuiltinThrow {
		return retry.Throw, nil
	}
	return resolveAs[retry.Policy](env, "retry policy", ref)
}

// resolveAs resolves ref in env and asserts the result implements T.
func resolveAs[T any](env Resolver, kind, ref string) (T, error) {
	var zero T
	if env == nil {
		return zero, &InvalidContributionError{Kind: kind, Ref: ref, Err: fmt.Errorf("%q: %w", ref, ErrNotFound)}
	}
	v, err := env.Resolve(ref)
	if err != nil {
		return zero, &InvalidContributionError{Kind: kind, Ref: ref, Err: err}
	}
	t, ok := v.(T)
	if !ok {
		return zero, &InvalidContributionError{Kind: kind, Ref: ref, Err: fmt.Errorf("%T does not implement %s", v, kind)}
	}
	return t, nil
}

// lazyHandler resolves ref in env on every call and invokes the result.
// Resolution failures surface as dispatch errors.
func lazyHandler(env Resolver, ref string) commandbus.Handler {
	return commandbus.HandlerFunc(func(ctx context.Context, msg commandbus.Message) error {
		if env == nil {
			return &InvalidContributionError{Kind: "handler", Ref: ref, Err: fmt.Errorf("%q: %w", ref, ErrNotFound)}
		}
		v, err := env.Resolve(ref)
		if err != nil {
			return &InvalidContributionError{Kind: "handler", Ref: ref, Err: err}
		}
		switch h := v.(type) {
		case commandbus.Handler:
			return h.Handle(ctx, msg)
		case func(context.Context, commandbus.Message) error:
			return h(ctx, msg)
		default:
			return &InvalidContributionError{Kind: "handler", Ref: ref, Err: fmt.Errorf("%T does not implement handler", v)}
		}
	})
}
