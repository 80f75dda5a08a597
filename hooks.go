package commandbus

import (
	"context"
	"time"
)

// OnDispatchFunc is called before a message enters the middleware chain.
// Use this to enrich the context with logging fields or trace spans.
// The returned context is used for the rest of the dispatch.
type OnDispatchFunc func(ctx context.Context, commandType string) context.Context

// OnSuccessFunc is called after the pipeline completes successfully.
type OnSuccessFunc func(ctx context.Context, commandType string, duration time.Duration)

// OnFailureFunc is called after the pipeline fails.
type OnFailureFunc func(ctx context.Context, commandType string, err error, duration time.Duration)

// OnNoHandlerFunc is called when no handler is registered for the command type.
// Return nil to skip, return an error to fail.
type OnNoHandlerFunc func(ctx context.Context, commandType string) error

// hooks holds all configured hook functions.
type hooks struct {
	onDispatch  []OnDispatchFunc
	onSuccess   []OnSuccessFunc
	onFailure   []OnFailureFunc
	onNoHandler []OnNoHandlerFunc
}

func (h hooks) clone() hooks {
	return hooks{
		onDispatch:  append([]OnDispatchFunc(nil), h.onDispatch...),
		onSuccess:   append([]OnSuccessFunc(nil), h.onSuccess...),
		onFailure:   append([]OnFailureFunc(nil), h.onFailure...),
		onNoHandler: append([]OnNoHandlerFunc(nil), h.onNoHandler...),
	}
}

// Option configures hook behavior.
type Option func(*hooks)

// WithOnDispatch adds a hook called before a message enters the pipeline.
// Multiple hooks are called in order, with context chaining through each.
//
// Example:
//
//	commandbus.WithOnDispatch(func(ctx context.Context, commandType string) context.Context {
//	    return logx.WithCtx(ctx, slog.String("command", commandType))
//	})
func WithOnDispatch(fn OnDispatchFunc) Option {
	return func(h *hooks) {
		h.onDispatch = append(h.onDispatch, fn)
	}
}

// WithOnSuccess adds a hook called after the pipeline completes successfully.
// Multiple hooks are called in order.
//
// Example:
//
//	commandbus.WithOnSuccess(func(ctx context.Context, commandType string, d time.Duration) {
//	    metrics.Timing("commandbus.success", d, "command:"+commandType)
//	})
func WithOnSuccess(fn OnSuccessFunc) Option {
	return func(h *hooks) {
		h.onSuccess = append(h.onSuccess, fn)
	}
}

// WithOnFailure adds a hook called after the pipeline fails.
// Multiple hooks are called in order.
//
// Example:
//
//	commandbus.WithOnFailure(func(ctx context.Context, commandType string, err error, d time.Duration) {
//	    logger.Error("dispatch failed", "command", commandType, "error", err)
//	})
func WithOnFailure(fn OnFailureFunc) Option {
	return func(h *hooks) {
		h.onFailure = append(h.onFailure, fn)
	}
}

// WithOnNoHandler adds a hook called when no handler is registered for the
// command type. Return nil to skip, return an error to fail.
// Multiple hooks are called in order; first error wins.
//
// Example:
//
//	commandbus.WithOnNoHandler(func(ctx context.Context, commandType string) error {
//	    logger.Warn("no handler", "command", commandType)
//	    return nil // skip
//	})
func WithOnNoHandler(fn OnNoHandlerFunc) Option {
	return func(h *hooks) {
		h.onNoHandler = append(h.onNoHandler, fn)
	}
}

// OnDispatchHook is an optional interface that extensions can implement to
// enrich the dispatch context. Called after global OnDispatch hooks, in
// extension registration order.
type OnDispatchHook interface {
	OnDispatch(ctx context.Context, commandType string) context.Context
}

// OnSuccessHook is an optional interface that extensions can implement to
// observe successful dispatches. Called after global OnSuccess hooks.
type OnSuccessHook interface {
	OnSuccess(ctx context.Context, commandType string, duration time.Duration)
}

// OnFailureHook is an optional interface that extensions can implement to
// observe failed dispatches. Called after global OnFailure hooks.
type OnFailureHook interface {
	OnFailure(ctx context.Context, commandType string, err error, duration time.Duration)
}
