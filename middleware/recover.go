package middleware

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/bjaus/commandbus"
)

// PanicError is returned by Recover when a handler panics.
type PanicError struct {
	Type  string
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic handling %s: %v", e.Type, e.Value)
}

// Unwrap returns the panic value when it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// Recover turns handler panics into *PanicError.
func Recover() commandbus.Middleware {
	return commandbus.MiddlewareFunc(func(next commandbus.HandlerFunc) commandbus.HandlerFunc {
		return func(ctx context.Context, msg commandbus.Message) (err error) {
			defer func() {
				if v := recover(); v != nil {
					err = &PanicError{Type: msg.Type, Value: v, Stack: debug.Stack()}
				}
			}()
			return next(ctx, msg)
		}
	})
}
