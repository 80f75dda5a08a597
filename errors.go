package commandbus

import (
	"errors"
	"fmt"
)

var (
	// ErrNoHandler is returned when no handler is registered for a command type
	// and no OnNoHandler hook is configured.
	ErrNoHandler = errors.New("no handler")

	// ErrInvalidContribution is returned by Build when a nil handler,
	// extension or middleware was registered.
	ErrInvalidContribution = errors.New("invalid contribution")
)

// DispatchError is returned by Dispatcher.Send when the pipeline fails.
type DispatchError struct {
	Type string
	Err  error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch %s: %v", e.Type, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }
