package assembly

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMissingRetryExtension is returned by Assemble when no retry extension is
// supplied.
var ErrMissingRetryExtension = errors.New("retry extension is required")

// BadTransportDSNError reports a DSN whose scheme no transport handles.
type BadTransportDSNError struct {
	DSN string
}

func (e *BadTransportDSNError) Error() string {
	return fmt.Sprintf("bad transport DSN: %s", e.DSN)
}

// InvalidTransportError reports a connection entry that is neither a
// resolvable transport reference, a DSN, nor a record with a DSN.
type InvalidTransportError struct {
	Key string
	Err error
}

func (e *InvalidTransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid transport %q configuration: %v", e.Key, e.Err)
	}
	return fmt.Sprintf("invalid transport %q configuration", e.Key)
}

func (e *InvalidTransportError) Unwrap() error { return e.Err }

// UnknownTransportError reports a route or default naming a connection that
// is not declared.
type UnknownTransportError struct {
	Key       string
	Available []string
}

func (e *UnknownTransportError) Error() string {
	return fmt.Sprintf("unknown transport %q (available: %s)", e.Key, strings.Join(e.Available, ", "))
}

// InvalidContributionError reports a configuration reference that resolved
// to a value lacking the required capability.
type InvalidContributionError struct {
	Kind string
	Ref  string
	Err  error
}

func (e *InvalidContributionError) Error() string {
	return fmt.Sprintf("invalid %s %q: %v", e.Kind, e.Ref, e.Err)
}

func (e *InvalidContributionError) Unwrap() error { return e.Err }
