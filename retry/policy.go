// Package retry decides what happens when a dispatch fails.
//
// A Policy receives the failure and may run the rest of the chain again. The
// Resolver picks a policy per command type, and the Extension installs the
// middleware that hands every failure to the resolved policy.
package retry

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/bjaus/commandbus"
)

// HeaderAttempt carries the retry attempt number, starting at 1 for the first
// retry. The initial dispatch has no such header.
const HeaderAttempt = "retry.attempt"

// Policy handles a failed dispatch. again runs the remainder of the chain for
// another attempt. The returned error is the outcome of the dispatch.
type Policy interface {
	Retry(ctx context.Context, msg commandbus.Message, cause error, again commandbus.HandlerFunc) error
}

// PolicyFunc is a function adapter for Policy.
type PolicyFunc func(ctx context.Context, msg commandbus.Message, cause error, again commandbus.HandlerFunc) error

// Retry implements the Policy interface.
func (f PolicyFunc) Retry(ctx context.Context, msg commandbus.Message, cause error, again commandbus.HandlerFunc) error {
	return f(ctx, msg, cause, again)
}

// Throw returns the failure without retrying.
var Throw Policy = throwPolicy{}

type throwPolicy struct{}

func (throwPolicy) Retry(ctx context.Context, msg commandbus.Message, cause error, again commandbus.HandlerFunc) error {
	return cause
}

// Attempt returns the retry attempt number of msg, or 0 for the initial
// dispatch.
func Attempt(msg commandbus.Message) int {
	n, err := strconv.Atoi(msg.Headers.Get(HeaderAttempt))
	if err != nil {
		return 0
	}
	return n
}

// Simple retries a fixed number of times with a constant delay.
type Simple struct {
	Retries int
	Delay   time.Duration
}

// NewSimple creates a policy retrying up to retries times, waiting delay
// before each attempt.
func NewSimple(retries int, delay time.Duration) *Simple {
	return &Simple{Retries: retries, Delay: delay}
}

// Retry implements the Policy interface.
func (s *Simple) Retry(ctx context.Context, msg commandbus.Message, cause error, again commandbus.HandlerFunc) error {
	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(s.Delay), nonNegative(s.Retries))
	return run(ctx, b, msg, cause, again)
}

// Exponential retries with exponentially growing, jittered delays.
type Exponential struct {
	Retries    int
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
}

// NewExponential creates a policy retrying up to retries times. The first
// delay is initial and delays never exceed max.
func NewExponential(retries int, initial, max time.Duration) *Exponential {
	return &Exponential{
		Retries:    retries,
		Initial:    initial,
		Max:        max,
		Multiplier: backoff.DefaultMultiplier,
	}
}

// Retry implements the Policy interface.
func (e *Exponential) Retry(ctx context.Context, msg commandbus.Message, cause error, again commandbus.HandlerFunc) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = e.Initial
	eb.MaxInterval = e.Max
	eb.MaxElapsedTime = 0
	if e.Multiplier > 0 {
		eb.Multiplier = e.Multiplier
	}
	return run(ctx, backoff.WithMaxRetries(eb, nonNegative(e.Retries)), msg, cause, again)
}

// run retries until an attempt succeeds, the backoff stops, ctx is done or a
// handler returns a backoff.Permanent error.
func run(ctx context.Context, b backoff.BackOff, msg commandbus.Message, cause error, again commandbus.HandlerFunc) error {
	b.Reset()
	err := cause

	for attempt := 1; ; attempt++ {
		if isPermanent(err) {
			return unwrapPermanent(err)
		}

		wait := b.NextBackOff()
		if wait == backoff.Stop {
			return err
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(err, ctx.Err())
		case <-timer.C:
		}

		err = again(ctx, msg.WithHeader(HeaderAttempt, strconv.Itoa(attempt)))
		if err == nil {
			return nil
		}
	}
}

func isPermanent(err error) bool {
	var perm *backoff.PermanentError
	return errors.As(err, &perm)
}

func unwrapPermanent(err error) error {
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Err
	}
	return err
}

func nonNegative(n int) uint64 {
	if n < 0 {
		return 0
	}
	return uint64(n)
}
