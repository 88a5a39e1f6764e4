// Package supervisor races an execution against a wall-clock deadline.
package supervisor

import (
	"context"
	"time"

	"codeverifier/pkg/errors"
)

// DrainTimeout bounds how long Run waits for a killed execution to return.
var DrainTimeout = 5 * time.Second

type outcome[T any] struct {
	value T
	err   error
}

// Run invokes fn and waits for it or for timeout, whichever comes first.
//
// When the deadline (or ctx) wins, kill is called once, the context handed to
// fn is canceled, and Run waits up to DrainTimeout for fn to return before
// reporting VerificationTimeout (or ctx.Err()). Whatever fn produces after the
// deadline is discarded. A non-positive timeout disables the deadline.
func Run[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error), kill func(context.Context)) (T, error) {
	var zero T
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan outcome[T], 1)
	go func() {
		value, err := call(runCtx, fn)
		done <- outcome[T]{value: value, err: err}
	}()

	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	var cause error
	select {
	case out := <-done:
		return out.value, out.err
	case <-deadline:
		cause = errors.New(errors.VerificationTimeout)
	case <-ctx.Done():
		cause = ctx.Err()
	}

	if kill != nil {
		kill(context.WithoutCancel(ctx))
	}
	cancel()

	drain := time.NewTimer(DrainTimeout)
	defer drain.Stop()
	select {
	case <-done:
	case <-drain.C:
	}
	return zero, cause
}

func call[T any](ctx context.Context, fn func(context.Context) (T, error)) (value T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf(errors.InternalServerError, "execution panicked: %v", r)
		}
	}()
	return fn(ctx)
}
