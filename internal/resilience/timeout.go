// Package resilience provides deadline and retry wrappers for slow, unreliable calls.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// TimeoutError is returned when an operation does not finish within its bound.
type TimeoutError struct {
	Label string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Label, e.After)
}

// IsTimeout reports whether err carries a TimeoutError.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

type outcome[T any] struct {
	value T
	err   error
}

// WithTimeout runs op with a context that is cancelled after d and returns as soon as
// either op finishes or the timer fires. When the timer wins the returned error is a
// *TimeoutError; op keeps its cancelled context and is not awaited.
// A parent cancellation is returned as the parent's error.
func WithTimeout[T any](ctx context.Context, d time.Duration, label string, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if d <= 0 {
		return op(ctx)
	}

	opCtx, cancel := context.WithCancel(ctx)
	// Buffered so a late op never blocks on send after we stop listening.
	done := make(chan outcome[T], 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome[T]{err: fmt.Errorf("%s panicked: %v", label, r)}
			}
		}()
		v, err := op(opCtx)
		done <- outcome[T]{value: v, err: err}
	}()

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case res := <-done:
		cancel()
		return res.value, res.err
	case <-timer.C:
		cancel()
		return zero, &TimeoutError{Label: label, After: d}
	case <-ctx.Done():
		cancel()
		return zero, ctx.Err()
	}
}

// Do is WithTimeout for operations that only return an error.
func Do(ctx context.Context, d time.Duration, label string, op func(ctx context.Context) error) error {
	_, err := WithTimeout(ctx, d, label, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}
