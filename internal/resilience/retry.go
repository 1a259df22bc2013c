package resilience

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// RetryPolicy controls WithRetry behavior.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Retryable decides whether an error is transient. Nil retries everything
	// except permanent errors and context cancellation.
	Retryable func(error) bool
}

// DefaultRetryPolicy is suitable for network-bound gatherers.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts: 3,
	BaseDelay:   500 * time.Millisecond,
	MaxDelay:    5 * time.Second,
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// Backoff returns the wait before the retry that follows the given zero-based attempt:
// BaseDelay * 2^attempt, capped at MaxDelay.
func Backoff(p RetryPolicy, attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	wait := p.BaseDelay
	for i := 0; i < attempt; i++ {
		wait *= 2
		if p.MaxDelay > 0 && wait >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && wait > p.MaxDelay {
		return p.MaxDelay
	}
	return wait
}

func (p RetryPolicy) retryable(err error) bool {
	if errors.Is(err, context.Canceled) || IsPermanent(err) {
		return false
	}
	if p.Retryable != nil {
		return p.Retryable(err)
	}
	return true
}

// WithRetry calls op up to MaxAttempts times, sleeping Backoff between attempts.
// Every retry is logged with the attempt number and the error that caused it.
// Returns the last error when attempts are exhausted or the error is not retryable.
func WithRetry[T any](ctx context.Context, logger *zap.Logger, p RetryPolicy, label string, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if logger == nil {
		logger = zap.NewNop()
	}
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return zero, lastErr
			}
			return zero, err
		}

		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err

		if !p.retryable(err) || attempt == attempts-1 {
			break
		}

		wait := Backoff(p, attempt)
		logger.Warn("retrying operation",
			zap.String("operation", label),
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", attempts),
			zap.Duration("wait", wait),
			zap.Error(err),
		)

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return zero, lastErr
		}
	}
	return zero, lastErr
}
