// Package gather runs the company, job and CV gatherers and classifies their outcomes.
package gather

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonathan/interview-prep/internal/resilience"
)

// Reason classifies how a gatherer finished.
type Reason string

// Reason values
const (
	ReasonOK      Reason = "ok"
	ReasonTimeout Reason = "timeout"
	ReasonError   Reason = "error"
	ReasonEmpty   Reason = "empty"
)

// ErrNoInput is returned by a gatherer that has nothing to work from.
var ErrNoInput = errors.New("no input to gather from")

// Payload is a gathered value that can report whether it carries anything usable.
type Payload interface {
	IsEmpty() bool
}

// Result is the tagged outcome of one gatherer.
type Result[T Payload] struct {
	Name   string
	Value  T
	Reason Reason
	Detail string
	Took   time.Duration
}

// OK reports whether the gatherer produced a usable value.
func (r Result[T]) OK() bool {
	return r.Reason == ReasonOK
}

// Outcome renders the result as "ok" or "reason: detail".
func (r Result[T]) Outcome() string {
	if r.Reason == ReasonOK || r.Detail == "" {
		return string(r.Reason)
	}
	return fmt.Sprintf("%s: %s", r.Reason, r.Detail)
}

// Collect runs op bounded by timeout and classifies the outcome. A value that
// reports IsEmpty counts as a failed gather. Collect never returns an error;
// failures are carried in the Result.
func Collect[T Payload](ctx context.Context, name string, timeout time.Duration, op func(ctx context.Context) (T, error)) Result[T] {
	start := time.Now()
	v, err := resilience.WithTimeout(ctx, timeout, name+" gatherer", op)
	res := Result[T]{Name: name, Took: time.Since(start)}

	switch {
	case resilience.IsTimeout(err):
		res.Reason = ReasonTimeout
		res.Detail = err.Error()
	case errors.Is(err, ErrNoInput):
		res.Reason = ReasonEmpty
		res.Detail = err.Error()
	case err != nil:
		res.Reason = ReasonError
		res.Detail = err.Error()
	case v.IsEmpty():
		res.Reason = ReasonEmpty
		res.Detail = "gatherer returned no usable data"
	default:
		res.Reason = ReasonOK
		res.Value = v
	}
	return res
}
