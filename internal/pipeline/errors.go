package pipeline

import (
	"errors"
	"fmt"
)

// Kind classifies a run failure.
type Kind string

// Kind values
const (
	KindGatherTotalFailure Kind = "gather_total_failure"
	KindSynthesisTimeout   Kind = "synthesis_timeout"
	KindSynthesisMalformed Kind = "synthesis_malformed"
	KindSynthesisFailure   Kind = "synthesis_failure"
	KindPersistence        Kind = "persistence_write_failure"
	KindUnhandled          Kind = "unhandled"
)

// Persistence sub-writes, in the order they run.
const (
	SubWriteRawArtifact   = "raw_artifact"
	SubWriteClearPrevious = "clear_previous"
	SubWriteStages        = "stages"
	SubWriteQuestions     = "questions"
	SubWriteComparison    = "comparison"
)

var (
	// ErrRunActive is returned when a job already has a run in this process.
	ErrRunActive = errors.New("job has an active run")
	// ErrNotRetryable is returned when a job's state does not allow a manual retry.
	ErrNotRetryable = errors.New("job is not retryable")
	// ErrShuttingDown is returned once the orchestrator stops accepting work.
	ErrShuttingDown = errors.New("server shutting down")
	// ErrInvalidInput wraps submission validation failures.
	ErrInvalidInput = errors.New("invalid job input")

	// errJobGone aborts a run whose job was deleted or reset underneath it.
	errJobGone = errors.New("job no longer owned by this run")
)

// Error is a fatal run failure. Its message is what ends up in the job's error message.
type Error struct {
	Kind     Kind
	SubWrite string
	Err      error
}

func (e *Error) Error() string {
	if e.SubWrite != "" {
		return fmt.Sprintf("%s [%s]: %v", e.Kind, e.SubWrite, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of err, or KindUnhandled when err is not an *Error.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindUnhandled
}
