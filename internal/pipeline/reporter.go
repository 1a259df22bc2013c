package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/interview-prep/internal/db"
	"github.com/jonathan/interview-prep/internal/notify"
	"github.com/jonathan/interview-prep/internal/pipeline/steps"
	"github.com/jonathan/interview-prep/internal/resilience"
	"github.com/jonathan/interview-prep/internal/types"
	"go.uber.org/zap"
)

// ProgressReporter writes run progress to the job record.
type ProgressReporter interface {
	// Start moves the job into processing.
	Start(ctx context.Context, id uuid.UUID) error
	// Step records a progress label and percentage while processing.
	Step(ctx context.Context, id uuid.UUID, step string, pct int) error
	// Complete marks the job completed.
	Complete(ctx context.Context, id uuid.UUID) error
	// Fail marks the job failed with msg.
	Fail(ctx context.Context, id uuid.UUID, msg string) error
}

// StoreReporter is a ProgressReporter backed by a JobStore. Each successful
// write is announced on the publisher, when one is set.
type StoreReporter struct {
	jobs    db.JobStore
	pub     notify.Publisher
	timeout time.Duration
	retry   resilience.RetryPolicy
	log     *zap.Logger
}

// NewStoreReporter creates a StoreReporter. pub may be nil.
func NewStoreReporter(jobs db.JobStore, pub notify.Publisher, timeout time.Duration, retry resilience.RetryPolicy, logger *zap.Logger) *StoreReporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreReporter{jobs: jobs, pub: pub, timeout: timeout, retry: retry, log: logger}
}

func (r *StoreReporter) update(ctx context.Context, id uuid.UUID, upd types.ProgressUpdate) error {
	job, err := resilience.WithRetry(ctx, r.log, r.retry, "job progress update", func(ctx context.Context) (*types.Job, error) {
		job, err := resilience.WithTimeout(ctx, r.timeout, "job progress update", func(ctx context.Context) (*types.Job, error) {
			return r.jobs.UpdateJobProgress(ctx, id, upd)
		})
		if errors.Is(err, db.ErrJobNotFound) || errors.Is(err, db.ErrInvalidTransition) || errors.Is(err, db.ErrInvalidProgress) {
			return nil, resilience.Permanent(err)
		}
		return job, err
	})
	if err != nil {
		return err
	}
	if r.pub != nil {
		if err := r.pub.Publish(ctx, notify.EventFromJob(job)); err != nil {
			r.log.Debug("progress event not published", zap.String("job_id", id.String()), zap.Error(err))
		}
	}
	return nil
}

// Start implements ProgressReporter.
func (r *StoreReporter) Start(ctx context.Context, id uuid.UUID) error {
	return r.update(ctx, id, types.ProgressUpdate{
		Status:     types.StatusPtr(types.JobStatusProcessing),
		Step:       types.StringPtr(types.StepInitializing),
		Percentage: types.IntPtr(steps.Percentage(types.StepInitializing)),
	})
}

// Step implements ProgressReporter.
func (r *StoreReporter) Step(ctx context.Context, id uuid.UUID, step string, pct int) error {
	return r.update(ctx, id, types.ProgressUpdate{Step: &step, Percentage: &pct})
}

// Complete implements ProgressReporter.
func (r *StoreReporter) Complete(ctx context.Context, id uuid.UUID) error {
	return r.update(ctx, id, types.ProgressUpdate{
		Status: types.StatusPtr(types.JobStatusCompleted),
		Step:   types.StringPtr(types.StepDone),
	})
}

// Fail implements ProgressReporter. A job still in pending is moved to
// processing first so it never reaches failed without having started.
func (r *StoreReporter) Fail(ctx context.Context, id uuid.UUID, msg string) error {
	upd := types.ProgressUpdate{
		Status:       types.StatusPtr(types.JobStatusFailed),
		Step:         types.StringPtr(types.StepFailed),
		ErrorMessage: &msg,
	}
	err := r.update(ctx, id, upd)
	if !errors.Is(err, db.ErrInvalidTransition) {
		return err
	}
	if serr := r.Start(ctx, id); serr != nil {
		// Already terminal, or gone.
		return err
	}
	return r.update(ctx, id, upd)
}
