// Package pipeline runs research jobs: gather, synthesize, persist, with every
// transition written to the job record.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/interview-prep/internal/db"
	"github.com/jonathan/interview-prep/internal/gather"
	"github.com/jonathan/interview-prep/internal/notify"
	"github.com/jonathan/interview-prep/internal/observability"
	"github.com/jonathan/interview-prep/internal/resilience"
	"github.com/jonathan/interview-prep/internal/synthesis"
	"github.com/jonathan/interview-prep/internal/types"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Synthesizer produces the synthesis output from gathered data.
type Synthesizer interface {
	Synthesize(ctx context.Context, in synthesis.Input) (*types.SynthesisOutput, error)
}

// Config holds orchestrator timing and capacity settings.
type Config struct {
	Gather           gather.Timeouts
	SynthesisTimeout time.Duration
	PersistTimeout   time.Duration
	ProgressTimeout  time.Duration
	// StallRetryAfter is how long a processing job must be silent before a
	// manual retry may take it over.
	StallRetryAfter   time.Duration
	MaxConcurrentRuns int64
	// GatherRetry applies to the company and job gatherers.
	GatherRetry resilience.RetryPolicy
	// ProgressRetry applies to job record writes.
	ProgressRetry resilience.RetryPolicy
	// MaxErrorLength truncates error messages written to the job record.
	MaxErrorLength int
}

// DefaultConfig returns the standard configuration.
func DefaultConfig() Config {
	return Config{
		Gather:            gather.DefaultTimeouts(),
		SynthesisTimeout:  45 * time.Second,
		PersistTimeout:    10 * time.Second,
		ProgressTimeout:   5 * time.Second,
		StallRetryAfter:   45 * time.Second,
		MaxConcurrentRuns: 8,
		GatherRetry:       resilience.DefaultRetryPolicy,
		ProgressRetry:     resilience.RetryPolicy{MaxAttempts: 3, BaseDelay: 200 * time.Millisecond, MaxDelay: 2 * time.Second},
		MaxErrorLength:    2000,
	}
}

// Deps are the collaborators of an Orchestrator. Publisher and the gatherer
// sources may be nil; a nil source counts as a failed gatherer.
type Deps struct {
	Jobs        db.JobStore
	Raw         db.RawArtifactStore
	Outputs     db.OutputStore
	Company     gather.CompanySource
	Job         gather.JobSource
	CV          gather.CVSource
	Synthesizer Synthesizer
	Publisher   notify.Publisher
	// Reporter overrides the store backed progress reporter.
	Reporter ProgressReporter
}

// Orchestrator accepts job submissions and runs them in the background.
type Orchestrator struct {
	jobs      db.JobStore
	raw       db.RawArtifactStore
	outputs   db.OutputStore
	gatherers *gather.Gatherers
	synth     Synthesizer
	reporter  ProgressReporter
	cfg       Config
	log       *zap.Logger
	now       func() time.Time

	sem *semaphore.Weighted

	mu      sync.Mutex
	active  map[uuid.UUID]struct{}
	closing bool
	wg      sync.WaitGroup

	// baseCtx outlives the submitting request; cancelled only when shutdown gives up waiting.
	baseCtx context.Context
	cancel  context.CancelFunc
}

// New creates an Orchestrator.
func New(deps Deps, cfg Config, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxConcurrentRuns <= 0 {
		cfg.MaxConcurrentRuns = 1
	}
	reporter := deps.Reporter
	if reporter == nil {
		reporter = NewStoreReporter(deps.Jobs, deps.Publisher, cfg.ProgressTimeout, cfg.ProgressRetry, logger)
	}
	baseCtx, cancel := context.WithCancel(context.Background())

	return &Orchestrator{
		jobs:    deps.Jobs,
		raw:     deps.Raw,
		outputs: deps.Outputs,
		gatherers: &gather.Gatherers{
			Company:  deps.Company,
			Job:      deps.Job,
			CV:       deps.CV,
			Timeouts: cfg.Gather,
			Retry:    cfg.GatherRetry,
			Log:      logger,
		},
		synth:    deps.Synthesizer,
		reporter: reporter,
		cfg:      cfg,
		log:      logger,
		now:      time.Now,
		sem:      semaphore.NewWeighted(cfg.MaxConcurrentRuns),
		active:   make(map[uuid.UUID]struct{}),
		baseCtx:  baseCtx,
		cancel:   cancel,
	}
}

// Submit validates and records a new job, schedules its run and returns
// without waiting for it. The returned job is in pending.
func (o *Orchestrator) Submit(ctx context.Context, in types.JobInput) (*types.Job, error) {
	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if o.isClosing() {
		return nil, ErrShuttingDown
	}

	job, err := o.jobs.CreateJob(ctx, &in)
	if err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}
	observability.IncJobsSubmitted()

	if err := o.launch(job.ID, job.Input); err != nil {
		// Raced with shutdown after the row was written; leave a terminal record behind.
		o.fail(job.ID, &Error{Kind: KindUnhandled, Err: err})
		return nil, err
	}
	o.log.Info("job submitted", zap.String("job_id", job.ID.String()),
		zap.String("company", in.Company), zap.String("role", in.Role))
	return job, nil
}

// Retry resets a failed job, or a processing job that has been silent for
// StallRetryAfter with no run in this process, and runs it again.
func (o *Orchestrator) Retry(ctx context.Context, id uuid.UUID) (*types.Job, error) {
	if !o.reserve(id) {
		if o.isClosing() {
			return nil, ErrShuttingDown
		}
		return nil, ErrRunActive
	}
	launched := false
	defer func() {
		if !launched {
			o.release(id)
		}
	}()

	job, err := o.jobs.GetJob(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load job: %w", err)
	}
	if job == nil {
		return nil, db.ErrJobNotFound
	}

	var from []types.JobStatus
	switch job.Status {
	case types.JobStatusFailed:
		from = []types.JobStatus{types.JobStatusFailed}
	case types.JobStatusProcessing, types.JobStatusPending:
		if silent := o.now().Sub(job.UpdatedAt); silent < o.cfg.StallRetryAfter {
			return nil, fmt.Errorf("%w: %s and updated %s ago", ErrNotRetryable, job.Status, silent.Round(time.Second))
		}
		from = []types.JobStatus{job.Status}
	default:
		return nil, fmt.Errorf("%w: %s", ErrNotRetryable, job.Status)
	}

	reset, err := o.jobs.ResetJob(ctx, id, from)
	if err != nil {
		if errors.Is(err, db.ErrInvalidTransition) {
			return nil, fmt.Errorf("%w: %v", ErrNotRetryable, err)
		}
		return nil, fmt.Errorf("failed to reset job: %w", err)
	}

	o.start(reset.ID, reset.Input)
	launched = true
	o.log.Info("job retry scheduled", zap.String("job_id", id.String()), zap.String("previous_status", string(job.Status)))
	return reset, nil
}

// Active reports whether a run for id is in flight in this process.
func (o *Orchestrator) Active(id uuid.UUID) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.active[id]
	return ok
}

// ActiveCount returns the number of runs in flight.
func (o *Orchestrator) ActiveCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.active)
}

// Wait blocks until every run has finished or ctx is done.
func (o *Orchestrator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting work and waits for in-flight runs until ctx is done.
// Runs still active then are cancelled and recorded as failed.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	o.closing = true
	o.mu.Unlock()

	if err := o.Wait(ctx); err == nil {
		o.cancel()
		return nil
	}

	o.log.Warn("shutdown deadline reached, cancelling runs", zap.Int("active", o.ActiveCount()))
	o.cancel()
	// Runs record their failure with a fresh bounded context; wait for those writes.
	grace, cancel := context.WithTimeout(context.Background(), o.cfg.ProgressTimeout*2)
	defer cancel()
	return o.Wait(grace)
}

func (o *Orchestrator) isClosing() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closing
}

// reserve claims the single-writer slot for id. Every successful reserve is
// paired with exactly one release.
func (o *Orchestrator) reserve(id uuid.UUID) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closing {
		return false
	}
	if _, ok := o.active[id]; ok {
		return false
	}
	o.active[id] = struct{}{}
	o.wg.Add(1)
	return true
}

func (o *Orchestrator) release(id uuid.UUID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.active, id)
	o.wg.Done()
}

func (o *Orchestrator) launch(id uuid.UUID, in types.JobInput) error {
	if !o.reserve(id) {
		if o.isClosing() {
			return ErrShuttingDown
		}
		return ErrRunActive
	}
	o.start(id, in)
	return nil
}

// start runs a reserved job in the background.
func (o *Orchestrator) start(id uuid.UUID, in types.JobInput) {
	go func() {
		defer o.release(id)
		o.run(id, in)
	}()
}
