package gather

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/interview-prep/internal/observability"
	"github.com/jonathan/interview-prep/internal/resilience"
	"github.com/jonathan/interview-prep/internal/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Timeouts bound each gatherer independently.
type Timeouts struct {
	Company time.Duration
	Job     time.Duration
	CV      time.Duration
}

// DefaultTimeouts returns the standard gatherer bounds.
func DefaultTimeouts() Timeouts {
	return Timeouts{Company: 20 * time.Second, Job: 20 * time.Second, CV: 15 * time.Second}
}

// Results holds the outcome of every gatherer.
type Results struct {
	Company Result[*types.CompanyResearch]
	Job     Result[*types.JobAnalysis]
	CV      Result[*types.CVAnalysis]
}

// Succeeded counts gatherers that produced usable data.
func (r *Results) Succeeded() int {
	n := 0
	for _, ok := range []bool{r.Company.OK(), r.Job.OK(), r.CV.OK()} {
		if ok {
			n++
		}
	}
	return n
}

// AllFailed reports whether no gatherer produced usable data.
func (r *Results) AllFailed() bool {
	return r.Succeeded() == 0
}

// Missing returns the sorted names of gatherers that failed.
func (r *Results) Missing() []string {
	var out []string
	if !r.Company.OK() {
		out = append(out, types.GathererCompany)
	}
	if !r.Job.OK() {
		out = append(out, types.GathererJob)
	}
	if !r.CV.OK() {
		out = append(out, types.GathererCV)
	}
	sort.Strings(out)
	return out
}

// Outcomes maps gatherer names to their rendered outcomes.
func (r *Results) Outcomes() map[string]string {
	return map[string]string{
		types.GathererCompany: r.Company.Outcome(),
		types.GathererJob:     r.Job.Outcome(),
		types.GathererCV:      r.CV.Outcome(),
	}
}

// Artifact converts the results into the persisted raw artifact.
func (r *Results) Artifact(jobID uuid.UUID, now time.Time) *types.RawArtifact {
	return &types.RawArtifact{
		JobID:     jobID,
		Company:   r.Company.Value,
		Job:       r.Job.Value,
		CV:        r.CV.Value,
		Outcomes:  r.Outcomes(),
		CreatedAt: now,
	}
}

// Gatherers runs the three sources concurrently.
type Gatherers struct {
	Company  CompanySource
	Job      JobSource
	CV       CVSource
	Timeouts Timeouts
	// Retry applies to the company and job gatherers, inside their timeout.
	Retry resilience.RetryPolicy
	Log   *zap.Logger
}

// Run starts every gatherer and waits for all of them; one failing never
// cancels the others. onDone, when set, is called from the gatherer's goroutine
// as each one finishes.
func (g *Gatherers) Run(ctx context.Context, in types.JobInput, onDone func(name string, reason Reason)) *Results {
	logger := g.Log
	if logger == nil {
		logger = zap.NewNop()
	}
	res := &Results{}

	finish := func(name string, reason Reason, detail string, took time.Duration) {
		observability.IncGatherOutcome(name, string(reason))
		if reason == ReasonOK {
			logger.Info("gatherer finished", zap.String("gatherer", name), zap.Duration("took", took))
		} else {
			logger.Warn("gatherer failed", zap.String("gatherer", name), zap.String("reason", string(reason)),
				zap.String("detail", detail), zap.Duration("took", took))
		}
		if onDone != nil {
			onDone(name, reason)
		}
	}

	var eg errgroup.Group
	eg.Go(func() error {
		res.Company = Collect(ctx, types.GathererCompany, g.Timeouts.Company, func(ctx context.Context) (*types.CompanyResearch, error) {
			if g.Company == nil {
				return nil, ErrNoInput
			}
			return resilience.WithRetry(ctx, logger, g.Retry, "company research", func(ctx context.Context) (*types.CompanyResearch, error) {
				return g.Company.Gather(ctx, in)
			})
		})
		finish(types.GathererCompany, res.Company.Reason, res.Company.Detail, res.Company.Took)
		return nil
	})
	eg.Go(func() error {
		res.Job = Collect(ctx, types.GathererJob, g.Timeouts.Job, func(ctx context.Context) (*types.JobAnalysis, error) {
			if g.Job == nil {
				return nil, ErrNoInput
			}
			return resilience.WithRetry(ctx, logger, g.Retry, "job analysis", func(ctx context.Context) (*types.JobAnalysis, error) {
				return g.Job.Gather(ctx, in)
			})
		})
		finish(types.GathererJob, res.Job.Reason, res.Job.Detail, res.Job.Took)
		return nil
	})
	eg.Go(func() error {
		res.CV = Collect(ctx, types.GathererCV, g.Timeouts.CV, func(ctx context.Context) (*types.CVAnalysis, error) {
			if g.CV == nil {
				return nil, ErrNoInput
			}
			return g.CV.Gather(ctx, in)
		})
		finish(types.GathererCV, res.CV.Reason, res.CV.Detail, res.CV.Took)
		return nil
	})
	_ = eg.Wait()

	return res
}
