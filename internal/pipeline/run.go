package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/interview-prep/internal/db"
	"github.com/jonathan/interview-prep/internal/gather"
	"github.com/jonathan/interview-prep/internal/observability"
	"github.com/jonathan/interview-prep/internal/pipeline/steps"
	"github.com/jonathan/interview-prep/internal/resilience"
	"github.com/jonathan/interview-prep/internal/synthesis"
	"github.com/jonathan/interview-prep/internal/types"
	"go.uber.org/zap"
)

// runState is the per-run context passed between phases.
type runState struct {
	id      uuid.UUID
	in      types.JobInput
	log     *zap.Logger
	tracker *steps.Tracker
}

// run executes one job end to end. It never leaves the job in processing:
// every error and panic is converted into a failed transition.
func (o *Orchestrator) run(id uuid.UUID, in types.JobInput) {
	logger := o.log.With(zap.String("job_id", id.String()))
	ctx := o.baseCtx
	start := time.Now()

	if err := o.sem.Acquire(ctx, 1); err != nil {
		o.fail(id, &Error{Kind: KindUnhandled, Err: ErrShuttingDown})
		return
	}
	defer o.sem.Release(1)

	observability.RunStarted()
	defer observability.RunFinished()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("run panicked", zap.Any("panic", r), zap.Stack("stack"))
			o.fail(id, &Error{Kind: KindUnhandled, Err: fmt.Errorf("panic: %v", r)})
		}
	}()

	st := &runState{id: id, in: in, log: logger, tracker: steps.NewTracker()}
	err := o.execute(ctx, st)
	switch {
	case err == nil:
		observability.IncJobsFinished(string(types.JobStatusCompleted))
		logger.Info("job completed", zap.Duration("took", time.Since(start)))
	case errors.Is(err, errJobGone):
		logger.Warn("run abandoned", zap.Error(err))
	default:
		if o.baseCtx.Err() != nil {
			err = &Error{Kind: KindUnhandled, Err: ErrShuttingDown}
		}
		o.fail(id, err)
	}
}

// execute runs the phases in order and returns the first fatal error.
func (o *Orchestrator) execute(ctx context.Context, st *runState) error {
	if err := o.enter(ctx, st, types.StepInitializing, -1); err != nil {
		return err
	}

	results, err := o.gatherPhase(ctx, st)
	if err != nil {
		return err
	}

	output, err := o.synthesizePhase(ctx, st, results)
	if err != nil {
		return err
	}

	if err := o.persistPhase(ctx, st, output); err != nil {
		return err
	}

	if err := st.tracker.Enter(types.StepDone); err != nil {
		return &Error{Kind: KindUnhandled, Err: err}
	}
	if err := o.reporter.Complete(ctx, st.id); err != nil {
		return o.progressError(err, "mark completed")
	}
	return nil
}

// enter records step on the job. pct < 0 uses the step's registered percentage.
// INITIALIZING performs the transition into processing.
func (o *Orchestrator) enter(ctx context.Context, st *runState, step string, pct int) error {
	if err := st.tracker.Enter(step); err != nil {
		return &Error{Kind: KindUnhandled, Err: err}
	}
	if pct < 0 {
		pct = steps.Percentage(step)
	}

	var err error
	if step == types.StepInitializing {
		err = o.reporter.Start(ctx, st.id)
	} else {
		err = o.reporter.Step(ctx, st.id, step, pct)
	}
	if err == nil {
		st.log.Debug("step entered", zap.String("step", step), zap.Int("percentage", pct))
		return nil
	}
	if step == types.StepInitializing {
		return o.progressError(err, "start")
	}
	if gone(err) {
		return fmt.Errorf("%w: %v", errJobGone, err)
	}
	// Progress is advisory; a lost step write must not fail the run.
	st.log.Warn("progress update failed", zap.String("step", step), zap.Error(err))
	return nil
}

func gone(err error) bool {
	return errors.Is(err, db.ErrJobNotFound) || errors.Is(err, db.ErrInvalidTransition)
}

func (o *Orchestrator) progressError(err error, what string) error {
	if gone(err) {
		return fmt.Errorf("%w: %s: %v", errJobGone, what, err)
	}
	return &Error{Kind: KindUnhandled, Err: fmt.Errorf("%s: %w", what, err)}
}

// gatherPhase runs all gatherers, persists the raw artifact and fails the run
// only when every gatherer failed.
func (o *Orchestrator) gatherPhase(ctx context.Context, st *runState) (*gather.Results, error) {
	defer observability.ObservePhase(steps.PhaseGather, time.Now())

	if err := o.enter(ctx, st, types.StepGathering, -1); err != nil {
		return nil, err
	}

	var finished int32
	results := o.gatherers.Run(ctx, st.in, func(name string, reason gather.Reason) {
		n := atomic.AddInt32(&finished, 1)
		pct := steps.GatheringPercentage(int(n), 3)
		if err := o.reporter.Step(ctx, st.id, types.StepGathering, pct); err != nil {
			st.log.Debug("gather progress not recorded", zap.String("gatherer", name), zap.Error(err))
		}
	})

	if err := o.enter(ctx, st, types.StepSavingRaw, -1); err != nil {
		return nil, err
	}

	artifact := results.Artifact(st.id, o.now())
	saveErr := resilience.Do(ctx, o.cfg.PersistTimeout, "save raw artifact", func(ctx context.Context) error {
		return o.raw.SaveRawArtifact(ctx, artifact)
	})

	if results.AllFailed() {
		if saveErr != nil {
			st.log.Warn("raw artifact not saved", zap.Error(saveErr))
		}
		return nil, &Error{Kind: KindGatherTotalFailure, Err: fmt.Errorf("all gatherers failed (%s)", outcomeSummary(artifact.Outcomes))}
	}
	if saveErr != nil {
		return nil, &Error{Kind: KindPersistence, SubWrite: SubWriteRawArtifact, Err: saveErr}
	}

	if missing := results.Missing(); len(missing) > 0 {
		st.log.Warn("continuing with degraded input", zap.Strings("missing", missing))
	}
	return results, nil
}

func outcomeSummary(outcomes map[string]string) string {
	return fmt.Sprintf("company: %s; job: %s; cv: %s",
		outcomes[types.GathererCompany], outcomes[types.GathererJob], outcomes[types.GathererCV])
}

// synthesizePhase makes the single synthesis call. It is never retried.
func (o *Orchestrator) synthesizePhase(ctx context.Context, st *runState, results *gather.Results) (*types.SynthesisOutput, error) {
	defer observability.ObservePhase(steps.PhaseSynthesize, time.Now())

	if err := o.enter(ctx, st, types.StepSynthesizing, -1); err != nil {
		return nil, err
	}

	in := synthesis.Input{
		Job:     st.in,
		Company: results.Company.Value,
		Posting: results.Job.Value,
		CV:      results.CV.Value,
		Missing: results.Missing(),
	}
	out, err := resilience.WithTimeout(ctx, o.cfg.SynthesisTimeout, "synthesis", func(ctx context.Context) (*types.SynthesisOutput, error) {
		return o.synth.Synthesize(ctx, in)
	})
	switch {
	case err == nil && out == nil:
		return nil, &Error{Kind: KindSynthesisMalformed, Err: errors.New("synthesizer returned no output")}
	case err == nil:
		if out.Comparison != nil {
			out.Comparison.MissingInputs = append([]string{}, in.Missing...)
		}
		return out, nil
	case resilience.IsTimeout(err):
		return nil, &Error{Kind: KindSynthesisTimeout, Err: err}
	case errors.Is(err, synthesis.ErrMalformed):
		return nil, &Error{Kind: KindSynthesisMalformed, Err: err}
	default:
		return nil, &Error{Kind: KindSynthesisFailure, Err: err}
	}
}

// persistPhase writes the synthesis output one destination at a time. Earlier
// writes are not rolled back when a later one fails.
func (o *Orchestrator) persistPhase(ctx context.Context, st *runState, out *types.SynthesisOutput) error {
	defer observability.ObservePhase(steps.PhasePersist, time.Now())

	if err := o.enter(ctx, st, types.StepFinalizing, -1); err != nil {
		return err
	}

	writes := []struct {
		name string
		fn   func(ctx context.Context) error
	}{
		{SubWriteClearPrevious, func(ctx context.Context) error { return o.outputs.ClearSynthesisOutput(ctx, st.id) }},
		{SubWriteStages, func(ctx context.Context) error { return o.outputs.SaveStages(ctx, st.id, out.Stages) }},
		{SubWriteQuestions, func(ctx context.Context) error { return o.outputs.SaveQuestions(ctx, st.id, out.Questions) }},
		{SubWriteComparison, func(ctx context.Context) error { return o.outputs.SaveComparison(ctx, st.id, out.Comparison) }},
	}
	for _, w := range writes {
		if err := resilience.Do(ctx, o.cfg.PersistTimeout, "persist "+w.name, w.fn); err != nil {
			return &Error{Kind: KindPersistence, SubWrite: w.name, Err: err}
		}
	}
	return nil
}

// fail records err on the job with a context independent of the run's.
func (o *Orchestrator) fail(id uuid.UUID, err error) {
	msg := err.Error()
	if o.cfg.MaxErrorLength > 0 && len(msg) > o.cfg.MaxErrorLength {
		msg = msg[:o.cfg.MaxErrorLength]
	}
	observability.IncJobsFinished(string(types.JobStatusFailed))
	o.log.Error("job failed", zap.String("job_id", id.String()), zap.String("kind", string(KindOf(err))), zap.Error(err))

	timeout := o.cfg.ProgressTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	attempts := o.cfg.ProgressRetry.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout*time.Duration(attempts+1))
	defer cancel()

	if ferr := o.reporter.Fail(ctx, id, msg); ferr != nil {
		o.log.Error("failed to record job failure", zap.String("job_id", id.String()), zap.Error(ferr))
	}
}
