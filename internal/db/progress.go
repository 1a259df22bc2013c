package db

import (
	"fmt"
	"time"

	"github.com/jonathan/interview-prep/internal/types"
)

// validateProgress rejects updates that can never apply.
func validateProgress(upd types.ProgressUpdate) error {
	if upd.Status != nil && !upd.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidProgress, *upd.Status)
	}
	if upd.Status != nil && *upd.Status == types.JobStatusPending {
		return fmt.Errorf("%w: pending is only reachable by reset", ErrInvalidProgress)
	}
	if upd.Percentage != nil && (*upd.Percentage < 0 || *upd.Percentage > 100) {
		return fmt.Errorf("%w: percentage %d out of range", ErrInvalidProgress, *upd.Percentage)
	}
	if upd.Status == nil && upd.Step == nil && upd.Percentage == nil && upd.ErrorMessage == nil {
		return fmt.Errorf("%w: empty update", ErrInvalidProgress)
	}
	return nil
}

// allowedFrom returns the statuses a job must be in for upd to apply.
// Updates without a status only apply while processing.
func allowedFrom(upd types.ProgressUpdate) []types.JobStatus {
	if upd.Status == nil {
		return []types.JobStatus{types.JobStatusProcessing}
	}
	return types.AllowedFrom(*upd.Status)
}

// applyProgress mutates job in place following the same rules as the UPDATE statement in jobs.go.
// The caller holds whatever lock makes this atomic.
func applyProgress(job *types.Job, upd types.ProgressUpdate, now time.Time) error {
	target := job.Status
	if upd.Status != nil {
		target = *upd.Status
	}
	permitted := false
	for _, s := range allowedFrom(upd) {
		if s == job.Status {
			permitted = true
			break
		}
	}
	if !permitted {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, job.Status, target)
	}

	job.Status = target
	if upd.Step != nil {
		job.ProgressStep = *upd.Step
	}
	if upd.Percentage != nil && *upd.Percentage > job.ProgressPercentage {
		job.ProgressPercentage = *upd.Percentage
	}
	switch target {
	case types.JobStatusProcessing:
		if job.StartedAt == nil {
			t := now
			job.StartedAt = &t
		}
	case types.JobStatusCompleted:
		job.ProgressPercentage = 100
	case types.JobStatusFailed:
		if upd.ErrorMessage != nil {
			msg := *upd.ErrorMessage
			job.ErrorMessage = &msg
		}
	}
	if upd.Status != nil && target.IsTerminal() {
		t := now
		job.CompletedAt = &t
	}
	job.UpdatedAt = now
	return nil
}

func statusStrings(in []types.JobStatus) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}
