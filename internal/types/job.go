// Package types provides type definitions for structured data used throughout the interview-prep system.
//
//nolint:revive // types is a standard Go package name pattern
package types

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of a research job
type JobStatus string

// JobStatus constants
const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Progress step labels. Advisory only.
const (
	StepQueued       = "QUEUED"
	StepInitializing = "INITIALIZING"
	StepGathering    = "GATHERING"
	StepSavingRaw    = "SAVING_RAW_DATA"
	StepSynthesizing = "SYNTHESIZING"
	StepFinalizing   = "FINALIZING"
	StepDone         = "DONE"
	StepFailed       = "FAILED"
)

// IsTerminal reports whether no further transitions happen without a manual retry.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Valid reports whether s is a known status.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// CanTransition reports whether a run may move a job from one status to another.
// Staying in processing is allowed so progress-only updates pass the same check.
// Both terminal statuses are only reachable from processing; a job that never
// started has to be moved to processing first. Resetting to pending is a manual
// retry and is handled separately.
func CanTransition(from, to JobStatus) bool {
	switch to {
	case JobStatusProcessing:
		return from == JobStatusPending || from == JobStatusProcessing
	case JobStatusCompleted, JobStatusFailed:
		return from == JobStatusProcessing
	default:
		return false
	}
}

// AllowedFrom returns the statuses a job may be in for a transition into to.
func AllowedFrom(to JobStatus) []JobStatus {
	var out []JobStatus
	for _, from := range []JobStatus{JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed} {
		if CanTransition(from, to) {
			out = append(out, from)
		}
	}
	return out
}

// JobInput is the submission payload for a research job
type JobInput struct {
	Company  string    `json:"company" validate:"required,max=200"`
	Role     string    `json:"role" validate:"required,max=200"`
	Locale   string    `json:"locale,omitempty" validate:"omitempty,max=35"`
	CVText   string    `json:"cv_text,omitempty" validate:"max=100000"`
	JobLinks []string  `json:"job_links,omitempty" validate:"max=10,dive,url"`
	UserID   uuid.UUID `json:"user_id,omitempty"`
}

// Validate validates the JobInput using the validator.
func (in *JobInput) Validate() error {
	validate := validator.New()
	return validate.Struct(in)
}

// Job is the persisted research job record
type Job struct {
	ID                 uuid.UUID  `json:"id"`
	UserID             uuid.UUID  `json:"user_id"`
	Status             JobStatus  `json:"status"`
	ProgressStep       string     `json:"progress_step"`
	ProgressPercentage int        `json:"progress_percentage"`
	ErrorMessage       *string    `json:"error_message,omitempty"`
	Input              JobInput   `json:"input"`
	StartedAt          *time.Time `json:"started_at,omitempty"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// ProgressUpdate is a partial mutation of a job record. Nil fields are left untouched.
type ProgressUpdate struct {
	Status       *JobStatus
	Step         *string
	Percentage   *int
	ErrorMessage *string
}

// Snapshot is the read-only progress view exposed to clients
type Snapshot struct {
	JobID              uuid.UUID  `json:"job_id"`
	Status             JobStatus  `json:"status"`
	ProgressStep       string     `json:"progress_step"`
	ProgressPercentage int        `json:"progress_percentage"`
	ErrorMessage       *string    `json:"error_message,omitempty"`
	StartedAt          *time.Time `json:"started_at,omitempty"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// Snapshot returns the progress view of the job.
func (j *Job) Snapshot() Snapshot {
	return Snapshot{
		JobID:              j.ID,
		Status:             j.Status,
		ProgressStep:       j.ProgressStep,
		ProgressPercentage: j.ProgressPercentage,
		ErrorMessage:       j.ErrorMessage,
		StartedAt:          j.StartedAt,
		CompletedAt:        j.CompletedAt,
		CreatedAt:          j.CreatedAt,
		UpdatedAt:          j.UpdatedAt,
	}
}

// Job converts a snapshot back into a job record without input data.
func (s Snapshot) Job() *Job {
	return &Job{
		ID:                 s.JobID,
		Status:             s.Status,
		ProgressStep:       s.ProgressStep,
		ProgressPercentage: s.ProgressPercentage,
		ErrorMessage:       s.ErrorMessage,
		StartedAt:          s.StartedAt,
		CompletedAt:        s.CompletedAt,
		CreatedAt:          s.CreatedAt,
		UpdatedAt:          s.UpdatedAt,
	}
}

// StatusPtr returns a pointer to s.
func StatusPtr(s JobStatus) *JobStatus { return &s }

// StringPtr returns a pointer to s.
func StringPtr(s string) *string { return &s }

// IntPtr returns a pointer to i.
func IntPtr(i int) *int { return &i }
