package db

import (
	"context"

	"github.com/google/uuid"
	"github.com/jonathan/interview-prep/internal/types"
)

// JobFilter narrows ListJobs results
type JobFilter struct {
	UserID *uuid.UUID
	Status *types.JobStatus
	Limit  int
	Offset int
}

// JobStore persists job records. All mutations are applied atomically.
type JobStore interface {
	CreateJob(ctx context.Context, input *types.JobInput) (*types.Job, error)
	// GetJob returns nil, nil when the job does not exist.
	GetJob(ctx context.Context, id uuid.UUID) (*types.Job, error)
	UpdateJobProgress(ctx context.Context, id uuid.UUID, upd types.ProgressUpdate) (*types.Job, error)
	ResetJob(ctx context.Context, id uuid.UUID, from []types.JobStatus) (*types.Job, error)
	ListJobs(ctx context.Context, f JobFilter) ([]types.Job, error)
	DeleteJob(ctx context.Context, id uuid.UUID) error
}

// RawArtifactStore persists the gather phase output of a job.
type RawArtifactStore interface {
	SaveRawArtifact(ctx context.Context, a *types.RawArtifact) error
	// GetRawArtifact returns nil, nil when nothing was saved.
	GetRawArtifact(ctx context.Context, jobID uuid.UUID) (*types.RawArtifact, error)
}

// OutputStore persists synthesis output, one destination per method.
type OutputStore interface {
	ClearSynthesisOutput(ctx context.Context, jobID uuid.UUID) error
	SaveStages(ctx context.Context, jobID uuid.UUID, stages []types.InterviewStage) error
	SaveQuestions(ctx context.Context, jobID uuid.UUID, questions []types.Question) error
	SaveComparison(ctx context.Context, jobID uuid.UUID, c *types.Comparison) error
	// GetSynthesisOutput returns nil, nil when the job has no output.
	GetSynthesisOutput(ctx context.Context, jobID uuid.UUID) (*types.SynthesisOutput, error)
}

// Store is everything the orchestrator and server need from persistence.
type Store interface {
	JobStore
	RawArtifactStore
	OutputStore
}

var (
	_ Store = (*DB)(nil)
	_ Store = (*MemoryStore)(nil)
)
