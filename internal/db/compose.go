package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// artifactDeleter is implemented by artifact stores that keep data outside
// the job record and must be cleaned up on DeleteJob.
type artifactDeleter interface {
	DeleteRawArtifact(ctx context.Context, jobID uuid.UUID) error
}

type splitStore struct {
	JobStore
	RawArtifactStore
	OutputStore
}

// WithArtifacts returns base with raw artifacts served by raw instead.
func WithArtifacts(base Store, raw RawArtifactStore) Store {
	if raw == nil {
		return base
	}
	return &splitStore{JobStore: base, RawArtifactStore: raw, OutputStore: base}
}

// DeleteJob removes the job and then its external artifact. A missing
// artifact is not an error.
func (s *splitStore) DeleteJob(ctx context.Context, id uuid.UUID) error {
	if err := s.JobStore.DeleteJob(ctx, id); err != nil {
		return err
	}
	if d, ok := s.RawArtifactStore.(artifactDeleter); ok {
		if err := d.DeleteRawArtifact(ctx, id); err != nil {
			return fmt.Errorf("failed to delete raw artifact: %w", err)
		}
	}
	return nil
}
