package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jonathan/interview-prep/internal/types"
)

// SaveRawArtifact stores the gather phase output for a job, replacing any earlier run's artifact
func (db *DB) SaveRawArtifact(ctx context.Context, a *types.RawArtifact) error {
	content, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to marshal raw artifact: %w", err)
	}

	_, err = db.pool.Exec(ctx,
		`INSERT INTO raw_artifacts (job_id, content)
		 VALUES ($1, $2)
		 ON CONFLICT (job_id) DO UPDATE SET content = EXCLUDED.content, created_at = NOW()`,
		a.JobID, content,
	)
	if err != nil {
		return fmt.Errorf("failed to save raw artifact: %w", err)
	}
	return nil
}

// GetRawArtifact loads the raw artifact for a job
func (db *DB) GetRawArtifact(ctx context.Context, jobID uuid.UUID) (*types.RawArtifact, error) {
	var content []byte
	err := db.pool.QueryRow(ctx,
		`SELECT content FROM raw_artifacts WHERE job_id = $1`, jobID,
	).Scan(&content)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get raw artifact: %w", err)
	}

	var a types.RawArtifact
	if err := json.Unmarshal(content, &a); err != nil {
		return nil, fmt.Errorf("failed to unmarshal raw artifact: %w", err)
	}
	return &a, nil
}
