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

const jobColumns = `id, user_id, status, progress_step, progress_percentage, error_message,
	input, started_at, completed_at, created_at, updated_at`

func scanJob(row pgx.Row) (*types.Job, error) {
	var job types.Job
	var userID *uuid.UUID
	var status string
	var inputJSON []byte

	if err := row.Scan(&job.ID, &userID, &status, &job.ProgressStep, &job.ProgressPercentage,
		&job.ErrorMessage, &inputJSON, &job.StartedAt, &job.CompletedAt,
		&job.CreatedAt, &job.UpdatedAt); err != nil {
		return nil, err
	}
	job.Status = types.JobStatus(status)
	if userID != nil {
		job.UserID = *userID
	}
	if inputJSON != nil {
		if err := json.Unmarshal(inputJSON, &job.Input); err != nil {
			return nil, fmt.Errorf("failed to unmarshal job input: %w", err)
		}
	}
	return &job, nil
}

func nullableUUID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}

// CreateJob inserts a new job in pending status
func (db *DB) CreateJob(ctx context.Context, input *types.JobInput) (*types.Job, error) {
	inputJSON, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job input: %w", err)
	}

	job, err := scanJob(db.pool.QueryRow(ctx,
		`INSERT INTO jobs (user_id, status, progress_step, progress_percentage, input)
		 VALUES ($1, 'pending', $2, 0, $3)
		 RETURNING `+jobColumns,
		nullableUUID(input.UserID), types.StepQueued, inputJSON,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}
	return job, nil
}

// GetJob retrieves a job by ID
func (db *DB) GetJob(ctx context.Context, id uuid.UUID) (*types.Job, error) {
	job, err := scanJob(db.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// UpdateJobProgress applies a partial update in a single statement. The WHERE clause
// carries the transition guard so concurrent writers cannot interleave a read and a write.
// Percentage never decreases, started_at is set once, completed_at is set on entering a
// terminal status and error_message is only written with failed.
func (db *DB) UpdateJobProgress(ctx context.Context, id uuid.UUID, upd types.ProgressUpdate) (*types.Job, error) {
	if err := validateProgress(upd); err != nil {
		return nil, err
	}

	var status *string
	if upd.Status != nil {
		s := string(*upd.Status)
		status = &s
	}

	job, err := scanJob(db.pool.QueryRow(ctx,
		`UPDATE jobs SET
		    status = COALESCE($2::text, status),
		    progress_step = COALESCE($3::text, progress_step),
		    progress_percentage = CASE
		        WHEN $2::text = 'completed' THEN 100
		        WHEN $4::int IS NULL THEN progress_percentage
		        ELSE GREATEST(progress_percentage, $4::int)
		    END,
		    error_message = CASE WHEN $2::text = 'failed' THEN $5::text ELSE error_message END,
		    started_at = CASE WHEN $2::text = 'processing' THEN COALESCE(started_at, NOW()) ELSE started_at END,
		    completed_at = CASE WHEN $2::text IN ('completed', 'failed') THEN NOW() ELSE completed_at END,
		    updated_at = NOW()
		 WHERE id = $1 AND status = ANY($6::text[])
		 RETURNING `+jobColumns,
		id, status, upd.Step, upd.Percentage, upd.ErrorMessage, statusStrings(allowedFrom(upd)),
	))
	if err == nil {
		return job, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to update job progress: %w", err)
	}

	// Nothing matched: either the job is gone or the guard rejected the transition.
	current, getErr := db.GetJob(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	if current == nil {
		return nil, ErrJobNotFound
	}
	target := current.Status
	if upd.Status != nil {
		target = *upd.Status
	}
	return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, target)
}

// ResetJob moves a job back to pending for a manual retry, clearing run state.
// from lists the statuses the caller accepts as retryable.
func (db *DB) ResetJob(ctx context.Context, id uuid.UUID, from []types.JobStatus) (*types.Job, error) {
	job, err := scanJob(db.pool.QueryRow(ctx,
		`UPDATE jobs SET
		    status = 'pending', progress_step = $2, progress_percentage = 0,
		    error_message = NULL, started_at = NULL, completed_at = NULL, updated_at = NOW()
		 WHERE id = $1 AND status = ANY($3::text[])
		 RETURNING `+jobColumns,
		id, types.StepQueued, statusStrings(from),
	))
	if err == nil {
		return job, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to reset job: %w", err)
	}

	current, getErr := db.GetJob(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	if current == nil {
		return nil, ErrJobNotFound
	}
	return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, types.JobStatusPending)
}

// ListJobs lists jobs newest first, optionally filtered by owner or status
func (db *DB) ListJobs(ctx context.Context, f JobFilter) ([]types.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE 1=1`
	args := []interface{}{}
	argPos := 1

	if f.UserID != nil {
		query += fmt.Sprintf(" AND user_id = $%d", argPos)
		args = append(args, *f.UserID)
		argPos++
	}
	if f.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argPos)
		args = append(args, string(*f.Status))
		argPos++
	}

	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, limit, max(f.Offset, 0))

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	jobs := []types.Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobs, nil
}

// DeleteJob removes a job and, by cascade, everything stored for it
func (db *DB) DeleteJob(ctx context.Context, id uuid.UUID) error {
	tag, err := db.pool.Exec(ctx, `DELETE FROM jobs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}
