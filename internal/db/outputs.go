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

// sendBatch runs every queued statement in one round trip. A batch outside a
// transaction executes as a single implicit transaction, so a table is either
// fully written or untouched.
func (db *DB) sendBatch(ctx context.Context, batch *pgx.Batch) error {
	br := db.pool.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return err
		}
	}
	return br.Close()
}

// ClearSynthesisOutput removes output left by a previous run of the job
func (db *DB) ClearSynthesisOutput(ctx context.Context, jobID uuid.UUID) error {
	batch := &pgx.Batch{}
	batch.Queue(`DELETE FROM interview_stages WHERE job_id = $1`, jobID)
	batch.Queue(`DELETE FROM interview_questions WHERE job_id = $1`, jobID)
	batch.Queue(`DELETE FROM cv_comparisons WHERE job_id = $1`, jobID)
	if err := db.sendBatch(ctx, batch); err != nil {
		return fmt.Errorf("failed to clear synthesis output: %w", err)
	}
	return nil
}

// SaveStages inserts the ordered interview stages for a job
func (db *DB) SaveStages(ctx context.Context, jobID uuid.UUID, stages []types.InterviewStage) error {
	if len(stages) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for i, st := range stages {
		batch.Queue(
			`INSERT INTO interview_stages (job_id, position, name, duration, interviewer, content, guidance)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			jobID, i+1, st.Name, st.Duration, st.Interviewer, st.Content, st.Guidance,
		)
	}
	if err := db.sendBatch(ctx, batch); err != nil {
		return fmt.Errorf("failed to save interview stages: %w", err)
	}
	return nil
}

// SaveQuestions inserts the question bank for a job
func (db *DB) SaveQuestions(ctx context.Context, jobID uuid.UUID, questions []types.Question) error {
	if len(questions) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for i, q := range questions {
		batch.Queue(
			`INSERT INTO interview_questions
			     (job_id, position, stage_name, category, difficulty, question, why_asked, model_answer, tips)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			jobID, i+1, q.StageName, q.Category, q.Difficulty, q.Question, q.WhyAsked, q.ModelAnswer, q.Tips,
		)
	}
	if err := db.sendBatch(ctx, batch); err != nil {
		return fmt.Errorf("failed to save interview questions: %w", err)
	}
	return nil
}

// SaveComparison stores the CV gap analysis for a job
func (db *DB) SaveComparison(ctx context.Context, jobID uuid.UUID, c *types.Comparison) error {
	if c == nil {
		return nil
	}
	strengths, _ := json.Marshal(nonNil(c.Strengths))
	gaps, _ := json.Marshal(nonNil(c.Gaps))
	recs, _ := json.Marshal(nonNil(c.Recommendations))
	missing, _ := json.Marshal(nonNil(c.MissingInputs))

	_, err := db.pool.Exec(ctx,
		`INSERT INTO cv_comparisons (job_id, match_score, strengths, gaps, recommendations, summary, missing_inputs)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (job_id) DO UPDATE SET
		     match_score = EXCLUDED.match_score, strengths = EXCLUDED.strengths, gaps = EXCLUDED.gaps,
		     recommendations = EXCLUDED.recommendations, summary = EXCLUDED.summary,
		     missing_inputs = EXCLUDED.missing_inputs, created_at = NOW()`,
		jobID, c.MatchScore, strengths, gaps, recs, c.Summary, missing,
	)
	if err != nil {
		return fmt.Errorf("failed to save comparison: %w", err)
	}
	return nil
}

// GetSynthesisOutput loads stages, questions and comparison for a job
func (db *DB) GetSynthesisOutput(ctx context.Context, jobID uuid.UUID) (*types.SynthesisOutput, error) {
	out := &types.SynthesisOutput{Stages: []types.InterviewStage{}, Questions: []types.Question{}}

	rows, err := db.pool.Query(ctx,
		`SELECT id, position, name, duration, interviewer, content, guidance
		 FROM interview_stages WHERE job_id = $1 ORDER BY position`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to get interview stages: %w", err)
	}
	for rows.Next() {
		var st types.InterviewStage
		if err := rows.Scan(&st.ID, &st.Position, &st.Name, &st.Duration, &st.Interviewer, &st.Content, &st.Guidance); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan interview stage: %w", err)
		}
		out.Stages = append(out.Stages, st)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to get interview stages: %w", err)
	}

	rows, err = db.pool.Query(ctx,
		`SELECT id, stage_name, category, difficulty, question, why_asked, model_answer, tips
		 FROM interview_questions WHERE job_id = $1 ORDER BY position`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to get interview questions: %w", err)
	}
	for rows.Next() {
		var q types.Question
		if err := rows.Scan(&q.ID, &q.StageName, &q.Category, &q.Difficulty, &q.Question, &q.WhyAsked, &q.ModelAnswer, &q.Tips); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan interview question: %w", err)
		}
		out.Questions = append(out.Questions, q)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to get interview questions: %w", err)
	}

	var c types.Comparison
	var strengths, gaps, recs, missing []byte
	err = db.pool.QueryRow(ctx,
		`SELECT match_score, strengths, gaps, recommendations, summary, missing_inputs
		 FROM cv_comparisons WHERE job_id = $1`, jobID,
	).Scan(&c.MatchScore, &strengths, &gaps, &recs, &c.Summary, &missing)
	switch {
	case err == nil:
		_ = json.Unmarshal(strengths, &c.Strengths)
		_ = json.Unmarshal(gaps, &c.Gaps)
		_ = json.Unmarshal(recs, &c.Recommendations)
		_ = json.Unmarshal(missing, &c.MissingInputs)
		out.Comparison = &c
	case errors.Is(err, pgx.ErrNoRows):
	default:
		return nil, fmt.Errorf("failed to get comparison: %w", err)
	}

	if len(out.Stages) == 0 && len(out.Questions) == 0 && out.Comparison == nil {
		return nil, nil
	}
	return out, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
