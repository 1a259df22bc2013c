package db

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/interview-prep/internal/types"
)

// MemoryStore is an in-process Store used by tests and the memory dev mode.
// Every operation runs under one lock, so updates are atomic in the same way
// the single UPDATE statement is for Postgres.
type MemoryStore struct {
	mu        sync.Mutex
	jobs      map[uuid.UUID]*types.Job
	artifacts map[uuid.UUID][]byte
	outputs   map[uuid.UUID]*types.SynthesisOutput

	// Now is the clock used for timestamps. Defaults to time.Now.
	Now func() time.Time
}

// NewMemoryStore returns an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:      make(map[uuid.UUID]*types.Job),
		artifacts: make(map[uuid.UUID][]byte),
		outputs:   make(map[uuid.UUID]*types.SynthesisOutput),
		Now:       time.Now,
	}
}

func (m *MemoryStore) now() time.Time {
	if m.Now == nil {
		return time.Now()
	}
	return m.Now()
}

// copyJob returns a deep copy so callers never share state with the store.
func copyJob(j *types.Job) *types.Job {
	c := *j
	if j.ErrorMessage != nil {
		msg := *j.ErrorMessage
		c.ErrorMessage = &msg
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	c.Input.JobLinks = slices.Clone(j.Input.JobLinks)
	return &c
}

func (m *MemoryStore) CreateJob(_ context.Context, input *types.JobInput) (*types.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	job := &types.Job{
		ID:           uuid.New(),
		UserID:       input.UserID,
		Status:       types.JobStatusPending,
		ProgressStep: types.StepQueued,
		Input:        *input,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	job.Input.JobLinks = slices.Clone(input.JobLinks)
	m.jobs[job.ID] = job
	return copyJob(job), nil
}

func (m *MemoryStore) GetJob(_ context.Context, id uuid.UUID) (*types.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return nil, nil
	}
	return copyJob(job), nil
}

func (m *MemoryStore) UpdateJobProgress(_ context.Context, id uuid.UUID, upd types.ProgressUpdate) (*types.Job, error) {
	if err := validateProgress(upd); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	// Apply to a copy so a rejected update leaves the stored job untouched.
	next := copyJob(job)
	if err := applyProgress(next, upd, m.now()); err != nil {
		return nil, err
	}
	m.jobs[id] = next
	return copyJob(next), nil
}

func (m *MemoryStore) ResetJob(_ context.Context, id uuid.UUID, from []types.JobStatus) (*types.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	if !slices.Contains(from, job.Status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, job.Status, types.JobStatusPending)
	}
	job.Status = types.JobStatusPending
	job.ProgressStep = types.StepQueued
	job.ProgressPercentage = 0
	job.ErrorMessage = nil
	job.StartedAt = nil
	job.CompletedAt = nil
	job.UpdatedAt = m.now()
	return copyJob(job), nil
}

func (m *MemoryStore) ListJobs(_ context.Context, f JobFilter) ([]types.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	jobs := []types.Job{}
	for _, j := range m.jobs {
		if f.UserID != nil && j.UserID != *f.UserID {
			continue
		}
		if f.Status != nil && j.Status != *f.Status {
			continue
		}
		jobs = append(jobs, *copyJob(j))
	}
	sort.Slice(jobs, func(a, b int) bool { return jobs[a].CreatedAt.After(jobs[b].CreatedAt) })

	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	offset := max(f.Offset, 0)
	if offset >= len(jobs) {
		return []types.Job{}, nil
	}
	return jobs[offset:min(offset+limit, len(jobs))], nil
}

func (m *MemoryStore) DeleteJob(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.jobs[id]; !ok {
		return ErrJobNotFound
	}
	delete(m.jobs, id)
	delete(m.artifacts, id)
	delete(m.outputs, id)
	return nil
}

func (m *MemoryStore) SaveRawArtifact(_ context.Context, a *types.RawArtifact) error {
	content, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to marshal raw artifact: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[a.JobID]; !ok {
		return ErrJobNotFound
	}
	m.artifacts[a.JobID] = content
	return nil
}

func (m *MemoryStore) GetRawArtifact(_ context.Context, jobID uuid.UUID) (*types.RawArtifact, error) {
	m.mu.Lock()
	content, ok := m.artifacts[jobID]
	m.mu.Unlock()
	if !ok {
		return nil, nil
	}
	var a types.RawArtifact
	if err := json.Unmarshal(content, &a); err != nil {
		return nil, fmt.Errorf("failed to unmarshal raw artifact: %w", err)
	}
	return &a, nil
}

func (m *MemoryStore) output(jobID uuid.UUID) (*types.SynthesisOutput, error) {
	if _, ok := m.jobs[jobID]; !ok {
		return nil, ErrJobNotFound
	}
	out, ok := m.outputs[jobID]
	if !ok {
		out = &types.SynthesisOutput{}
		m.outputs[jobID] = out
	}
	return out, nil
}

func (m *MemoryStore) ClearSynthesisOutput(_ context.Context, jobID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.outputs, jobID)
	return nil
}

func (m *MemoryStore) SaveStages(_ context.Context, jobID uuid.UUID, stages []types.InterviewStage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	out, err := m.output(jobID)
	if err != nil {
		return err
	}
	for i, st := range stages {
		st.ID = uuid.New()
		st.Position = i + 1
		out.Stages = append(out.Stages, st)
	}
	return nil
}

func (m *MemoryStore) SaveQuestions(_ context.Context, jobID uuid.UUID, questions []types.Question) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	out, err := m.output(jobID)
	if err != nil {
		return err
	}
	for _, q := range questions {
		q.ID = uuid.New()
		out.Questions = append(out.Questions, q)
	}
	return nil
}

func (m *MemoryStore) SaveComparison(_ context.Context, jobID uuid.UUID, c *types.Comparison) error {
	if c == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out, err := m.output(jobID)
	if err != nil {
		return err
	}
	cp := *c
	out.Comparison = &cp
	return nil
}

func (m *MemoryStore) GetSynthesisOutput(_ context.Context, jobID uuid.UUID) (*types.SynthesisOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out, ok := m.outputs[jobID]
	if !ok || (len(out.Stages) == 0 && len(out.Questions) == 0 && out.Comparison == nil) {
		return nil, nil
	}
	cp := &types.SynthesisOutput{
		Stages:    slices.Clone(out.Stages),
		Questions: slices.Clone(out.Questions),
	}
	if cp.Stages == nil {
		cp.Stages = []types.InterviewStage{}
	}
	if cp.Questions == nil {
		cp.Questions = []types.Question{}
	}
	if out.Comparison != nil {
		c := *out.Comparison
		cp.Comparison = &c
	}
	return cp, nil
}
