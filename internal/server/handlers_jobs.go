package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/jonathan/interview-prep/internal/db"
	"github.com/jonathan/interview-prep/internal/pipeline"
	"github.com/jonathan/interview-prep/internal/progress"
	"github.com/jonathan/interview-prep/internal/server/middleware"
	"github.com/jonathan/interview-prep/internal/types"
)

const (
	maxSubmitBytes   = 1 << 20
	defaultListLimit = 50
	maxListLimit     = 100
)

// SubmitResponse is returned by job submission and retry.
type SubmitResponse struct {
	JobID  uuid.UUID       `json:"job_id"`
	Status types.JobStatus `json:"status"`
}

// JobResponse is the progress view of a job.
type JobResponse struct {
	types.Snapshot
	Company   string             `json:"company"`
	Role      string             `json:"role"`
	Stall     progress.StallInfo `json:"stall"`
	Retryable bool               `json:"retryable"`
	// Active is true while this server holds a run for the job.
	Active bool `json:"active"`
}

// ListJobsResponse is returned by GET /jobs.
type ListJobsResponse struct {
	Jobs   []JobResponse `json:"jobs"`
	Count  int           `json:"count"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

func (s *Server) jobResponse(job *types.Job) JobResponse {
	stall := s.stall.Evaluate(job, s.now())
	active := s.orch != nil && s.orch.Active(job.ID)
	return JobResponse{
		Snapshot:  job.Snapshot(),
		Company:   job.Input.Company,
		Role:      job.Input.Role,
		Stall:     stall,
		Retryable: !active && (job.Status == types.JobStatusFailed || stall.CanRetry),
		Active:    active,
	}
}

// caller returns the authenticated user, if any.
func caller(r *http.Request) (uuid.UUID, bool) {
	id, err := middleware.GetUserID(r)
	return id, err == nil
}

// loadJob resolves the {id} path value to a job the caller may see. It writes
// the error response and returns false otherwise. Jobs of other users look
// like missing jobs.
func (s *Server) loadJob(w http.ResponseWriter, r *http.Request) (*types.Job, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid job ID format")
		return nil, false
	}
	job, err := s.store.GetJob(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return nil, false
	}
	if user, ok := caller(r); job == nil || (ok && job.UserID != user) {
		s.errorResponse(w, http.StatusNotFound, "Job not found")
		return nil, false
	}
	return job, true
}

// handleSubmitJob accepts a job and returns before any research starts.
func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxSubmitBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var in types.JobInput
	if err := dec.Decode(&in); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if user, ok := caller(r); ok {
		in.UserID = user
	}

	job, err := s.orch.Submit(r.Context(), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Location", "/jobs/"+job.ID.String())
	s.jsonResponse(w, http.StatusAccepted, SubmitResponse{JobID: job.ID, Status: job.Status})
}

// handleListJobs lists jobs, newest first.
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := db.JobFilter{Limit: defaultListLimit}

	if v := q.Get("status"); v != "" {
		status := types.JobStatus(v)
		if !status.Valid() {
			s.errorResponse(w, http.StatusBadRequest, fmt.Sprintf("Invalid status %q", v))
			return
		}
		f.Status = &status
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.errorResponse(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		f.Limit = min(n, maxListLimit)
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.errorResponse(w, http.StatusBadRequest, "offset must be a non-negative integer")
			return
		}
		f.Offset = n
	}
	if user, ok := caller(r); ok {
		f.UserID = &user
	} else if v := q.Get("user_id"); v != "" {
		user, err := uuid.Parse(v)
		if err != nil {
			s.errorResponse(w, http.StatusBadRequest, "Invalid user_id format")
			return
		}
		f.UserID = &user
	}

	jobs, err := s.store.ListJobs(r.Context(), f)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := ListJobsResponse{Jobs: make([]JobResponse, 0, len(jobs)), Limit: f.Limit, Offset: f.Offset}
	for i := range jobs {
		out.Jobs = append(out.Jobs, s.jobResponse(&jobs[i]))
	}
	out.Count = len(out.Jobs)
	s.jsonResponse(w, http.StatusOK, out)
}

// handleGetJob returns the progress snapshot with stall information.
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}
	s.jsonResponse(w, http.StatusOK, s.jobResponse(job))
}

// handleDeleteJob removes a job and its outputs. Running jobs cannot be deleted.
func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}
	if s.orch.Active(job.ID) {
		s.fail(w, r, pipeline.ErrRunActive)
		return
	}
	if err := s.store.DeleteJob(r.Context(), job.ID); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRetryJob re-runs a failed or stalled job.
func (s *Server) handleRetryJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}
	reset, err := s.orch.Retry(r.Context(), job.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusAccepted, SubmitResponse{JobID: reset.ID, Status: reset.Status})
}

// handleGetArtifact returns the raw gathered data of a job.
func (s *Server) handleGetArtifact(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}
	artifact, err := s.store.GetRawArtifact(r.Context(), job.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if artifact == nil {
		s.errorResponse(w, http.StatusNotFound, "No raw artifact for job")
		return
	}
	s.jsonResponse(w, http.StatusOK, artifact)
}

// handleGetOutput returns the interview prep output of a completed job.
func (s *Server) handleGetOutput(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}
	if job.Status != types.JobStatusCompleted {
		s.errorResponse(w, http.StatusConflict, fmt.Sprintf("Job is %s", job.Status))
		return
	}
	out, err := s.store.GetSynthesisOutput(r.Context(), job.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if out == nil {
		s.fail(w, r, errors.New("completed job has no synthesis output"))
		return
	}
	s.jsonResponse(w, http.StatusOK, out)
}
