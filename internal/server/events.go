package server

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/interview-prep/internal/notify"
	"github.com/jonathan/interview-prep/internal/types"
	"go.uber.org/zap"
)

// handleJobEvents streams job progress as server-sent events: a snapshot
// first, then a progress event per change, then complete once the job is
// terminal. Notifications trigger a re-read; a periodic re-read covers missed ones.
func (s *Server) handleJobEvents(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	id := job.ID
	logger := s.log.With(zap.String("job_id", id.String()))

	var events <-chan notify.Event
	if s.events != nil {
		ch, err := s.events.Subscribe(ctx, id)
		if err != nil {
			logger.Warn("event subscription failed, polling store", zap.Error(err))
		} else {
			events = ch
		}
	}

	sse, err := NewSSEWriter(w)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	// Re-read after subscribing so a change in between is not lost.
	job, done := s.streamJob(ctx, sse, EventSnapshot, id, nil)
	if done {
		return
	}

	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()
	poll := time.NewTicker(s.eventPoll)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			if err := sse.WriteHeartbeat(); err != nil {
				return
			}
			continue
		case _, ok := <-events:
			if !ok {
				events = nil
				continue
			}
		case <-poll.C:
		}
		if job, done = s.streamJob(ctx, sse, EventProgress, id, job); done {
			return
		}
	}
}

// streamJob reads the job and writes it as event when it differs from prev.
// It writes complete and reports done once the job is terminal or gone.
func (s *Server) streamJob(ctx context.Context, sse *SSEWriter, event string, id uuid.UUID, prev *types.Job) (*types.Job, bool) {
	readCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	job, err := s.store.GetJob(readCtx, id)
	if err != nil {
		if ctx.Err() != nil {
			return prev, true
		}
		s.log.Warn("event stream read failed", zap.String("job_id", id.String()), zap.Error(err))
		return prev, false
	}
	if job == nil {
		sse.WriteError("job deleted")
		return prev, true
	}

	if changed(prev, job) {
		if err := sse.WriteEvent(event, s.jobResponse(job)); err != nil {
			return job, true
		}
	}
	if job.Status.IsTerminal() {
		sse.WriteEvent(EventComplete, s.jobResponse(job)) //nolint:errcheck
		return job, true
	}
	return job, false
}

func changed(prev, cur *types.Job) bool {
	return prev == nil ||
		prev.Status != cur.Status ||
		prev.ProgressStep != cur.ProgressStep ||
		prev.ProgressPercentage != cur.ProgressPercentage ||
		!prev.UpdatedAt.Equal(cur.UpdatedAt)
}
