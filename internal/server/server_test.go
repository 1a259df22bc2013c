package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/interview-prep/internal/config"
	"github.com/jonathan/interview-prep/internal/db"
	"github.com/jonathan/interview-prep/internal/notify"
	"github.com/jonathan/interview-prep/internal/pipeline"
	"github.com/jonathan/interview-prep/internal/server/ratelimit"
	"github.com/jonathan/interview-prep/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeOrch records jobs in the store without running them.
type fakeOrch struct {
	store     *db.MemoryStore
	submitErr error
	retryErr  error

	mu     sync.Mutex
	active map[uuid.UUID]bool
}

func (f *fakeOrch) Submit(ctx context.Context, in types.JobInput) (*types.Job, error) {
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", pipeline.ErrInvalidInput, err)
	}
	return f.store.CreateJob(ctx, &in)
}

func (f *fakeOrch) Retry(ctx context.Context, id uuid.UUID) (*types.Job, error) {
	if f.retryErr != nil {
		return nil, f.retryErr
	}
	return f.store.ResetJob(ctx, id, []types.JobStatus{types.JobStatusFailed})
}

func (f *fakeOrch) Active(id uuid.UUID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active[id]
}

func (f *fakeOrch) setActive(id uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active[id] = true
}

type testServer struct {
	*Server
	store *db.MemoryStore
	orch  *fakeOrch
	hub   *notify.Hub
}

func newTestServer(t *testing.T, cfg Config) *testServer {
	t.Helper()
	store := db.NewMemoryStore()
	orch := &fakeOrch{store: store, active: map[uuid.UUID]bool{}}
	hub := notify.NewHub()
	if cfg.RateLimit == nil {
		cfg.RateLimit = &ratelimit.Config{Enabled: false}
	}
	s := New(cfg, store, orch, hub, nil)
	t.Cleanup(s.rateLimiter.Stop)
	return &testServer{Server: s, store: store, orch: orch, hub: hub}
}

func (ts *testServer) do(t *testing.T, method, path, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr *bytes.Buffer
	if body != "" {
		rdr = bytes.NewBufferString(body)
	} else {
		rdr = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	ts.Handler().ServeHTTP(w, req)
	return w
}

func (ts *testServer) createJob(t *testing.T, in types.JobInput) *types.Job {
	t.Helper()
	job, err := ts.store.CreateJob(context.Background(), &in)
	require.NoError(t, err)
	return job
}

func (ts *testServer) update(t *testing.T, id uuid.UUID, status types.JobStatus, step string, pct int) {
	t.Helper()
	upd := types.ProgressUpdate{Step: &step, Percentage: &pct}
	if status != "" {
		upd.Status = &status
	}
	if status == types.JobStatusFailed {
		msg := "gather_total_failure: all gatherers failed"
		upd.ErrorMessage = &msg
	}
	if status.IsTerminal() {
		// Terminal statuses are only reachable from processing.
		_, err := ts.store.UpdateJobProgress(context.Background(), id, types.ProgressUpdate{Status: types.StatusPtr(types.JobStatusProcessing)})
		require.NoError(t, err)
	}
	_, err := ts.store.UpdateJobProgress(context.Background(), id, upd)
	require.NoError(t, err)
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

var acme = types.JobInput{Company: "Acme", Role: "Backend Engineer"}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t, Config{})

	w := ts.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode[map[string]string](t, w)["status"])

	w = ts.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "prep_active_runs")
}

func TestSubmitJob(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		submitErr error
		want      int
	}{
		{name: "accepted", body: `{"company":"Acme","role":"SRE","job_links":["https://acme.example/jobs/1"]}`, want: http.StatusAccepted},
		{name: "malformed body", body: `{"company":`, want: http.StatusBadRequest},
		{name: "unknown field", body: `{"company":"Acme","role":"SRE","salary":1}`, want: http.StatusBadRequest},
		{name: "missing role", body: `{"company":"Acme"}`, want: http.StatusBadRequest},
		{name: "shutting down", body: `{"company":"Acme","role":"SRE"}`, submitErr: pipeline.ErrShuttingDown, want: http.StatusServiceUnavailable},
		{name: "store down", body: `{"company":"Acme","role":"SRE"}`, submitErr: errors.New("connection refused"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, Config{})
			ts.orch.submitErr = tt.submitErr

			w := ts.do(t, http.MethodPost, "/jobs", tt.body)
			require.Equal(t, tt.want, w.Code, w.Body.String())

			if tt.want == http.StatusAccepted {
				resp := decode[SubmitResponse](t, w)
				assert.Equal(t, types.JobStatusPending, resp.Status)
				assert.Equal(t, "/jobs/"+resp.JobID.String(), w.Header().Get("Location"))
				return
			}
			body := decode[map[string]string](t, w)
			assert.NotEmpty(t, body["error"])
			if tt.want == http.StatusInternalServerError {
				assert.NotContains(t, body["message"], "connection refused")
			}
		})
	}
}

func TestGetJob(t *testing.T) {
	ts := newTestServer(t, Config{})
	job := ts.createJob(t, acme)
	ts.update(t, job.ID, types.JobStatusProcessing, types.StepGathering, 20)

	w := ts.do(t, http.MethodGet, "/jobs/"+job.ID.String(), "")
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[JobResponse](t, w)
	assert.Equal(t, job.ID, resp.JobID)
	assert.Equal(t, types.JobStatusProcessing, resp.Status)
	assert.Equal(t, types.StepGathering, resp.ProgressStep)
	assert.Equal(t, 20, resp.ProgressPercentage)
	assert.Equal(t, "Acme", resp.Company)
	assert.False(t, resp.Stall.IsStalled)
	assert.False(t, resp.Retryable)

	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodGet, "/jobs/not-a-uuid", "").Code)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/jobs/"+uuid.NewString(), "").Code)
}

func TestGetJob_Stalled(t *testing.T) {
	ts := newTestServer(t, Config{})
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ts.store.Now = func() time.Time { return base }
	ts.now = func() time.Time { return base.Add(50 * time.Second) }

	job := ts.createJob(t, acme)
	ts.update(t, job.ID, types.JobStatusProcessing, types.StepSynthesizing, 50)

	resp := decode[JobResponse](t, ts.do(t, http.MethodGet, "/jobs/"+job.ID.String(), ""))
	assert.True(t, resp.Stall.IsStalled)
	assert.Equal(t, 20, resp.Stall.StalledSeconds)
	assert.True(t, resp.Stall.CanRetry)
	assert.True(t, resp.Retryable)

	// A run held by this server is never offered for retry.
	ts.orch.setActive(job.ID)
	resp = decode[JobResponse](t, ts.do(t, http.MethodGet, "/jobs/"+job.ID.String(), ""))
	assert.True(t, resp.Active)
	assert.False(t, resp.Retryable)
}

func TestListJobs(t *testing.T) {
	ts := newTestServer(t, Config{})
	a := ts.createJob(t, acme)
	ts.createJob(t, types.JobInput{Company: "Globex", Role: "SRE"})
	ts.update(t, a.ID, types.JobStatusFailed, types.StepFailed, 10)

	resp := decode[ListJobsResponse](t, ts.do(t, http.MethodGet, "/jobs", ""))
	assert.Equal(t, 2, resp.Count)

	resp = decode[ListJobsResponse](t, ts.do(t, http.MethodGet, "/jobs?status=failed", ""))
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, a.ID, resp.Jobs[0].JobID)
	assert.True(t, resp.Jobs[0].Retryable)

	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodGet, "/jobs?status=stuck", "").Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodGet, "/jobs?limit=0", "").Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodGet, "/jobs?offset=-1", "").Code)
}

func TestDeleteJob(t *testing.T) {
	ts := newTestServer(t, Config{})
	running := ts.createJob(t, acme)
	ts.orch.setActive(running.ID)
	assert.Equal(t, http.StatusConflict, ts.do(t, http.MethodDelete, "/jobs/"+running.ID.String(), "").Code)

	done := ts.createJob(t, acme)
	assert.Equal(t, http.StatusNoContent, ts.do(t, http.MethodDelete, "/jobs/"+done.ID.String(), "").Code)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/jobs/"+done.ID.String(), "").Code)
}

func TestRetryJob(t *testing.T) {
	tests := []struct {
		name     string
		retryErr error
		want     int
	}{
		{name: "accepted", want: http.StatusAccepted},
		{name: "run active", retryErr: pipeline.ErrRunActive, want: http.StatusConflict},
		{name: "not retryable", retryErr: fmt.Errorf("%w: completed", pipeline.ErrNotRetryable), want: http.StatusConflict},
		{name: "deleted meanwhile", retryErr: db.ErrJobNotFound, want: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, Config{})
			job := ts.createJob(t, acme)
			ts.update(t, job.ID, types.JobStatusFailed, types.StepFailed, 10)
			ts.orch.retryErr = tt.retryErr

			w := ts.do(t, http.MethodPost, "/jobs/"+job.ID.String()+"/retry", "")
			require.Equal(t, tt.want, w.Code, w.Body.String())
			if tt.want == http.StatusAccepted {
				assert.Equal(t, types.JobStatusPending, decode[SubmitResponse](t, w).Status)
			}
		})
	}
}

func TestArtifactAndOutput(t *testing.T) {
	ts := newTestServer(t, Config{})
	ctx := context.Background()
	job := ts.createJob(t, acme)
	path := "/jobs/" + job.ID.String()

	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, path+"/artifact", "").Code)
	require.NoError(t, ts.store.SaveRawArtifact(ctx, &types.RawArtifact{
		JobID:    job.ID,
		Company:  &types.CompanyResearch{Company: "Acme", Summary: "Builds anvils"},
		Outcomes: map[string]string{"company": "ok", "job": "timeout", "cv": "empty"},
	}))
	artifact := decode[types.RawArtifact](t, ts.do(t, http.MethodGet, path+"/artifact", ""))
	assert.Equal(t, "timeout", artifact.Outcomes["job"])

	ts.update(t, job.ID, types.JobStatusProcessing, types.StepSynthesizing, 50)
	assert.Equal(t, http.StatusConflict, ts.do(t, http.MethodGet, path+"/output", "").Code)

	require.NoError(t, ts.store.SaveStages(ctx, job.ID, []types.InterviewStage{{Position: 1, Name: "Recruiter screen"}}))
	require.NoError(t, ts.store.SaveQuestions(ctx, job.ID, []types.Question{{Category: types.QuestionBehavioral, Question: "Tell me about a conflict."}}))
	require.NoError(t, ts.store.SaveComparison(ctx, job.ID, &types.Comparison{MatchScore: 70, MissingInputs: []string{"job"}}))
	ts.update(t, job.ID, types.JobStatusCompleted, types.StepDone, 100)

	w := ts.do(t, http.MethodGet, path+"/output", "")
	require.Equal(t, http.StatusOK, w.Code)
	out := decode[types.SynthesisOutput](t, w)
	require.Len(t, out.Stages, 1)
	assert.Equal(t, "Recruiter screen", out.Stages[0].Name)
	require.NotNil(t, out.Comparison)
	assert.Equal(t, []string{"job"}, out.Comparison.MissingInputs)
}

func TestAuth(t *testing.T) {
	jwtCfg := &config.JWTConfig{Secret: "test-secret-0123456789", ExpirationHours: 1}
	ts := newTestServer(t, Config{JWT: jwtCfg})

	alice, bob := uuid.New(), uuid.New()
	aliceToken, err := NewJWTService(jwtCfg).GenerateToken(alice)
	require.NoError(t, err)
	bobJob := ts.createJob(t, types.JobInput{Company: "Acme", Role: "SRE", UserID: bob})

	assert.Equal(t, http.StatusUnauthorized, ts.do(t, http.MethodGet, "/jobs", "").Code)
	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/health", "").Code)

	auth := []string{"Authorization", "Bearer " + aliceToken}
	w := ts.do(t, http.MethodPost, "/jobs", `{"company":"Acme","role":"SRE"}`, auth...)
	require.Equal(t, http.StatusAccepted, w.Code)
	id := decode[SubmitResponse](t, w).JobID

	stored, err := ts.store.GetJob(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, alice, stored.UserID)

	list := decode[ListJobsResponse](t, ts.do(t, http.MethodGet, "/jobs", "", auth...))
	require.Equal(t, 1, list.Count)
	assert.Equal(t, id, list.Jobs[0].JobID)

	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/jobs/"+bobJob.ID.String(), "", auth...).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodPost, "/jobs/"+bobJob.ID.String()+"/retry", "", auth...).Code)
}

func TestRateLimit(t *testing.T) {
	ts := newTestServer(t, Config{RateLimit: &ratelimit.Config{
		Enabled:         true,
		DefaultLimit:    1000,
		DefaultWindow:   time.Minute,
		EndpointConfigs: ratelimit.DefaultEndpointConfigs(5, time.Hour),
	}})

	assert.Equal(t, http.StatusAccepted, ts.do(t, http.MethodPost, "/jobs", `{"company":"Acme","role":"SRE"}`).Code)
	w := ts.do(t, http.MethodPost, "/jobs", `{"company":"Acme","role":"SRE"}`)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Equal(t, "5", w.Header().Get("X-RateLimit-Limit"))
}

type sseEvent struct {
	name string
	data string
}

func readEvents(t *testing.T, sc *bufio.Scanner, out chan<- sseEvent) {
	defer close(out)
	var ev sseEvent
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			ev.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			ev.data = strings.TrimPrefix(line, "data: ")
		case line == "" && ev.name != "":
			out <- ev
			ev = sseEvent{}
		}
	}
}

func nextEvent(t *testing.T, ch <-chan sseEvent) sseEvent {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "stream closed")
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("no event")
		return sseEvent{}
	}
}

func TestJobEvents(t *testing.T) {
	ts := newTestServer(t, Config{EventPoll: time.Hour, Heartbeat: time.Hour})
	srv := httptest.NewServer(ts.Handler())
	defer srv.Close()

	job := ts.createJob(t, acme)
	ts.update(t, job.ID, types.JobStatusProcessing, types.StepInitializing, 5)

	resp, err := http.Get(srv.URL + "/jobs/" + job.ID.String() + "/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := make(chan sseEvent, 8)
	go readEvents(t, bufio.NewScanner(resp.Body), events)

	first := nextEvent(t, events)
	assert.Equal(t, EventSnapshot, first.name)
	assert.Contains(t, first.data, `"progress_step":"INITIALIZING"`)
	require.Eventually(t, func() bool { return ts.hub.Subscribers(job.ID) == 1 }, time.Second, 5*time.Millisecond)

	publish := func() {
		cur, err := ts.store.GetJob(context.Background(), job.ID)
		require.NoError(t, err)
		require.NoError(t, ts.hub.Publish(context.Background(), notify.EventFromJob(cur)))
	}

	ts.update(t, job.ID, "", types.StepGathering, 20)
	publish()
	ev := nextEvent(t, events)
	assert.Equal(t, EventProgress, ev.name)
	var snap JobResponse
	require.NoError(t, json.Unmarshal([]byte(ev.data), &snap))
	assert.Equal(t, 20, snap.ProgressPercentage)

	ts.update(t, job.ID, types.JobStatusCompleted, types.StepDone, 100)
	publish()
	assert.Equal(t, EventProgress, nextEvent(t, events).name)
	done := nextEvent(t, events)
	assert.Equal(t, EventComplete, done.name)
	assert.Contains(t, done.data, `"status":"completed"`)

	_, open := <-events
	assert.False(t, open, "stream should end after complete")
}

func TestJobEvents_TerminalJob(t *testing.T) {
	ts := newTestServer(t, Config{})
	job := ts.createJob(t, acme)
	ts.update(t, job.ID, types.JobStatusFailed, types.StepFailed, 10)

	w := ts.do(t, http.MethodGet, "/jobs/"+job.ID.String()+"/events", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "event: snapshot")
	assert.Contains(t, body, "event: complete")
	assert.Contains(t, body, "gather_total_failure")
}
