package apiclient

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/interview-prep/internal/config"
	"github.com/jonathan/interview-prep/internal/db"
	"github.com/jonathan/interview-prep/internal/notify"
	"github.com/jonathan/interview-prep/internal/pipeline"
	"github.com/jonathan/interview-prep/internal/progress"
	"github.com/jonathan/interview-prep/internal/server"
	"github.com/jonathan/interview-prep/internal/server/ratelimit"
	"github.com/jonathan/interview-prep/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// storeOrch queues jobs in the store and never runs them.
type storeOrch struct {
	store *db.MemoryStore
}

func (o *storeOrch) Submit(ctx context.Context, in types.JobInput) (*types.Job, error) {
	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", pipeline.ErrInvalidInput, err)
	}
	return o.store.CreateJob(ctx, &in)
}

func (o *storeOrch) Retry(ctx context.Context, id uuid.UUID) (*types.Job, error) {
	return o.store.ResetJob(ctx, id, []types.JobStatus{types.JobStatusFailed})
}

func (o *storeOrch) Active(uuid.UUID) bool { return false }

type fixture struct {
	store  *db.MemoryStore
	hub    *notify.Hub
	url    string
	client *Client
}

func newFixture(t *testing.T, jwt *config.JWTConfig) *fixture {
	t.Helper()
	store := db.NewMemoryStore()
	hub := notify.NewHub()
	srv := server.New(server.Config{
		JWT:       jwt,
		RateLimit: &ratelimit.Config{Enabled: false},
		EventPoll: time.Hour,
		Heartbeat: time.Hour,
	}, store, &storeOrch{store: store}, hub, zaptest.NewLogger(t))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &fixture{store: store, hub: hub, url: ts.URL, client: New(ts.URL)}
}

// advance moves a job forward and announces it.
func (f *fixture) advance(t *testing.T, id uuid.UUID, status types.JobStatus, step string, pct int) {
	t.Helper()
	upd := types.ProgressUpdate{Step: &step, Percentage: &pct}
	if status != "" {
		upd.Status = &status
	}
	if status.IsTerminal() {
		_, err := f.store.UpdateJobProgress(context.Background(), id, types.ProgressUpdate{Status: types.StatusPtr(types.JobStatusProcessing)})
		require.NoError(t, err)
	}
	job, err := f.store.UpdateJobProgress(context.Background(), id, upd)
	require.NoError(t, err)
	require.NoError(t, f.hub.Publish(context.Background(), notify.EventFromJob(job)))
}

func TestClient_SubmitAndStatus(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	sub, err := f.client.Submit(ctx, types.JobInput{Company: "Acme", Role: "Backend Engineer"})
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusPending, sub.Status)

	status, err := f.client.Status(ctx, sub.JobID)
	require.NoError(t, err)
	assert.Equal(t, "Acme", status.Company)
	assert.Equal(t, types.StepQueued, status.ProgressStep)

	job, err := f.client.GetJob(ctx, sub.JobID)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, sub.JobID, job.ID)
	assert.Equal(t, "Backend Engineer", job.Input.Role)

	list, err := f.client.List(ctx, ListOptions{Status: types.JobStatusPending, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, list.Count)
}

func TestClient_Errors(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	job, err := f.client.GetJob(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, job)

	_, err = f.client.Submit(ctx, types.JobInput{Company: "Acme"})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "invalid_request", apiErr.Code)

	sub, err := f.client.Submit(ctx, types.JobInput{Company: "Acme", Role: "SRE"})
	require.NoError(t, err)
	_, err = f.client.Retry(ctx, sub.JobID)
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)

	_, err = f.client.Output(ctx, sub.JobID)
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)

	_, err = f.client.Artifact(ctx, sub.JobID)
	assert.True(t, IsNotFound(err))
}

func TestClient_RetryAndDelete(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	sub, err := f.client.Submit(ctx, types.JobInput{Company: "Acme", Role: "SRE"})
	require.NoError(t, err)
	f.advance(t, sub.JobID, types.JobStatusFailed, types.StepFailed, 10)

	status, err := f.client.Status(ctx, sub.JobID)
	require.NoError(t, err)
	assert.True(t, status.Retryable)

	retried, err := f.client.Retry(ctx, sub.JobID)
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusPending, retried.Status)

	require.NoError(t, f.client.Delete(ctx, sub.JobID))
	job, err := f.client.GetJob(ctx, sub.JobID)
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestClient_Token(t *testing.T) {
	jwtCfg := &config.JWTConfig{Secret: "test-secret-0123456789", ExpirationHours: 1}
	f := newFixture(t, jwtCfg)
	ctx := context.Background()

	_, err := f.client.List(ctx, ListOptions{})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)

	token, err := server.NewJWTService(jwtCfg).GenerateToken(uuid.New())
	require.NoError(t, err)
	authed := New(f.url+"/", WithToken(token))
	require.NoError(t, authed.Health(ctx))
	_, err = authed.List(ctx, ListOptions{})
	require.NoError(t, err)
}

func TestClient_Subscribe(t *testing.T) {
	f := newFixture(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub, err := f.client.Submit(ctx, types.JobInput{Company: "Acme", Role: "SRE"})
	require.NoError(t, err)
	f.advance(t, sub.JobID, types.JobStatusProcessing, types.StepInitializing, 5)

	events, err := f.client.Subscribe(ctx, sub.JobID)
	require.NoError(t, err)

	first := <-events
	assert.Equal(t, types.StepInitializing, first.Step)
	require.Eventually(t, func() bool { return f.hub.Subscribers(sub.JobID) == 1 }, time.Second, 5*time.Millisecond)

	f.advance(t, sub.JobID, "", types.StepGathering, 20)
	ev := <-events
	assert.Equal(t, sub.JobID, ev.JobID)
	assert.Equal(t, 20, ev.Percentage)

	f.advance(t, sub.JobID, types.JobStatusCompleted, types.StepDone, 100)
	var last notify.Event
	for ev := range events {
		last = ev
	}
	assert.Equal(t, types.JobStatusCompleted, last.Status)
}

func TestClient_SubscribeUnknownJob(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.client.Subscribe(context.Background(), uuid.New())
	assert.True(t, IsNotFound(err))
}

func TestClient_TracksRemoteJob(t *testing.T) {
	f := newFixture(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub, err := f.client.Submit(ctx, types.JobInput{Company: "Acme", Role: "SRE"})
	require.NoError(t, err)
	f.advance(t, sub.JobID, types.JobStatusProcessing, types.StepGathering, 20)

	tracker := progress.NewClient(f.client, f.client, zaptest.NewLogger(t))
	tracker.Cadence = progress.Cadence{Default: time.Hour, Pending: time.Hour}
	updates := tracker.Track(ctx, sub.JobID)

	first := <-updates
	require.NoError(t, first.Err)
	assert.Equal(t, types.StepGathering, first.Job.ProgressStep)

	f.advance(t, sub.JobID, types.JobStatusCompleted, types.StepDone, 100)
	var last progress.Update
	for u := range updates {
		last = u
	}
	require.NotNil(t, last.Job)
	assert.Equal(t, types.JobStatusCompleted, last.Job.Status)
}

func TestReadSSE(t *testing.T) {
	stream := strings.Join([]string{
		": keep-alive",
		"",
		"event: progress",
		"data: {\"a\":1,",
		"data: \"b\":2}",
		"",
		"data: bare",
		"",
		"event: complete",
		"data: {}",
		"",
		"event: never",
		"data: x",
		"",
	}, "\n")

	var got []sseMessage
	err := readSSE(strings.NewReader(stream), func(m sseMessage) bool {
		got = append(got, m)
		return m.event != "complete"
	})
	require.NoError(t, err)
	assert.Equal(t, []sseMessage{
		{event: "progress", data: "{\"a\":1,\n\"b\":2}"},
		{event: "message", data: "bare"},
		{event: "complete", data: "{}"},
	}, got)

	err = readSSE(strings.NewReader("event: progress\ndata: {}\n"), func(sseMessage) bool { return true })
	assert.Error(t, err)
}
