package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/interview-prep/internal/config"
	"github.com/jonathan/interview-prep/internal/db"
	"github.com/jonathan/interview-prep/internal/notify"
	"github.com/jonathan/interview-prep/internal/server"
	"github.com/jonathan/interview-prep/internal/server/ratelimit"
	"github.com/jonathan/interview-prep/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type idleOrch struct{ store *db.MemoryStore }

func (o idleOrch) Submit(ctx context.Context, in types.JobInput) (*types.Job, error) {
	return o.store.CreateJob(ctx, &in)
}

func (o idleOrch) Retry(ctx context.Context, id uuid.UUID) (*types.Job, error) {
	return o.store.ResetJob(ctx, id, []types.JobStatus{types.JobStatusFailed})
}

func (idleOrch) Active(uuid.UUID) bool { return false }

func testClientConfig(url string) *config.ClientConfig {
	return &config.ClientConfig{
		ServerURL: url,
		Progress: &config.ProgressConfig{
			StallThreshold: 30 * time.Second,
			RetryThreshold: 45 * time.Second,
			FastInterval:   20 * time.Millisecond,
			MediumInterval: 20 * time.Millisecond,
			SlowInterval:   20 * time.Millisecond,
		},
	}
}

func startServer(t *testing.T) (*db.MemoryStore, string) {
	t.Helper()
	store := db.NewMemoryStore()
	srv := server.New(server.Config{RateLimit: &ratelimit.Config{}}, store, idleOrch{store: store}, notify.NewHub(), zap.NewNop())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return store, ts.URL
}

func finish(t *testing.T, store *db.MemoryStore, id uuid.UUID, status types.JobStatus) {
	t.Helper()
	ctx := context.Background()
	step, pct := types.StepGathering, 20
	_, err := store.UpdateJobProgress(ctx, id, types.ProgressUpdate{Status: types.StatusPtr(types.JobStatusProcessing), Step: &step, Percentage: &pct})
	require.NoError(t, err)

	upd := types.ProgressUpdate{Status: &status}
	if status == types.JobStatusFailed {
		upd.Step, upd.ErrorMessage = types.StringPtr(types.StepFailed), types.StringPtr("synthesis_timeout: synthesis timed out after 45s")
	} else {
		require.NoError(t, store.SaveStages(ctx, id, []types.InterviewStage{{Position: 1, Name: "Recruiter screen"}}))
		require.NoError(t, store.SaveComparison(ctx, id, &types.Comparison{MatchScore: 64}))
		upd.Step, upd.Percentage = types.StringPtr(types.StepDone), types.IntPtr(100)
	}
	_, err = store.UpdateJobProgress(ctx, id, upd)
	require.NoError(t, err)
}

func TestTrackJob_Completed(t *testing.T) {
	store, url := startServer(t)
	job, err := store.CreateJob(context.Background(), &types.JobInput{Company: "Acme", Role: "SRE"})
	require.NoError(t, err)
	finish(t, store, job.ID, types.JobStatusCompleted)

	cfg := testClientConfig(url)
	var out bytes.Buffer
	err = trackJob(context.Background(), &out, newAPIClient(cfg, zap.NewNop()), cfg, job.ID, false, zap.NewNop())
	require.NoError(t, err)
	assert.Contains(t, out.String(), "completed")
	assert.Contains(t, out.String(), "Recruiter screen")
	assert.Contains(t, out.String(), "Match score: 64/100")
}

func TestTrackJob_Failed(t *testing.T) {
	store, url := startServer(t)
	job, err := store.CreateJob(context.Background(), &types.JobInput{Company: "Acme", Role: "SRE"})
	require.NoError(t, err)
	finish(t, store, job.ID, types.JobStatusFailed)

	cfg := testClientConfig(url)
	var out bytes.Buffer
	err = trackJob(context.Background(), &out, newAPIClient(cfg, zap.NewNop()), cfg, job.ID, false, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prep_agent retry "+job.ID.String())
	assert.Contains(t, out.String(), "synthesis_timeout")
}

func TestTrackJob_Unknown(t *testing.T) {
	_, url := startServer(t)
	cfg := testClientConfig(url)
	id := uuid.New()
	err := trackJob(context.Background(), &bytes.Buffer{}, newAPIClient(cfg, zap.NewNop()), cfg, id, false, zap.NewNop())
	assert.EqualError(t, err, fmt.Sprintf("job %s not found", id))
}

func TestSubmissionFromFlags(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "job.json")
	require.NoError(t, os.WriteFile(file, []byte(`{"company":"Acme","role":"SRE","job_links":["https://acme.example/jobs/1"]}`), 0o600))
	cv := filepath.Join(dir, "cv.txt")
	require.NoError(t, os.WriteFile(cv, []byte("Go, Kubernetes"), 0o600))

	submitFile, submitRole, submitCVFile = file, "Staff SRE", cv
	t.Cleanup(func() { submitFile, submitRole, submitCVFile = "", "", "" })

	in, err := submissionFromFlags()
	require.NoError(t, err)
	assert.Equal(t, "Acme", in.Company)
	assert.Equal(t, "Staff SRE", in.Role)
	assert.Equal(t, "Go, Kubernetes", in.CVText)
	assert.Equal(t, []string{"https://acme.example/jobs/1"}, in.JobLinks)
}

func TestSubmissionFromFlags_RequiresRole(t *testing.T) {
	submitCompany = "Acme"
	t.Cleanup(func() { submitCompany = "" })
	_, err := submissionFromFlags()
	assert.Error(t, err)
}

func TestShutdownAll(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	streamsErr := errors.New("streams still open")
	streams := func(ctx context.Context) error {
		<-ctx.Done()
		return streamsErr
	}
	drainedInTime := make(chan bool, 1)
	drain := func(ctx context.Context) error {
		drainedInTime <- ctx.Err() == nil
		return nil
	}

	err := shutdownAll(ctx, streams, drain)
	assert.ErrorIs(t, err, streamsErr)
	assert.True(t, <-drainedInTime, "runs were drained only after the deadline")
}

func TestPipelineConfig(t *testing.T) {
	cfg := &config.Config{
		Service: &config.ServiceConfig{MaxConcurrentRuns: 3},
		Pipeline: &config.PipelineConfig{
			CompanyTimeout:   11 * time.Second,
			JobTimeout:       12 * time.Second,
			CVTimeout:        13 * time.Second,
			SynthesisTimeout: 40 * time.Second,
			PersistTimeout:   9 * time.Second,
			StatusTimeout:    4 * time.Second,
			RetryAttempts:    2,
			RetryBaseDelay:   time.Second,
			RetryMaxDelay:    3 * time.Second,
		},
		Progress: &config.ProgressConfig{StallThreshold: 30 * time.Second, RetryThreshold: 50 * time.Second},
	}

	p := pipelineConfig(cfg)
	assert.Equal(t, 12*time.Second, p.Gather.Job)
	assert.Equal(t, 40*time.Second, p.SynthesisTimeout)
	assert.Equal(t, 4*time.Second, p.ProgressTimeout)
	assert.Equal(t, 50*time.Second, p.StallRetryAfter)
	assert.Equal(t, int64(3), p.MaxConcurrentRuns)
	assert.Equal(t, 2, p.GatherRetry.MaxAttempts)
	assert.Equal(t, 3*time.Second, p.GatherRetry.MaxDelay)
}

func TestCadenceFromConfig(t *testing.T) {
	c := cadence(&config.ProgressConfig{FastInterval: 2 * time.Second, MediumInterval: 5 * time.Second, SlowInterval: 10 * time.Second})
	assert.Equal(t, 2*time.Second, c.Interval(29*time.Second))
	assert.Equal(t, 5*time.Second, c.Interval(60*time.Second))
	assert.Equal(t, 10*time.Second, c.Interval(61*time.Second))
}
