//go:build integration
// +build integration

package artifacts

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/interview-prep/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMinioStore_RoundTrip_Integration(t *testing.T) {
	endpoint := os.Getenv("TEST_MINIO_ENDPOINT")
	if endpoint == "" {
		t.Skip("TEST_MINIO_ENDPOINT not set")
	}
	s, err := NewMinioStore(
		WithEndpoint(endpoint),
		WithAccessKey(os.Getenv("TEST_MINIO_ACCESS_KEY")),
		WithSecretKey(os.Getenv("TEST_MINIO_SECRET_KEY")),
		WithBucket("prep-test"),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, s.EnsureBucket(ctx))

	id := uuid.New()
	missing, err := s.GetRawArtifact(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, missing)

	a := &types.RawArtifact{JobID: id, Job: &types.JobAnalysis{Title: "SRE", Skills: []string{"Go"}}, Outcomes: map[string]string{"job": "ok"}}
	require.NoError(t, s.SaveRawArtifact(ctx, a))

	got, err := s.GetRawArtifact(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"Go"}, got.Job.Skills)

	require.NoError(t, s.DeleteRawArtifact(ctx, id))
}
