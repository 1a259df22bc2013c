package artifacts

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectKey(t *testing.T) {
	id := uuid.MustParse("6f1c2a9e-8d44-4d7b-9a55-0b5e0f3c2d11")
	assert.Equal(t, "raw/6f1c2a9e-8d44-4d7b-9a55-0b5e0f3c2d11.json", ObjectKey(id))
}

func TestNewMinioStore(t *testing.T) {
	_, err := NewMinioStore()
	assert.Error(t, err)

	s, err := NewMinioStore(WithEndpoint("localhost:9000"), WithAccessKey("a"), WithSecretKey("b"))
	require.NoError(t, err)
	assert.Equal(t, defaultBucket, s.Bucket())

	s, err = NewMinioStore(WithEndpoint("localhost:9000"), WithBucket("prep-raw"), WithSSL(true))
	require.NoError(t, err)
	assert.Equal(t, "prep-raw", s.Bucket())
	assert.True(t, s.cfg.useSSL)
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(minio.ErrorResponse{Code: "NoSuchKey"}))
	assert.True(t, isNotFound(minio.ErrorResponse{Code: "NoSuchBucket"}))
	assert.False(t, isNotFound(minio.ErrorResponse{Code: "AccessDenied"}))
	assert.False(t, isNotFound(errors.New("connection refused")))
}
