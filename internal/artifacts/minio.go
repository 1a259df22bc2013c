// Package artifacts stores raw gather output in S3-compatible object storage.
package artifacts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/jonathan/interview-prep/internal/types"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const (
	defaultBucket = "interview-prep"
	objectPrefix  = "raw/"
)

// MinioOpts configures a MinioStore
type MinioOpts func(c *minioConfig)

type minioConfig struct {
	endpoint        string
	bucket          string
	accessKey       string
	secretAccessKey string
	useSSL          bool
}

func newConfig(opts ...MinioOpts) *minioConfig {
	cfg := &minioConfig{bucket: defaultBucket}
	for _, o := range opts {
		o(cfg)
	}
	return cfg
}

// MinioStore keeps one JSON object per job under raw/<job_id>.json
type MinioStore struct {
	cfg    *minioConfig
	client *minio.Client
}

// NewMinioStore creates a client for the configured endpoint. It does not contact the server.
func NewMinioStore(opts ...MinioOpts) (*MinioStore, error) {
	cfg := newConfig(opts...)
	if cfg.endpoint == "" {
		return nil, fmt.Errorf("minio endpoint is required")
	}

	client, err := minio.New(cfg.endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.accessKey, cfg.secretAccessKey, ""),
		Secure: cfg.useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	return &MinioStore{cfg: cfg, client: client}, nil
}

// Bucket returns the configured bucket name
func (s *MinioStore) Bucket() string {
	return s.cfg.bucket
}

// EnsureBucket creates the bucket if it does not exist
func (s *MinioStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.cfg.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", s.cfg.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.cfg.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", s.cfg.bucket, err)
	}
	return nil
}

// ObjectKey is the object name holding a job's raw artifact
func ObjectKey(jobID uuid.UUID) string {
	return objectPrefix + jobID.String() + ".json"
}

// SaveRawArtifact uploads the artifact, overwriting an earlier run's copy
func (s *MinioStore) SaveRawArtifact(ctx context.Context, a *types.RawArtifact) error {
	content, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to marshal raw artifact: %w", err)
	}
	_, err = s.client.PutObject(ctx, s.cfg.bucket, ObjectKey(a.JobID), bytes.NewReader(content), int64(len(content)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return fmt.Errorf("failed to upload raw artifact: %w", err)
	}
	return nil
}

// GetRawArtifact downloads a job's raw artifact; returns nil, nil when absent
func (s *MinioStore) GetRawArtifact(ctx context.Context, jobID uuid.UUID) (*types.RawArtifact, error) {
	object, err := s.client.GetObject(ctx, s.cfg.bucket, ObjectKey(jobID), minio.GetObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get raw artifact: %w", err)
	}
	defer object.Close()

	// GetObject is lazy; a missing key surfaces on first read.
	content, err := io.ReadAll(object)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read raw artifact: %w", err)
	}

	var a types.RawArtifact
	if err := json.Unmarshal(content, &a); err != nil {
		return nil, fmt.Errorf("failed to unmarshal raw artifact: %w", err)
	}
	return &a, nil
}

// DeleteRawArtifact removes a job's artifact; deleting a missing object is not an error
func (s *MinioStore) DeleteRawArtifact(ctx context.Context, jobID uuid.UUID) error {
	if err := s.client.RemoveObject(ctx, s.cfg.bucket, ObjectKey(jobID), minio.RemoveObjectOptions{}); err != nil && !isNotFound(err) {
		return fmt.Errorf("failed to delete raw artifact: %w", err)
	}
	return nil
}

func isNotFound(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NoSuchBucket"
}

func WithEndpoint(endpoint string) MinioOpts {
	return func(c *minioConfig) {
		c.endpoint = endpoint
	}
}

func WithBucket(bucket string) MinioOpts {
	return func(c *minioConfig) {
		if bucket != "" {
			c.bucket = bucket
		}
	}
}

func WithAccessKey(accessKey string) MinioOpts {
	return func(c *minioConfig) {
		c.accessKey = accessKey
	}
}

func WithSecretKey(secretKey string) MinioOpts {
	return func(c *minioConfig) {
		c.secretAccessKey = secretKey
	}
}

func WithSSL(useSSL bool) MinioOpts {
	return func(c *minioConfig) {
		c.useSSL = useSSL
	}
}
