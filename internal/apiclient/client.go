// Package apiclient talks to the interview-prep HTTP API.
//
// Client implements the progress Source and Notifier interfaces so a
// progress.Client can track a job on a remote server.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/interview-prep/internal/server"
	"github.com/jonathan/interview-prep/internal/types"
	"go.uber.org/zap"
)

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Code       string `json:"error"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("server returned status %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Client is an HTTP client for the job API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	// streamClient has no overall timeout; event streams are bounded by ctx.
	streamClient *http.Client
	log          *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithToken sends a bearer token on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient replaces the client used for request/response calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger used for stream diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.log = logger }
}

// New creates a client for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		streamClient: &http.Client{},
		log:          zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// do sends the request and decodes a 2xx JSON body into out when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call %s %s: %w", method, path, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp.StatusCode, data)
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func decodeError(status int, data []byte) error {
	apiErr := &APIError{StatusCode: status}
	if err := json.Unmarshal(data, apiErr); err != nil || apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(data))
	}
	return apiErr
}

// Submit creates a job and returns its id and initial status.
func (c *Client) Submit(ctx context.Context, in types.JobInput) (*server.SubmitResponse, error) {
	var out server.SubmitResponse
	if err := c.do(ctx, http.MethodPost, "/jobs", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Status returns the full progress view of a job, including stall information.
func (c *Client) Status(ctx context.Context, id uuid.UUID) (*server.JobResponse, error) {
	var out server.JobResponse
	if err := c.do(ctx, http.MethodGet, "/jobs/"+id.String(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetJob returns the job record, or nil, nil when the server does not know it.
func (c *Client) GetJob(ctx context.Context, id uuid.UUID) (*types.Job, error) {
	resp, err := c.Status(ctx, id)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return jobFromResponse(resp), nil
}

// ListOptions filters List.
type ListOptions struct {
	Status types.JobStatus
	Limit  int
	Offset int
}

// List returns jobs newest first.
func (c *Client) List(ctx context.Context, opts ListOptions) (*server.ListJobsResponse, error) {
	q := url.Values{}
	if opts.Status != "" {
		q.Set("status", string(opts.Status))
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		q.Set("offset", strconv.Itoa(opts.Offset))
	}
	path := "/jobs"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out server.ListJobsResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Retry restarts a failed or stalled job.
func (c *Client) Retry(ctx context.Context, id uuid.UUID) (*server.SubmitResponse, error) {
	var out server.SubmitResponse
	if err := c.do(ctx, http.MethodPost, "/jobs/"+id.String()+"/retry", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete removes a job that is not running.
func (c *Client) Delete(ctx context.Context, id uuid.UUID) error {
	return c.do(ctx, http.MethodDelete, "/jobs/"+id.String(), nil, nil)
}

// Output returns the synthesis output of a completed job.
func (c *Client) Output(ctx context.Context, id uuid.UUID) (*types.SynthesisOutput, error) {
	var out types.SynthesisOutput
	if err := c.do(ctx, http.MethodGet, "/jobs/"+id.String()+"/output", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Artifact returns the raw gathered data of a job.
func (c *Client) Artifact(ctx context.Context, id uuid.UUID) (*types.RawArtifact, error) {
	var out types.RawArtifact
	if err := c.do(ctx, http.MethodGet, "/jobs/"+id.String()+"/artifact", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health checks that the server is up.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

// jobFromResponse rebuilds the job record from its progress view. Only the
// company and role of the input travel with it.
func jobFromResponse(r *server.JobResponse) *types.Job {
	job := r.Snapshot.Job()
	job.Input.Company = r.Company
	job.Input.Role = r.Role
	return job
}
