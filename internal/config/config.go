// Package config loads process configuration from the environment and job
// submissions from JSON files.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config is the process wide configuration.
type Config struct {
	Database  *DatabaseConfig
	Service   *ServiceConfig
	Pipeline  *PipelineConfig
	Progress  *ProgressConfig
	Notify    *NotifyConfig
	Artifacts *ArtifactsConfig
	LLM       *LLMConfig
	Search    *SearchConfig
	Auth      *AuthConfig
	RateLimit *RateLimitConfig
}

type DatabaseConfig struct {
	URL      string `envconfig:"DATABASE_URL" default:""`
	MaxConns int32  `envconfig:"DATABASE_MAX_CONNS" default:"10"`
	// Store is postgres or memory. Memory keeps everything in process.
	Store string `envconfig:"PREP_STORE" default:"postgres"`
}

type ServiceConfig struct {
	Address           string        `envconfig:"PREP_ADDRESS" default:":8080"`
	LogLevel          string        `envconfig:"PREP_LOG_LEVEL" default:"info"`
	LogEncoding       string        `envconfig:"PREP_LOG_ENCODING" default:"console"`
	ShutdownTimeout   time.Duration `envconfig:"PREP_SHUTDOWN_TIMEOUT" default:"30s"`
	MaxConcurrentRuns int64         `envconfig:"PREP_MAX_CONCURRENT_RUNS" default:"8"`
}

type PipelineConfig struct {
	CompanyTimeout   time.Duration `envconfig:"COMPANY_TIMEOUT" default:"20s"`
	JobTimeout       time.Duration `envconfig:"JOB_TIMEOUT" default:"20s"`
	CVTimeout        time.Duration `envconfig:"CV_TIMEOUT" default:"15s"`
	SynthesisTimeout time.Duration `envconfig:"SYNTHESIS_TIMEOUT" default:"45s"`
	PersistTimeout   time.Duration `envconfig:"PERSIST_TIMEOUT" default:"10s"`
	StatusTimeout    time.Duration `envconfig:"STATUS_TIMEOUT" default:"5s"`
	RetryAttempts    int           `envconfig:"RETRY_ATTEMPTS" default:"3"`
	RetryBaseDelay   time.Duration `envconfig:"RETRY_BASE_DELAY" default:"500ms"`
	RetryMaxDelay    time.Duration `envconfig:"RETRY_MAX_DELAY" default:"5s"`
}

type ProgressConfig struct {
	StallThreshold time.Duration `envconfig:"STALL_THRESHOLD" default:"30s"`
	RetryThreshold time.Duration `envconfig:"STALL_RETRY_THRESHOLD" default:"45s"`
	FastInterval   time.Duration `envconfig:"POLL_FAST_INTERVAL" default:"2s"`
	MediumInterval time.Duration `envconfig:"POLL_MEDIUM_INTERVAL" default:"5s"`
	SlowInterval   time.Duration `envconfig:"POLL_SLOW_INTERVAL" default:"10s"`
}

type NotifyConfig struct {
	Backend  string `envconfig:"NOTIFY_BACKEND" default:"memory"`
	RedisURL string `envconfig:"REDIS_URL" default:"redis://localhost:6379/0"`
	NATSURL  string `envconfig:"NATS_URL" default:"nats://localhost:4222"`
}

type ArtifactsConfig struct {
	Backend   string `envconfig:"ARTIFACTS_BACKEND" default:"postgres"`
	Endpoint  string `envconfig:"MINIO_ENDPOINT" default:"localhost:9000"`
	AccessKey string `envconfig:"MINIO_ACCESS_KEY" default:""`
	SecretKey string `envconfig:"MINIO_SECRET_KEY" default:""`
	Bucket    string `envconfig:"MINIO_BUCKET" default:"interview-prep"`
	UseSSL    bool   `envconfig:"MINIO_USE_SSL" default:"false"`
}

type LLMConfig struct {
	APIKey        string `envconfig:"GEMINI_API_KEY" default:""`
	LiteModel     string `envconfig:"GEMINI_LITE_MODEL" default:""`
	StandardModel string `envconfig:"GEMINI_STANDARD_MODEL" default:""`
	AdvancedModel string `envconfig:"GEMINI_ADVANCED_MODEL" default:""`
}

type SearchConfig struct {
	APIKey         string        `envconfig:"GOOGLE_SEARCH_API_KEY" default:""`
	CX             string        `envconfig:"GOOGLE_SEARCH_CX" default:""`
	UseBrowser     bool          `envconfig:"USE_BROWSER" default:"false"`
	BrowserTimeout time.Duration `envconfig:"BROWSER_TIMEOUT" default:"30s"`
}

// Enabled reports whether web search credentials are configured.
func (s *SearchConfig) Enabled() bool {
	return s.APIKey != "" && s.CX != ""
}

type AuthConfig struct {
	JWTSecret          string `envconfig:"JWT_SECRET" default:""`
	JWTExpirationHours int    `envconfig:"JWT_EXPIRATION_HOURS" default:"24"`
}

type RateLimitConfig struct {
	Enabled         bool          `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
	DefaultLimit    int           `envconfig:"RATE_LIMIT_DEFAULT_LIMIT" default:"1000"`
	DefaultWindow   time.Duration `envconfig:"RATE_LIMIT_DEFAULT_WINDOW" default:"1m"`
	SubmitLimit     int           `envconfig:"RATE_LIMIT_SUBMIT_LIMIT" default:"10"`
	SubmitWindow    time.Duration `envconfig:"RATE_LIMIT_SUBMIT_WINDOW" default:"1h"`
	CleanupInterval time.Duration `envconfig:"RATE_LIMIT_CLEANUP_INTERVAL" default:"5m"`
	Whitelist       []string      `envconfig:"RATE_LIMIT_WHITELIST" default:""`
	Blacklist       []string      `envconfig:"RATE_LIMIT_BLACKLIST" default:""`
}

// New reads the configuration from the environment and validates it.
func New() (*Config, error) {
	cfg := new(Config)
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints that defaults alone cannot guarantee.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("config error: "+format, args...))
	}

	switch c.Database.Store {
	case "postgres":
		if c.Database.URL == "" {
			add("DATABASE_URL is required when PREP_STORE=postgres")
		}
	case "memory":
		if c.Artifacts.Backend == "postgres" {
			add("ARTIFACTS_BACKEND=postgres requires PREP_STORE=postgres")
		}
	default:
		add("unknown PREP_STORE %q", c.Database.Store)
	}

	p := c.Pipeline
	for _, t := range []struct {
		name string
		d    time.Duration
	}{
		{"COMPANY_TIMEOUT", p.CompanyTimeout},
		{"JOB_TIMEOUT", p.JobTimeout},
		{"CV_TIMEOUT", p.CVTimeout},
		{"SYNTHESIS_TIMEOUT", p.SynthesisTimeout},
		{"PERSIST_TIMEOUT", p.PersistTimeout},
		{"STATUS_TIMEOUT", p.StatusTimeout},
	} {
		if t.d <= 0 {
			add("%s must be positive, got %s", t.name, t.d)
		}
	}
	if longest := max(p.CompanyTimeout, p.JobTimeout, p.CVTimeout); p.SynthesisTimeout <= longest {
		add("SYNTHESIS_TIMEOUT (%s) must exceed every gather timeout (%s)", p.SynthesisTimeout, longest)
	}
	if p.RetryAttempts < 1 {
		add("RETRY_ATTEMPTS must be at least 1, got %d", p.RetryAttempts)
	}

	if c.Progress.StallThreshold >= c.Progress.RetryThreshold {
		add("STALL_THRESHOLD (%s) must be below STALL_RETRY_THRESHOLD (%s)", c.Progress.StallThreshold, c.Progress.RetryThreshold)
	}

	switch c.Notify.Backend {
	case "memory", "redis", "nats":
	default:
		add("unknown NOTIFY_BACKEND %q", c.Notify.Backend)
	}

	switch c.Artifacts.Backend {
	case "postgres":
	case "minio":
		if c.Artifacts.AccessKey == "" || c.Artifacts.SecretKey == "" {
			add("MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required when ARTIFACTS_BACKEND=minio")
		}
	default:
		add("unknown ARTIFACTS_BACKEND %q", c.Artifacts.Backend)
	}

	if c.Service.MaxConcurrentRuns < 1 {
		add("PREP_MAX_CONCURRENT_RUNS must be at least 1")
	}
	if c.Auth.JWTSecret != "" && c.Auth.JWTExpirationHours < 1 {
		add("JWT_EXPIRATION_HOURS must be at least 1 hour, got: %d", c.Auth.JWTExpirationHours)
	}

	return errors.Join(errs...)
}
