package config

import (
	"errors"
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// ClientConfig is the environment of the command line client. It does not
// need the server side settings.
type ClientConfig struct {
	ServerURL   string `envconfig:"PREP_SERVER" default:"http://localhost:8080"`
	Token       string `envconfig:"PREP_TOKEN" default:""`
	LogLevel    string `envconfig:"PREP_LOG_LEVEL" default:"warn"`
	LogEncoding string `envconfig:"PREP_LOG_ENCODING" default:"console"`
	Progress    *ProgressConfig
}

// NewClientConfig reads the client configuration from the environment.
func NewClientConfig() (*ClientConfig, error) {
	cfg := new(ClientConfig)
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}
	if cfg.ServerURL == "" {
		return nil, errors.New("config error: PREP_SERVER must not be empty")
	}
	if err := cfg.Progress.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (p *ProgressConfig) validate() error {
	var errs []error
	if p.StallThreshold <= 0 || p.RetryThreshold <= p.StallThreshold {
		errs = append(errs, errors.New("config error: STALL_RETRY_THRESHOLD must be greater than STALL_THRESHOLD"))
	}
	if p.FastInterval <= 0 || p.MediumInterval <= 0 || p.SlowInterval <= 0 {
		errs = append(errs, errors.New("config error: poll intervals must be positive"))
	}
	return errors.Join(errs...)
}
