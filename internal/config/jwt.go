package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// JWTConfig holds configuration for JWT token generation and validation.
type JWTConfig struct {
	Secret          string
	ExpirationHours int
}

// NewAuth reads only the auth settings, for commands that do not need a database.
func NewAuth() (*AuthConfig, error) {
	cfg := new(AuthConfig)
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}
	return cfg, nil
}

// JWT returns the token configuration, or nil when no secret is set and the
// API runs unauthenticated.
func (a *AuthConfig) JWT() (*JWTConfig, error) {
	if a == nil || a.JWTSecret == "" {
		return nil, nil
	}
	cfg := &JWTConfig{Secret: a.JWTSecret, ExpirationHours: a.JWTExpirationHours}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// normalize validates the configuration.
func (c *JWTConfig) normalize() error {
	if c.Secret == "" {
		return fmt.Errorf("JWT_SECRET cannot be empty")
	}
	if len(c.Secret) < 16 {
		return fmt.Errorf("JWT_SECRET must be at least 16 characters")
	}
	if c.ExpirationHours < 1 {
		return fmt.Errorf("JWT_EXPIRATION_HOURS must be at least 1 hour, got: %d", c.ExpirationHours)
	}
	return nil
}
