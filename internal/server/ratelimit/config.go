package ratelimit

import (
	"strings"
	"time"

	"github.com/jonathan/interview-prep/internal/config"
)

// EndpointConfig represents rate limiting configuration for a specific endpoint.
type EndpointConfig struct {
	Path   string        // Endpoint path pattern (supports prefix matching)
	Method string        // HTTP method (GET, POST, etc.)
	Limit  int           // Maximum requests per window
	Window time.Duration // Time window
	Burst  int           // Burst capacity (defaults to Limit if 0)
}

// FromSettings builds a limiter configuration from the process configuration.
func FromSettings(s *config.RateLimitConfig) *Config {
	if s == nil || !s.Enabled {
		return &Config{Enabled: false}
	}
	return &Config{
		Enabled:         true,
		DefaultLimit:    s.DefaultLimit,
		DefaultWindow:   s.DefaultWindow,
		CleanupInterval: s.CleanupInterval,
		Whitelist:       ipSet(s.Whitelist),
		Blacklist:       ipSet(s.Blacklist),
		EndpointConfigs: DefaultEndpointConfigs(s.SubmitLimit, s.SubmitWindow),
	}
}

// DefaultEndpointConfigs returns the endpoint rules. Submissions and retries
// start research runs and share the strict limit.
func DefaultEndpointConfigs(submitLimit int, submitWindow time.Duration) []EndpointConfig {
	burst := submitLimit / 5
	if burst < 1 {
		burst = 1
	}
	return []EndpointConfig{
		// Expensive: each request starts a research run
		{Path: "/jobs", Method: "POST", Limit: submitLimit, Window: submitWindow, Burst: burst},
		{Path: "/jobs/", Method: "POST", Limit: submitLimit, Window: submitWindow, Burst: burst},

		// Writes
		{Path: "/jobs/", Method: "DELETE", Limit: 100, Window: time.Minute, Burst: 10},

		// Reads use the default limit; /health and /metrics are unlimited
	}
}

func ipSet(list []string) map[string]bool {
	result := make(map[string]bool, len(list))
	for _, ip := range list {
		ip = strings.TrimSpace(ip)
		if ip != "" {
			result[ip] = true
		}
	}
	return result
}
