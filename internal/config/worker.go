package config

import (
	"fmt"
	"time"
)

// WorkerConfig holds configuration for the worker process: outbound fetch
// policy and its health port.
type WorkerConfig struct {
	// UserAgent is sent on every outbound request.
	// Default: "FeedPipeBot/1.0"
	UserAgent string

	// DenyPrivateIPs blocks fetches whose host resolves to a loopback,
	// private or link-local address. Disable only in development against
	// local fixtures.
	// Default: true
	DenyPrivateIPs bool

	// FetchTimeout is the per-request deadline for feed and webpage reads.
	// Default: 30 seconds
	FetchTimeout time.Duration

	// ProbeTimeout bounds one image probe batch.
	// Default: 30 seconds
	ProbeTimeout time.Duration

	// ProbeReferer is the Referer header sent on image probes. It simulates
	// a reader viewing the story in the web app, which is what hotlink
	// protection reacts to.
	// Default: "https://feedpipe.io/story/"
	ProbeReferer string

	// HealthPort is the port for the worker health check HTTP server.
	// Range: 1024-65535
	// Default: 9093
	HealthPort int
}

// LoadWorkerConfig loads worker configuration from environment variables.
// Returns a config with defaults if environment variables are not set.
func LoadWorkerConfig() (*WorkerConfig, error) {
	config := &WorkerConfig{
		UserAgent:      getEnvOrDefault("FEED_USER_AGENT", "FeedPipeBot/1.0"),
		DenyPrivateIPs: getEnvBool("DENY_PRIVATE_IPS", true),
		FetchTimeout:   getEnvDuration("FETCH_TIMEOUT", 30*time.Second),
		ProbeTimeout:   getEnvDuration("PROBE_TIMEOUT", 30*time.Second),
		ProbeReferer:   getEnvOrDefault("PROBE_REFERER", "https://feedpipe.io/story/"),
		HealthPort:     getEnvInt("WORKER_HEALTH_PORT", 9093),
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid worker configuration: %w", err)
	}

	return config, nil
}

// Validate checks configuration correctness.
func (c *WorkerConfig) Validate() error {
	if c.UserAgent == "" {
		return fmt.Errorf("FEED_USER_AGENT cannot be empty")
	}

	if c.FetchTimeout <= 0 {
		return fmt.Errorf("FETCH_TIMEOUT must be positive")
	}

	if c.ProbeTimeout <= 0 {
		return fmt.Errorf("PROBE_TIMEOUT must be positive")
	}

	if c.ProbeReferer == "" {
		return fmt.Errorf("PROBE_REFERER cannot be empty")
	}

	if c.HealthPort < 1024 || c.HealthPort > 65535 {
		return fmt.Errorf("WORKER_HEALTH_PORT must be between 1024 and 65535")
	}

	return nil
}
