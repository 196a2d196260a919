// Package feedclient implements the outbound HTTP reader the worker uses for
// feeds, story webpages and image probes. Transport failures are folded into
// the synthetic response statuses defined in feedlib, so every fetch yields a
// status the pipeline can record.
package feedclient

import (
	"time"

	"feedpipe/internal/resilience/circuitbreaker"
)

// Config holds the settings for a Reader.
//
// Security settings:
//   - DenyPrivateIPs: blocks URLs resolving to private addresses (SSRF)
//   - MaxBodySize: caps response size to prevent memory exhaustion
//   - MaxRedirects: caps redirect chains; every hop is re-validated
//
// Politeness settings:
//   - HostRequestRate/HostBurst: outbound token bucket per remote host
type Config struct {
	// UserAgent is sent on every request.
	UserAgent string

	// Timeout is the per-request deadline.
	Timeout time.Duration

	// MaxBodySize is the maximum response body size in bytes. Responses
	// that exceed it yield StatusContentTooLarge.
	MaxBodySize int64

	// MaxRedirects caps the redirect chain length.
	MaxRedirects int

	// DenyPrivateIPs blocks requests (and redirects) whose host resolves
	// to a loopback, private or link-local address.
	DenyPrivateIPs bool

	// AllowNonWebpage skips the content-type check. Image probes need
	// this; feed and webpage reads do not.
	AllowNonWebpage bool

	// HostRequestRate is the sustained requests/second allowed per host.
	HostRequestRate float64

	// HostBurst is the token bucket size per host.
	HostBurst int

	// Breaker configures the circuit breaker wrapping all requests.
	Breaker circuitbreaker.Config
}

// DefaultConfig returns production defaults for feed reading.
func DefaultConfig() Config {
	return Config{
		UserAgent:       "FeedPipeBot/1.0",
		Timeout:         30 * time.Second,
		MaxBodySize:     10 * 1024 * 1024,
		MaxRedirects:    5,
		DenyPrivateIPs:  true,
		AllowNonWebpage: false,
		HostRequestRate: 2,
		HostBurst:       5,
		Breaker:         circuitbreaker.FeedFetchConfig(),
	}
}

// ImageProbeConfig returns defaults for referer image probing: bodies are
// discarded, any content type is fine, and the probe fans out wide.
func ImageProbeConfig() Config {
	cfg := DefaultConfig()
	cfg.Timeout = 10 * time.Second
	cfg.AllowNonWebpage = true
	cfg.HostRequestRate = 10
	cfg.HostBurst = 20
	cfg.Breaker = circuitbreaker.ImageProbeConfig()
	return cfg
}

// WebpageConfig returns defaults for story webpage fetching.
func WebpageConfig() Config {
	cfg := DefaultConfig()
	cfg.Breaker = circuitbreaker.WebpageFetchConfig()
	return cfg
}
