// Package config holds the validated runtime configuration for the transfer
// engine. One Config value is built at startup and passed by reference into
// each component at construction; there is no ambient global state.
package config

import (
	"fmt"
	"net/http"
	"time"
)

// Config holds runtime settings for genofetch.
//
// Sizes are bytes, intervals are time.Duration. The retry/cache knobs apply
// to every outbound HTTP call made by the engine.
type Config struct {
	// WKVSAPIURL is the root of the well-known-value service used to
	// discover backend base URLs at startup.
	WKVSAPIURL string

	// OutputDir is where downloaded and decrypted artifacts are placed.
	OutputDir string

	MaxConcurrentDownloads int
	PartSize               int64
	MaxRetries             int
	MaxWaitTime            time.Duration

	ExponentialBackoffMax              time.Duration
	PerRequestJitter                   time.Duration
	RetryStatusCodes                   []int
	RetryAfterApplicableForNumRequests int

	ClientCacheCapacity        int
	ClientCacheTTL             time.Duration
	ClientCacheableMethods     []string
	ClientCacheableStatusCodes []int
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.WKVSAPIURL = "https://data.ghga.de/.well-known"
	c.OutputDir = "."

	c.MaxConcurrentDownloads = 5
	c.PartSize = 16 * 1024 * 1024
	c.MaxRetries = 5
	c.MaxWaitTime = 60 * time.Minute

	c.ExponentialBackoffMax = 60 * time.Second
	c.PerRequestJitter = time.Second
	c.RetryStatusCodes = []int{
		http.StatusRequestTimeout,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout,
	}
	c.RetryAfterApplicableForNumRequests = 3

	c.ClientCacheCapacity = 128
	c.ClientCacheTTL = time.Minute
	c.ClientCacheableMethods = []string{http.MethodGet}
	c.ClientCacheableStatusCodes = []int{http.StatusOK}
}

// Validate checks invariants that the rest of the engine relies on.
func (c *Config) Validate() error {
	if c.WKVSAPIURL == "" {
		return fmt.Errorf("wkvs_api_url must not be empty")
	}
	if c.MaxConcurrentDownloads <= 0 {
		return fmt.Errorf("max_concurrent_downloads must be positive, got %d", c.MaxConcurrentDownloads)
	}
	if c.PartSize <= 0 {
		return fmt.Errorf("part_size must be positive, got %d", c.PartSize)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative, got %d", c.MaxRetries)
	}
	if c.MaxWaitTime <= 0 {
		return fmt.Errorf("max_wait_time must be positive, got %s", c.MaxWaitTime)
	}
	if c.ClientCacheCapacity <= 0 {
		return fmt.Errorf("client_cache_capacity must be positive, got %d", c.ClientCacheCapacity)
	}
	if c.RetryAfterApplicableForNumRequests < 0 {
		return fmt.Errorf("retry_after_applicable_for_num_requests must not be negative, got %d",
			c.RetryAfterApplicableForNumRequests)
	}
	return nil
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present), environment variables and command-line flags. Later
// sources take precedence over earlier ones.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseJson(cfg); err != nil {
		return nil, err
	}
	parseEnv(cfg)
	parseFlags(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
