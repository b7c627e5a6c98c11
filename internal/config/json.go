package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/genofetch/internal/flagx"
	"github.com/dmitrijs2005/genofetch/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Pointer fields
// distinguish "absent" from zero values so the file can overlay only the
// options it names.
type JsonConfig struct {
	WKVSAPIURL *string `json:"wkvs_api_url"`
	OutputDir  *string `json:"output_dir"`

	MaxConcurrentDownloads *int            `json:"max_concurrent_downloads"`
	PartSize               *int64          `json:"part_size"`
	MaxRetries             *int            `json:"max_retries"`
	MaxWaitTime            *timex.Duration `json:"max_wait_time"`

	ExponentialBackoffMax              *timex.Duration `json:"exponential_backoff_max"`
	PerRequestJitter                   *timex.Duration `json:"per_request_jitter"`
	RetryStatusCodes                   []int           `json:"retry_status_codes"`
	RetryAfterApplicableForNumRequests *int            `json:"retry_after_applicable_for_num_requests"`

	ClientCacheCapacity        *int            `json:"client_cache_capacity"`
	ClientCacheTTL             *timex.Duration `json:"client_cache_ttl"`
	ClientCacheableMethods     []string        `json:"client_cacheable_methods"`
	ClientCacheableStatusCodes []int           `json:"client_cacheable_status_codes"`
}

// parseJson overlays cfg with values loaded from the JSON file named by the
// -c / -config flags. If no file is given, cfg is left untouched.
func parseJson(cfg *Config) error {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return nil
	}

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		return fmt.Errorf("read config %s: %w", jsonConfigFile, err)
	}

	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		return fmt.Errorf("parse config %s: %w", jsonConfigFile, err)
	}

	if jc.WKVSAPIURL != nil {
		cfg.WKVSAPIURL = *jc.WKVSAPIURL
	}
	if jc.OutputDir != nil {
		cfg.OutputDir = *jc.OutputDir
	}
	if jc.MaxConcurrentDownloads != nil {
		cfg.MaxConcurrentDownloads = *jc.MaxConcurrentDownloads
	}
	if jc.PartSize != nil {
		cfg.PartSize = *jc.PartSize
	}
	if jc.MaxRetries != nil {
		cfg.MaxRetries = *jc.MaxRetries
	}
	if jc.MaxWaitTime != nil {
		cfg.MaxWaitTime = jc.MaxWaitTime.Duration
	}
	if jc.ExponentialBackoffMax != nil {
		cfg.ExponentialBackoffMax = jc.ExponentialBackoffMax.Duration
	}
	if jc.PerRequestJitter != nil {
		cfg.PerRequestJitter = jc.PerRequestJitter.Duration
	}
	if jc.RetryStatusCodes != nil {
		cfg.RetryStatusCodes = jc.RetryStatusCodes
	}
	if jc.RetryAfterApplicableForNumRequests != nil {
		cfg.RetryAfterApplicableForNumRequests = *jc.RetryAfterApplicableForNumRequests
	}
	if jc.ClientCacheCapacity != nil {
		cfg.ClientCacheCapacity = *jc.ClientCacheCapacity
	}
	if jc.ClientCacheTTL != nil {
		cfg.ClientCacheTTL = jc.ClientCacheTTL.Duration
	}
	if jc.ClientCacheableMethods != nil {
		cfg.ClientCacheableMethods = jc.ClientCacheableMethods
	}
	if jc.ClientCacheableStatusCodes != nil {
		cfg.ClientCacheableStatusCodes = jc.ClientCacheableStatusCodes
	}

	return nil
}
