package config

import (
	"os"
	"strconv"
	"time"
)

// parseEnv overlays cfg with values from GENOFETCH_* environment variables.
// Malformed values are ignored rather than fatal; flags remain the final
// overlay stage.
func parseEnv(cfg *Config) {
	if v, ok := os.LookupEnv("GENOFETCH_WKVS_API_URL"); ok {
		cfg.WKVSAPIURL = v
	}
	if v, ok := os.LookupEnv("GENOFETCH_OUTPUT_DIR"); ok {
		cfg.OutputDir = v
	}
	if v, ok := os.LookupEnv("GENOFETCH_MAX_CONCURRENT_DOWNLOADS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxConcurrentDownloads = n
		}
	}
	if v, ok := os.LookupEnv("GENOFETCH_PART_SIZE"); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.PartSize = n
		}
	}
	if v, ok := os.LookupEnv("GENOFETCH_MAX_RETRIES"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxRetries = n
		}
	}
	if v, ok := os.LookupEnv("GENOFETCH_MAX_WAIT_TIME"); ok {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.MaxWaitTime = d
		}
	}
}
