package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.LoadDefaults()

	require.NoError(t, cfg.Validate())
	require.Equal(t, 5, cfg.MaxConcurrentDownloads)
	require.Equal(t, int64(16*1024*1024), cfg.PartSize)
	require.Equal(t, 60*time.Minute, cfg.MaxWaitTime)
	require.Contains(t, cfg.RetryStatusCodes, 503)
	require.Equal(t, []string{"GET"}, cfg.ClientCacheableMethods)
}

func TestValidate(t *testing.T) {
	for _, tc := range []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty wkvs url", func(c *Config) { c.WKVSAPIURL = "" }},
		{"zero workers", func(c *Config) { c.MaxConcurrentDownloads = 0 }},
		{"zero part size", func(c *Config) { c.PartSize = 0 }},
		{"negative retries", func(c *Config) { c.MaxRetries = -1 }},
		{"zero wait budget", func(c *Config) { c.MaxWaitTime = 0 }},
		{"zero cache capacity", func(c *Config) { c.ClientCacheCapacity = 0 }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &Config{}
			cfg.LoadDefaults()
			tc.mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestParseEnvOverlay(t *testing.T) {
	t.Setenv("GENOFETCH_WKVS_API_URL", "https://env.example/.well-known")
	t.Setenv("GENOFETCH_MAX_CONCURRENT_DOWNLOADS", "9")
	t.Setenv("GENOFETCH_PART_SIZE", "1024")
	t.Setenv("GENOFETCH_MAX_WAIT_TIME", "90s")
	t.Setenv("GENOFETCH_MAX_RETRIES", "not-a-number")

	cfg := &Config{}
	cfg.LoadDefaults()
	parseEnv(cfg)

	require.Equal(t, "https://env.example/.well-known", cfg.WKVSAPIURL)
	require.Equal(t, 9, cfg.MaxConcurrentDownloads)
	require.Equal(t, int64(1024), cfg.PartSize)
	require.Equal(t, 90*time.Second, cfg.MaxWaitTime)
	// malformed values leave the default in place
	require.Equal(t, 5, cfg.MaxRetries)
}

func TestParseJsonOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"output_dir": "/data/downloads",
		"part_size": 2048,
		"max_wait_time": "30m",
		"client_cache_ttl": 45000000000,
		"retry_status_codes": [429, 503]
	}`), 0o600))

	oldArgs := os.Args
	os.Args = []string{"genofetch", "-c", path}
	defer func() { os.Args = oldArgs }()

	cfg := &Config{}
	cfg.LoadDefaults()
	require.NoError(t, parseJson(cfg))

	require.Equal(t, "/data/downloads", cfg.OutputDir)
	require.Equal(t, int64(2048), cfg.PartSize)
	require.Equal(t, 30*time.Minute, cfg.MaxWaitTime)
	require.Equal(t, 45*time.Second, cfg.ClientCacheTTL)
	require.Equal(t, []int{429, 503}, cfg.RetryStatusCodes)
	// untouched options keep their defaults
	require.Equal(t, 5, cfg.MaxConcurrentDownloads)
}

func TestParseJson_NoFileGiven(t *testing.T) {
	oldArgs := os.Args
	os.Args = []string{"genofetch"}
	defer func() { os.Args = oldArgs }()

	cfg := &Config{}
	cfg.LoadDefaults()
	require.NoError(t, parseJson(cfg))
	require.Equal(t, ".", cfg.OutputDir)
}

func TestParseFlagsOverlay(t *testing.T) {
	oldArgs := os.Args
	os.Args = []string{"genofetch", "download", "-o", "/tmp/out", "-n", "2", "-t", "120", "file-1"}
	defer func() { os.Args = oldArgs }()

	cfg := &Config{}
	cfg.LoadDefaults()
	parseFlags(cfg)

	require.Equal(t, "/tmp/out", cfg.OutputDir)
	require.Equal(t, 2, cfg.MaxConcurrentDownloads)
	require.Equal(t, 120*time.Second, cfg.MaxWaitTime)
}
