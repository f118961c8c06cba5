package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, "placecrawl.db", cfg.DB.Path)
	require.Equal(t, 20, cfg.Place.PageSize)
	require.Equal(t, 3, cfg.Discovery.MaxRetries)
	require.True(t, cfg.Discovery.Dedup)
	require.Equal(t, 4, cfg.Fetcher.Concurrency)
	require.Equal(t, "csv", cfg.Export.Format)
	require.Equal(t, "local", cfg.Export.Sink)
	require.Equal(t, 600*time.Second, cfg.HTTPTimeout())
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "placecrawl.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
db:
  path: /tmp/state.db
discovery:
  max_pages: 7
  rate_limit_rps: 2.5
fetcher:
  concurrency: 8
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/tmp/state.db", cfg.DB.Path)
	require.Equal(t, 7, cfg.Discovery.MaxPages)
	require.InDelta(t, 2.5, cfg.Discovery.RateLimitRPS, 1e-9)
	require.Equal(t, 8, cfg.Fetcher.Concurrency)
	// Untouched keys keep their defaults.
	require.Equal(t, 20, cfg.Place.PageSize)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("PLACECRAWL_DB_PATH", "/tmp/env.db")
	t.Setenv("PLACECRAWL_FETCHER_CONCURRENCY", "2")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "/tmp/env.db", cfg.DB.Path)
	require.Equal(t, 2, cfg.Fetcher.Concurrency)
}

func TestValidate(t *testing.T) {
	t.Parallel()
	base := func() Config {
		return Config{
			DB:        DBConfig{Path: "state.db"},
			Place:     PlaceConfig{SearchURL: "https://example.test", TimeoutSeconds: 30},
			Discovery: DiscoveryConfig{MaxRetries: 3},
			Fetcher:   FetcherConfig{Concurrency: 2},
			Export:    ExportConfig{Format: "csv", Sink: "local"},
		}
	}

	require.NoError(t, base().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing db path", func(c *Config) { c.DB.Path = "" }},
		{"missing search url", func(c *Config) { c.Place.SearchURL = "" }},
		{"zero timeout", func(c *Config) { c.Place.TimeoutSeconds = 0 }},
		{"zero retries", func(c *Config) { c.Discovery.MaxRetries = 0 }},
		{"zero concurrency", func(c *Config) { c.Fetcher.Concurrency = 0 }},
		{"bad format", func(c *Config) { c.Export.Format = "parquet" }},
		{"bad sink", func(c *Config) { c.Export.Sink = "s3" }},
		{"gcs without bucket", func(c *Config) { c.Export.Sink = "gcs"; c.Export.GCSBucket = "" }},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base()
			tt.mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}
