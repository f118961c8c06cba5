// Package config loads and validates pipeline configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config captures all pipeline configuration knobs loaded via Viper.
type Config struct {
	DB        DBConfig        `mapstructure:"db"`
	Place     PlaceConfig     `mapstructure:"place"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	Fetcher   FetcherConfig   `mapstructure:"fetcher"`
	Export    ExportConfig    `mapstructure:"export"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// DBConfig locates the SQLite state store. The database file is the canonical
// pipeline state and is passed between stages as an artifact.
type DBConfig struct {
	Path string `mapstructure:"path"`
}

// PlaceConfig points at the source marketplace.
type PlaceConfig struct {
	SearchURL      string `mapstructure:"search_url"`
	BaseURL        string `mapstructure:"base_url"`
	UserAgent      string `mapstructure:"user_agent"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	PageSize       int    `mapstructure:"page_size"`
}

// DiscoveryConfig governs pagination, dedup, and retry behavior.
type DiscoveryConfig struct {
	MaxPages         int     `mapstructure:"max_pages"`
	Dedup            bool    `mapstructure:"dedup"`
	RateLimitRPS     float64 `mapstructure:"rate_limit_rps"`
	MaxRetries       int     `mapstructure:"max_retries"`
	BackoffInitialMs int     `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int     `mapstructure:"backoff_max_ms"`
}

// FetcherConfig controls the archive download worker pool.
type FetcherConfig struct {
	Concurrency int    `mapstructure:"concurrency"`
	ArchiveDir  string `mapstructure:"archive_dir"`
}

// ExportConfig controls the portable bundle/metadata export.
type ExportConfig struct {
	OutputDir  string `mapstructure:"output_dir"`
	Format     string `mapstructure:"format"`
	Sink       string `mapstructure:"sink"`
	GCSBucket  string `mapstructure:"gcs_bucket"`
	DatedNames bool   `mapstructure:"dated_names"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment. A .env file in the working
// directory is honored before Viper reads the environment.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("PLACECRAWL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("placecrawl")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.placecrawl")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("db.path", "placecrawl.db")
	v.SetDefault("place.search_url", "https://www.marches-publics.gouv.fr/?page=Entreprise.EntrepriseAdvancedSearch&AllCons")
	v.SetDefault("place.base_url", "https://www.marches-publics.gouv.fr")
	v.SetDefault("place.user_agent", "placecrawl/1.0 (+https://github.com/openplace/placecrawl)")
	v.SetDefault("place.timeout_seconds", 600)
	v.SetDefault("place.page_size", 20)
	v.SetDefault("discovery.max_pages", 1)
	v.SetDefault("discovery.dedup", true)
	v.SetDefault("discovery.rate_limit_rps", 0.5)
	v.SetDefault("discovery.max_retries", 3)
	v.SetDefault("discovery.backoff_initial_ms", 250)
	v.SetDefault("discovery.backoff_max_ms", 5000)
	v.SetDefault("fetcher.concurrency", 4)
	v.SetDefault("fetcher.archive_dir", "data/archives")
	v.SetDefault("export.output_dir", "data/export")
	v.SetDefault("export.format", "csv")
	v.SetDefault("export.sink", "local")
	v.SetDefault("export.dated_names", false)
	v.SetDefault("logging.development", false)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.DB.Path == "" {
		return fmt.Errorf("db.path must be set")
	}
	if c.Place.SearchURL == "" {
		return fmt.Errorf("place.search_url must be set")
	}
	if c.Place.TimeoutSeconds <= 0 {
		return fmt.Errorf("place.timeout_seconds must be > 0")
	}
	if c.Discovery.MaxRetries <= 0 {
		return fmt.Errorf("discovery.max_retries must be > 0")
	}
	if c.Fetcher.Concurrency <= 0 {
		return fmt.Errorf("fetcher.concurrency must be > 0")
	}
	switch c.Export.Format {
	case "csv", "jsonl":
	default:
		return fmt.Errorf("export.format must be csv or jsonl, got %q", c.Export.Format)
	}
	switch c.Export.Sink {
	case "local":
	case "gcs":
		if c.Export.GCSBucket == "" {
			return fmt.Errorf("export.gcs_bucket must be set when export.sink is gcs")
		}
	default:
		return fmt.Errorf("export.sink must be local or gcs, got %q", c.Export.Sink)
	}
	return nil
}

// HTTPTimeout converts the configured source timeout into a duration.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.Place.TimeoutSeconds) * time.Second
}
