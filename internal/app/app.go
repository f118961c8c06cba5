// Package app wires the pipeline services together for the CLI. Commands pull
// the App out of their context instead of constructing services themselves,
// which keeps wiring in one place and lets tests inject fakes.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/openplace/placecrawl/internal/clock/system"
	"github.com/openplace/placecrawl/internal/config"
	"github.com/openplace/placecrawl/internal/export"
	"github.com/openplace/placecrawl/internal/hash/sha256"
	"github.com/openplace/placecrawl/internal/logging"
	"github.com/openplace/placecrawl/internal/policy"
	"github.com/openplace/placecrawl/internal/source"
	"github.com/openplace/placecrawl/internal/storage/local"
	"github.com/openplace/placecrawl/internal/store"
)

// App holds the shared services behind the CLI commands.
type App struct {
	cfg    config.Config
	logger *zap.Logger
	store  *store.Store
	blobs  *local.BlobStore
	clock  *system.Clock
	hasher *sha256.Hasher
}

// New loads configuration and opens the shared services.
func New(_ context.Context, cfgPath string) (*App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	st, err := store.Open(cfg.DB.Path)
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}

	blobs, err := local.New(local.Config{BaseDir: cfg.Fetcher.ArchiveDir})
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("open archive store: %w", err)
	}

	return &App{
		cfg:    cfg,
		logger: logger,
		store:  st,
		blobs:  blobs,
		clock:  system.New(),
		hasher: sha256.New(),
	}, nil
}

// Close releases the shared services.
func (a *App) Close() {
	if a.store != nil {
		a.store.Close()
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config { return a.cfg }

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Store returns the state store.
func (a *App) Store() *store.Store { return a.store }

// Blobs returns the raw archive blob store.
func (a *App) Blobs() *local.BlobStore { return a.blobs }

// Clock returns the shared clock.
func (a *App) Clock() *system.Clock { return a.clock }

// Hasher returns the shared content hasher.
func (a *App) Hasher() *sha256.Hasher { return a.hasher }

// Source builds a marketplace client from the configuration. detailWorkers
// bounds concurrent detail-page fetches; values <= 0 fall back to sequential.
func (a *App) Source(detailWorkers int) (*source.Client, error) {
	return source.NewClient(source.Config{
		SearchURL:     a.cfg.Place.SearchURL,
		BaseURL:       a.cfg.Place.BaseURL,
		UserAgent:     a.cfg.Place.UserAgent,
		Timeout:       a.cfg.HTTPTimeout(),
		PageSize:      a.cfg.Place.PageSize,
		DetailWorkers: detailWorkers,
	}, a.logger)
}

// RetryPolicy builds the configured retry policy for network stages.
func (a *App) RetryPolicy() *policy.ExponentialRetryPolicy {
	return policy.NewRetryPolicy(
		a.cfg.Discovery.MaxRetries,
		time.Duration(a.cfg.Discovery.BackoffInitialMs)*time.Millisecond,
		time.Duration(a.cfg.Discovery.BackoffMaxMs)*time.Millisecond,
	)
}

// Limiter builds the politeness rate limiter, or nil when disabled.
func (a *App) Limiter() *rate.Limiter {
	if a.cfg.Discovery.RateLimitRPS <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(a.cfg.Discovery.RateLimitRPS), 1)
}

// Sink builds the configured export sink. The returned closer is a no-op for
// the local sink.
func (a *App) Sink(ctx context.Context) (export.Sink, func(), error) {
	switch a.cfg.Export.Sink {
	case "gcs":
		sink, err := export.NewGCSSink(ctx, a.cfg.Export.GCSBucket, "placecrawl")
		if err != nil {
			return nil, nil, err
		}
		return sink, func() { _ = sink.Close() }, nil
	default:
		sink, err := export.NewLocalSink(a.cfg.Export.OutputDir)
		if err != nil {
			return nil, nil, err
		}
		return sink, func() {}, nil
	}
}
