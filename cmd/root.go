// Package cmd defines the placecrawl CLI. Each pipeline stage is one
// subcommand; automation runs them sequentially and reads the JSON report
// printed on stdout, with the exit code signaling unrecovered failures.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/openplace/placecrawl/internal/app"
	"github.com/openplace/placecrawl/internal/clock/system"
	"github.com/openplace/placecrawl/internal/config"
	"github.com/openplace/placecrawl/internal/export"
	"github.com/openplace/placecrawl/internal/hash/sha256"
	"github.com/openplace/placecrawl/internal/policy"
	"github.com/openplace/placecrawl/internal/source"
	"github.com/openplace/placecrawl/internal/storage/local"
	"github.com/openplace/placecrawl/internal/store"
)

var cfgFile string

// appKeyType is the key for storing the App in the command context.
type appKeyType string

const appKey appKeyType = "app"

// App is the service surface commands pull out of their context. Tests swap
// the factory to inject a fake.
type App interface {
	Config() config.Config
	Logger() *zap.Logger
	Store() *store.Store
	Blobs() *local.BlobStore
	Clock() *system.Clock
	Hasher() *sha256.Hasher
	Source(detailWorkers int) (*source.Client, error)
	RetryPolicy() *policy.ExponentialRetryPolicy
	Limiter() *rate.Limiter
	Sink(ctx context.Context) (export.Sink, func(), error)
	Close()
}

// newApp is the application factory, replaceable in tests.
var newApp = func(ctx context.Context, cfgPath string) (App, error) {
	return app.New(ctx, cfgPath)
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "placecrawl",
		Short: "Resumable crawling pipeline for the PLACE procurement site.",
		Long: `placecrawl discovers tender notices on the PLACE public-procurement site,
downloads their document bundles, extracts text content, and manages the
label batches produced by external recognition runs. All durable state lives
in a single SQLite file, so every stage can be re-run and resumes cleanly.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cmd.Context(), cfgFile)
			if err != nil {
				return fmt.Errorf("initialize services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./placecrawl.yaml)")

	cmd.AddCommand(
		newDiscoverCmd(),
		newFetchArchivesCmd(),
		newExtractMarkdownCmd(),
		newExportArchivesCmd(),
		newBulkExportContentsCmd(),
		newBulkIngestLabelsCmd(),
		newListPostingsCmd(),
		newListLinksCmd(),
		newRemovePostingCmd(),
	)
	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "placecrawl:", err)
		os.Exit(1)
	}
}

// appFromContext retrieves the injected App.
func appFromContext(cmd *cobra.Command) (App, error) {
	appInstance, ok := cmd.Context().Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, fmt.Errorf("application not initialized")
	}
	return appInstance, nil
}

// printReport writes a stage report as indented JSON on stdout.
func printReport(cmd *cobra.Command, report any) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
