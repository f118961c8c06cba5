package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openplace/placecrawl/internal/fetcher"
)

// newFetchArchivesCmd builds the fetch-archives subcommand.
func newFetchArchivesCmd() *cobra.Command {
	var concurrency int

	cmd := &cobra.Command{
		Use:   "fetch-archives",
		Short: "Download document bundles for discovered listings.",
		Long: `fetch-archives downloads the consultation bundle for every listing that
does not have one yet, through a bounded worker pool. Listings whose previous
download failed are retried; listings already fetched are skipped, so the
command is safe to re-run after a partial failure.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := appFromContext(cmd)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("concurrency") {
				concurrency = a.Config().Fetcher.Concurrency
			}

			src, err := a.Source(1)
			if err != nil {
				return fmt.Errorf("build source client: %w", err)
			}

			f := fetcher.New(a.Store(), src, a.Blobs(), a.Hasher(), a.Clock(), a.RetryPolicy(), a.Logger())
			report, err := f.FetchArchives(cmd.Context(), concurrency)
			if err != nil {
				return err
			}
			if err := printReport(cmd, report); err != nil {
				return err
			}
			if report.Failed() {
				return fmt.Errorf("%d archive(s) failed after retries", len(report.Failures))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&concurrency, "concurrency", "c", 4, "download worker pool size")
	return cmd
}
