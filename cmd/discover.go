package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openplace/placecrawl/internal/discovery"
)

// newDiscoverCmd builds the discover subcommand.
func newDiscoverCmd() *cobra.Command {
	var (
		resume   bool
		maxPages int
		dedup    bool
		workers  int
	)

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Scan listing index pages and record new notices.",
		Long: `discover paginates the PLACE search results and upserts newly found
notices into the state store. With --resume it starts at the page after the
persisted frontier; the frontier only advances past fully committed pages, so
an interrupted or failed run is retried exactly where it stopped.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := appFromContext(cmd)
			if err != nil {
				return err
			}
			cfg := a.Config()

			if !cmd.Flags().Changed("max-pages") {
				maxPages = cfg.Discovery.MaxPages
			}
			if !cmd.Flags().Changed("dedup") {
				dedup = cfg.Discovery.Dedup
			}

			src, err := a.Source(workers)
			if err != nil {
				return fmt.Errorf("build source client: %w", err)
			}

			engine := discovery.New(src, a.Store(), a.Clock(), a.RetryPolicy(), a.Limiter(), a.Logger())
			report, err := engine.Discover(cmd.Context(), discovery.Options{
				MaxPages: maxPages,
				Dedup:    dedup,
				Resume:   resume,
			})
			if err != nil {
				return err
			}
			if err := printReport(cmd, report); err != nil {
				return err
			}
			if report.Failed() {
				return fmt.Errorf("%d page(s) failed after retries", len(report.FailedPages))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&resume, "resume", false, "start after the persisted frontier instead of page 1")
	cmd.Flags().IntVarP(&maxPages, "max-pages", "E", 0, "maximum index pages to scan (0 = until exhausted)")
	cmd.Flags().BoolVarP(&dedup, "dedup", "D", true, "skip external ids already present in the store")
	cmd.Flags().IntVarP(&workers, "workers", "n", 1, "concurrent detail-page fetches per index page")
	return cmd
}
