package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openplace/placecrawl/internal/ingest"
)

// newBulkIngestLabelsCmd builds the bulk-ingest-labels subcommand.
func newBulkIngestLabelsCmd() *cobra.Command {
	var (
		inputDir string
		idSource string
	)

	cmd := &cobra.Command{
		Use:   "bulk-ingest-labels",
		Short: "Load externally produced label batches into the store.",
		Long: `bulk-ingest-labels reads every .jsonl batch under the input directory and
appends its labels to the store under a fresh run id. Entries whose document
identifier cannot be resolved are reported and skipped; the rest of the batch
still commits.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := appFromContext(cmd)
			if err != nil {
				return err
			}

			ingestor := ingest.New(a.Store(), a.Clock(), a.Logger())
			report, err := ingestor.IngestDir(cmd.Context(), inputDir, ingest.IDSource(idSource))
			if err != nil {
				return err
			}
			if err := printReport(cmd, report); err != nil {
				return err
			}
			if report.Failed() {
				return fmt.Errorf("%d batch entr(ies) unresolved", len(report.Unresolved))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&inputDir, "input-dir", "", "directory holding .jsonl label batches")
	cmd.Flags().StringVar(&idSource, "id-source", string(ingest.SourceFileName), "identifier scheme: filename, document_id, or hash")
	_ = cmd.MarkFlagRequired("input-dir")
	return cmd
}
