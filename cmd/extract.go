package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openplace/placecrawl/internal/extractor"
)

// newExtractMarkdownCmd builds the extract-markdown subcommand.
func newExtractMarkdownCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "extract-markdown",
		Short: "Unpack fetched archives and convert files to markdown.",
		Long: `extract-markdown unpacks every fetched archive that has no extracted
documents yet and converts each recognized file to normalized markdown text.
Conversion failures are recorded per file and never abort the run. Use
--force to re-extract archives that were already processed.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := appFromContext(cmd)
			if err != nil {
				return err
			}

			ex := extractor.New(a.Store(), a.Blobs(), a.Hasher(), a.Clock(), a.Logger())
			report, err := ex.ExtractMarkdown(cmd.Context(), extractor.Options{Force: force})
			if err != nil {
				return err
			}
			if err := printReport(cmd, report); err != nil {
				return err
			}
			if report.Failed > 0 {
				return fmt.Errorf("%d file(s) failed extraction", report.Failed)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "re-extract archives that already have extracted documents")
	return cmd
}
