package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openplace/placecrawl/internal/export"
)

// newExportArchivesCmd builds the export-archives subcommand.
func newExportArchivesCmd() *cobra.Command {
	var (
		format string
		dated  bool
	)

	cmd := &cobra.Command{
		Use:   "export-archives",
		Short: "Write the portable archive bundle and metadata tables.",
		Long: `export-archives serializes the fetched archives into one tar.gz bundle
and each store table into a metadata file, written to the configured sink
(local directory or GCS bucket). Unchanged state exports to byte-identical
artifacts, so repeated runs are safe.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := appFromContext(cmd)
			if err != nil {
				return err
			}
			cfg := a.Config()
			if !cmd.Flags().Changed("format") {
				format = cfg.Export.Format
			}
			if !cmd.Flags().Changed("dated-names") {
				dated = cfg.Export.DatedNames
			}

			sink, closeSink, err := a.Sink(cmd.Context())
			if err != nil {
				return fmt.Errorf("build export sink: %w", err)
			}
			defer closeSink()

			exporter := export.New(a.Store(), a.Blobs(), sink, a.Clock(), a.Logger())
			manifest, err := exporter.ExportArchives(cmd.Context(), export.Options{
				Format:     export.Format(format),
				DatedNames: dated,
			})
			if err != nil {
				return err
			}
			return printReport(cmd, manifest)
		},
	}

	cmd.Flags().StringVar(&format, "format", "csv", "metadata table format: csv or jsonl")
	cmd.Flags().BoolVar(&dated, "dated-names", false, "prefix artifact names with the run date")
	return cmd
}

// newBulkExportContentsCmd builds the bulk-export-archive-contents subcommand.
func newBulkExportContentsCmd() *cobra.Command {
	var opts export.ContentsOptions

	cmd := &cobra.Command{
		Use:   "bulk-export-archive-contents",
		Short: "Dump extracted documents as individual markdown files.",
		Long: `bulk-export-archive-contents writes the extracted markdown of up to N
documents into the output directory, one file per document, for external
recognition runs to consume.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := appFromContext(cmd)
			if err != nil {
				return err
			}

			written, err := export.ExportContents(cmd.Context(), a.Store(), opts, a.Logger())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d document(s) written to %s\n", written, opts.OutputDir)
			return nil
		},
	}

	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum documents to write (0 = all)")
	cmd.Flags().StringVar(&opts.OutputDir, "output-dir", "", "directory receiving the markdown files")
	cmd.Flags().BoolVar(&opts.Silent, "silent", false, "suppress per-file logging")
	_ = cmd.MarkFlagRequired("output-dir")
	return cmd
}
