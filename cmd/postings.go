package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newListPostingsCmd builds the list-postings operator subcommand.
func newListPostingsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list-postings",
		Short: "Print stored postings as JSON.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := appFromContext(cmd)
			if err != nil {
				return err
			}

			listings, err := a.Store().AllListings(cmd.Context())
			if err != nil {
				return err
			}
			if limit > 0 && len(listings) > limit {
				listings = listings[:limit]
			}
			return printReport(cmd, listings)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "maximum postings to print (0 = all)")
	return cmd
}

// newListLinksCmd builds the list-links operator subcommand.
func newListLinksCmd() *cobra.Command {
	var postingID string

	cmd := &cobra.Command{
		Use:   "list-links",
		Short: "Print the stored archives of one posting.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := appFromContext(cmd)
			if err != nil {
				return err
			}

			listing, err := a.Store().GetListingByExternalID(cmd.Context(), postingID)
			if err != nil {
				return err
			}
			archives, err := a.Store().ListArchivesByListing(cmd.Context(), listing.ID)
			if err != nil {
				return err
			}
			return printReport(cmd, archives)
		},
	}

	cmd.Flags().StringVar(&postingID, "posting-id", "", "external id of the posting")
	_ = cmd.MarkFlagRequired("posting-id")
	return cmd
}

// newRemovePostingCmd builds the remove-posting operator subcommand.
func newRemovePostingCmd() *cobra.Command {
	var postingID string

	cmd := &cobra.Command{
		Use:   "remove-posting",
		Short: "Delete one posting and everything it owns.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := appFromContext(cmd)
			if err != nil {
				return err
			}

			listing, err := a.Store().GetListingByExternalID(cmd.Context(), postingID)
			if err != nil {
				return err
			}
			if err := a.Store().RemoveListing(cmd.Context(), listing.ID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "posting %s removed\n", postingID)
			return nil
		},
	}

	cmd.Flags().StringVar(&postingID, "posting-id", "", "external id of the posting")
	_ = cmd.MarkFlagRequired("posting-id")
	return cmd
}
