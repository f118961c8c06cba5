package cmd

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRootCommandWiring(t *testing.T) {
	t.Parallel()
	root := newRootCmd()
	require.Equal(t, "placecrawl", root.Use)

	names := make(map[string]bool)
	for _, sub := range root.Commands() {
		names[sub.Name()] = true
	}
	for _, expected := range []string{
		"discover",
		"fetch-archives",
		"extract-markdown",
		"export-archives",
		"bulk-export-archive-contents",
		"bulk-ingest-labels",
		"list-postings",
		"list-links",
		"remove-posting",
	} {
		require.True(t, names[expected], "missing subcommand %s", expected)
	}
}

func TestDiscoverFlags(t *testing.T) {
	t.Parallel()
	cmd := newDiscoverCmd()

	require.NotNil(t, cmd.Flags().Lookup("resume"))
	require.Equal(t, "E", cmd.Flags().Lookup("max-pages").Shorthand)
	require.Equal(t, "D", cmd.Flags().Lookup("dedup").Shorthand)
	require.Equal(t, "n", cmd.Flags().Lookup("workers").Shorthand)
}
