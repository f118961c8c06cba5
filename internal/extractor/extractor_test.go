package extractor

import (
	"archive/zip"
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openplace/placecrawl/internal/hash/sha256"
	"github.com/openplace/placecrawl/internal/place"
	"github.com/openplace/placecrawl/internal/storage/local"
	"github.com/openplace/placecrawl/internal/store"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range files {
		fw, err := w.Create(name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func newTestExtractor(t *testing.T) (*Extractor, *store.Store, *local.BlobStore) {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	blobs, err := local.New(local.Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	clock := fixedClock{now: time.Date(2026, 2, 12, 9, 0, 0, 0, time.UTC)}
	return New(st, blobs, sha256.New(), clock, zap.NewNop()), st, blobs
}

func seedFetchedArchive(t *testing.T, st *store.Store, blobs *local.BlobStore, externalID string, zipData []byte) place.Archive {
	t.Helper()
	ctx := context.Background()
	listing, _, err := st.UpsertListing(ctx, place.Listing{
		ExternalID: externalID,
		Page:       1,
		Status:     place.ListingFetched,
	})
	require.NoError(t, err)

	path := externalID + ".bundle.dce.zip"
	_, err = blobs.PutObject(ctx, path, zipData)
	require.NoError(t, err)

	archive, err := st.UpsertArchive(ctx, place.Archive{
		ListingID: listing.ID,
		Kind:      place.KindDCE,
		Path:      path,
		Status:    place.ArchiveFetched,
	})
	require.NoError(t, err)
	return archive
}

func TestExtractMarkdown(t *testing.T) {
	t.Parallel()
	ex, st, blobs := newTestExtractor(t)
	ctx := context.Background()

	zipData := buildZip(t, map[string]string{
		"cctp.txt":    "Cahier des charges\r\n\r\n\r\nArticle 1\r\n",
		"annexe.csv":  "lot,montant\n1,1000\n",
		"drawing.dwg": "binary",
	})
	archive := seedFetchedArchive(t, st, blobs, "800001", zipData)

	report, err := ex.ExtractMarkdown(ctx, Options{})
	require.NoError(t, err)
	require.Equal(t, 1, report.ArchivesScanned)
	require.Equal(t, 2, report.Extracted)
	require.Equal(t, 1, report.Skipped)
	require.Zero(t, report.Failed)

	docs, err := st.ListDocumentsByArchive(ctx, archive.ID)
	require.NoError(t, err)
	require.Len(t, docs, 2)

	byName := make(map[string]place.Document)
	for _, d := range docs {
		byName[d.FileName] = d
	}
	require.Equal(t, "Cahier des charges\n\nArticle 1\n", byName["cctp.txt"].Content)
	require.Equal(t, place.DocumentExtracted, byName["cctp.txt"].Status)
	require.NotEmpty(t, byName["cctp.txt"].ContentHash)
	require.Contains(t, byName["annexe.csv"].Content, "| lot | montant |")
	require.Contains(t, byName["annexe.csv"].Content, "| 1 | 1000 |")
}

func TestExtractMarkdownIdempotent(t *testing.T) {
	t.Parallel()
	ex, st, blobs := newTestExtractor(t)
	ctx := context.Background()

	zipData := buildZip(t, map[string]string{"a.txt": "hello\n"})
	seedFetchedArchive(t, st, blobs, "800002", zipData)

	first, err := ex.ExtractMarkdown(ctx, Options{})
	require.NoError(t, err)
	require.Equal(t, 1, first.Extracted)

	second, err := ex.ExtractMarkdown(ctx, Options{})
	require.NoError(t, err)
	require.Zero(t, second.ArchivesScanned)

	forced, err := ex.ExtractMarkdown(ctx, Options{Force: true})
	require.NoError(t, err)
	require.Equal(t, 1, forced.ArchivesScanned)
	require.Equal(t, 1, forced.Extracted)

	docs, err := st.AllDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
}

func TestExtractMarkdownCorruptZip(t *testing.T) {
	t.Parallel()
	ex, st, blobs := newTestExtractor(t)
	ctx := context.Background()

	archive := seedFetchedArchive(t, st, blobs, "800003", []byte("not a zip at all"))

	report, err := ex.ExtractMarkdown(ctx, Options{})
	require.NoError(t, err)
	require.Equal(t, 1, report.Failed)
	require.Contains(t, report.FailedFiles, archive.Path)

	docs, err := st.ListDocumentsByArchive(ctx, archive.ID)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Equal(t, place.DocumentFailed, docs[0].Status)
	require.Contains(t, docs[0].Reason, "unreadable zip")
}

func TestExtractMarkdownHTML(t *testing.T) {
	t.Parallel()
	ex, st, blobs := newTestExtractor(t)
	ctx := context.Background()

	zipData := buildZip(t, map[string]string{
		"avis.html": "<html><head><style>p{}</style></head><body><p>Avis de marché</p><script>x()</script></body></html>",
	})
	archive := seedFetchedArchive(t, st, blobs, "800004", zipData)

	report, err := ex.ExtractMarkdown(ctx, Options{})
	require.NoError(t, err)
	require.Equal(t, 1, report.Extracted)

	docs, err := st.ListDocumentsByArchive(ctx, archive.ID)
	require.NoError(t, err)
	require.Contains(t, docs[0].Content, "Avis de marché")
	require.NotContains(t, docs[0].Content, "x()")
}

func TestNormalize(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"crlf", "a\r\nb\r\n", "a\nb\n"},
		{"trailing spaces", "a  \nb\t\n", "a\nb\n"},
		{"collapsed blanks", "a\n\n\n\nb\n", "a\n\nb\n"},
		{"empty", "", ""},
		{"only blanks", "\n\n\n", ""},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}
