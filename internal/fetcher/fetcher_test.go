package fetcher

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openplace/placecrawl/internal/hash/sha256"
	"github.com/openplace/placecrawl/internal/place"
	"github.com/openplace/placecrawl/internal/policy"
	"github.com/openplace/placecrawl/internal/storage/local"
	"github.com/openplace/placecrawl/internal/store"
)

// fakeDownloader serves canned payloads per external id and fails the rest.
type fakeDownloader struct {
	mu       sync.Mutex
	payloads map[string]Payload
	calls    map[string]int
}

func newFakeDownloader() *fakeDownloader {
	return &fakeDownloader{
		payloads: make(map[string]Payload),
		calls:    make(map[string]int),
	}
}

func (f *fakeDownloader) DownloadArchive(_ context.Context, listing place.Listing, _ place.ArchiveKind) (Payload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[listing.ExternalID]++
	payload, ok := f.payloads[listing.ExternalID]
	if !ok {
		return Payload{}, &place.TransientFetchError{URL: listing.URL, Err: fmt.Errorf("synthetic download failure")}
	}
	return payload, nil
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func newTestFetcher(t *testing.T, downloader Downloader) (*Fetcher, *store.Store) {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	blobs, err := local.New(local.Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	clock := fixedClock{now: time.Date(2026, 2, 11, 8, 0, 0, 0, time.UTC)}
	retry := policy.NewRetryPolicy(2, time.Millisecond, 2*time.Millisecond)
	return New(st, downloader, blobs, sha256.New(), clock, retry, zap.NewNop()), st
}

func seedListing(t *testing.T, st *store.Store, externalID string) place.Listing {
	t.Helper()
	listing, _, err := st.UpsertListing(context.Background(), place.Listing{
		ExternalID:   externalID,
		Page:         1,
		URL:          "https://example.test/consultation/" + externalID,
		Status:       place.ListingDiscovered,
		DiscoveredAt: time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return listing
}

func TestFetchArchivesFailureIsolation(t *testing.T) {
	t.Parallel()
	downloader := newFakeDownloader()
	f, st := newTestFetcher(t, downloader)
	ctx := context.Background()

	good := seedListing(t, st, "700001")
	bad := seedListing(t, st, "700002")
	data := zipWithText(t, "notice.txt", "Avis de marche")
	downloader.payloads["700001"] = Payload{FileName: "DCE_700001.zip", Data: data}

	report, err := f.FetchArchives(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, 2, report.Attempted)
	require.Equal(t, 1, report.Fetched)
	require.Len(t, report.Failures, 1)
	require.Equal(t, bad.ID, report.Failures[0].ListingID)
	require.True(t, report.Failed())

	fetched, err := st.GetListing(ctx, good.ID)
	require.NoError(t, err)
	require.Equal(t, place.ListingFetched, fetched.Status)

	failed, err := st.GetListing(ctx, bad.ID)
	require.NoError(t, err)
	require.Equal(t, place.ListingFailed, failed.Status)

	archives, err := st.ListArchivesByListing(ctx, good.ID)
	require.NoError(t, err)
	require.Len(t, archives, 1)
	require.Equal(t, place.ArchiveFetched, archives[0].Status)
	require.Equal(t, "700001.DCE_700001.dce.zip", archives[0].Path)
	require.Equal(t, int64(len(data)), archives[0].SizeBytes)
	require.NotEmpty(t, archives[0].Checksum)
}

func TestFetchArchivesIdempotentRerun(t *testing.T) {
	t.Parallel()
	downloader := newFakeDownloader()
	f, st := newTestFetcher(t, downloader)
	ctx := context.Background()

	seedListing(t, st, "700003")
	downloader.payloads["700003"] = Payload{FileName: "DCE.zip", Data: zipWithText(t, "cctp.txt", "Cahier des charges")}

	first, err := f.FetchArchives(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 1, first.Fetched)

	// Nothing left to do on the second run.
	second, err := f.FetchArchives(ctx, 1)
	require.NoError(t, err)
	require.Zero(t, second.Attempted)
	require.Equal(t, 1, downloader.calls["700003"])
}

func TestFetchArchivesRetriesThenFails(t *testing.T) {
	t.Parallel()
	downloader := newFakeDownloader()
	f, st := newTestFetcher(t, downloader)
	ctx := context.Background()

	listing := seedListing(t, st, "700004")

	report, err := f.FetchArchives(ctx, 1)
	require.NoError(t, err)
	require.Len(t, report.Failures, 1)
	// The retry policy allows 2 attempts.
	require.Equal(t, 2, downloader.calls["700004"])

	archives, err := st.ListArchivesByListing(ctx, listing.ID)
	require.NoError(t, err)
	require.Len(t, archives, 1)
	require.Equal(t, place.ArchiveFailed, archives[0].Status)

	// The failed listing shows up as work again.
	work, err := st.ListFetchWork(ctx)
	require.NoError(t, err)
	require.Len(t, work, 1)
	require.Equal(t, listing.ID, work[0].ID)
}

func TestFetchArchivesRejectsCorruptPayload(t *testing.T) {
	t.Parallel()
	downloader := newFakeDownloader()
	f, st := newTestFetcher(t, downloader)
	ctx := context.Background()

	listing := seedListing(t, st, "700005")
	downloader.payloads["700005"] = Payload{FileName: "DCE_700005.zip", Data: []byte("this is not a zip archive at all")}

	report, err := f.FetchArchives(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 1, report.Attempted)
	require.Zero(t, report.Fetched)
	require.Len(t, report.Failures, 1)
	require.Contains(t, report.Failures[0].Reason, "corrupt archive")
	// Corruption can be a truncated transfer, so it consumes the retry budget.
	require.Equal(t, 2, downloader.calls["700005"])

	failed, err := st.GetListing(ctx, listing.ID)
	require.NoError(t, err)
	require.Equal(t, place.ListingFailed, failed.Status)

	archives, err := st.ListArchivesByListing(ctx, listing.ID)
	require.NoError(t, err)
	require.Len(t, archives, 1)
	require.Equal(t, place.ArchiveFailed, archives[0].Status)
}

func TestArchiveName(t *testing.T) {
	t.Parallel()
	tests := []struct {
		externalID string
		fileName   string
		kind       place.ArchiveKind
		want       string
	}{
		{"123456", "DCE_consultation.zip", place.KindDCE, "123456.DCE_consultation.dce.zip"},
		{"123456", "avis.pdf", place.KindAvis, "123456.avis.avis.zip"},
		{"123456", "", place.KindDCE, "123456.archive.dce.zip"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, ArchiveName(tt.externalID, tt.fileName, tt.kind))
	}
}
