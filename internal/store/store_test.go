package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openplace/placecrawl/internal/place"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testListing(externalID string, page int) place.Listing {
	return place.Listing{
		ExternalID:   externalID,
		Page:         page,
		URL:          "https://example.test/consultation/" + externalID,
		Reference:    "REF-" + externalID,
		Title:        "Title " + externalID,
		Description:  "Description " + externalID,
		Organization: "Org",
		OrgAcronym:   "o1a2b",
		Status:       place.ListingDiscovered,
		DiscoveredAt: time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC),
	}
}

func TestUpsertListingIdempotent(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	first, created, err := s.UpsertListing(ctx, testListing("100001", 1))
	require.NoError(t, err)
	require.True(t, created)
	require.NotZero(t, first.ID)

	again, created, err := s.UpsertListing(ctx, testListing("100001", 1))
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, first.ID, again.ID)

	all, err := s.AllListings(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestUpsertListingConflictOnDifferentPage(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	_, _, err := s.UpsertListing(ctx, testListing("100002", 1))
	require.NoError(t, err)

	_, _, err = s.UpsertListing(ctx, testListing("100002", 3))
	require.ErrorIs(t, err, place.ErrConflict)
}

func TestFrontierMonotonic(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)

	frontier, err := s.Frontier(ctx)
	require.NoError(t, err)
	require.Zero(t, frontier)

	require.NoError(t, s.AdvanceFrontier(ctx, 3, now))
	frontier, err = s.Frontier(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, frontier)

	// Moving backwards is a no-op.
	require.NoError(t, s.AdvanceFrontier(ctx, 2, now))
	frontier, err = s.Frontier(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, frontier)

	require.NoError(t, s.AdvanceFrontier(ctx, 4, now))
	frontier, err = s.Frontier(ctx)
	require.NoError(t, err)
	require.Equal(t, 4, frontier)
}

func TestUpsertArchiveKeyedOnListingAndKind(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	listing, _, err := s.UpsertListing(ctx, testListing("100003", 1))
	require.NoError(t, err)

	first, err := s.UpsertArchive(ctx, place.Archive{
		ListingID: listing.ID,
		Kind:      place.KindDCE,
		Status:    place.ArchiveFailed,
	})
	require.NoError(t, err)

	refetched, err := s.UpsertArchive(ctx, place.Archive{
		ListingID: listing.ID,
		Kind:      place.KindDCE,
		Path:      "100003.bundle.dce.zip",
		Checksum:  "abc",
		SizeBytes: 42,
		Status:    place.ArchiveFetched,
		FetchedAt: time.Date(2026, 2, 11, 8, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Equal(t, first.ID, refetched.ID)
	require.Equal(t, place.ArchiveFetched, refetched.Status)
	require.Equal(t, "100003.bundle.dce.zip", refetched.Path)

	// A different kind creates a separate row.
	avis, err := s.UpsertArchive(ctx, place.Archive{
		ListingID: listing.ID,
		Kind:      place.KindAvis,
		Status:    place.ArchiveFetched,
	})
	require.NoError(t, err)
	require.NotEqual(t, first.ID, avis.ID)

	byListing, err := s.ListArchivesByListing(ctx, listing.ID)
	require.NoError(t, err)
	require.Len(t, byListing, 2)
}

func TestUpsertArchiveRequiresOwner(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	_, err := s.UpsertArchive(context.Background(), place.Archive{ListingID: 999})
	require.ErrorIs(t, err, place.ErrNotFound)
}

func TestListFetchWork(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	discovered, _, err := s.UpsertListing(ctx, testListing("200001", 1))
	require.NoError(t, err)

	fetched, _, err := s.UpsertListing(ctx, testListing("200002", 1))
	require.NoError(t, err)
	_, err = s.UpsertArchive(ctx, place.Archive{ListingID: fetched.ID, Status: place.ArchiveFetched})
	require.NoError(t, err)
	require.NoError(t, s.MarkListingStatus(ctx, fetched.ID, place.ListingFetched))

	failed, _, err := s.UpsertListing(ctx, testListing("200003", 1))
	require.NoError(t, err)
	_, err = s.UpsertArchive(ctx, place.Archive{ListingID: failed.ID, Status: place.ArchiveFailed})
	require.NoError(t, err)
	require.NoError(t, s.MarkListingStatus(ctx, failed.ID, place.ListingFailed))

	work, err := s.ListFetchWork(ctx)
	require.NoError(t, err)
	require.Len(t, work, 2)
	require.Equal(t, discovered.ID, work[0].ID)
	require.Equal(t, failed.ID, work[1].ID)
}

func TestDocumentsLifecycle(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	listing, _, err := s.UpsertListing(ctx, testListing("300001", 1))
	require.NoError(t, err)
	archive, err := s.UpsertArchive(ctx, place.Archive{ListingID: listing.ID, Status: place.ArchiveFetched})
	require.NoError(t, err)

	doc, err := s.UpsertDocument(ctx, place.Document{
		ArchiveID:   archive.ID,
		FileName:    "cctp.pdf",
		Content:     "# CCTP\n",
		ContentHash: "deadbeef",
		Status:      place.DocumentExtracted,
		ExtractedAt: time.Date(2026, 2, 12, 9, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	// Re-extraction overwrites content, not identity.
	updated, err := s.UpsertDocument(ctx, place.Document{
		ArchiveID:   archive.ID,
		FileName:    "cctp.pdf",
		Content:     "# CCTP v2\n",
		ContentHash: "cafe",
		Status:      place.DocumentExtracted,
	})
	require.NoError(t, err)
	require.Equal(t, doc.ID, updated.ID)
	require.Equal(t, "# CCTP v2\n", updated.Content)

	byName, err := s.FindDocumentByFileName(ctx, "cctp.pdf")
	require.NoError(t, err)
	require.Equal(t, doc.ID, byName.ID)

	byHash, err := s.FindDocumentByContentHash(ctx, "cafe")
	require.NoError(t, err)
	require.Equal(t, doc.ID, byHash.ID)

	_, err = s.FindDocumentByFileName(ctx, "missing.pdf")
	require.ErrorIs(t, err, place.ErrNotFound)

	needing, err := s.ListArchivesNeedingExtraction(ctx)
	require.NoError(t, err)
	require.Empty(t, needing)
}

func TestFindDocumentByFileNameAmbiguous(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	for _, externalID := range []string{"300002", "300003"} {
		listing, _, err := s.UpsertListing(ctx, testListing(externalID, 1))
		require.NoError(t, err)
		archive, err := s.UpsertArchive(ctx, place.Archive{ListingID: listing.ID, Status: place.ArchiveFetched})
		require.NoError(t, err)
		_, err = s.UpsertDocument(ctx, place.Document{
			ArchiveID: archive.ID,
			FileName:  "reglement.pdf",
			Status:    place.DocumentExtracted,
		})
		require.NoError(t, err)
	}

	_, err := s.FindDocumentByFileName(ctx, "reglement.pdf")
	require.ErrorIs(t, err, place.ErrNotFound)
}

func TestFindDocumentByContentHashAmbiguous(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	for i, externalID := range []string{"300004", "300005"} {
		listing, _, err := s.UpsertListing(ctx, testListing(externalID, 1))
		require.NoError(t, err)
		archive, err := s.UpsertArchive(ctx, place.Archive{ListingID: listing.ID, Status: place.ArchiveFetched})
		require.NoError(t, err)
		_, err = s.UpsertDocument(ctx, place.Document{
			ArchiveID:   archive.ID,
			FileName:    fmt.Sprintf("annexe-%d.pdf", i),
			Content:     "# Identical annex",
			ContentHash: "dup-digest",
			Status:      place.DocumentExtracted,
		})
		require.NoError(t, err)
	}

	// Two documents share the digest: resolving it must refuse to pick one.
	_, err := s.FindDocumentByContentHash(ctx, "dup-digest")
	require.ErrorIs(t, err, place.ErrNotFound)

	_, err = s.FindDocumentByContentHash(ctx, "absent-digest")
	require.ErrorIs(t, err, place.ErrNotFound)
}

func TestInsertLabelsBatch(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	listing, _, err := s.UpsertListing(ctx, testListing("400001", 1))
	require.NoError(t, err)
	archive, err := s.UpsertArchive(ctx, place.Archive{ListingID: listing.ID, Status: place.ArchiveFetched})
	require.NoError(t, err)
	doc, err := s.UpsertDocument(ctx, place.Document{ArchiveID: archive.ID, FileName: "a.txt", Status: place.DocumentExtracted})
	require.NoError(t, err)

	labels := []place.Label{
		{DocumentID: doc.ID, Kind: place.LabelContractValue, Value: "120000 EUR", Confidence: 0.9, RunID: "run-1"},
		{DocumentID: doc.ID, Kind: place.LabelDeadline, Value: "2026-04-01", Confidence: 0.8, RunID: "run-1"},
	}
	inserted, skipped, err := s.InsertLabels(ctx, labels)
	require.NoError(t, err)
	require.Equal(t, 2, inserted)
	require.Zero(t, skipped)

	// Same batch, same run id: everything collides, nothing duplicated.
	inserted, skipped, err = s.InsertLabels(ctx, labels)
	require.NoError(t, err)
	require.Zero(t, inserted)
	require.Equal(t, 2, skipped)

	// A later run appends rather than replaces.
	inserted, _, err = s.InsertLabels(ctx, []place.Label{
		{DocumentID: doc.ID, Kind: place.LabelContractValue, Value: "125000 EUR", Confidence: 0.95, RunID: "run-2"},
	})
	require.NoError(t, err)
	require.Equal(t, 1, inserted)

	all, err := s.ListLabelsByDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, all, 3)
}

func TestInsertLabelsMissingOwnerAborts(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	_, _, err := s.InsertLabels(context.Background(), []place.Label{
		{DocumentID: 12345, Kind: place.LabelDeadline, Value: "2026-04-01", RunID: "run-1"},
	})
	require.ErrorIs(t, err, place.ErrNotFound)
}

func TestListExtractedDocumentsPages(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	listing, _, err := s.UpsertListing(ctx, testListing("500001", 1))
	require.NoError(t, err)
	archive, err := s.UpsertArchive(ctx, place.Archive{ListingID: listing.ID, Status: place.ArchiveFetched})
	require.NoError(t, err)

	names := []string{"a.txt", "b.txt", "c.txt"}
	for _, name := range names {
		_, err = s.UpsertDocument(ctx, place.Document{ArchiveID: archive.ID, FileName: name, Status: place.DocumentExtracted})
		require.NoError(t, err)
	}
	_, err = s.UpsertDocument(ctx, place.Document{ArchiveID: archive.ID, FileName: "broken.bin", Status: place.DocumentFailed})
	require.NoError(t, err)

	first, err := s.ListExtractedDocuments(ctx, 2, 0)
	require.NoError(t, err)
	require.Len(t, first, 2)

	rest, err := s.ListExtractedDocuments(ctx, 10, first[1].ID)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	require.Equal(t, "c.txt", rest[0].FileName)
}

func TestRemoveListingCascades(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	listing, _, err := s.UpsertListing(ctx, testListing("600001", 1))
	require.NoError(t, err)
	archive, err := s.UpsertArchive(ctx, place.Archive{ListingID: listing.ID, Status: place.ArchiveFetched})
	require.NoError(t, err)
	doc, err := s.UpsertDocument(ctx, place.Document{ArchiveID: archive.ID, FileName: "a.txt", Status: place.DocumentExtracted})
	require.NoError(t, err)
	_, _, err = s.InsertLabels(ctx, []place.Label{
		{DocumentID: doc.ID, Kind: place.LabelDeadline, Value: "2026-04-01", RunID: "run-1"},
	})
	require.NoError(t, err)

	require.NoError(t, s.RemoveListing(ctx, listing.ID))

	_, err = s.GetListing(ctx, listing.ID)
	require.ErrorIs(t, err, place.ErrNotFound)
	archives, err := s.AllArchives(ctx)
	require.NoError(t, err)
	require.Empty(t, archives)
	docs, err := s.AllDocuments(ctx)
	require.NoError(t, err)
	require.Empty(t, docs)
	labels, err := s.AllLabels(ctx)
	require.NoError(t, err)
	require.Empty(t, labels)

	require.ErrorIs(t, s.RemoveListing(ctx, listing.ID), place.ErrNotFound)
}
