package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/openplace/placecrawl/internal/place"
)

const archiveColumns = `id, listing_id, kind, path, checksum, size_bytes, status, fetched_at`

func scanArchive(row interface{ Scan(...any) error }) (place.Archive, error) {
	var a place.Archive
	var fetchedAt string
	err := row.Scan(&a.ID, &a.ListingID, &a.Kind, &a.Path, &a.Checksum, &a.SizeBytes, &a.Status, &fetchedAt)
	if err != nil {
		return place.Archive{}, err
	}
	a.FetchedAt = parseTime(fetchedAt)
	return a, nil
}

// UpsertArchive records the fetch result for one listing's bundle. The row is
// keyed on (listing, kind): a re-fetch overwrites status, path, and checksum
// but never creates a second identity. The owning listing must exist.
func (s *Store) UpsertArchive(ctx context.Context, a place.Archive) (place.Archive, error) {
	if a.Kind == "" {
		a.Kind = place.KindDCE
	}
	if a.Status == "" {
		a.Status = place.ArchivePending
	}
	if _, err := s.GetListing(ctx, a.ListingID); err != nil {
		return place.Archive{}, err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO archives (listing_id, kind, path, checksum, size_bytes, status, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (listing_id, kind) DO UPDATE SET
			path = excluded.path,
			checksum = excluded.checksum,
			size_bytes = excluded.size_bytes,
			status = excluded.status,
			fetched_at = excluded.fetched_at`,
		a.ListingID, a.Kind, a.Path, a.Checksum, a.SizeBytes, a.Status, formatTime(a.FetchedAt),
	)
	if err != nil {
		return place.Archive{}, fmt.Errorf("upsert archive for listing %d kind %s: %w", a.ListingID, a.Kind, err)
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+archiveColumns+` FROM archives WHERE listing_id = ? AND kind = ?`, a.ListingID, a.Kind)
	stored, err := scanArchive(row)
	if err != nil {
		return place.Archive{}, fmt.Errorf("read back archive for listing %d: %w", a.ListingID, err)
	}
	return stored, nil
}

// GetArchive returns the archive with the given primary key.
func (s *Store) GetArchive(ctx context.Context, id int64) (place.Archive, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+archiveColumns+` FROM archives WHERE id = ?`, id)
	a, err := scanArchive(row)
	if err == sql.ErrNoRows {
		return place.Archive{}, fmt.Errorf("archive %d: %w", id, place.ErrNotFound)
	}
	if err != nil {
		return place.Archive{}, fmt.Errorf("get archive %d: %w", id, err)
	}
	return a, nil
}

// MarkArchiveStatus transitions an archive's download status.
func (s *Store) MarkArchiveStatus(ctx context.Context, id int64, status place.ArchiveStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE archives SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("mark archive %d %s: %w", id, status, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark archive %d rows affected: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("archive %d: %w", id, place.ErrNotFound)
	}
	return nil
}

// ListArchivesByStatus returns archives in any of the given statuses ordered
// by id.
func (s *Store) ListArchivesByStatus(ctx context.Context, statuses ...place.ArchiveStatus) ([]place.Archive, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(statuses)), ",")
	args := make([]any, len(statuses))
	for i, st := range statuses {
		args[i] = st
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+archiveColumns+` FROM archives WHERE status IN (`+placeholders+`) ORDER BY id ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("list archives by status: %w", err)
	}
	defer rows.Close()
	return collectArchives(rows)
}

// ListArchivesByListing returns the archives owned by one listing ordered by
// id.
func (s *Store) ListArchivesByListing(ctx context.Context, listingID int64) ([]place.Archive, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+archiveColumns+` FROM archives WHERE listing_id = ? ORDER BY id ASC`, listingID)
	if err != nil {
		return nil, fmt.Errorf("list archives for listing %d: %w", listingID, err)
	}
	defer rows.Close()
	return collectArchives(rows)
}

// AllArchives returns every archive ordered by primary key, for export.
func (s *Store) AllArchives(ctx context.Context) ([]place.Archive, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+archiveColumns+` FROM archives ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list archives: %w", err)
	}
	defer rows.Close()
	return collectArchives(rows)
}

func collectArchives(rows *sql.Rows) ([]place.Archive, error) {
	var out []place.Archive
	for rows.Next() {
		a, err := scanArchive(rows)
		if err != nil {
			return nil, fmt.Errorf("scan archive: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ListFetchWork returns the listings the archive fetcher should process:
// those still in status discovered, plus those whose archive landed in
// failed or retrying. Already-fetched listings are excluded, which keeps
// re-running the fetcher idempotent.
func (s *Store) ListFetchWork(ctx context.Context) ([]place.Listing, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+qualify(listingColumns, "l")+` FROM listings l
		WHERE l.status = ?
		   OR l.id IN (SELECT listing_id FROM archives WHERE status IN (?, ?))
		ORDER BY l.id ASC`,
		place.ListingDiscovered, place.ArchiveFailed, place.ArchiveRetrying,
	)
	if err != nil {
		return nil, fmt.Errorf("list fetch work: %w", err)
	}
	defer rows.Close()
	return collectListings(rows)
}

// ListArchivesNeedingExtraction returns fetched archives that do not yet own
// any extracted document.
func (s *Store) ListArchivesNeedingExtraction(ctx context.Context) ([]place.Archive, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+qualify(archiveColumns, "a")+` FROM archives a
		WHERE a.status = ?
		  AND NOT EXISTS (
			SELECT 1 FROM documents d
			WHERE d.archive_id = a.id AND d.status = ?
		  )
		ORDER BY a.id ASC`,
		place.ArchiveFetched, place.DocumentExtracted,
	)
	if err != nil {
		return nil, fmt.Errorf("list archives needing extraction: %w", err)
	}
	defer rows.Close()
	return collectArchives(rows)
}

func qualify(columns, alias string) string {
	parts := strings.Split(columns, ", ")
	for i, p := range parts {
		parts[i] = alias + "." + p
	}
	return strings.Join(parts, ", ")
}
