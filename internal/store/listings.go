package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/openplace/placecrawl/internal/place"
)

const timeLayout = time.RFC3339

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

const listingColumns = `id, external_id, page, url, reference, title, description, organization, org_acronym, status, discovered_at`

func scanListing(row interface{ Scan(...any) error }) (place.Listing, error) {
	var l place.Listing
	var discoveredAt string
	err := row.Scan(
		&l.ID, &l.ExternalID, &l.Page, &l.URL, &l.Reference, &l.Title,
		&l.Description, &l.Organization, &l.OrgAcronym, &l.Status, &discoveredAt,
	)
	if err != nil {
		return place.Listing{}, err
	}
	l.DiscoveredAt = parseTime(discoveredAt)
	return l, nil
}

// UpsertListing records a newly discovered listing, or refreshes the mutable
// metadata of an already-known one. Re-reporting the same external id on the
// same page is an idempotent re-write; the same external id on a different
// page is a place.ErrConflict. Returns the stored row and whether it was
// newly created.
func (s *Store) UpsertListing(ctx context.Context, l place.Listing) (place.Listing, bool, error) {
	if l.ExternalID == "" {
		return place.Listing{}, false, fmt.Errorf("listing external id is required")
	}
	if l.Status == "" {
		l.Status = place.ListingDiscovered
	}

	existing, err := s.GetListingByExternalID(ctx, l.ExternalID)
	switch {
	case err == nil:
		if existing.Page != l.Page {
			return place.Listing{}, false, fmt.Errorf(
				"listing %s already on page %d, reported on page %d: %w",
				l.ExternalID, existing.Page, l.Page, place.ErrConflict,
			)
		}
		_, err = s.db.ExecContext(ctx, `
			UPDATE listings
			SET url = ?, reference = ?, title = ?, description = ?, organization = ?, org_acronym = ?
			WHERE external_id = ?`,
			l.URL, l.Reference, l.Title, l.Description, l.Organization, l.OrgAcronym, l.ExternalID,
		)
		if err != nil {
			return place.Listing{}, false, fmt.Errorf("refresh listing %s: %w", l.ExternalID, err)
		}
		updated, err := s.GetListingByExternalID(ctx, l.ExternalID)
		if err != nil {
			return place.Listing{}, false, err
		}
		return updated, false, nil

	case errors.Is(err, place.ErrNotFound):
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO listings (external_id, page, url, reference, title, description, organization, org_acronym, status, discovered_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			l.ExternalID, l.Page, l.URL, l.Reference, l.Title, l.Description,
			l.Organization, l.OrgAcronym, l.Status, formatTime(l.DiscoveredAt),
		)
		if err != nil {
			return place.Listing{}, false, fmt.Errorf("insert listing %s: %w", l.ExternalID, err)
		}
		l.ID, err = res.LastInsertId()
		if err != nil {
			return place.Listing{}, false, fmt.Errorf("listing insert id: %w", err)
		}
		return l, true, nil

	default:
		return place.Listing{}, false, err
	}
}

// GetListing returns the listing with the given primary key.
func (s *Store) GetListing(ctx context.Context, id int64) (place.Listing, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+listingColumns+` FROM listings WHERE id = ?`, id)
	l, err := scanListing(row)
	if err == sql.ErrNoRows {
		return place.Listing{}, fmt.Errorf("listing %d: %w", id, place.ErrNotFound)
	}
	if err != nil {
		return place.Listing{}, fmt.Errorf("get listing %d: %w", id, err)
	}
	return l, nil
}

// GetListingByExternalID returns the listing carrying the given external id.
func (s *Store) GetListingByExternalID(ctx context.Context, externalID string) (place.Listing, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+listingColumns+` FROM listings WHERE external_id = ?`, externalID)
	l, err := scanListing(row)
	if err == sql.ErrNoRows {
		return place.Listing{}, fmt.Errorf("listing %s: %w", externalID, place.ErrNotFound)
	}
	if err != nil {
		return place.Listing{}, fmt.Errorf("get listing %s: %w", externalID, err)
	}
	return l, nil
}

// KnownExternalIDs filters ids down to the set already present in the store.
// Discovery uses it to deduplicate a page before upserting.
func (s *Store) KnownExternalIDs(ctx context.Context, ids []string) (map[string]bool, error) {
	known := make(map[string]bool, len(ids))
	for _, id := range ids {
		var count int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM listings WHERE external_id = ?`, id).Scan(&count); err != nil {
			return nil, fmt.Errorf("check listing %s: %w", id, err)
		}
		if count > 0 {
			known[id] = true
		}
	}
	return known, nil
}

// ListListingsByStatus returns listings in the given status ordered by id.
func (s *Store) ListListingsByStatus(ctx context.Context, status place.ListingStatus) ([]place.Listing, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE status = ? ORDER BY id ASC`, status)
	if err != nil {
		return nil, fmt.Errorf("list listings by status %s: %w", status, err)
	}
	defer rows.Close()
	return collectListings(rows)
}

// AllListings returns every listing ordered by primary key, for export.
func (s *Store) AllListings(ctx context.Context) ([]place.Listing, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+listingColumns+` FROM listings ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list listings: %w", err)
	}
	defer rows.Close()
	return collectListings(rows)
}

func collectListings(rows *sql.Rows) ([]place.Listing, error) {
	var out []place.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("scan listing: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// MarkListingStatus transitions a listing's lifecycle status.
func (s *Store) MarkListingStatus(ctx context.Context, id int64, status place.ListingStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE listings SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("mark listing %d %s: %w", id, status, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark listing %d rows affected: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("listing %d: %w", id, place.ErrNotFound)
	}
	return nil
}

// RemoveListing deletes a listing together with its archives, documents, and
// labels. Operator tooling only; the pipeline itself never deletes.
func (s *Store) RemoveListing(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin remove listing %d: %w", id, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM labels WHERE document_id IN (
			SELECT d.id FROM documents d
			JOIN archives a ON a.id = d.archive_id
			WHERE a.listing_id = ?
		)`, id); err != nil {
		return fmt.Errorf("remove labels for listing %d: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM documents WHERE archive_id IN (
			SELECT id FROM archives WHERE listing_id = ?
		)`, id); err != nil {
		return fmt.Errorf("remove documents for listing %d: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM archives WHERE listing_id = ?`, id); err != nil {
		return fmt.Errorf("remove archives for listing %d: %w", id, err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM listings WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("remove listing %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("remove listing %d rows affected: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("listing %d: %w", id, place.ErrNotFound)
	}
	return tx.Commit()
}
