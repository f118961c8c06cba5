package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/openplace/placecrawl/internal/place"
)

const documentColumns = `id, archive_id, file_name, content, content_hash, status, extracted_at, reason`

func scanDocument(row interface{ Scan(...any) error }) (place.Document, error) {
	var d place.Document
	var content sql.NullString
	var extractedAt string
	err := row.Scan(&d.ID, &d.ArchiveID, &d.FileName, &content, &d.ContentHash, &d.Status, &extractedAt, &d.Reason)
	if err != nil {
		return place.Document{}, err
	}
	d.Content = content.String
	d.ExtractedAt = parseTime(extractedAt)
	return d, nil
}

// UpsertDocument records the extraction result for one file inside an
// archive. Keyed on (archive, file name): re-extraction overwrites content
// and status, never identity. The owning archive must exist.
func (s *Store) UpsertDocument(ctx context.Context, d place.Document) (place.Document, error) {
	if d.FileName == "" {
		return place.Document{}, fmt.Errorf("document file name is required")
	}
	if d.Status == "" {
		d.Status = place.DocumentPending
	}
	if _, err := s.GetArchive(ctx, d.ArchiveID); err != nil {
		return place.Document{}, err
	}

	var content any
	if d.Content != "" {
		content = d.Content
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (archive_id, file_name, content, content_hash, status, extracted_at, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (archive_id, file_name) DO UPDATE SET
			content = excluded.content,
			content_hash = excluded.content_hash,
			status = excluded.status,
			extracted_at = excluded.extracted_at,
			reason = excluded.reason`,
		d.ArchiveID, d.FileName, content, d.ContentHash, d.Status, formatTime(d.ExtractedAt), d.Reason,
	)
	if err != nil {
		return place.Document{}, fmt.Errorf("upsert document %s in archive %d: %w", d.FileName, d.ArchiveID, err)
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE archive_id = ? AND file_name = ?`, d.ArchiveID, d.FileName)
	stored, err := scanDocument(row)
	if err != nil {
		return place.Document{}, fmt.Errorf("read back document %s: %w", d.FileName, err)
	}
	return stored, nil
}

// GetDocument returns the document with the given primary key.
func (s *Store) GetDocument(ctx context.Context, id int64) (place.Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	d, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return place.Document{}, fmt.Errorf("document %d: %w", id, place.ErrNotFound)
	}
	if err != nil {
		return place.Document{}, fmt.Errorf("get document %d: %w", id, err)
	}
	return d, nil
}

// FindDocumentByFileName returns the single document carrying the given file
// name. Ambiguous names (present in more than one archive) are reported as
// not found so the caller surfaces them instead of guessing.
func (s *Store) FindDocumentByFileName(ctx context.Context, fileName string) (place.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE file_name = ? ORDER BY id ASC LIMIT 2`, fileName)
	if err != nil {
		return place.Document{}, fmt.Errorf("find document by file name %s: %w", fileName, err)
	}
	defer rows.Close()

	docs, err := collectDocuments(rows)
	if err != nil {
		return place.Document{}, err
	}
	if len(docs) != 1 {
		return place.Document{}, fmt.Errorf("document named %s (matches: %d): %w", fileName, len(docs), place.ErrNotFound)
	}
	return docs[0], nil
}

// FindDocumentByContentHash returns the single document whose extracted
// content hashes to the given digest. Duplicate content (the same digest on
// more than one document) is reported as not found so the caller surfaces it
// instead of labeling an arbitrary copy.
func (s *Store) FindDocumentByContentHash(ctx context.Context, hash string) (place.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE content_hash = ? ORDER BY id ASC LIMIT 2`, hash)
	if err != nil {
		return place.Document{}, fmt.Errorf("find document by hash %s: %w", hash, err)
	}
	defer rows.Close()

	docs, err := collectDocuments(rows)
	if err != nil {
		return place.Document{}, err
	}
	if len(docs) != 1 {
		return place.Document{}, fmt.Errorf("document with hash %s (matches: %d): %w", hash, len(docs), place.ErrNotFound)
	}
	return docs[0], nil
}

// ListDocumentsByArchive returns the documents extracted from one archive
// ordered by id.
func (s *Store) ListDocumentsByArchive(ctx context.Context, archiveID int64) ([]place.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE archive_id = ? ORDER BY id ASC`, archiveID)
	if err != nil {
		return nil, fmt.Errorf("list documents for archive %d: %w", archiveID, err)
	}
	defer rows.Close()
	return collectDocuments(rows)
}

// ListExtractedDocuments returns up to limit extracted documents ordered by
// primary key, starting after afterID. Bulk export pages through the table
// with it.
func (s *Store) ListExtractedDocuments(ctx context.Context, limit int, afterID int64) ([]place.Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+documentColumns+` FROM documents
		WHERE status = ? AND id > ?
		ORDER BY id ASC LIMIT ?`,
		place.DocumentExtracted, afterID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list extracted documents: %w", err)
	}
	defer rows.Close()
	return collectDocuments(rows)
}

// AllDocuments returns every document ordered by primary key, for export.
func (s *Store) AllDocuments(ctx context.Context) ([]place.Document, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+documentColumns+` FROM documents ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()
	return collectDocuments(rows)
}

func collectDocuments(rows *sql.Rows) ([]place.Document, error) {
	var out []place.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
