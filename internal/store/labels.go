package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/openplace/placecrawl/internal/place"
)

const labelColumns = `id, document_id, kind, value, span, confidence, run_id, created_at`

// InsertLabels appends a batch of labels inside one transaction. A row that
// collides on (document, kind, run) is skipped rather than duplicated, which
// makes re-ingesting the same batch with the same run id idempotent. Returns
// the number of rows inserted and the number skipped as duplicates.
func (s *Store) InsertLabels(ctx context.Context, labels []place.Label) (int, int, error) {
	if len(labels) == 0 {
		return 0, 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("begin label batch: %w", err)
	}
	defer tx.Rollback()

	inserted, skipped := 0, 0
	for _, l := range labels {
		var owner int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents WHERE id = ?`, l.DocumentID).Scan(&owner); err != nil {
			return 0, 0, fmt.Errorf("check label owner %d: %w", l.DocumentID, err)
		}
		if owner == 0 {
			return 0, 0, fmt.Errorf("label owner document %d: %w", l.DocumentID, place.ErrNotFound)
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO labels (document_id, kind, value, span, confidence, run_id, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (document_id, kind, run_id) DO NOTHING`,
			l.DocumentID, l.Kind, l.Value, l.Span, l.Confidence, l.RunID, formatTime(l.CreatedAt),
		)
		if err != nil {
			return 0, 0, fmt.Errorf("insert label %s for document %d: %w", l.Kind, l.DocumentID, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return 0, 0, fmt.Errorf("label rows affected: %w", err)
		}
		if affected == 0 {
			skipped++
		} else {
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("commit label batch: %w", err)
	}
	return inserted, skipped, nil
}

// ListLabelsByDocument returns the labels attached to one document ordered by
// id.
func (s *Store) ListLabelsByDocument(ctx context.Context, documentID int64) ([]place.Label, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+labelColumns+` FROM labels WHERE document_id = ? ORDER BY id ASC`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list labels for document %d: %w", documentID, err)
	}
	defer rows.Close()
	return collectLabels(rows)
}

// AllLabels returns every label ordered by primary key, for export.
func (s *Store) AllLabels(ctx context.Context) ([]place.Label, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+labelColumns+` FROM labels ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list labels: %w", err)
	}
	defer rows.Close()
	return collectLabels(rows)
}

func collectLabels(rows *sql.Rows) ([]place.Label, error) {
	var out []place.Label
	for rows.Next() {
		var l place.Label
		var createdAt string
		if err := rows.Scan(&l.ID, &l.DocumentID, &l.Kind, &l.Value, &l.Span, &l.Confidence, &l.RunID, &createdAt); err != nil {
			return nil, fmt.Errorf("scan label: %w", err)
		}
		l.CreatedAt = parseTime(createdAt)
		out = append(out, l)
	}
	return out, rows.Err()
}
