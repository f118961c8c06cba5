package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Frontier returns the highest page number fully processed by a prior
// discovery run, or 0 when no discovery pass has completed a page yet.
func (s *Store) Frontier(ctx context.Context) (int, error) {
	var page int
	err := s.db.QueryRowContext(ctx, `SELECT page FROM frontier WHERE id = 1`).Scan(&page)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read frontier: %w", err)
	}
	return page, nil
}

// AdvanceFrontier moves the discovery high-water mark to page. The frontier
// only moves forward: a call with a page at or below the current value is an
// idempotent no-op, so a resumed run can safely re-complete pages it already
// committed.
func (s *Store) AdvanceFrontier(ctx context.Context, page int, now time.Time) error {
	if page <= 0 {
		return fmt.Errorf("frontier page must be > 0, got %d", page)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO frontier (id, page, updated_at) VALUES (1, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			page = excluded.page,
			updated_at = excluded.updated_at
		WHERE excluded.page > frontier.page`,
		page, formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("advance frontier to %d: %w", page, err)
	}
	return nil
}
