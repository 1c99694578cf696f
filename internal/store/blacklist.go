package store

import (
	"context"
	"fmt"
	"time"
)

// BlacklistEntry suppresses re-grabs of a known-bad release by guid or
// normalized title.
type BlacklistEntry struct {
	ID              int64
	GUID            string
	NormalizedTitle string
	Reason          string
	CreatedAt       time.Time
}

// AddBlacklistEntry records a release as known bad.
func (s *Store) AddBlacklistEntry(ctx context.Context, guid, normalizedTitle, reason string) error {
	return s.exec(ctx, "add blacklist entry",
		`INSERT INTO blacklist (guid, normalized_title, reason) VALUES (?, ?, ?)`,
		guid, normalizedTitle, reason)
}

// ListBlacklist returns all blacklist entries.
func (s *Store) ListBlacklist(ctx context.Context) ([]BlacklistEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, guid, normalized_title, reason, created_at FROM blacklist`)
	if err != nil {
		return nil, fmt.Errorf("list blacklist: %w", err)
	}
	defer rows.Close()

	var out []BlacklistEntry
	for rows.Next() {
		var e BlacklistEntry
		var created string
		if err := rows.Scan(&e.ID, &e.GUID, &e.NormalizedTitle, &e.Reason, &created); err != nil {
			return nil, err
		}
		if t, err := time.Parse("2006-01-02 15:04:05", created); err == nil {
			e.CreatedAt = t
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// PruneBlacklist deletes entries older than the retention window and
// returns the number removed.
func (s *Store) PruneBlacklist(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM blacklist WHERE created_at < ?`,
		olderThan.UTC().Format("2006-01-02 15:04:05"))
	if err != nil {
		return 0, fmt.Errorf("prune blacklist: %w", err)
	}
	return res.RowsAffected()
}
