// Package store is the persistence port: typed queries and mutations over
// the library, download, indexer, client, blacklist, and task tables.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Store provides access to all persisted entities.
type Store struct {
	db *sql.DB
}

// New creates a new store over an open database connection.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying connection, for maintenance tasks (backup).
func (s *Store) DB() *sql.DB {
	return s.db
}

const timeLayout = time.RFC3339

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullTimeArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func scanNullTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(timeLayout, s.String)
	if err != nil {
		return nil
	}
	return &t
}

func scanNullID(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func idArg(id *int64) any {
	if id == nil {
		return nil
	}
	return *id
}

// exec wraps ExecContext with a uniform error message.
func (s *Store) exec(ctx context.Context, op, query string, args ...any) error {
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
