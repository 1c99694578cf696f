package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Indexer is a Newznab-compatible endpoint configuration.
type Indexer struct {
	ID          int64
	Name        string
	BaseURL     string
	APIKey      string
	Categories  []int
	Enabled     bool
	SupportsRSS bool
	Priority    int
}

// ErrIndexerNotFound is returned when an indexer row does not exist.
var ErrIndexerNotFound = errors.New("indexer not found")

func scanIndexer(row interface{ Scan(...any) error }) (*Indexer, error) {
	var ix Indexer
	var cats string
	if err := row.Scan(&ix.ID, &ix.Name, &ix.BaseURL, &ix.APIKey, &cats,
		&ix.Enabled, &ix.SupportsRSS, &ix.Priority); err != nil {
		return nil, err
	}
	ix.Categories = parseCategories(cats)
	return &ix, nil
}

// parseCategories decodes the comma-separated category column.
func parseCategories(s string) []int {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		if n, err := strconv.Atoi(strings.TrimSpace(p)); err == nil {
			out = append(out, n)
		}
	}
	return out
}

func encodeCategories(cats []int) string {
	parts := make([]string, len(cats))
	for i, c := range cats {
		parts[i] = strconv.Itoa(c)
	}
	return strings.Join(parts, ",")
}

const indexerColumns = `id, name, base_url, api_key, categories, enabled, supports_rss, priority`

// ListRSSIndexers returns enabled indexers with RSS support, by priority.
func (s *Store) ListRSSIndexers(ctx context.Context) ([]*Indexer, error) {
	return s.listIndexers(ctx,
		`SELECT `+indexerColumns+` FROM indexers
		 WHERE enabled = 1 AND supports_rss = 1 ORDER BY priority, id`)
}

// ListEnabledIndexers returns all enabled indexers, by priority.
func (s *Store) ListEnabledIndexers(ctx context.Context) ([]*Indexer, error) {
	return s.listIndexers(ctx,
		`SELECT `+indexerColumns+` FROM indexers WHERE enabled = 1 ORDER BY priority, id`)
}

func (s *Store) listIndexers(ctx context.Context, query string) ([]*Indexer, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list indexers: %w", err)
	}
	defer rows.Close()

	var out []*Indexer
	for rows.Next() {
		ix, err := scanIndexer(rows)
		if err != nil {
			return nil, fmt.Errorf("list indexers scan: %w", err)
		}
		out = append(out, ix)
	}
	return out, rows.Err()
}

// GetIndexer fetches an indexer by ID.
func (s *Store) GetIndexer(ctx context.Context, id int64) (*Indexer, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+indexerColumns+` FROM indexers WHERE id = ?`, id)
	ix, err := scanIndexer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrIndexerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get indexer: %w", err)
	}
	return ix, nil
}

// CreateIndexer inserts an indexer row and returns its ID.
func (s *Store) CreateIndexer(ctx context.Context, ix *Indexer) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO indexers (name, base_url, api_key, categories, enabled, supports_rss, priority)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ix.Name, ix.BaseURL, ix.APIKey, encodeCategories(ix.Categories),
		ix.Enabled, ix.SupportsRSS, ix.Priority)
	if err != nil {
		return 0, fmt.Errorf("create indexer: %w", err)
	}
	return res.LastInsertId()
}
