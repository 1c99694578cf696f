package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// DownloadClientConfig is an external grabber configuration row.
type DownloadClientConfig struct {
	ID              int64
	Name            string
	Type            string
	Host            string
	Port            int
	APIKey          string
	UseSSL          bool
	Category        string
	Enabled         bool
	Priority        int
	RemoveCompleted bool
	RemoveFailed    bool
	RemotePath      string
	LocalPath       string
}

// ErrClientNotFound is returned when a download client row does not exist.
var ErrClientNotFound = errors.New("download client not found")

// MapRemotePath translates a client-reported path into the local mount via
// prefix substitution. Paths outside the mapping pass through unchanged.
func (c *DownloadClientConfig) MapRemotePath(p string) string {
	if c.RemotePath == "" || c.LocalPath == "" || p == "" {
		return p
	}
	if strings.HasPrefix(p, c.RemotePath) {
		return c.LocalPath + p[len(c.RemotePath):]
	}
	return p
}

const clientColumns = `id, name, type, host, port, api_key, use_ssl, category,
	enabled, priority, remove_completed, remove_failed, remote_path, local_path`

func scanClient(row interface{ Scan(...any) error }) (*DownloadClientConfig, error) {
	var c DownloadClientConfig
	err := row.Scan(&c.ID, &c.Name, &c.Type, &c.Host, &c.Port, &c.APIKey, &c.UseSSL,
		&c.Category, &c.Enabled, &c.Priority, &c.RemoveCompleted, &c.RemoveFailed,
		&c.RemotePath, &c.LocalPath)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListEnabledClients returns enabled download clients by priority.
func (s *Store) ListEnabledClients(ctx context.Context) ([]*DownloadClientConfig, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+clientColumns+` FROM download_clients WHERE enabled = 1 ORDER BY priority, id`)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	defer rows.Close()

	var out []*DownloadClientConfig
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("list clients scan: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetClient fetches a download client by ID.
func (s *Store) GetClient(ctx context.Context, id int64) (*DownloadClientConfig, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+clientColumns+` FROM download_clients WHERE id = ?`, id)
	c, err := scanClient(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrClientNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get client: %w", err)
	}
	return c, nil
}

// CreateClient inserts a download client row and returns its ID.
func (s *Store) CreateClient(ctx context.Context, c *DownloadClientConfig) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO download_clients (name, type, host, port, api_key, use_ssl, category,
			enabled, priority, remove_completed, remove_failed, remote_path, local_path)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.Name, c.Type, c.Host, c.Port, c.APIKey, c.UseSSL, c.Category,
		c.Enabled, c.Priority, c.RemoveCompleted, c.RemoveFailed, c.RemotePath, c.LocalPath)
	if err != nil {
		return 0, fmt.Errorf("create client: %w", err)
	}
	return res.LastInsertId()
}
