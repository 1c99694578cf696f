package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// RootFolder is a filesystem directory holding one media kind.
type RootFolder struct {
	ID        int64
	Path      string
	MediaType string
}

// ErrRootFolderNotFound is returned when no root folder exists for a media type.
var ErrRootFolderNotFound = errors.New("root folder not found")

// RootFolderForType returns the first root folder configured for a media type.
func (s *Store) RootFolderForType(ctx context.Context, mediaType string) (*RootFolder, error) {
	var rf RootFolder
	err := s.db.QueryRowContext(ctx,
		`SELECT id, path, media_type FROM root_folders WHERE media_type = ? ORDER BY id LIMIT 1`,
		mediaType).Scan(&rf.ID, &rf.Path, &rf.MediaType)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRootFolderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("root folder for type: %w", err)
	}
	return &rf, nil
}

// CreateRootFolder inserts a root folder row and returns its ID.
func (s *Store) CreateRootFolder(ctx context.Context, path, mediaType string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO root_folders (path, media_type) VALUES (?, ?)`, path, mediaType)
	if err != nil {
		return 0, fmt.Errorf("create root folder: %w", err)
	}
	return res.LastInsertId()
}

// ListRootFolders returns all configured root folders.
func (s *Store) ListRootFolders(ctx context.Context) ([]RootFolder, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, path, media_type FROM root_folders ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list root folders: %w", err)
	}
	defer rows.Close()

	var out []RootFolder
	for rows.Next() {
		var rf RootFolder
		if err := rows.Scan(&rf.ID, &rf.Path, &rf.MediaType); err != nil {
			return nil, err
		}
		out = append(out, rf)
	}
	return out, rows.Err()
}
