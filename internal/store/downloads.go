package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// DownloadStatus is the lifecycle state of a Download row.
type DownloadStatus string

const (
	StatusQueued      DownloadStatus = "queued"
	StatusDownloading DownloadStatus = "downloading"
	StatusPaused      DownloadStatus = "paused"
	StatusCompleted   DownloadStatus = "completed"
	StatusImporting   DownloadStatus = "importing"
	StatusFailed      DownloadStatus = "failed"
)

// Terminal reports whether no further automatic transitions may occur.
func (s DownloadStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ErrDownloadNotFound is returned when a download row does not exist.
var ErrDownloadNotFound = errors.New("download not found")

// Download is the lifecycle record for a grabbed release. Exactly one of
// MovieID, EpisodeID, AlbumID, BookID is set; episode downloads also carry
// SeriesID.
type Download struct {
	ID           int64
	ExternalID   string
	ClientID     int64
	IndexerID    *int64
	IndexerName  string
	Title        string
	SizeBytes    int64
	DownloadURL  string
	GUID         string
	OutputPath   string
	Status       DownloadStatus
	Progress     float64
	MovieID      *int64
	SeriesID     *int64
	EpisodeID    *int64
	AlbumID      *int64
	BookID       *int64
	StartedAt    *time.Time
	CompletedAt  *time.Time
	ErrorMessage string
}

const downloadColumns = `id, external_id, client_id, indexer_id, indexer_name, title,
	size_bytes, download_url, guid, output_path, status, progress,
	movie_id, series_id, episode_id, album_id, book_id,
	started_at, completed_at, error_message`

func scanDownload(row interface{ Scan(...any) error }) (*Download, error) {
	var d Download
	var indexerID, movieID, seriesID, episodeID, albumID, bookID sql.NullInt64
	var startedAt, completedAt sql.NullString
	err := row.Scan(
		&d.ID, &d.ExternalID, &d.ClientID, &indexerID, &d.IndexerName, &d.Title,
		&d.SizeBytes, &d.DownloadURL, &d.GUID, &d.OutputPath, &d.Status, &d.Progress,
		&movieID, &seriesID, &episodeID, &albumID, &bookID,
		&startedAt, &completedAt, &d.ErrorMessage,
	)
	if err != nil {
		return nil, err
	}
	d.IndexerID = scanNullID(indexerID)
	d.MovieID = scanNullID(movieID)
	d.SeriesID = scanNullID(seriesID)
	d.EpisodeID = scanNullID(episodeID)
	d.AlbumID = scanNullID(albumID)
	d.BookID = scanNullID(bookID)
	d.StartedAt = scanNullTime(startedAt)
	d.CompletedAt = scanNullTime(completedAt)
	return &d, nil
}

// CreateDownload inserts a new download row and returns it with its ID set.
func (s *Store) CreateDownload(ctx context.Context, d *Download) (*Download, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO downloads (external_id, client_id, indexer_id, indexer_name, title,
			size_bytes, download_url, guid, output_path, status, progress,
			movie_id, series_id, episode_id, album_id, book_id,
			started_at, completed_at, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ExternalID, d.ClientID, idArg(d.IndexerID), d.IndexerName, d.Title,
		d.SizeBytes, d.DownloadURL, d.GUID, d.OutputPath, d.Status, d.Progress,
		idArg(d.MovieID), idArg(d.SeriesID), idArg(d.EpisodeID), idArg(d.AlbumID), idArg(d.BookID),
		nullTimeArg(d.StartedAt), nullTimeArg(d.CompletedAt), d.ErrorMessage,
	)
	if err != nil {
		return nil, fmt.Errorf("create download: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("create download id: %w", err)
	}
	d.ID = id
	return d, nil
}

// GetDownload fetches a download by ID.
func (s *Store) GetDownload(ctx context.Context, id int64) (*Download, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+downloadColumns+` FROM downloads WHERE id = ?`, id)
	d, err := scanDownload(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDownloadNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get download: %w", err)
	}
	return d, nil
}

// GetDownloadByExternalID fetches a download by its client-assigned ID.
func (s *Store) GetDownloadByExternalID(ctx context.Context, clientID int64, externalID string) (*Download, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+downloadColumns+` FROM downloads WHERE client_id = ? AND external_id = ?
		 ORDER BY id DESC LIMIT 1`, clientID, externalID)
	d, err := scanDownload(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDownloadNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get download by external id: %w", err)
	}
	return d, nil
}

// ListActiveDownloads returns all downloads in a non-terminal status.
func (s *Store) ListActiveDownloads(ctx context.Context) ([]*Download, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+downloadColumns+` FROM downloads
		 WHERE status NOT IN ('completed', 'failed') ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list active downloads: %w", err)
	}
	defer rows.Close()

	var out []*Download
	for rows.Next() {
		d, err := scanDownload(rows)
		if err != nil {
			return nil, fmt.Errorf("list active downloads scan: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ListRecentDownloads returns the most recent downloads in any status.
func (s *Store) ListRecentDownloads(ctx context.Context, limit int) ([]*Download, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+downloadColumns+` FROM downloads ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent downloads: %w", err)
	}
	defer rows.Close()

	var out []*Download
	for rows.Next() {
		d, err := scanDownload(rows)
		if err != nil {
			return nil, fmt.Errorf("list recent downloads scan: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ActiveDownloadForItem reports whether a non-terminal download already
// exists for the given library item FK tuple. At most one active download
// per item is allowed; this check runs before every insert.
func (s *Store) ActiveDownloadForItem(ctx context.Context, movieID, episodeID, albumID, bookID *int64) (bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM downloads
		WHERE status NOT IN ('completed', 'failed')
		  AND ((movie_id IS NOT NULL AND movie_id = ?)
		    OR (episode_id IS NOT NULL AND episode_id = ?)
		    OR (album_id IS NOT NULL AND album_id = ?)
		    OR (book_id IS NOT NULL AND book_id = ?))`,
		idArg(movieID), idArg(episodeID), idArg(albumID), idArg(bookID))
	var n int
	if err := row.Scan(&n); err != nil {
		return false, fmt.Errorf("active download check: %w", err)
	}
	return n > 0, nil
}

// UpdateDownloadProgress updates the observed client state of a download.
func (s *Store) UpdateDownloadProgress(ctx context.Context, id int64, status DownloadStatus, progress float64, outputPath string) error {
	return s.exec(ctx, "update download progress", `
		UPDATE downloads
		SET status = ?, progress = ?,
		    output_path = CASE WHEN ? != '' THEN ? ELSE output_path END,
		    updated_at = datetime('now')
		WHERE id = ?`,
		status, progress, outputPath, outputPath, id)
}

// MarkDownloadImporting transitions a download to importing, recording its
// output path and completion time.
func (s *Store) MarkDownloadImporting(ctx context.Context, id int64, outputPath string, completedAt time.Time) error {
	return s.exec(ctx, "mark download importing", `
		UPDATE downloads
		SET status = 'importing', progress = 100,
		    output_path = CASE WHEN ? != '' THEN ? ELSE output_path END,
		    completed_at = COALESCE(completed_at, ?),
		    updated_at = datetime('now')
		WHERE id = ?`,
		outputPath, outputPath, formatTime(completedAt), id)
}

// MarkDownloadCompleted transitions a download to its terminal success state.
func (s *Store) MarkDownloadCompleted(ctx context.Context, id int64) error {
	return s.exec(ctx, "mark download completed", `
		UPDATE downloads
		SET status = 'completed', progress = 100, error_message = '',
		    completed_at = COALESCE(completed_at, datetime('now')),
		    updated_at = datetime('now')
		WHERE id = ?`, id)
}

// MarkDownloadFailed transitions a download to its terminal failure state.
func (s *Store) MarkDownloadFailed(ctx context.Context, id int64, reason string) error {
	return s.exec(ctx, "mark download failed", `
		UPDATE downloads
		SET status = 'failed', error_message = ?, updated_at = datetime('now')
		WHERE id = ?`, reason, id)
}

// MarkDownloadStarted records the first observed transfer activity.
func (s *Store) MarkDownloadStarted(ctx context.Context, id int64, at time.Time) error {
	return s.exec(ctx, "mark download started", `
		UPDATE downloads
		SET started_at = COALESCE(started_at, ?), updated_at = datetime('now')
		WHERE id = ?`, formatTime(at), id)
}
