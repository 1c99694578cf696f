package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a requested library entity does not exist.
var ErrNotFound = errors.New("entity not found")

// Movie is a library movie.
type Movie struct {
	ID        int64
	Title     string
	Year      int
	TmdbID    int
	Requested bool
	HasFile   bool
}

// Series is a library TV show.
type Series struct {
	ID     int64
	Title  string
	TvdbID int
}

// Episode is a library episode, child of a Series.
type Episode struct {
	ID        int64
	SeriesID  int64
	Season    int
	Episode   int
	Title     string
	Requested bool
	HasFile   bool
}

// Artist is a library music artist.
type Artist struct {
	ID            int64
	Name          string
	MusicBrainzID string
}

// Album is a library album, child of an Artist.
type Album struct {
	ID        int64
	ArtistID  int64
	Title     string
	Year      int
	Requested bool
	HasFile   bool
}

// Track is a single album track.
type Track struct {
	ID          int64
	AlbumID     int64
	TrackNumber int
	Title       string
	HasFile     bool
}

// Author is a library book author.
type Author struct {
	ID            int64
	Name          string
	OpenLibraryID string
}

// Book is a library book, child of an Author.
type Book struct {
	ID        int64
	AuthorID  int64
	Title     string
	Year      int
	Requested bool
	HasFile   bool
}

// MediaFile links an imported file on disk to a library entity.
type MediaFile struct {
	ID        int64
	MediaType string
	MovieID   *int64
	EpisodeID *int64
	TrackID   *int64
	BookID    *int64
	Path      string
	SizeBytes int64
}

// WantedMovie is a movie awaiting acquisition.
type WantedMovie struct {
	ID    int64
	Title string
	Year  int
}

// WantedEpisode is an episode awaiting acquisition, carrying its show title.
type WantedEpisode struct {
	EpisodeID int64
	SeriesID  int64
	ShowTitle string
	Season    int
	Episode   int
}

// WantedAlbum is an album awaiting acquisition, carrying its artist name.
type WantedAlbum struct {
	AlbumID  int64
	ArtistID int64
	Artist   string
	Title    string
	Year     int
}

// WantedBook is a book awaiting acquisition, carrying its author name.
type WantedBook struct {
	BookID   int64
	AuthorID int64
	Author   string
	Title    string
	Year     int
}

// The active-download exclusion shared by all wanted queries: items that
// already have a non-terminal download are not wanted again.
const noActiveDownload = `NOT EXISTS (
	SELECT 1 FROM downloads d
	WHERE d.status NOT IN ('completed', 'failed') AND d.%s = %s.id
)`

// WantedMovies returns requested movies without a file and without an
// active download.
func (s *Store) WantedMovies(ctx context.Context) ([]WantedMovie, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT m.id, m.title, m.year FROM movies m
		WHERE m.requested = 1 AND m.has_file = 0 AND `+noActiveDownload+`
		ORDER BY m.id`, "movie_id", "m"))
	if err != nil {
		return nil, fmt.Errorf("wanted movies: %w", err)
	}
	defer rows.Close()

	var out []WantedMovie
	for rows.Next() {
		var w WantedMovie
		if err := rows.Scan(&w.ID, &w.Title, &w.Year); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// WantedEpisodes returns requested file-less episodes joined with their show
// title, bounded to cap per-release match cost.
func (s *Store) WantedEpisodes(ctx context.Context, limit int) ([]WantedEpisode, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT e.id, e.series_id, s.title, e.season, e.episode
		FROM episodes e JOIN series s ON s.id = e.series_id
		WHERE e.requested = 1 AND e.has_file = 0 AND `+noActiveDownload+`
		ORDER BY e.id LIMIT ?`, "episode_id", "e"), limit)
	if err != nil {
		return nil, fmt.Errorf("wanted episodes: %w", err)
	}
	defer rows.Close()

	var out []WantedEpisode
	for rows.Next() {
		var w WantedEpisode
		if err := rows.Scan(&w.EpisodeID, &w.SeriesID, &w.ShowTitle, &w.Season, &w.Episode); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// WantedAlbums returns requested albums with missing track files, joined
// with their artist name.
func (s *Store) WantedAlbums(ctx context.Context) ([]WantedAlbum, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT a.id, a.artist_id, ar.name, a.title, a.year
		FROM albums a JOIN artists ar ON ar.id = a.artist_id
		WHERE a.requested = 1
		  AND (a.has_file = 0 OR EXISTS (
			SELECT 1 FROM tracks t WHERE t.album_id = a.id AND t.has_file = 0))
		  AND `+noActiveDownload+`
		ORDER BY a.id`, "album_id", "a"))
	if err != nil {
		return nil, fmt.Errorf("wanted albums: %w", err)
	}
	defer rows.Close()

	var out []WantedAlbum
	for rows.Next() {
		var w WantedAlbum
		if err := rows.Scan(&w.AlbumID, &w.ArtistID, &w.Artist, &w.Title, &w.Year); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// WantedBooks returns requested books without a file, joined with their
// author name.
func (s *Store) WantedBooks(ctx context.Context) ([]WantedBook, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT b.id, b.author_id, au.name, b.title, b.year
		FROM books b JOIN authors au ON au.id = b.author_id
		WHERE b.requested = 1 AND b.has_file = 0 AND `+noActiveDownload+`
		ORDER BY b.id`, "book_id", "b"))
	if err != nil {
		return nil, fmt.Errorf("wanted books: %w", err)
	}
	defer rows.Close()

	var out []WantedBook
	for rows.Next() {
		var w WantedBook
		if err := rows.Scan(&w.BookID, &w.AuthorID, &w.Author, &w.Title, &w.Year); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// CreateMovie inserts a movie and returns its ID.
func (s *Store) CreateMovie(ctx context.Context, m *Movie) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO movies (title, year, tmdb_id, requested, has_file) VALUES (?, ?, ?, ?, ?)`,
		m.Title, m.Year, m.TmdbID, m.Requested, m.HasFile)
	if err != nil {
		return 0, fmt.Errorf("create movie: %w", err)
	}
	return res.LastInsertId()
}

// CreateSeries inserts a series and returns its ID.
func (s *Store) CreateSeries(ctx context.Context, sr *Series) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO series (title, tvdb_id) VALUES (?, ?)`, sr.Title, sr.TvdbID)
	if err != nil {
		return 0, fmt.Errorf("create series: %w", err)
	}
	return res.LastInsertId()
}

// CreateEpisode inserts an episode and returns its ID.
func (s *Store) CreateEpisode(ctx context.Context, e *Episode) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO episodes (series_id, season, episode, title, requested, has_file)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.SeriesID, e.Season, e.Episode, e.Title, e.Requested, e.HasFile)
	if err != nil {
		return 0, fmt.Errorf("create episode: %w", err)
	}
	return res.LastInsertId()
}

// CreateArtist inserts an artist and returns its ID.
func (s *Store) CreateArtist(ctx context.Context, a *Artist) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO artists (name, musicbrainz_id) VALUES (?, ?)`, a.Name, a.MusicBrainzID)
	if err != nil {
		return 0, fmt.Errorf("create artist: %w", err)
	}
	return res.LastInsertId()
}

// CreateAlbum inserts an album and returns its ID.
func (s *Store) CreateAlbum(ctx context.Context, a *Album) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO albums (artist_id, title, year, requested, has_file) VALUES (?, ?, ?, ?, ?)`,
		a.ArtistID, a.Title, a.Year, a.Requested, a.HasFile)
	if err != nil {
		return 0, fmt.Errorf("create album: %w", err)
	}
	return res.LastInsertId()
}

// CreateTrack inserts a track and returns its ID.
func (s *Store) CreateTrack(ctx context.Context, t *Track) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO tracks (album_id, track_number, title, has_file) VALUES (?, ?, ?, ?)`,
		t.AlbumID, t.TrackNumber, t.Title, t.HasFile)
	if err != nil {
		return 0, fmt.Errorf("create track: %w", err)
	}
	return res.LastInsertId()
}

// CreateAuthor inserts an author and returns its ID.
func (s *Store) CreateAuthor(ctx context.Context, a *Author) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO authors (name, openlibrary_id) VALUES (?, ?)`, a.Name, a.OpenLibraryID)
	if err != nil {
		return 0, fmt.Errorf("create author: %w", err)
	}
	return res.LastInsertId()
}

// CreateBook inserts a book and returns its ID.
func (s *Store) CreateBook(ctx context.Context, b *Book) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO books (author_id, title, year, requested, has_file) VALUES (?, ?, ?, ?, ?)`,
		b.AuthorID, b.Title, b.Year, b.Requested, b.HasFile)
	if err != nil {
		return 0, fmt.Errorf("create book: %w", err)
	}
	return res.LastInsertId()
}

// GetMovie fetches a movie by ID.
func (s *Store) GetMovie(ctx context.Context, id int64) (*Movie, error) {
	var m Movie
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, year, tmdb_id, requested, has_file FROM movies WHERE id = ?`, id).
		Scan(&m.ID, &m.Title, &m.Year, &m.TmdbID, &m.Requested, &m.HasFile)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get movie: %w", err)
	}
	return &m, nil
}

// GetSeries fetches a series by ID.
func (s *Store) GetSeries(ctx context.Context, id int64) (*Series, error) {
	var sr Series
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, tvdb_id FROM series WHERE id = ?`, id).
		Scan(&sr.ID, &sr.Title, &sr.TvdbID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get series: %w", err)
	}
	return &sr, nil
}

// GetEpisode fetches an episode by ID.
func (s *Store) GetEpisode(ctx context.Context, id int64) (*Episode, error) {
	var e Episode
	err := s.db.QueryRowContext(ctx,
		`SELECT id, series_id, season, episode, title, requested, has_file FROM episodes WHERE id = ?`, id).
		Scan(&e.ID, &e.SeriesID, &e.Season, &e.Episode, &e.Title, &e.Requested, &e.HasFile)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get episode: %w", err)
	}
	return &e, nil
}

// GetAlbum fetches an album by ID.
func (s *Store) GetAlbum(ctx context.Context, id int64) (*Album, error) {
	var a Album
	err := s.db.QueryRowContext(ctx,
		`SELECT id, artist_id, title, year, requested, has_file FROM albums WHERE id = ?`, id).
		Scan(&a.ID, &a.ArtistID, &a.Title, &a.Year, &a.Requested, &a.HasFile)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get album: %w", err)
	}
	return &a, nil
}

// GetArtist fetches an artist by ID.
func (s *Store) GetArtist(ctx context.Context, id int64) (*Artist, error) {
	var a Artist
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, musicbrainz_id FROM artists WHERE id = ?`, id).
		Scan(&a.ID, &a.Name, &a.MusicBrainzID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get artist: %w", err)
	}
	return &a, nil
}

// GetBook fetches a book by ID.
func (s *Store) GetBook(ctx context.Context, id int64) (*Book, error) {
	var b Book
	err := s.db.QueryRowContext(ctx,
		`SELECT id, author_id, title, year, requested, has_file FROM books WHERE id = ?`, id).
		Scan(&b.ID, &b.AuthorID, &b.Title, &b.Year, &b.Requested, &b.HasFile)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get book: %w", err)
	}
	return &b, nil
}

// GetAuthor fetches an author by ID.
func (s *Store) GetAuthor(ctx context.Context, id int64) (*Author, error) {
	var a Author
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, openlibrary_id FROM authors WHERE id = ?`, id).
		Scan(&a.ID, &a.Name, &a.OpenLibraryID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get author: %w", err)
	}
	return &a, nil
}

// ListAlbumTracks returns an album's tracks ordered by track number.
func (s *Store) ListAlbumTracks(ctx context.Context, albumID int64) ([]Track, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, album_id, track_number, title, has_file FROM tracks
		 WHERE album_id = ? ORDER BY track_number`, albumID)
	if err != nil {
		return nil, fmt.Errorf("list tracks: %w", err)
	}
	defer rows.Close()

	var out []Track
	for rows.Next() {
		var t Track
		if err := rows.Scan(&t.ID, &t.AlbumID, &t.TrackNumber, &t.Title, &t.HasFile); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// AddMediaFile records an imported file and returns its ID.
func (s *Store) AddMediaFile(ctx context.Context, f *MediaFile) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO media_files (media_type, movie_id, episode_id, track_id, book_id, path, size_bytes)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		f.MediaType, idArg(f.MovieID), idArg(f.EpisodeID), idArg(f.TrackID), idArg(f.BookID), f.Path, f.SizeBytes)
	if err != nil {
		return 0, fmt.Errorf("add media file: %w", err)
	}
	return res.LastInsertId()
}

// SetMovieHasFile flips a movie's file flag.
func (s *Store) SetMovieHasFile(ctx context.Context, id int64, hasFile bool) error {
	return s.exec(ctx, "set movie has_file",
		`UPDATE movies SET has_file = ?, updated_at = datetime('now') WHERE id = ?`, hasFile, id)
}

// SetEpisodeHasFile flips an episode's file flag.
func (s *Store) SetEpisodeHasFile(ctx context.Context, id int64, hasFile bool) error {
	return s.exec(ctx, "set episode has_file",
		`UPDATE episodes SET has_file = ?, updated_at = datetime('now') WHERE id = ?`, hasFile, id)
}

// SetTrackHasFile flips a track's file flag.
func (s *Store) SetTrackHasFile(ctx context.Context, id int64, hasFile bool) error {
	return s.exec(ctx, "set track has_file",
		`UPDATE tracks SET has_file = ? WHERE id = ?`, hasFile, id)
}

// SetBookHasFile flips a book's file flag.
func (s *Store) SetBookHasFile(ctx context.Context, id int64, hasFile bool) error {
	return s.exec(ctx, "set book has_file",
		`UPDATE books SET has_file = ?, updated_at = datetime('now') WHERE id = ?`, hasFile, id)
}

// RefreshAlbumHasFile recomputes an album's completeness from its track
// file counts. Album has_file is a cached derivation, not a direct flag.
func (s *Store) RefreshAlbumHasFile(ctx context.Context, albumID int64) error {
	return s.exec(ctx, "refresh album has_file", `
		UPDATE albums SET has_file = NOT EXISTS (
			SELECT 1 FROM tracks t WHERE t.album_id = albums.id AND t.has_file = 0
		) AND EXISTS (
			SELECT 1 FROM tracks t WHERE t.album_id = albums.id
		), updated_at = datetime('now')
		WHERE id = ?`, albumID)
}
