// Package importer moves completed downloads from client output directories
// into the organized library and records the resulting media files.
package importer

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/fetcharr/fetcharr/internal/release"
	"github.com/fetcharr/fetcharr/internal/store"
)

// Result summarizes one import attempt.
type Result struct {
	Success       bool
	FilesImported int
	Errors        []string
}

func (r *Result) addError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// Importer places downloaded files into library root folders.
type Importer struct {
	store      *store.Store
	logger     zerolog.Logger
	keepSource bool
}

// New creates an importer. With keepSource set, files are copied into the
// library instead of moved.
func New(st *store.Store, keepSource bool, logger zerolog.Logger) *Importer {
	return &Importer{
		store:      st,
		logger:     logger.With().Str("component", "importer").Logger(),
		keepSource: keepSource,
	}
}

// Import routes a completed download to the importer for its media kind.
// Exactly one library FK on the download decides the route.
func (im *Importer) Import(ctx context.Context, d *store.Download) (*Result, error) {
	if d.OutputPath == "" {
		return &Result{Errors: []string{"download has no output path"}}, nil
	}
	if err := probePath(d.OutputPath); err != nil {
		return &Result{Errors: []string{err.Error()}}, nil
	}

	switch {
	case d.MovieID != nil:
		return im.importMovie(ctx, d)
	case d.EpisodeID != nil:
		return im.importEpisode(ctx, d)
	case d.AlbumID != nil:
		return im.importAlbum(ctx, d)
	case d.BookID != nil:
		return im.importBook(ctx, d)
	default:
		return &Result{Errors: []string{"download is not linked to a library item"}}, nil
	}
}

func (im *Importer) importMovie(ctx context.Context, d *store.Download) (*Result, error) {
	res := &Result{}

	movie, err := im.store.GetMovie(ctx, *d.MovieID)
	if err != nil {
		return nil, fmt.Errorf("load movie: %w", err)
	}
	root, err := im.store.RootFolderForType(ctx, "movie")
	if err != nil {
		return nil, fmt.Errorf("movie root folder: %w", err)
	}

	files, err := findMediaFiles(d.OutputPath, videoExtensions, minVideoBytes)
	if err != nil {
		res.addError("scan output: %v", err)
		return res, nil
	}
	if len(files) == 0 {
		res.addError("no video files in %s", d.OutputPath)
		return res, nil
	}

	// Largest video file is the feature.
	src := files[0]
	dir := sanitizeName(fmt.Sprintf("%s (%d)", movie.Title, movie.Year))
	dst := filepath.Join(root.Path, dir, filepath.Base(src.path))

	if err := moveFile(src.path, dst, im.keepSource); err != nil {
		res.addError("move %s: %v", src.path, err)
		return res, nil
	}

	if _, err := im.store.AddMediaFile(ctx, &store.MediaFile{
		MediaType: "movie",
		MovieID:   d.MovieID,
		Path:      dst,
		SizeBytes: src.size,
	}); err != nil {
		return nil, fmt.Errorf("record media file: %w", err)
	}
	if err := im.store.SetMovieHasFile(ctx, movie.ID, true); err != nil {
		return nil, fmt.Errorf("flag movie: %w", err)
	}

	res.Success = true
	res.FilesImported = 1
	im.logger.Info().Str("movie", movie.Title).Str("path", dst).Msg("movie imported")
	return res, nil
}

func (im *Importer) importEpisode(ctx context.Context, d *store.Download) (*Result, error) {
	res := &Result{}

	ep, err := im.store.GetEpisode(ctx, *d.EpisodeID)
	if err != nil {
		return nil, fmt.Errorf("load episode: %w", err)
	}
	series, err := im.store.GetSeries(ctx, ep.SeriesID)
	if err != nil {
		return nil, fmt.Errorf("load series: %w", err)
	}
	root, err := im.store.RootFolderForType(ctx, "tv")
	if err != nil {
		return nil, fmt.Errorf("tv root folder: %w", err)
	}

	files, err := findMediaFiles(d.OutputPath, videoExtensions, minVideoBytes)
	if err != nil {
		res.addError("scan output: %v", err)
		return res, nil
	}
	if len(files) == 0 {
		res.addError("no video files in %s", d.OutputPath)
		return res, nil
	}

	src := files[0]
	dst := filepath.Join(root.Path, sanitizeName(series.Title),
		fmt.Sprintf("Season %02d", ep.Season), filepath.Base(src.path))

	if err := moveFile(src.path, dst, im.keepSource); err != nil {
		res.addError("move %s: %v", src.path, err)
		return res, nil
	}

	if _, err := im.store.AddMediaFile(ctx, &store.MediaFile{
		MediaType: "episode",
		EpisodeID: d.EpisodeID,
		Path:      dst,
		SizeBytes: src.size,
	}); err != nil {
		return nil, fmt.Errorf("record media file: %w", err)
	}
	if err := im.store.SetEpisodeHasFile(ctx, ep.ID, true); err != nil {
		return nil, fmt.Errorf("flag episode: %w", err)
	}

	res.Success = true
	res.FilesImported = 1
	im.logger.Info().
		Str("series", series.Title).
		Str("episode", release.EpisodeTag(ep.Season, ep.Episode)).
		Str("path", dst).
		Msg("episode imported")
	return res, nil
}

func (im *Importer) importAlbum(ctx context.Context, d *store.Download) (*Result, error) {
	res := &Result{}

	album, err := im.store.GetAlbum(ctx, *d.AlbumID)
	if err != nil {
		return nil, fmt.Errorf("load album: %w", err)
	}
	artist, err := im.store.GetArtist(ctx, album.ArtistID)
	if err != nil {
		return nil, fmt.Errorf("load artist: %w", err)
	}
	tracks, err := im.store.ListAlbumTracks(ctx, album.ID)
	if err != nil {
		return nil, fmt.Errorf("load tracks: %w", err)
	}
	root, err := im.store.RootFolderForType(ctx, "music")
	if err != nil {
		return nil, fmt.Errorf("music root folder: %w", err)
	}

	files, err := findMediaFiles(d.OutputPath, audioExtensions, 0)
	if err != nil {
		res.addError("scan output: %v", err)
		return res, nil
	}
	if len(files) == 0 {
		res.addError("no audio files in %s", d.OutputPath)
		return res, nil
	}

	destDir := filepath.Join(root.Path, sanitizeName(artist.Name), sanitizeName(album.Title))
	for _, f := range files {
		dst := filepath.Join(destDir, filepath.Base(f.path))
		if err := moveFile(f.path, dst, im.keepSource); err != nil {
			res.addError("move %s: %v", f.path, err)
			continue
		}

		file := &store.MediaFile{MediaType: "track", Path: dst, SizeBytes: f.size}
		if track := matchTrack(tracks, filepath.Base(f.path)); track != nil {
			file.TrackID = &track.ID
		}
		if _, err := im.store.AddMediaFile(ctx, file); err != nil {
			return nil, fmt.Errorf("record media file: %w", err)
		}
		if file.TrackID != nil {
			if err := im.store.SetTrackHasFile(ctx, *file.TrackID, true); err != nil {
				return nil, fmt.Errorf("flag track: %w", err)
			}
		}
		res.FilesImported++
	}

	if res.FilesImported == 0 {
		return res, nil
	}
	if err := im.store.RefreshAlbumHasFile(ctx, album.ID); err != nil {
		return nil, fmt.Errorf("refresh album: %w", err)
	}

	res.Success = true
	im.logger.Info().
		Str("artist", artist.Name).
		Str("album", album.Title).
		Int("files", res.FilesImported).
		Msg("album imported")
	return res, nil
}

func (im *Importer) importBook(ctx context.Context, d *store.Download) (*Result, error) {
	res := &Result{}

	book, err := im.store.GetBook(ctx, *d.BookID)
	if err != nil {
		return nil, fmt.Errorf("load book: %w", err)
	}
	author, err := im.store.GetAuthor(ctx, book.AuthorID)
	if err != nil {
		return nil, fmt.Errorf("load author: %w", err)
	}
	root, err := im.store.RootFolderForType(ctx, "book")
	if err != nil {
		return nil, fmt.Errorf("book root folder: %w", err)
	}

	files, err := findMediaFiles(d.OutputPath, bookExtensions, 0)
	if err != nil {
		res.addError("scan output: %v", err)
		return res, nil
	}
	if len(files) == 0 {
		res.addError("no book files in %s", d.OutputPath)
		return res, nil
	}

	src := files[0]
	dst := filepath.Join(root.Path, sanitizeName(author.Name), sanitizeName(book.Title), filepath.Base(src.path))

	if err := moveFile(src.path, dst, im.keepSource); err != nil {
		res.addError("move %s: %v", src.path, err)
		return res, nil
	}

	if _, err := im.store.AddMediaFile(ctx, &store.MediaFile{
		MediaType: "book",
		BookID:    d.BookID,
		Path:      dst,
		SizeBytes: src.size,
	}); err != nil {
		return nil, fmt.Errorf("record media file: %w", err)
	}
	if err := im.store.SetBookHasFile(ctx, book.ID, true); err != nil {
		return nil, fmt.Errorf("flag book: %w", err)
	}

	res.Success = true
	res.FilesImported = 1
	im.logger.Info().Str("author", author.Name).Str("book", book.Title).Str("path", dst).Msg("book imported")
	return res, nil
}
