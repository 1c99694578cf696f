package importer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fetcharr/fetcharr/internal/store"
	"github.com/fetcharr/fetcharr/internal/testdb"
)

func writeFile(t *testing.T, path string, size int64) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, f.Truncate(size))
	require.NoError(t, f.Close())
}

func TestImportMovie(t *testing.T) {
	ctx := context.Background()
	st := testdb.New(t)

	libRoot := filepath.Join(t.TempDir(), "movies")
	_, err := st.CreateRootFolder(ctx, libRoot, "movie")
	require.NoError(t, err)

	movieID, err := st.CreateMovie(ctx, &store.Movie{Title: "The Matrix", Year: 1999, Requested: true})
	require.NoError(t, err)

	outDir := filepath.Join(t.TempDir(), "The.Matrix.1999.1080p")
	writeFile(t, filepath.Join(outDir, "the.matrix.1999.1080p.mkv"), 60<<20)
	writeFile(t, filepath.Join(outDir, "sample.mkv"), 60<<20)
	writeFile(t, filepath.Join(outDir, "info.nfo"), 100)

	im := New(st, false, zerolog.Nop())
	res, err := im.Import(ctx, &store.Download{MovieID: &movieID, OutputPath: outDir})
	require.NoError(t, err)
	require.True(t, res.Success, "errors: %v", res.Errors)
	assert.Equal(t, 1, res.FilesImported)

	dst := filepath.Join(libRoot, "The Matrix (1999)", "the.matrix.1999.1080p.mkv")
	_, err = os.Stat(dst)
	assert.NoError(t, err, "file should be at organized path")
	_, err = os.Stat(filepath.Join(outDir, "the.matrix.1999.1080p.mkv"))
	assert.True(t, os.IsNotExist(err), "source should be moved away")

	movie, err := st.GetMovie(ctx, movieID)
	require.NoError(t, err)
	assert.True(t, movie.HasFile)
}

func TestImportMovie_NoVideoFiles(t *testing.T) {
	ctx := context.Background()
	st := testdb.New(t)

	_, err := st.CreateRootFolder(ctx, t.TempDir(), "movie")
	require.NoError(t, err)
	movieID, err := st.CreateMovie(ctx, &store.Movie{Title: "Empty", Year: 2024})
	require.NoError(t, err)

	outDir := t.TempDir()
	writeFile(t, filepath.Join(outDir, "readme.txt"), 100)

	im := New(st, false, zerolog.Nop())
	res, err := im.Import(ctx, &store.Download{MovieID: &movieID, OutputPath: outDir})
	require.NoError(t, err)
	assert.False(t, res.Success)
	require.NotEmpty(t, res.Errors)
}

func TestImport_MissingOutputPath(t *testing.T) {
	st := testdb.New(t)
	im := New(st, false, zerolog.Nop())

	id := int64(1)
	res, err := im.Import(context.Background(), &store.Download{
		MovieID:    &id,
		OutputPath: filepath.Join(t.TempDir(), "does-not-exist"),
	})
	require.NoError(t, err)
	assert.False(t, res.Success)
	require.NotEmpty(t, res.Errors)
}

func TestImportEpisode(t *testing.T) {
	ctx := context.Background()
	st := testdb.New(t)

	libRoot := filepath.Join(t.TempDir(), "tv")
	_, err := st.CreateRootFolder(ctx, libRoot, "tv")
	require.NoError(t, err)

	seriesID, err := st.CreateSeries(ctx, &store.Series{Title: "Breaking Bad"})
	require.NoError(t, err)
	epID, err := st.CreateEpisode(ctx, &store.Episode{SeriesID: seriesID, Season: 5, Episode: 7, Requested: true})
	require.NoError(t, err)

	outDir := t.TempDir()
	writeFile(t, filepath.Join(outDir, "breaking.bad.s05e07.720p.mkv"), 60<<20)

	im := New(st, false, zerolog.Nop())
	res, err := im.Import(ctx, &store.Download{EpisodeID: &epID, SeriesID: &seriesID, OutputPath: outDir})
	require.NoError(t, err)
	require.True(t, res.Success, "errors: %v", res.Errors)

	dst := filepath.Join(libRoot, "Breaking Bad", "Season 05", "breaking.bad.s05e07.720p.mkv")
	_, err = os.Stat(dst)
	assert.NoError(t, err)

	ep, err := st.GetEpisode(ctx, epID)
	require.NoError(t, err)
	assert.True(t, ep.HasFile)
}

func TestImportAlbum_LinksTracksAndDerivesCompleteness(t *testing.T) {
	ctx := context.Background()
	st := testdb.New(t)

	libRoot := filepath.Join(t.TempDir(), "music")
	_, err := st.CreateRootFolder(ctx, libRoot, "music")
	require.NoError(t, err)

	artistID, err := st.CreateArtist(ctx, &store.Artist{Name: "Daft Punk"})
	require.NoError(t, err)
	albumID, err := st.CreateAlbum(ctx, &store.Album{ArtistID: artistID, Title: "Discovery", Year: 2001, Requested: true})
	require.NoError(t, err)
	_, err = st.CreateTrack(ctx, &store.Track{AlbumID: albumID, TrackNumber: 1, Title: "One More Time"})
	require.NoError(t, err)
	_, err = st.CreateTrack(ctx, &store.Track{AlbumID: albumID, TrackNumber: 2, Title: "Aerodynamic"})
	require.NoError(t, err)

	outDir := t.TempDir()
	writeFile(t, filepath.Join(outDir, "01 - One More Time.flac"), 1<<20)
	writeFile(t, filepath.Join(outDir, "02 - Aerodynamic.flac"), 1<<20)

	im := New(st, false, zerolog.Nop())
	res, err := im.Import(ctx, &store.Download{AlbumID: &albumID, OutputPath: outDir})
	require.NoError(t, err)
	require.True(t, res.Success, "errors: %v", res.Errors)
	assert.Equal(t, 2, res.FilesImported)

	tracks, err := st.ListAlbumTracks(ctx, albumID)
	require.NoError(t, err)
	for _, tr := range tracks {
		assert.True(t, tr.HasFile, "track %d should be linked", tr.TrackNumber)
	}

	album, err := st.GetAlbum(ctx, albumID)
	require.NoError(t, err)
	assert.True(t, album.HasFile, "album completeness derives from tracks")
}

func TestImportAlbum_PartialLeavesAlbumIncomplete(t *testing.T) {
	ctx := context.Background()
	st := testdb.New(t)

	_, err := st.CreateRootFolder(ctx, filepath.Join(t.TempDir(), "music"), "music")
	require.NoError(t, err)

	artistID, err := st.CreateArtist(ctx, &store.Artist{Name: "Daft Punk"})
	require.NoError(t, err)
	albumID, err := st.CreateAlbum(ctx, &store.Album{ArtistID: artistID, Title: "Discovery"})
	require.NoError(t, err)
	_, err = st.CreateTrack(ctx, &store.Track{AlbumID: albumID, TrackNumber: 1, Title: "One More Time"})
	require.NoError(t, err)
	_, err = st.CreateTrack(ctx, &store.Track{AlbumID: albumID, TrackNumber: 2, Title: "Aerodynamic"})
	require.NoError(t, err)

	outDir := t.TempDir()
	writeFile(t, filepath.Join(outDir, "01 - One More Time.flac"), 1<<20)

	im := New(st, false, zerolog.Nop())
	res, err := im.Import(ctx, &store.Download{AlbumID: &albumID, OutputPath: outDir})
	require.NoError(t, err)
	require.True(t, res.Success)

	album, err := st.GetAlbum(ctx, albumID)
	require.NoError(t, err)
	assert.False(t, album.HasFile, "album with missing tracks stays incomplete")
}

func TestImportBook(t *testing.T) {
	ctx := context.Background()
	st := testdb.New(t)

	libRoot := filepath.Join(t.TempDir(), "books")
	_, err := st.CreateRootFolder(ctx, libRoot, "book")
	require.NoError(t, err)

	authorID, err := st.CreateAuthor(ctx, &store.Author{Name: "Frank Herbert"})
	require.NoError(t, err)
	bookID, err := st.CreateBook(ctx, &store.Book{AuthorID: authorID, Title: "Dune", Year: 1965, Requested: true})
	require.NoError(t, err)

	outDir := t.TempDir()
	writeFile(t, filepath.Join(outDir, "Dune - Frank Herbert.epub"), 2<<20)

	im := New(st, false, zerolog.Nop())
	res, err := im.Import(ctx, &store.Download{BookID: &bookID, OutputPath: outDir})
	require.NoError(t, err)
	require.True(t, res.Success, "errors: %v", res.Errors)

	dst := filepath.Join(libRoot, "Frank Herbert", "Dune", "Dune - Frank Herbert.epub")
	_, err = os.Stat(dst)
	assert.NoError(t, err)

	book, err := st.GetBook(ctx, bookID)
	require.NoError(t, err)
	assert.True(t, book.HasFile)
}

func TestImport_KeepSourceCopies(t *testing.T) {
	ctx := context.Background()
	st := testdb.New(t)

	libRoot := filepath.Join(t.TempDir(), "movies")
	_, err := st.CreateRootFolder(ctx, libRoot, "movie")
	require.NoError(t, err)
	movieID, err := st.CreateMovie(ctx, &store.Movie{Title: "Heat", Year: 1995})
	require.NoError(t, err)

	outDir := t.TempDir()
	src := filepath.Join(outDir, "heat.1995.mkv")
	writeFile(t, src, 60<<20)

	im := New(st, true, zerolog.Nop())
	res, err := im.Import(ctx, &store.Download{MovieID: &movieID, OutputPath: outDir})
	require.NoError(t, err)
	require.True(t, res.Success, "errors: %v", res.Errors)

	_, err = os.Stat(src)
	assert.NoError(t, err, "source remains when keepSource is set")
}

func TestMatchTrack(t *testing.T) {
	tracks := []store.Track{
		{ID: 1, TrackNumber: 1, Title: "One More Time"},
		{ID: 2, TrackNumber: 2, Title: "Aerodynamic"},
	}

	byNumber := matchTrack(tracks, "02 - Something Else.flac")
	require.NotNil(t, byNumber)
	assert.Equal(t, int64(2), byNumber.ID)

	byTitle := matchTrack(tracks, "Daft Punk - One More Time.mp3")
	require.NotNil(t, byTitle)
	assert.Equal(t, int64(1), byTitle.ID)

	assert.Nil(t, matchTrack(tracks, "unknown.mp3"))
}
