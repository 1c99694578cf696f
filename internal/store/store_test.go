package store_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fetcharr/fetcharr/internal/database"
	"github.com/fetcharr/fetcharr/internal/store"
)

func newStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate())
	return store.New(db.Conn())
}

func seedClient(t *testing.T, st *store.Store) int64 {
	t.Helper()
	id, err := st.CreateClient(context.Background(), &store.DownloadClientConfig{
		Name: "sab", Type: "sabnzbd", Host: "localhost", Port: 8080, Enabled: true,
	})
	require.NoError(t, err)
	return id
}

func TestDownloadLifecycle(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	clientID := seedClient(t, st)
	movieID, err := st.CreateMovie(ctx, &store.Movie{Title: "The Matrix", Year: 1999, Requested: true})
	require.NoError(t, err)

	d, err := st.CreateDownload(ctx, &store.Download{
		ExternalID: "nzo_1", ClientID: clientID, Title: "The.Matrix.1999.1080p",
		Status: store.StatusQueued, MovieID: &movieID, GUID: "g1",
	})
	require.NoError(t, err)
	require.NotZero(t, d.ID)

	got, err := st.GetDownloadByExternalID(ctx, clientID, "nzo_1")
	require.NoError(t, err)
	assert.Equal(t, d.ID, got.ID)
	assert.Equal(t, store.StatusQueued, got.Status)
	assert.Nil(t, got.StartedAt)

	started := time.Date(2025, 8, 10, 12, 0, 0, 0, time.UTC)
	require.NoError(t, st.MarkDownloadStarted(ctx, d.ID, started))
	require.NoError(t, st.UpdateDownloadProgress(ctx, d.ID, store.StatusDownloading, 55, ""))

	got, err = st.GetDownload(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusDownloading, got.Status)
	assert.Equal(t, 55.0, got.Progress)
	require.NotNil(t, got.StartedAt)
	assert.True(t, got.StartedAt.Equal(started))

	completed := started.Add(10 * time.Minute)
	require.NoError(t, st.MarkDownloadImporting(ctx, d.ID, "/downloads/matrix", completed))
	got, err = st.GetDownload(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusImporting, got.Status)
	assert.Equal(t, "/downloads/matrix", got.OutputPath)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, got.CompletedAt.Equal(completed))

	require.NoError(t, st.MarkDownloadCompleted(ctx, d.ID))
	got, err = st.GetDownload(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, got.Status)
	assert.True(t, got.Status.Terminal())
}

func TestActiveDownloadForItem(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	clientID := seedClient(t, st)
	movieID, err := st.CreateMovie(ctx, &store.Movie{Title: "Heat", Year: 1995, Requested: true})
	require.NoError(t, err)

	active, err := st.ActiveDownloadForItem(ctx, &movieID, nil, nil, nil)
	require.NoError(t, err)
	assert.False(t, active)

	d, err := st.CreateDownload(ctx, &store.Download{
		ExternalID: "x", ClientID: clientID, Title: "Heat.1995",
		Status: store.StatusQueued, MovieID: &movieID,
	})
	require.NoError(t, err)

	active, err = st.ActiveDownloadForItem(ctx, &movieID, nil, nil, nil)
	require.NoError(t, err)
	assert.True(t, active)

	// Terminal downloads release the item.
	require.NoError(t, st.MarkDownloadFailed(ctx, d.ID, "boom"))
	active, err = st.ActiveDownloadForItem(ctx, &movieID, nil, nil, nil)
	require.NoError(t, err)
	assert.False(t, active)
}

func TestWantedMovies_ExcludesFiledAndDownloading(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	clientID := seedClient(t, st)

	wantedID, err := st.CreateMovie(ctx, &store.Movie{Title: "Wanted", Requested: true})
	require.NoError(t, err)
	_, err = st.CreateMovie(ctx, &store.Movie{Title: "Not Requested"})
	require.NoError(t, err)
	filedID, err := st.CreateMovie(ctx, &store.Movie{Title: "Has File", Requested: true, HasFile: true})
	require.NoError(t, err)
	downloadingID, err := st.CreateMovie(ctx, &store.Movie{Title: "Downloading", Requested: true})
	require.NoError(t, err)
	_, err = st.CreateDownload(ctx, &store.Download{
		ExternalID: "x", ClientID: clientID, Title: "Downloading.2024",
		Status: store.StatusDownloading, MovieID: &downloadingID,
	})
	require.NoError(t, err)

	movies, err := st.WantedMovies(ctx)
	require.NoError(t, err)
	require.Len(t, movies, 1)
	assert.Equal(t, wantedID, movies[0].ID)
	_ = filedID
}

func TestWantedEpisodes_JoinsShowTitleAndHonorsLimit(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)

	seriesID, err := st.CreateSeries(ctx, &store.Series{Title: "Breaking Bad"})
	require.NoError(t, err)
	for i := 1; i <= 5; i++ {
		_, err = st.CreateEpisode(ctx, &store.Episode{SeriesID: seriesID, Season: 1, Episode: i, Requested: true})
		require.NoError(t, err)
	}

	episodes, err := st.WantedEpisodes(ctx, 3)
	require.NoError(t, err)
	require.Len(t, episodes, 3)
	assert.Equal(t, "Breaking Bad", episodes[0].ShowTitle)
	assert.Equal(t, seriesID, episodes[0].SeriesID)
}

func TestWantedAlbums_IncludesPartiallyFiled(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)

	artistID, err := st.CreateArtist(ctx, &store.Artist{Name: "Daft Punk"})
	require.NoError(t, err)
	albumID, err := st.CreateAlbum(ctx, &store.Album{ArtistID: artistID, Title: "Discovery", Requested: true})
	require.NoError(t, err)
	t1, err := st.CreateTrack(ctx, &store.Track{AlbumID: albumID, TrackNumber: 1, Title: "One More Time"})
	require.NoError(t, err)
	_, err = st.CreateTrack(ctx, &store.Track{AlbumID: albumID, TrackNumber: 2, Title: "Aerodynamic"})
	require.NoError(t, err)

	albums, err := st.WantedAlbums(ctx)
	require.NoError(t, err)
	require.Len(t, albums, 1)
	assert.Equal(t, "Daft Punk", albums[0].Artist)

	// One track filed: still wanted.
	require.NoError(t, st.SetTrackHasFile(ctx, t1, true))
	require.NoError(t, st.RefreshAlbumHasFile(ctx, albumID))
	albums, err = st.WantedAlbums(ctx)
	require.NoError(t, err)
	assert.Len(t, albums, 1)

	album, err := st.GetAlbum(ctx, albumID)
	require.NoError(t, err)
	assert.False(t, album.HasFile)
}

func TestRefreshAlbumHasFile_AllTracksFiled(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)

	artistID, err := st.CreateArtist(ctx, &store.Artist{Name: "Daft Punk"})
	require.NoError(t, err)
	albumID, err := st.CreateAlbum(ctx, &store.Album{ArtistID: artistID, Title: "Discovery", Requested: true})
	require.NoError(t, err)
	for i := 1; i <= 2; i++ {
		id, err := st.CreateTrack(ctx, &store.Track{AlbumID: albumID, TrackNumber: i})
		require.NoError(t, err)
		require.NoError(t, st.SetTrackHasFile(ctx, id, true))
	}
	require.NoError(t, st.RefreshAlbumHasFile(ctx, albumID))

	album, err := st.GetAlbum(ctx, albumID)
	require.NoError(t, err)
	assert.True(t, album.HasFile)

	albums, err := st.WantedAlbums(ctx)
	require.NoError(t, err)
	assert.Empty(t, albums)
}

func TestUpsertTask_KeepsUserEdits(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)

	require.NoError(t, st.UpsertTask(ctx, "rss-sync", 15, true))
	require.NoError(t, st.UpdateTaskSchedule(ctx, "rss-sync", 30, false))

	// A later upsert with defaults must not clobber the edit.
	require.NoError(t, st.UpsertTask(ctx, "rss-sync", 15, true))

	task, err := st.GetTask(ctx, "rss-sync")
	require.NoError(t, err)
	assert.Equal(t, 30, task.IntervalMinutes)
	assert.False(t, task.Enabled)
}

func TestMarkTaskFinished(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	require.NoError(t, st.UpsertTask(ctx, "backup", 1440, true))

	next := time.Date(2025, 8, 11, 3, 0, 0, 0, time.UTC)
	require.NoError(t, st.MarkTaskStarted(ctx, "backup", next.Add(-time.Minute)))
	require.NoError(t, st.MarkTaskFinished(ctx, "backup", 1234, next))

	task, err := st.GetTask(ctx, "backup")
	require.NoError(t, err)
	assert.Equal(t, int64(1234), task.LastDurationMs)
	require.NotNil(t, task.NextRunAt)
	assert.True(t, task.NextRunAt.Equal(next))
	require.NotNil(t, task.LastRunAt)
}

func TestMapRemotePath(t *testing.T) {
	cfg := &store.DownloadClientConfig{RemotePath: "/remote/downloads", LocalPath: "/mnt/downloads"}

	assert.Equal(t, "/mnt/downloads/complete/x", cfg.MapRemotePath("/remote/downloads/complete/x"))
	assert.Equal(t, "/other/path", cfg.MapRemotePath("/other/path"))
	assert.Equal(t, "", cfg.MapRemotePath(""))

	unmapped := &store.DownloadClientConfig{}
	assert.Equal(t, "/as/is", unmapped.MapRemotePath("/as/is"))
}
