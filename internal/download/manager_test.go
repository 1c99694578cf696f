package download

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fetcharr/fetcharr/internal/blacklist"
	"github.com/fetcharr/fetcharr/internal/downloader/mock"
	"github.com/fetcharr/fetcharr/internal/downloader/types"
	"github.com/fetcharr/fetcharr/internal/gateway"
	"github.com/fetcharr/fetcharr/internal/importer"
	"github.com/fetcharr/fetcharr/internal/indexer/newznab"
	"github.com/fetcharr/fetcharr/internal/store"
	"github.com/fetcharr/fetcharr/internal/testdb"
)

type fixture struct {
	store    *store.Store
	manager  *Manager
	client   *mock.Client
	clientID int64
	movieID  int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	st := testdb.New(t)

	clientID, err := st.CreateClient(ctx, &store.DownloadClientConfig{
		Name: "mock", Type: "mock", Host: "localhost", Port: 1,
		Enabled: true, RemoveFailed: true,
	})
	require.NoError(t, err)

	_, err = st.CreateRootFolder(ctx, filepath.Join(t.TempDir(), "movies"), "movie")
	require.NoError(t, err)
	movieID, err := st.CreateMovie(ctx, &store.Movie{Title: "The Matrix", Year: 1999, Requested: true})
	require.NoError(t, err)

	gw := gateway.New(nil, gateway.DefaultLimits, zerolog.Nop())
	im := importer.New(st, false, zerolog.Nop())
	bl := blacklist.NewService(st, zerolog.Nop())

	client := mock.New()
	m := NewManager(st, gw, im, bl, zerolog.Nop())
	m.newClient = func(*store.DownloadClientConfig, *gateway.Gateway, zerolog.Logger) (types.Client, error) {
		return client, nil
	}

	return &fixture{store: st, manager: m, client: client, clientID: clientID, movieID: movieID}
}

func (f *fixture) grab(t *testing.T) *store.Download {
	t.Helper()
	d, err := f.manager.Grab(context.Background(), GrabRequest{
		Release: newznab.SearchResult{
			GUID:        "guid-1",
			Title:       "The.Matrix.1999.1080p.BluRay",
			Size:        8 << 30,
			DownloadURL: "https://indexer.test/get/guid-1",
		},
		MovieID: &f.movieID,
	})
	require.NoError(t, err)
	return d
}

func TestGrab_CreatesQueuedDownload(t *testing.T) {
	f := newFixture(t)
	d := f.grab(t)

	assert.Equal(t, store.StatusQueued, d.Status)
	assert.NotEmpty(t, d.ExternalID)
	assert.Equal(t, f.clientID, d.ClientID)

	jobs, err := f.client.GetJobs(context.Background())
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, d.ExternalID, jobs[0].ExternalID)
}

func TestGrab_RejectsDuplicateForSameItem(t *testing.T) {
	f := newFixture(t)
	f.grab(t)

	_, err := f.manager.Grab(context.Background(), GrabRequest{
		Release: newznab.SearchResult{GUID: "guid-2", Title: "The.Matrix.1999.720p"},
		MovieID: &f.movieID,
	})
	assert.ErrorIs(t, err, ErrAlreadyDownloading)
}

func TestGrab_UnknownItem(t *testing.T) {
	f := newFixture(t)
	missing := int64(9999)
	_, err := f.manager.Grab(context.Background(), GrabRequest{
		Release: newznab.SearchResult{GUID: "g", Title: "x"},
		MovieID: &missing,
	})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMonitorTick_TracksProgress(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	d := f.grab(t)

	f.client.SetProgress(d.ExternalID, 42)
	require.NoError(t, f.manager.MonitorTick(ctx))

	got, err := f.store.GetDownload(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusDownloading, got.Status)
	assert.Equal(t, 42.0, got.Progress)
	assert.NotNil(t, got.StartedAt)
}

func TestMonitorTick_CompletedDownloadImports(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	d := f.grab(t)

	outDir := t.TempDir()
	path := filepath.Join(outDir, "the.matrix.1999.1080p.mkv")
	file, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, file.Truncate(60<<20))
	require.NoError(t, file.Close())

	f.client.Complete(d.ExternalID, outDir)
	require.NoError(t, f.manager.MonitorTick(ctx))

	got, err := f.store.GetDownload(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, got.Status)
	assert.NotNil(t, got.CompletedAt)

	movie, err := f.store.GetMovie(ctx, f.movieID)
	require.NoError(t, err)
	assert.True(t, movie.HasFile)
}

func TestMonitorTick_FailedDownloadIsBlacklisted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	d := f.grab(t)

	f.client.Fail(d.ExternalID, "crc error")
	require.NoError(t, f.manager.MonitorTick(ctx))

	got, err := f.store.GetDownload(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, got.Status)
	assert.Equal(t, "crc error", got.ErrorMessage)

	entries, err := f.store.ListBlacklist(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "guid-1", entries[0].GUID)
}

func TestMonitorTick_FailedImportFailsDownload(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	d := f.grab(t)

	// Completed at the client but the output directory holds no video.
	outDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outDir, "readme.txt"), []byte("x"), 0o644))

	f.client.Complete(d.ExternalID, outDir)
	require.NoError(t, f.manager.MonitorTick(ctx))

	got, err := f.store.GetDownload(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, got.Status)
	assert.Contains(t, got.ErrorMessage, "no video files")
}

func TestMonitorTick_DisappearedDownloadFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	d := f.grab(t)

	// Remove it from the client without recording history.
	require.NoError(t, f.client.Cancel(ctx, d.ExternalID, false))
	require.NoError(t, f.manager.MonitorTick(ctx))

	got, err := f.store.GetDownload(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, got.Status)
	assert.Contains(t, got.ErrorMessage, "disappeared")
}

func TestMonitorTick_RejectsOverlap(t *testing.T) {
	f := newFixture(t)
	f.manager.monitoring.Store(true)
	defer f.manager.monitoring.Store(false)

	err := f.manager.MonitorTick(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")
}

func TestCancel(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	d := f.grab(t)

	require.NoError(t, f.manager.Cancel(ctx, d.ID, true))

	got, err := f.store.GetDownload(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, got.Status)
	assert.Equal(t, "cancelled", got.ErrorMessage)

	jobs, err := f.client.GetJobs(ctx)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestCancel_TerminalDownload(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	d := f.grab(t)
	require.NoError(t, f.store.MarkDownloadCompleted(ctx, d.ID))

	err := f.manager.Cancel(ctx, d.ID, false)
	assert.Error(t, err)
}

func TestGrab_BlacklistedRelease(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.store.AddBlacklistEntry(ctx, "guid-1", "", "failed before"))

	_, err := f.manager.Grab(ctx, GrabRequest{
		Release: newznab.SearchResult{GUID: "guid-1", Title: "The.Matrix.1999.1080p"},
		MovieID: &f.movieID,
	})
	assert.ErrorIs(t, err, ErrBlacklisted)

	jobs, err := f.client.GetJobs(ctx)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestMonitorTick_LeavesImportingRowAlone(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	d := f.grab(t)

	// An import started moments ago; the job also shows completed in
	// client history.
	outDir := t.TempDir()
	f.client.Complete(d.ExternalID, outDir)
	require.NoError(t, f.store.MarkDownloadImporting(ctx, d.ID, outDir, time.Now().Add(-time.Minute)))

	require.NoError(t, f.manager.MonitorTick(ctx))

	got, err := f.store.GetDownload(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusImporting, got.Status)
}

func TestClientCacheSurvivesConcurrentUse(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	secondID, err := f.store.CreateMovie(ctx, &store.Movie{Title: "Heat", Year: 1995, Requested: true})
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		_, err := f.manager.Grab(ctx, GrabRequest{
			Release: newznab.SearchResult{GUID: "guid-matrix", Title: "The.Matrix.1999.1080p"},
			MovieID: &f.movieID,
		})
		assert.NoError(t, err)
	}()
	go func() {
		defer wg.Done()
		_, err := f.manager.Grab(ctx, GrabRequest{
			Release: newznab.SearchResult{GUID: "guid-heat", Title: "Heat.1995.1080p"},
			MovieID: &secondID,
		})
		assert.NoError(t, err)
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 10; i++ {
			// Overlap rejections are fine; the point is concurrent
			// client-cache access.
			_ = f.manager.MonitorTick(ctx)
		}
	}()
	wg.Wait()

	active, err := f.store.ListActiveDownloads(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 2)
}
