package scanner

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fetcharr/fetcharr/internal/downloader/mock"
	"github.com/fetcharr/fetcharr/internal/downloader/types"
	"github.com/fetcharr/fetcharr/internal/gateway"
	"github.com/fetcharr/fetcharr/internal/importer"
	"github.com/fetcharr/fetcharr/internal/store"
	"github.com/fetcharr/fetcharr/internal/testdb"
)

type fixture struct {
	store    *store.Store
	scanner  *Scanner
	client   *mock.Client
	clientID int64
	movieID  int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	st := testdb.New(t)

	clientID, err := st.CreateClient(ctx, &store.DownloadClientConfig{
		Name: "mock", Type: "mock", Host: "localhost", Port: 1, Enabled: true,
	})
	require.NoError(t, err)
	_, err = st.CreateRootFolder(ctx, filepath.Join(t.TempDir(), "movies"), "movie")
	require.NoError(t, err)
	movieID, err := st.CreateMovie(ctx, &store.Movie{Title: "The Matrix", Year: 1999, Requested: true})
	require.NoError(t, err)

	gw := gateway.New(nil, gateway.DefaultLimits, zerolog.Nop())
	im := importer.New(st, false, zerolog.Nop())

	client := mock.New()
	sc := New(st, gw, im, 0, zerolog.Nop())
	sc.newClient = func(*store.DownloadClientConfig, *gateway.Gateway, zerolog.Logger) (types.Client, error) {
		return client, nil
	}

	return &fixture{store: st, scanner: sc, client: client, clientID: clientID, movieID: movieID}
}

func movieDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	f, err := os.Create(filepath.Join(dir, "the.matrix.1999.1080p.mkv"))
	require.NoError(t, err)
	require.NoError(t, f.Truncate(60<<20))
	require.NoError(t, f.Close())
	return dir
}

func TestScan_AdoptsOrphanCompletedDownload(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.client.AddHistory(types.HistoryItem{
		ExternalID:  "nzo_orphan",
		Title:       "The.Matrix.1999.1080p.BluRay",
		Status:      types.StatusCompleted,
		OutputPath:  movieDir(t),
		CompletedAt: time.Now(),
	})

	res, err := f.scanner.Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Adopted, "errors: %v", res.Errors)

	d, err := f.store.GetDownloadByExternalID(ctx, f.clientID, "nzo_orphan")
	require.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, d.Status)
	require.NotNil(t, d.MovieID)
	assert.Equal(t, f.movieID, *d.MovieID)

	movie, err := f.store.GetMovie(ctx, f.movieID)
	require.NoError(t, err)
	assert.True(t, movie.HasFile)
}

func TestScan_UnmatchedOrphanIgnored(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.client.AddHistory(types.HistoryItem{
		ExternalID: "nzo_stranger",
		Title:      "Completely.Unrelated.2020.1080p",
		Status:     types.StatusCompleted,
		OutputPath: t.TempDir(),
	})

	res, err := f.scanner.Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Adopted)

	_, err = f.store.GetDownloadByExternalID(ctx, f.clientID, "nzo_stranger")
	assert.ErrorIs(t, err, store.ErrDownloadNotFound)
}

func TestScan_ImportsKnownDownloadTheMonitorMissed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	d, err := f.store.CreateDownload(ctx, &store.Download{
		ExternalID: "nzo_known",
		ClientID:   f.clientID,
		Title:      "The.Matrix.1999.1080p",
		Status:     store.StatusDownloading,
		MovieID:    &f.movieID,
	})
	require.NoError(t, err)

	f.client.AddHistory(types.HistoryItem{
		ExternalID:  "nzo_known",
		Title:       "The.Matrix.1999.1080p",
		Status:      types.StatusCompleted,
		OutputPath:  movieDir(t),
		CompletedAt: time.Now(),
	})

	res, err := f.scanner.Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Imported, "errors: %v", res.Errors)

	got, err := f.store.GetDownload(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, got.Status)
}

func TestScan_TerminalDownloadUntouched(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	d, err := f.store.CreateDownload(ctx, &store.Download{
		ExternalID: "nzo_done",
		ClientID:   f.clientID,
		Title:      "The.Matrix.1999.1080p",
		Status:     store.StatusCompleted,
		MovieID:    &f.movieID,
	})
	require.NoError(t, err)

	f.client.AddHistory(types.HistoryItem{
		ExternalID: "nzo_done",
		Title:      "The.Matrix.1999.1080p",
		Status:     types.StatusCompleted,
		OutputPath: t.TempDir(),
	})

	res, err := f.scanner.Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Imported)
	assert.Equal(t, 0, res.Adopted)

	got, err := f.store.GetDownload(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, got.Status)
}

func TestScan_RetriesStalledImport(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	d, err := f.store.CreateDownload(ctx, &store.Download{
		ExternalID: "nzo_stalled",
		ClientID:   f.clientID,
		Title:      "The.Matrix.1999.1080p",
		Status:     store.StatusQueued,
		MovieID:    &f.movieID,
	})
	require.NoError(t, err)
	require.NoError(t, f.store.MarkDownloadImporting(ctx, d.ID, movieDir(t), time.Now().Add(-10*time.Minute)))

	res, err := f.scanner.Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Retried, "errors: %v", res.Errors)

	got, err := f.store.GetDownload(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, got.Status)
}

func TestScan_FreshImportingRowLeftAlone(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	d, err := f.store.CreateDownload(ctx, &store.Download{
		ExternalID: "nzo_fresh",
		ClientID:   f.clientID,
		Title:      "The.Matrix.1999.1080p",
		Status:     store.StatusQueued,
		MovieID:    &f.movieID,
	})
	require.NoError(t, err)
	require.NoError(t, f.store.MarkDownloadImporting(ctx, d.ID, t.TempDir(), time.Now()))

	res, err := f.scanner.Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Retried)

	got, err := f.store.GetDownload(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusImporting, got.Status)
}

func TestScan_RejectsOverlap(t *testing.T) {
	f := newFixture(t)
	f.scanner.running.Store(true)
	defer f.scanner.running.Store(false)

	res, err := f.scanner.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Already running"}, res.Errors)
	assert.Equal(t, 0, res.HistoryItems)
}
