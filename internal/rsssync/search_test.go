package rsssync

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fetcharr/fetcharr/internal/blacklist"
	"github.com/fetcharr/fetcharr/internal/download"
	"github.com/fetcharr/fetcharr/internal/gateway"
	"github.com/fetcharr/fetcharr/internal/importer"
	"github.com/fetcharr/fetcharr/internal/indexer/newznab"
	"github.com/fetcharr/fetcharr/internal/store"
	"github.com/fetcharr/fetcharr/internal/testdb"
)

type searchFixture struct {
	store   *store.Store
	service *Service
	queries *[]url.Values
}

// newSearchFixture serves feeds keyed by the q parameter so each wanted
// item gets its own response. Unknown queries get an empty feed.
func newSearchFixture(t *testing.T, feeds map[string]string) *searchFixture {
	t.Helper()
	ctx := context.Background()
	st := testdb.New(t)

	var queries []url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		queries = append(queries, q)
		body, ok := feeds[q.Get("q")]
		if !ok {
			body = feed()
		}
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	_, err := st.CreateIndexer(ctx, &store.Indexer{
		Name: "nzb", BaseURL: srv.URL, APIKey: "k", Enabled: true, SupportsRSS: true,
	})
	require.NoError(t, err)
	_, err = st.CreateClient(ctx, &store.DownloadClientConfig{
		Name: "mock", Type: "mock", Host: "localhost", Port: 1, Enabled: true,
	})
	require.NoError(t, err)

	gw := gateway.New(nil, gateway.DefaultLimits, zerolog.Nop())
	nz := newznab.New(gw, zerolog.Nop())
	bl := blacklist.NewService(st, zerolog.Nop())
	im := importer.New(st, false, zerolog.Nop())
	dm := download.NewManager(st, gw, im, bl, zerolog.Nop())

	svc := NewService(st, nz, dm, bl, zerolog.Nop())
	svc.grabDelay = 0

	return &searchFixture{store: st, service: svc, queries: &queries}
}

func TestSearchWanted_Movie(t *testing.T) {
	ctx := context.Background()
	f := newSearchFixture(t, map[string]string{
		"The Matrix 1999": feed(
			feedItem("g1", "Some.Other.Film.2005.1080p"),
			feedItem("g2", "The.Matrix.1999.2160p.Remux"),
		),
	})
	movieID := seedWantedMovie(t, f.store)

	res, err := f.service.SearchWanted(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Grabbed)
	assert.Empty(t, res.Errors)

	active, err := f.store.ListActiveDownloads(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "The.Matrix.1999.2160p.Remux", active[0].Title)
	require.NotNil(t, active[0].MovieID)
	assert.Equal(t, movieID, *active[0].MovieID)

	require.Len(t, *f.queries, 1)
	q := (*f.queries)[0]
	assert.Equal(t, "search", q.Get("t"))
	assert.Equal(t, "The Matrix 1999", q.Get("q"))
	assert.Equal(t, "2000", q.Get("cat"))
	assert.Equal(t, "50", q.Get("limit"))
}

func TestSearchWanted_PerKindQueriesAndCategories(t *testing.T) {
	ctx := context.Background()
	f := newSearchFixture(t, map[string]string{
		"The Matrix 1999":     feed(feedItem("m1", "The.Matrix.1999.1080p.BluRay")),
		"Breaking Bad s05e07": feed(feedItem("e1", "Breaking.Bad.S05E07.720p.HDTV")),
		"Daft Punk Discovery": feed(feedItem("a1", "Daft.Punk.Discovery.2001.FLAC")),
		"Frank Herbert Dune":  feed(feedItem("b1", "Dune.by.Frank.Herbert.EPUB")),
	})
	st := f.store

	seedWantedMovie(t, st)
	seriesID, err := st.CreateSeries(ctx, &store.Series{Title: "Breaking Bad"})
	require.NoError(t, err)
	_, err = st.CreateEpisode(ctx, &store.Episode{SeriesID: seriesID, Season: 5, Episode: 7, Requested: true})
	require.NoError(t, err)
	artistID, err := st.CreateArtist(ctx, &store.Artist{Name: "Daft Punk"})
	require.NoError(t, err)
	_, err = st.CreateAlbum(ctx, &store.Album{ArtistID: artistID, Title: "Discovery", Year: 2001, Requested: true})
	require.NoError(t, err)
	authorID, err := st.CreateAuthor(ctx, &store.Author{Name: "Frank Herbert"})
	require.NoError(t, err)
	_, err = st.CreateBook(ctx, &store.Book{AuthorID: authorID, Title: "Dune", Year: 1965, Requested: true})
	require.NoError(t, err)

	res, err := f.service.SearchWanted(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Grabbed, "errors: %v", res.Errors)

	cats := map[string]string{}
	for _, q := range *f.queries {
		cats[q.Get("q")] = q.Get("cat")
	}
	assert.Equal(t, "2000", cats["The Matrix 1999"])
	assert.Equal(t, "5000", cats["Breaking Bad s05e07"])
	assert.Equal(t, "3000", cats["Daft Punk Discovery"])
	assert.Equal(t, "7000", cats["Frank Herbert Dune"])
}

func TestSearchWanted_StopsAfterFirstAcceptedRelease(t *testing.T) {
	ctx := context.Background()
	f := newSearchFixture(t, map[string]string{
		"The Matrix 1999": feed(
			feedItem("g1", "The.Matrix.1999.1080p.BluRay"),
			feedItem("g2", "The.Matrix.1999.720p.WEB"),
		),
	})
	seedWantedMovie(t, f.store)

	res, err := f.service.SearchWanted(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Grabbed)

	active, err := f.store.ListActiveDownloads(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestSearchWanted_NothingWantedSkipsIndexers(t *testing.T) {
	f := newSearchFixture(t, nil)

	res, err := f.service.SearchWanted(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.IndexersChecked)
	assert.Empty(t, *f.queries)
}

func TestSearchWanted_SharesRunningGuardWithSync(t *testing.T) {
	f := newSearchFixture(t, nil)
	f.service.running.Store(true)
	defer f.service.running.Store(false)

	res, err := f.service.SearchWanted(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Already running"}, res.Errors)
	assert.Empty(t, *f.queries)
}
