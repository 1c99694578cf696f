package rsssync

import (
	"context"
	"fmt"
	"time"

	"github.com/fetcharr/fetcharr/internal/download"
	"github.com/fetcharr/fetcharr/internal/indexer/newznab"
	"github.com/fetcharr/fetcharr/internal/release"
	"github.com/fetcharr/fetcharr/internal/store"
	"github.com/fetcharr/fetcharr/internal/title"
)

// Newznab top-level categories per media kind.
var (
	movieCategories = []int{2000}
	audioCategories = []int{3000}
	tvCategories    = []int{5000}
	bookCategories  = []int{7000}
)

// searchLimit caps results per explicit search request.
const searchLimit = 50

// SearchWanted actively queries indexers for every wanted item, unlike Sync
// which only inspects what the feeds happen to carry. It shares the running
// guard with Sync: the two never overlap.
func (s *Service) SearchWanted(ctx context.Context) (*Result, error) {
	if !s.running.CompareAndSwap(false, true) {
		return &Result{Errors: []string{alreadyRunning}}, nil
	}
	defer s.running.Store(false)

	start := time.Now()
	res := &Result{}

	w, err := s.loadWanted(ctx)
	if err != nil {
		return nil, err
	}
	if w.empty() {
		return res, nil
	}

	indexers, err := s.store.ListEnabledIndexers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list indexers: %w", err)
	}
	if len(indexers) == 0 {
		return res, nil
	}
	res.IndexersChecked = len(indexers)

	for _, m := range w.movies {
		query := m.Title
		if m.Year > 0 {
			query = fmt.Sprintf("%s %d", m.Title, m.Year)
		}
		movie := m
		s.searchItem(ctx, res, indexers, query, movieCategories,
			func(rt string) bool { return movieMatches(title.Normalize(rt), movie) },
			func(ixID int64, ixName string, r newznab.SearchResult) download.GrabRequest {
				id := movie.ID
				return download.GrabRequest{Release: r, IndexerID: &ixID, IndexerName: ixName, MovieID: &id}
			})
	}

	for _, e := range w.episodes {
		query := fmt.Sprintf("%s %s", e.ShowTitle, release.EpisodeTag(e.Season, e.Episode))
		ep := e
		s.searchItem(ctx, res, indexers, query, tvCategories,
			func(rt string) bool { return episodeMatches(rt, ep) },
			func(ixID int64, ixName string, r newznab.SearchResult) download.GrabRequest {
				epID, srID := ep.EpisodeID, ep.SeriesID
				return download.GrabRequest{Release: r, IndexerID: &ixID, IndexerName: ixName, EpisodeID: &epID, SeriesID: &srID}
			})
	}

	for _, a := range w.albums {
		query := fmt.Sprintf("%s %s", a.Artist, a.Title)
		album := a
		s.searchItem(ctx, res, indexers, query, audioCategories,
			func(rt string) bool { return containsBoth(title.Normalize(rt), album.Artist, album.Title) },
			func(ixID int64, ixName string, r newznab.SearchResult) download.GrabRequest {
				id := album.AlbumID
				return download.GrabRequest{Release: r, IndexerID: &ixID, IndexerName: ixName, AlbumID: &id}
			})
	}

	for _, b := range w.books {
		query := fmt.Sprintf("%s %s", b.Author, b.Title)
		book := b
		s.searchItem(ctx, res, indexers, query, bookCategories,
			func(rt string) bool { return containsBoth(title.Normalize(rt), book.Author, book.Title) },
			func(ixID int64, ixName string, r newznab.SearchResult) download.GrabRequest {
				id := book.BookID
				return download.GrabRequest{Release: r, IndexerID: &ixID, IndexerName: ixName, BookID: &id}
			})
	}

	s.logger.Info().
		Int("indexers", res.IndexersChecked).
		Int("releases", res.ReleasesFound).
		Int("grabbed", res.Grabbed).
		Int("errors", len(res.Errors)).
		Dur("elapsed", time.Since(start)).
		Msg("requested search complete")
	return res, nil
}

// searchItem tries indexers in priority order and grabs the first release
// the accept function approves.
func (s *Service) searchItem(
	ctx context.Context,
	res *Result,
	indexers []*store.Indexer,
	query string,
	categories []int,
	accept func(releaseTitle string) bool,
	buildGrab func(ixID int64, ixName string, r newznab.SearchResult) download.GrabRequest,
) {
	for _, ix := range indexers {
		if ctx.Err() != nil {
			return
		}

		releases, err := s.indexers.Search(ctx, ix, query, newznab.Options{
			Categories: categories,
			Limit:      searchLimit,
		})
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", ix.Name, err))
			continue
		}
		res.ReleasesFound += len(releases)

		releases, err = s.blacklist.Filter(ctx, releases)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", ix.Name, err))
			continue
		}

		for _, r := range releases {
			if !accept(r.Title) {
				continue
			}
			if _, err := s.manager.Grab(ctx, buildGrab(ix.ID, ix.Name, r)); err != nil {
				s.logger.Warn().Err(err).Str("title", r.Title).Msg("grab failed")
				continue
			}
			res.Grabbed++

			if s.grabDelay > 0 {
				select {
				case <-time.After(s.grabDelay):
				case <-ctx.Done():
				}
			}
			return
		}
	}
}
