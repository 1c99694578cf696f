// Package rsssync polls indexer RSS feeds and grabs releases matching
// wanted library items.
package rsssync

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/fetcharr/fetcharr/internal/blacklist"
	"github.com/fetcharr/fetcharr/internal/download"
	"github.com/fetcharr/fetcharr/internal/indexer/newznab"
	"github.com/fetcharr/fetcharr/internal/store"
)

const (
	// feedLimit caps how many releases one RSS fetch returns.
	feedLimit = 100

	// wantedEpisodeLimit bounds the episode set so matching stays cheap on
	// large libraries.
	wantedEpisodeLimit = 50

	// grabDelay spaces consecutive grabs so the indexer's download endpoint
	// is not hammered inside one cycle.
	grabDelay = 2 * time.Second
)

// defaultCategories is the superset requested from indexers with no
// category configuration: movies, audio, TV, and books.
var defaultCategories = []int{2000, 3000, 5000, 7000}

// alreadyRunning is reported when a cycle is requested while one is in
// flight; callers get an errored Result, not a hard failure.
const alreadyRunning = "Already running"

// Result summarizes one sync cycle.
type Result struct {
	IndexersChecked int
	ReleasesFound   int
	Grabbed         int
	Errors          []string
}

// Service runs RSS sync cycles.
type Service struct {
	store     *store.Store
	indexers  *newznab.Client
	manager   *download.Manager
	blacklist *blacklist.Service
	logger    zerolog.Logger

	running   atomic.Bool
	grabDelay time.Duration
}

// NewService creates an RSS sync service.
func NewService(st *store.Store, ix *newznab.Client, dm *download.Manager, bl *blacklist.Service, logger zerolog.Logger) *Service {
	return &Service{
		store:     st,
		indexers:  ix,
		manager:   dm,
		blacklist: bl,
		logger:    logger.With().Str("component", "rsssync").Logger(),
		grabDelay: grabDelay,
	}
}

// Sync runs one full cycle: load the wanted snapshot, pull each RSS-capable
// indexer's feed, and grab the first matching release per wanted item.
func (s *Service) Sync(ctx context.Context) (*Result, error) {
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
		s.logger.Debug().Msg("nothing wanted, skipping feed fetch")
		return res, nil
	}

	indexers, err := s.store.ListRSSIndexers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list indexers: %w", err)
	}
	if len(indexers) == 0 {
		s.logger.Debug().Msg("no RSS-capable indexers configured")
		return res, nil
	}

	for _, ix := range indexers {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		if w.empty() {
			break
		}

		found, grabbed, err := s.syncIndexer(ctx, ix, w)
		res.IndexersChecked++
		res.ReleasesFound += found
		res.Grabbed += grabbed
		if err != nil {
			// One bad indexer must not stop the cycle.
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", ix.Name, err))
			s.logger.Warn().Err(err).Str("indexer", ix.Name).Msg("indexer sync failed")
		}
	}

	s.logger.Info().
		Int("indexers", res.IndexersChecked).
		Int("releases", res.ReleasesFound).
		Int("grabbed", res.Grabbed).
		Int("errors", len(res.Errors)).
		Dur("elapsed", time.Since(start)).
		Msg("rss sync complete")
	return res, nil
}

func (s *Service) loadWanted(ctx context.Context) (*wanted, error) {
	movies, err := s.store.WantedMovies(ctx)
	if err != nil {
		return nil, fmt.Errorf("wanted movies: %w", err)
	}
	episodes, err := s.store.WantedEpisodes(ctx, wantedEpisodeLimit)
	if err != nil {
		return nil, fmt.Errorf("wanted episodes: %w", err)
	}
	albums, err := s.store.WantedAlbums(ctx)
	if err != nil {
		return nil, fmt.Errorf("wanted albums: %w", err)
	}
	books, err := s.store.WantedBooks(ctx)
	if err != nil {
		return nil, fmt.Errorf("wanted books: %w", err)
	}
	return &wanted{movies: movies, episodes: episodes, albums: albums, books: books}, nil
}

func (s *Service) syncIndexer(ctx context.Context, ix *store.Indexer, w *wanted) (found, grabbed int, err error) {
	categories := ix.Categories
	if len(categories) == 0 {
		categories = defaultCategories
	}

	releases, err := s.indexers.RSS(ctx, ix, newznab.Options{
		Categories: categories,
		Limit:      feedLimit,
	})
	if err != nil {
		return 0, 0, err
	}
	found = len(releases)

	releases, err = s.blacklist.Filter(ctx, releases)
	if err != nil {
		return found, 0, err
	}

	for _, r := range releases {
		if w.empty() {
			break
		}
		m := w.matchRelease(r.Title)
		if m == nil {
			continue
		}

		ixID := ix.ID
		_, err := s.manager.Grab(ctx, download.GrabRequest{
			Release:     r,
			IndexerID:   &ixID,
			IndexerName: ix.Name,
			MovieID:     m.movieID,
			SeriesID:    m.seriesID,
			EpisodeID:   m.episodeID,
			AlbumID:     m.albumID,
			BookID:      m.bookID,
		})
		if err != nil {
			// The item stays unmatched for this cycle; the next sync or the
			// requested search retries it.
			s.logger.Warn().Err(err).Str("title", r.Title).Msg("grab failed")
			continue
		}
		grabbed++

		if s.grabDelay > 0 {
			select {
			case <-time.After(s.grabDelay):
			case <-ctx.Done():
				return found, grabbed, ctx.Err()
			}
		}
	}
	return found, grabbed, nil
}
