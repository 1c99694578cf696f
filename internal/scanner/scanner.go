// Package scanner reconciles download client history with the persisted
// queue: it finishes downloads the monitor missed, retries imports that
// stalled, and adopts completed downloads the system never grabbed.
package scanner

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/fetcharr/fetcharr/internal/downloader"
	"github.com/fetcharr/fetcharr/internal/downloader/types"
	"github.com/fetcharr/fetcharr/internal/gateway"
	"github.com/fetcharr/fetcharr/internal/importer"
	"github.com/fetcharr/fetcharr/internal/store"
)

// DefaultHistoryLimit caps how many history entries each scan inspects
// per client.
const DefaultHistoryLimit = 50

// stuckImportAfter is how long a download may sit in importing before the
// scanner assumes the import died and retries it.
const stuckImportAfter = 5 * time.Minute

// Result summarizes one scan cycle.
type Result struct {
	HistoryItems int
	Imported     int
	Adopted      int
	Retried      int
	Errors       []string
}

// Scanner walks client history and drives unimported completions through
// the importer.
type Scanner struct {
	store        *store.Store
	gw           *gateway.Gateway
	importer     *importer.Importer
	logger       zerolog.Logger
	historyLimit int

	running atomic.Bool

	// newClient is swappable in tests.
	newClient func(*store.DownloadClientConfig, *gateway.Gateway, zerolog.Logger) (types.Client, error)
	clients   map[int64]types.Client
}

// New creates a scanner. historyLimit <= 0 uses DefaultHistoryLimit.
func New(st *store.Store, gw *gateway.Gateway, im *importer.Importer, historyLimit int, logger zerolog.Logger) *Scanner {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &Scanner{
		store:        st,
		gw:           gw,
		importer:     im,
		logger:       logger.With().Str("component", "scanner").Logger(),
		historyLimit: historyLimit,
		newClient:    downloader.NewClient,
		clients:      make(map[int64]types.Client),
	}
}

func (s *Scanner) clientFor(cfg *store.DownloadClientConfig) (types.Client, error) {
	if c, ok := s.clients[cfg.ID]; ok {
		return c, nil
	}
	c, err := s.newClient(cfg, s.gw, s.logger)
	if err != nil {
		return nil, err
	}
	s.clients[cfg.ID] = c
	return c, nil
}

// Scan runs one reconciliation cycle. Overlapping scans are rejected.
func (s *Scanner) Scan(ctx context.Context) (*Result, error) {
	if !s.running.CompareAndSwap(false, true) {
		return &Result{Errors: []string{"Already running"}}, nil
	}
	defer s.running.Store(false)

	res := &Result{}

	if err := s.retryStuckImports(ctx, res); err != nil {
		return nil, err
	}

	cfgs, err := s.store.ListEnabledClients(ctx)
	if err != nil {
		return nil, err
	}
	for _, cfg := range cfgs {
		if err := s.scanClient(ctx, cfg, res); err != nil {
			res.Errors = append(res.Errors, cfg.Name+": "+err.Error())
			s.logger.Warn().Err(err).Str("client", cfg.Name).Msg("client scan failed")
		}
	}

	if res.Imported > 0 || res.Adopted > 0 || res.Retried > 0 || len(res.Errors) > 0 {
		s.logger.Info().
			Int("history", res.HistoryItems).
			Int("imported", res.Imported).
			Int("adopted", res.Adopted).
			Int("retried", res.Retried).
			Int("errors", len(res.Errors)).
			Msg("scan complete")
	}
	return res, nil
}

// retryStuckImports re-runs imports for rows that entered importing and
// never left it, typically after a crash mid-import.
func (s *Scanner) retryStuckImports(ctx context.Context, res *Result) error {
	active, err := s.store.ListActiveDownloads(ctx)
	if err != nil {
		return err
	}
	for _, d := range active {
		if d.Status != store.StatusImporting {
			continue
		}
		if d.CompletedAt == nil || time.Since(*d.CompletedAt) < stuckImportAfter {
			continue
		}
		s.logger.Warn().Int64("id", d.ID).Str("title", d.Title).Msg("retrying stalled import")
		s.runImport(ctx, d)
		res.Retried++
	}
	return nil
}

func (s *Scanner) scanClient(ctx context.Context, cfg *store.DownloadClientConfig, res *Result) error {
	client, err := s.clientFor(cfg)
	if err != nil {
		return err
	}
	history, err := client.GetHistory(ctx, s.historyLimit)
	if err != nil {
		return err
	}
	res.HistoryItems += len(history)

	for _, item := range history {
		if item.Status != types.StatusCompleted {
			continue
		}

		d, err := s.store.GetDownloadByExternalID(ctx, cfg.ID, item.ExternalID)
		switch {
		case errors.Is(err, store.ErrDownloadNotFound):
			adopted, err := s.adoptOrphan(ctx, cfg, item)
			if err != nil {
				return err
			}
			if adopted {
				res.Adopted++
			}
		case err != nil:
			return err
		case d.Status.Terminal() || d.Status == store.StatusImporting:
			// Done, or the stuck-import pass owns it.
		default:
			// Known download finished at the client but the monitor has not
			// caught up; import it now.
			outputPath := cfg.MapRemotePath(item.OutputPath)
			completedAt := item.CompletedAt
			if completedAt.IsZero() {
				completedAt = time.Now()
			}
			if err := s.store.MarkDownloadImporting(ctx, d.ID, outputPath, completedAt); err != nil {
				return err
			}
			d.OutputPath = outputPath
			s.runImport(ctx, d)
			res.Imported++
		}
	}
	return nil
}

// adoptOrphan creates and imports a download row for a completed client job
// the system has no record of, when it can be matched to a wanted item.
func (s *Scanner) adoptOrphan(ctx context.Context, cfg *store.DownloadClientConfig, item types.HistoryItem) (bool, error) {
	m, err := matchLibrary(ctx, s.store, item.Title)
	if err != nil {
		return false, err
	}
	if m == nil {
		s.logger.Debug().Str("title", item.Title).Msg("history item matches no wanted library item")
		return false, nil
	}

	completedAt := item.CompletedAt
	if completedAt.IsZero() {
		completedAt = time.Now()
	}
	d, err := s.store.CreateDownload(ctx, &store.Download{
		ExternalID:  item.ExternalID,
		ClientID:    cfg.ID,
		Title:       item.Title,
		SizeBytes:   item.SizeBytes,
		OutputPath:  cfg.MapRemotePath(item.OutputPath),
		Status:      store.StatusImporting,
		Progress:    100,
		MovieID:     m.movieID,
		SeriesID:    m.seriesID,
		EpisodeID:   m.episodeID,
		AlbumID:     m.albumID,
		BookID:      m.bookID,
		CompletedAt: &completedAt,
	})
	if err != nil {
		return false, err
	}

	s.logger.Info().Str("title", item.Title).Int64("id", d.ID).Msg("adopting unmanaged completed download")
	s.runImport(ctx, d)
	return true, nil
}

func (s *Scanner) runImport(ctx context.Context, d *store.Download) {
	result, err := s.importer.Import(ctx, d)
	if err != nil {
		s.logger.Error().Err(err).Int64("id", d.ID).Msg("import errored")
		if markErr := s.store.MarkDownloadFailed(ctx, d.ID, err.Error()); markErr != nil {
			s.logger.Error().Err(markErr).Int64("id", d.ID).Msg("mark download failed failed")
		}
		return
	}

	if !result.Success {
		reason := "import failed"
		if len(result.Errors) > 0 {
			reason = strings.Join(result.Errors, "; ")
		}
		if err := s.store.MarkDownloadFailed(ctx, d.ID, reason); err != nil {
			s.logger.Error().Err(err).Int64("id", d.ID).Msg("mark download failed failed")
		}
		return
	}

	if err := s.store.MarkDownloadCompleted(ctx, d.ID); err != nil {
		s.logger.Error().Err(err).Int64("id", d.ID).Msg("mark download completed failed")
	}
}
