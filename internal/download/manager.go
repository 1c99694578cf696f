// Package download owns the download lifecycle: handing grabs to a client,
// polling client state into the persisted queue, and handing completed
// downloads to the importer.
package download

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/fetcharr/fetcharr/internal/blacklist"
	"github.com/fetcharr/fetcharr/internal/downloader"
	"github.com/fetcharr/fetcharr/internal/downloader/types"
	"github.com/fetcharr/fetcharr/internal/gateway"
	"github.com/fetcharr/fetcharr/internal/importer"
	"github.com/fetcharr/fetcharr/internal/indexer/newznab"
	"github.com/fetcharr/fetcharr/internal/store"
)

// Common manager errors.
var (
	ErrAlreadyDownloading = errors.New("item already has an active download")
	ErrNoClients          = errors.New("no enabled download clients")
	ErrBlacklisted        = errors.New("release is blacklisted")
)

// historyPollLimit bounds how much client history each tick inspects.
const historyPollLimit = 50

// GrabRequest asks the manager to send a release to a download client.
// Exactly one of MovieID, EpisodeID, AlbumID, BookID must be set; episode
// grabs also carry SeriesID.
type GrabRequest struct {
	Release     newznab.SearchResult
	IndexerID   *int64
	IndexerName string
	Category    string

	MovieID   *int64
	SeriesID  *int64
	EpisodeID *int64
	AlbumID   *int64
	BookID    *int64
}

// Manager drives downloads from grab to import.
type Manager struct {
	store     *store.Store
	gw        *gateway.Gateway
	importer  *importer.Importer
	blacklist *blacklist.Service
	logger    zerolog.Logger

	monitoring atomic.Bool

	// newClient is swappable in tests.
	newClient func(*store.DownloadClientConfig, *gateway.Gateway, zerolog.Logger) (types.Client, error)

	// clientMu guards clients; Grab, MonitorTick, and Cancel run on
	// separate goroutines.
	clientMu sync.Mutex
	clients  map[int64]types.Client
}

// NewManager creates a download manager.
func NewManager(st *store.Store, gw *gateway.Gateway, im *importer.Importer, bl *blacklist.Service, logger zerolog.Logger) *Manager {
	return &Manager{
		store:     st,
		gw:        gw,
		importer:  im,
		blacklist: bl,
		logger:    logger.With().Str("component", "download").Logger(),
		newClient: downloader.NewClient,
		clients:   make(map[int64]types.Client),
	}
}

func (m *Manager) clientFor(cfg *store.DownloadClientConfig) (types.Client, error) {
	m.clientMu.Lock()
	defer m.clientMu.Unlock()

	if c, ok := m.clients[cfg.ID]; ok {
		return c, nil
	}
	c, err := m.newClient(cfg, m.gw, m.logger)
	if err != nil {
		return nil, err
	}
	m.clients[cfg.ID] = c
	return c, nil
}

// Grab validates the target item, rejects blacklisted releases, sends the
// release to the highest-priority enabled client, and records the queued
// download.
func (m *Manager) Grab(ctx context.Context, req GrabRequest) (*store.Download, error) {
	if err := m.validateTarget(ctx, req); err != nil {
		return nil, err
	}

	blocked, err := m.blacklist.Blocked(ctx, req.Release.GUID, req.Release.Title)
	if err != nil {
		return nil, err
	}
	if blocked {
		return nil, ErrBlacklisted
	}

	active, err := m.store.ActiveDownloadForItem(ctx, req.MovieID, req.EpisodeID, req.AlbumID, req.BookID)
	if err != nil {
		return nil, err
	}
	if active {
		return nil, ErrAlreadyDownloading
	}

	cfgs, err := m.store.ListEnabledClients(ctx)
	if err != nil {
		return nil, err
	}
	if len(cfgs) == 0 {
		return nil, ErrNoClients
	}
	cfg := cfgs[0]

	client, err := m.clientFor(cfg)
	if err != nil {
		return nil, err
	}

	externalID, err := client.AddJob(ctx, types.AddRequest{
		DownloadURL: req.Release.DownloadURL,
		Title:       req.Release.Title,
		Category:    req.Category,
	})
	if err != nil {
		return nil, fmt.Errorf("add to client %s: %w", cfg.Name, err)
	}

	d, err := m.store.CreateDownload(ctx, &store.Download{
		ExternalID:  externalID,
		ClientID:    cfg.ID,
		IndexerID:   req.IndexerID,
		IndexerName: req.IndexerName,
		Title:       req.Release.Title,
		SizeBytes:   req.Release.Size,
		DownloadURL: req.Release.DownloadURL,
		GUID:        req.Release.GUID,
		Status:      store.StatusQueued,
		MovieID:     req.MovieID,
		SeriesID:    req.SeriesID,
		EpisodeID:   req.EpisodeID,
		AlbumID:     req.AlbumID,
		BookID:      req.BookID,
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info().
		Str("title", req.Release.Title).
		Str("client", cfg.Name).
		Str("externalId", externalID).
		Msg("release grabbed")
	return d, nil
}

func (m *Manager) validateTarget(ctx context.Context, req GrabRequest) error {
	switch {
	case req.MovieID != nil:
		_, err := m.store.GetMovie(ctx, *req.MovieID)
		return err
	case req.EpisodeID != nil:
		_, err := m.store.GetEpisode(ctx, *req.EpisodeID)
		return err
	case req.AlbumID != nil:
		_, err := m.store.GetAlbum(ctx, *req.AlbumID)
		return err
	case req.BookID != nil:
		_, err := m.store.GetBook(ctx, *req.BookID)
		return err
	default:
		return errors.New("grab request names no library item")
	}
}

// MonitorTick reconciles all non-terminal downloads against client state.
// Overlapping ticks are rejected; a tick already in flight keeps running.
func (m *Manager) MonitorTick(ctx context.Context) error {
	if !m.monitoring.CompareAndSwap(false, true) {
		return errors.New("download monitor already running")
	}
	defer m.monitoring.Store(false)

	active, err := m.store.ListActiveDownloads(ctx)
	if err != nil {
		return err
	}
	if len(active) == 0 {
		return nil
	}

	byClient := make(map[int64][]*store.Download)
	for _, d := range active {
		byClient[d.ClientID] = append(byClient[d.ClientID], d)
	}

	for clientID, downloads := range byClient {
		if err := m.monitorClient(ctx, clientID, downloads); err != nil {
			// Client-level failures are transient: downloads stay as they
			// are until the client answers again.
			m.logger.Warn().Err(err).Int64("clientId", clientID).Msg("client poll failed")
		}
	}
	return nil
}

func (m *Manager) monitorClient(ctx context.Context, clientID int64, downloads []*store.Download) error {
	cfg, err := m.store.GetClient(ctx, clientID)
	if err != nil {
		return err
	}
	client, err := m.clientFor(cfg)
	if err != nil {
		return err
	}

	jobs, err := client.GetJobs(ctx)
	if err != nil {
		return err
	}
	queue := make(map[string]types.Job, len(jobs))
	for _, j := range jobs {
		queue[j.ExternalID] = j
	}

	history, err := client.GetHistory(ctx, historyPollLimit)
	if err != nil {
		return err
	}
	finished := make(map[string]types.HistoryItem, len(history))
	for _, h := range history {
		if _, ok := finished[h.ExternalID]; !ok {
			finished[h.ExternalID] = h
		}
	}

	for _, d := range downloads {
		if job, ok := queue[d.ExternalID]; ok {
			m.applyQueueState(ctx, cfg, d, job)
			continue
		}
		if item, ok := finished[d.ExternalID]; ok {
			m.applyHistoryState(ctx, cfg, client, d, item)
			continue
		}
		// In neither queue nor history: removed out-of-band.
		m.logger.Warn().Int64("id", d.ID).Str("title", d.Title).Msg("download disappeared from client")
		if err := m.store.MarkDownloadFailed(ctx, d.ID, "disappeared from download client"); err != nil {
			m.logger.Error().Err(err).Int64("id", d.ID).Msg("mark disappeared download failed")
		}
	}
	return nil
}

func (m *Manager) applyQueueState(ctx context.Context, cfg *store.DownloadClientConfig, d *store.Download, job types.Job) {
	status := downloader.StatusToDownload(job.Status)
	if status == store.StatusDownloading && d.StartedAt == nil {
		if err := m.store.MarkDownloadStarted(ctx, d.ID, time.Now()); err != nil {
			m.logger.Error().Err(err).Int64("id", d.ID).Msg("mark download started failed")
		}
	}

	// Queue entries never regress an importing row.
	if d.Status == store.StatusImporting {
		return
	}

	outputPath := cfg.MapRemotePath(job.OutputPath)
	if err := m.store.UpdateDownloadProgress(ctx, d.ID, status, job.Progress, outputPath); err != nil {
		m.logger.Error().Err(err).Int64("id", d.ID).Msg("update download progress failed")
	}
}

func (m *Manager) applyHistoryState(ctx context.Context, cfg *store.DownloadClientConfig, client types.Client, d *store.Download, item types.HistoryItem) {
	// An importing row already has an import in flight somewhere; the
	// scanner's stuck-import pass is the only retry path.
	if d.Status == store.StatusImporting {
		return
	}

	switch item.Status {
	case types.StatusCompleted:
		m.completeAndImport(ctx, cfg, client, d, item)
	case types.StatusFailed:
		reason := item.ErrorMessage
		if reason == "" {
			reason = "download failed"
		}
		m.logger.Warn().Int64("id", d.ID).Str("title", d.Title).Str("reason", reason).Msg("download failed at client")
		if err := m.store.MarkDownloadFailed(ctx, d.ID, reason); err != nil {
			m.logger.Error().Err(err).Int64("id", d.ID).Msg("mark download failed failed")
			return
		}
		if err := m.blacklist.Add(ctx, d.GUID, d.Title, reason); err != nil {
			m.logger.Error().Err(err).Int64("id", d.ID).Msg("blacklist add failed")
		}
		if cfg.RemoveFailed {
			m.removeFromClient(ctx, client, d, true)
		}
	default:
		// Still post-processing at the client.
	}
}

func (m *Manager) completeAndImport(ctx context.Context, cfg *store.DownloadClientConfig, client types.Client, d *store.Download, item types.HistoryItem) {
	outputPath := cfg.MapRemotePath(item.OutputPath)
	completedAt := item.CompletedAt
	if completedAt.IsZero() {
		completedAt = time.Now()
	}

	if err := m.store.MarkDownloadImporting(ctx, d.ID, outputPath, completedAt); err != nil {
		m.logger.Error().Err(err).Int64("id", d.ID).Msg("mark download importing failed")
		return
	}
	d.OutputPath = outputPath

	result, err := m.importer.Import(ctx, d)
	if err != nil {
		m.logger.Error().Err(err).Int64("id", d.ID).Msg("import errored")
		if markErr := m.store.MarkDownloadFailed(ctx, d.ID, err.Error()); markErr != nil {
			m.logger.Error().Err(markErr).Int64("id", d.ID).Msg("mark download failed failed")
		}
		return
	}

	if !result.Success {
		reason := "import failed"
		if len(result.Errors) > 0 {
			reason = strings.Join(result.Errors, "; ")
		}
		m.logger.Warn().Int64("id", d.ID).Str("reason", reason).Msg("import failed")
		if err := m.store.MarkDownloadFailed(ctx, d.ID, reason); err != nil {
			m.logger.Error().Err(err).Int64("id", d.ID).Msg("mark download failed failed")
		}
		return
	}

	if err := m.store.MarkDownloadCompleted(ctx, d.ID); err != nil {
		m.logger.Error().Err(err).Int64("id", d.ID).Msg("mark download completed failed")
		return
	}
	m.logger.Info().Int64("id", d.ID).Str("title", d.Title).Int("files", result.FilesImported).Msg("download imported")

	if cfg.RemoveCompleted {
		m.removeFromClient(ctx, client, d, false)
	}
}

func (m *Manager) removeFromClient(ctx context.Context, client types.Client, d *store.Download, deleteData bool) {
	if err := client.Cancel(ctx, d.ExternalID, deleteData); err != nil && !errors.Is(err, types.ErrNotFound) {
		m.logger.Warn().Err(err).Int64("id", d.ID).Msg("remove from client failed")
	}
}

// Cancel aborts an active download, removing it from its client.
func (m *Manager) Cancel(ctx context.Context, id int64, deleteData bool) error {
	d, err := m.store.GetDownload(ctx, id)
	if err != nil {
		return err
	}
	if d.Status.Terminal() {
		return fmt.Errorf("download %d already %s", id, d.Status)
	}

	cfg, err := m.store.GetClient(ctx, d.ClientID)
	if err != nil {
		return err
	}
	client, err := m.clientFor(cfg)
	if err != nil {
		return err
	}
	if err := client.Cancel(ctx, d.ExternalID, deleteData); err != nil && !errors.Is(err, types.ErrNotFound) {
		return err
	}
	return m.store.MarkDownloadFailed(ctx, id, "cancelled")
}
