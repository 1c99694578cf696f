package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/fetcharr/fetcharr/internal/store"
)

// taskResponse is the JSON shape for a scheduled task.
type taskResponse struct {
	Type            string     `json:"type"`
	IntervalMinutes int        `json:"intervalMinutes"`
	Enabled         bool       `json:"enabled"`
	Running         bool       `json:"running"`
	NextRunAt       *time.Time `json:"nextRunAt,omitempty"`
	LastRunAt       *time.Time `json:"lastRunAt,omitempty"`
	LastDurationMs  int64      `json:"lastDurationMs"`
}

func (s *Server) listTasks(c echo.Context) error {
	ctx := c.Request().Context()

	tasks, err := s.store.ListTasks(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	out := make([]taskResponse, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, taskResponse{
			Type:            t.Type,
			IntervalMinutes: t.IntervalMinutes,
			Enabled:         t.Enabled,
			Running:         s.scheduler.Running(t.Type),
			NextRunAt:       t.NextRunAt,
			LastRunAt:       t.LastRunAt,
			LastDurationMs:  t.LastDurationMs,
		})
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) runTask(c echo.Context) error {
	taskType := c.Param("type")

	if err := s.scheduler.Trigger(taskType); err != nil {
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusAccepted, map[string]string{"status": "started"})
}

type updateTaskInput struct {
	IntervalMinutes int   `json:"intervalMinutes"`
	Enabled         *bool `json:"enabled"`
}

func (s *Server) updateTask(c echo.Context) error {
	ctx := c.Request().Context()
	taskType := c.Param("type")

	var input updateTaskInput
	if err := c.Bind(&input); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	row, err := s.store.GetTask(ctx, taskType)
	if errors.Is(err, store.ErrTaskNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "task not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	interval := row.IntervalMinutes
	if input.IntervalMinutes > 0 {
		interval = input.IntervalMinutes
	}
	enabled := row.Enabled
	if input.Enabled != nil {
		enabled = *input.Enabled
	}

	if err := s.scheduler.UpdateTask(ctx, taskType, interval, enabled); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	updated, err := s.store.GetTask(ctx, taskType)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, taskResponse{
		Type:            updated.Type,
		IntervalMinutes: updated.IntervalMinutes,
		Enabled:         updated.Enabled,
		Running:         s.scheduler.Running(updated.Type),
		NextRunAt:       updated.NextRunAt,
		LastRunAt:       updated.LastRunAt,
		LastDurationMs:  updated.LastDurationMs,
	})
}

// downloadResponse is the JSON shape for a download row.
type downloadResponse struct {
	ID           int64      `json:"id"`
	Title        string     `json:"title"`
	Status       string     `json:"status"`
	Progress     float64    `json:"progress"`
	SizeBytes    int64      `json:"sizeBytes"`
	IndexerName  string     `json:"indexerName,omitempty"`
	OutputPath   string     `json:"outputPath,omitempty"`
	MovieID      *int64     `json:"movieId,omitempty"`
	SeriesID     *int64     `json:"seriesId,omitempty"`
	EpisodeID    *int64     `json:"episodeId,omitempty"`
	AlbumID      *int64     `json:"albumId,omitempty"`
	BookID       *int64     `json:"bookId,omitempty"`
	StartedAt    *time.Time `json:"startedAt,omitempty"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
	ErrorMessage string     `json:"errorMessage,omitempty"`
}

func toDownloadResponse(d *store.Download) downloadResponse {
	return downloadResponse{
		ID:           d.ID,
		Title:        d.Title,
		Status:       string(d.Status),
		Progress:     d.Progress,
		SizeBytes:    d.SizeBytes,
		IndexerName:  d.IndexerName,
		OutputPath:   d.OutputPath,
		MovieID:      d.MovieID,
		SeriesID:     d.SeriesID,
		EpisodeID:    d.EpisodeID,
		AlbumID:      d.AlbumID,
		BookID:       d.BookID,
		StartedAt:    d.StartedAt,
		CompletedAt:  d.CompletedAt,
		ErrorMessage: d.ErrorMessage,
	}
}

func (s *Server) listDownloads(c echo.Context) error {
	ctx := c.Request().Context()

	var (
		downloads []*store.Download
		err       error
	)
	if c.QueryParam("all") == "true" {
		limit := 100
		if v := c.QueryParam("limit"); v != "" {
			if n, convErr := strconv.Atoi(v); convErr == nil && n > 0 {
				limit = n
			}
		}
		downloads, err = s.store.ListRecentDownloads(ctx, limit)
	} else {
		downloads, err = s.store.ListActiveDownloads(ctx)
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	out := make([]downloadResponse, 0, len(downloads))
	for _, d := range downloads {
		out = append(out, toDownloadResponse(d))
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) cancelDownload(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid id"})
	}
	deleteData := c.QueryParam("deleteData") == "true"

	if err := s.manager.Cancel(ctx, id, deleteData); err != nil {
		if errors.Is(err, store.ErrDownloadNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "download not found"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.NoContent(http.StatusNoContent)
}

type blacklistResponse struct {
	ID              int64     `json:"id"`
	GUID            string    `json:"guid"`
	NormalizedTitle string    `json:"normalizedTitle"`
	Reason          string    `json:"reason"`
	CreatedAt       time.Time `json:"createdAt"`
}

func (s *Server) listBlacklist(c echo.Context) error {
	ctx := c.Request().Context()

	entries, err := s.store.ListBlacklist(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	out := make([]blacklistResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, blacklistResponse{
			ID:              e.ID,
			GUID:            e.GUID,
			NormalizedTitle: e.NormalizedTitle,
			Reason:          e.Reason,
			CreatedAt:       e.CreatedAt,
		})
	}
	return c.JSON(http.StatusOK, out)
}
