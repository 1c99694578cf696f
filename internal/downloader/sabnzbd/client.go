// Package sabnzbd implements the download client contract against the
// SABnzbd JSON API.
package sabnzbd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/fetcharr/fetcharr/internal/downloader/types"
	"github.com/fetcharr/fetcharr/internal/gateway"
	"github.com/fetcharr/fetcharr/internal/store"
)

// Client talks to one SABnzbd instance through the gateway.
type Client struct {
	cfg    *store.DownloadClientConfig
	gw     *gateway.Gateway
	logger zerolog.Logger
}

// New creates a SABnzbd client for the given configuration.
func New(cfg *store.DownloadClientConfig, gw *gateway.Gateway, logger zerolog.Logger) *Client {
	return &Client{
		cfg: cfg,
		gw:  gw,
		logger: logger.With().
			Str("component", "sabnzbd").
			Str("client", cfg.Name).
			Logger(),
	}
}

// ProviderKey returns the gateway provider key for a download client.
func ProviderKey(clientID int64) string {
	return "downloadclient:" + strconv.FormatInt(clientID, 10)
}

func (c *Client) Type() string { return "sabnzbd" }

func (c *Client) baseURL() string {
	scheme := "http"
	if c.cfg.UseSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s:%d/api", scheme, c.cfg.Host, c.cfg.Port)
}

func (c *Client) call(ctx context.Context, params url.Values, out any) error {
	params.Set("apikey", c.cfg.APIKey)
	params.Set("output", "json")

	req, err := http.NewRequest(http.MethodGet, c.baseURL()+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.gw.Fetch(ctx, ProviderKey(c.cfg.ID), req)
	if err != nil {
		return err
	}

	if out != nil {
		if err := json.Unmarshal(resp.Body, out); err != nil {
			return fmt.Errorf("decode sabnzbd response: %w", err)
		}
	}
	return nil
}

// AddJob submits an NZB by URL and returns the assigned nzo_id.
func (c *Client) AddJob(ctx context.Context, req types.AddRequest) (string, error) {
	params := url.Values{}
	params.Set("mode", "addurl")
	params.Set("name", req.DownloadURL)
	if req.Title != "" {
		params.Set("nzbname", req.Title)
	}
	category := req.Category
	if category == "" {
		category = c.cfg.Category
	}
	if category != "" {
		params.Set("cat", category)
	}

	var result addResponse
	if err := c.call(ctx, params, &result); err != nil {
		return "", err
	}
	if !result.Status || len(result.NzoIDs) == 0 {
		return "", fmt.Errorf("sabnzbd rejected nzb: %s", result.Error)
	}

	c.logger.Info().Str("title", req.Title).Str("nzoId", result.NzoIDs[0]).Msg("nzb queued")
	return result.NzoIDs[0], nil
}

// GetJobs returns the active queue.
func (c *Client) GetJobs(ctx context.Context) ([]types.Job, error) {
	params := url.Values{}
	params.Set("mode", "queue")

	var result queueResponse
	if err := c.call(ctx, params, &result); err != nil {
		return nil, err
	}

	jobs := make([]types.Job, 0, len(result.Queue.Slots))
	for _, slot := range result.Queue.Slots {
		progress, _ := strconv.ParseFloat(slot.Percentage, 64)
		jobs = append(jobs, types.Job{
			ExternalID: slot.NzoID,
			Title:      slot.Filename,
			Status:     queueStatus(slot.Status),
			Progress:   progress,
			SizeBytes:  mbToBytes(slot.MB),
		})
	}
	return jobs, nil
}

// GetHistory returns recent finished jobs, newest first.
func (c *Client) GetHistory(ctx context.Context, limit int) ([]types.HistoryItem, error) {
	params := url.Values{}
	params.Set("mode", "history")
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var result historyResponse
	if err := c.call(ctx, params, &result); err != nil {
		return nil, err
	}

	items := make([]types.HistoryItem, 0, len(result.History.Slots))
	for _, slot := range result.History.Slots {
		item := types.HistoryItem{
			ExternalID:   slot.NzoID,
			Title:        slot.Name,
			Status:       historyStatus(slot.Status),
			SizeBytes:    slot.Bytes,
			OutputPath:   slot.Storage,
			ErrorMessage: slot.FailMessage,
		}
		if slot.Completed > 0 {
			item.CompletedAt = time.Unix(slot.Completed, 0)
		}
		items = append(items, item)
	}
	return items, nil
}

// Cancel removes a job from the queue, optionally deleting its files. Jobs
// already moved to history are deleted there instead.
func (c *Client) Cancel(ctx context.Context, externalID string, deleteData bool) error {
	params := url.Values{}
	params.Set("mode", "queue")
	params.Set("name", "delete")
	params.Set("value", externalID)
	if deleteData {
		params.Set("del_files", "1")
	}

	var result statusResponse
	if err := c.call(ctx, params, &result); err != nil {
		return err
	}
	if result.Status {
		return nil
	}

	// Not in the queue; try history.
	params = url.Values{}
	params.Set("mode", "history")
	params.Set("name", "delete")
	params.Set("value", externalID)
	if deleteData {
		params.Set("del_files", "1")
	}
	if err := c.call(ctx, params, &result); err != nil {
		return err
	}
	if !result.Status {
		return types.ErrNotFound
	}
	return nil
}

func queueStatus(s string) types.Status {
	switch strings.ToLower(s) {
	case "queued", "grabbing", "fetching", "propagating":
		return types.StatusQueued
	case "downloading", "verifying", "repairing", "extracting", "moving", "running":
		return types.StatusDownloading
	case "paused":
		return types.StatusPaused
	case "completed":
		return types.StatusCompleted
	case "failed":
		return types.StatusFailed
	default:
		return types.StatusUnknown
	}
}

func historyStatus(s string) types.Status {
	switch strings.ToLower(s) {
	case "completed":
		return types.StatusCompleted
	case "failed":
		return types.StatusFailed
	default:
		return types.StatusDownloading
	}
}

func mbToBytes(mb string) int64 {
	f, err := strconv.ParseFloat(mb, 64)
	if err != nil {
		return 0
	}
	return int64(f * 1024 * 1024)
}

// SABnzbd JSON response structures.
type addResponse struct {
	Status bool     `json:"status"`
	NzoIDs []string `json:"nzo_ids"`
	Error  string   `json:"error"`
}

type statusResponse struct {
	Status bool   `json:"status"`
	Error  string `json:"error"`
}

type queueResponse struct {
	Queue struct {
		Slots []queueSlot `json:"slots"`
	} `json:"queue"`
}

type queueSlot struct {
	NzoID      string `json:"nzo_id"`
	Filename   string `json:"filename"`
	Status     string `json:"status"`
	Percentage string `json:"percentage"`
	MB         string `json:"mb"`
}

type historyResponse struct {
	History struct {
		Slots []historySlot `json:"slots"`
	} `json:"history"`
}

type historySlot struct {
	NzoID       string `json:"nzo_id"`
	Name        string `json:"name"`
	Status      string `json:"status"`
	Bytes       int64  `json:"bytes"`
	Storage     string `json:"storage"`
	FailMessage string `json:"fail_message"`
	Completed   int64  `json:"completed"`
}
