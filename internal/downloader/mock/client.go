// Package mock is an in-memory download client used in tests and for
// development setups without a real SABnzbd instance.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fetcharr/fetcharr/internal/downloader/types"
)

// Client holds its queue and history in memory. Jobs never advance on their
// own; tests drive transitions through SetProgress, Complete, and Fail.
type Client struct {
	mu      sync.Mutex
	jobs    map[string]*types.Job
	order   []string
	history []types.HistoryItem
}

// New creates an empty mock client.
func New() *Client {
	return &Client{jobs: make(map[string]*types.Job)}
}

func (c *Client) Type() string { return "mock" }

// AddJob enqueues the request with a generated ID.
func (c *Client) AddJob(_ context.Context, req types.AddRequest) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := uuid.NewString()
	c.jobs[id] = &types.Job{
		ExternalID: id,
		Title:      req.Title,
		Status:     types.StatusQueued,
	}
	c.order = append(c.order, id)
	return id, nil
}

// GetJobs returns active jobs in insertion order.
func (c *Client) GetJobs(_ context.Context) ([]types.Job, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]types.Job, 0, len(c.order))
	for _, id := range c.order {
		if j, ok := c.jobs[id]; ok {
			out = append(out, *j)
		}
	}
	return out, nil
}

// GetHistory returns finished jobs, newest first.
func (c *Client) GetHistory(_ context.Context, limit int) ([]types.HistoryItem, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]types.HistoryItem, 0, len(c.history))
	for i := len(c.history) - 1; i >= 0; i-- {
		out = append(out, c.history[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Cancel removes a job from the queue.
func (c *Client) Cancel(_ context.Context, externalID string, _ bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.jobs[externalID]; !ok {
		return types.ErrNotFound
	}
	delete(c.jobs, externalID)
	return nil
}

// SetProgress moves a job to downloading at the given percentage.
func (c *Client) SetProgress(externalID string, progress float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if j, ok := c.jobs[externalID]; ok {
		j.Status = types.StatusDownloading
		j.Progress = progress
	}
}

// Complete moves a job from the queue into history as completed.
func (c *Client) Complete(externalID, outputPath string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	j, ok := c.jobs[externalID]
	if !ok {
		return
	}
	delete(c.jobs, externalID)
	c.history = append(c.history, types.HistoryItem{
		ExternalID:  externalID,
		Title:       j.Title,
		Status:      types.StatusCompleted,
		OutputPath:  outputPath,
		CompletedAt: time.Now(),
	})
}

// Fail moves a job from the queue into history as failed.
func (c *Client) Fail(externalID, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	j, ok := c.jobs[externalID]
	if !ok {
		return
	}
	delete(c.jobs, externalID)
	c.history = append(c.history, types.HistoryItem{
		ExternalID:   externalID,
		Title:        j.Title,
		Status:       types.StatusFailed,
		ErrorMessage: message,
		CompletedAt:  time.Now(),
	})
}

// AddHistory appends an arbitrary history item, for seeding orphan scans.
func (c *Client) AddHistory(item types.HistoryItem) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = append(c.history, item)
}
