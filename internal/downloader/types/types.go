// Package types defines the uniform contract over external download clients.
package types

import (
	"context"
	"errors"
	"time"
)

// Common errors for download clients.
var (
	ErrNotFound          = errors.New("download not found")
	ErrUnsupportedClient = errors.New("unsupported client type")
)

// Status is the normalized state reported by a download client.
type Status string

const (
	StatusQueued      Status = "queued"
	StatusDownloading Status = "downloading"
	StatusPaused      Status = "paused"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusUnknown     Status = "unknown"
)

// AddRequest enqueues a grab with a download client.
type AddRequest struct {
	DownloadURL string
	Title       string
	Category    string
}

// Job is an entry in a client's active queue.
type Job struct {
	ExternalID string
	Title      string
	Status     Status
	Progress   float64 // 0-100
	SizeBytes  int64
	OutputPath string // empty until the client reports it
}

// HistoryItem is a finished (completed or failed) client job.
type HistoryItem struct {
	ExternalID   string
	Title        string
	Status       Status
	SizeBytes    int64
	OutputPath   string
	CompletedAt  time.Time
	ErrorMessage string
}

// Client is the uniform front-end over heterogeneous download backends.
type Client interface {
	Type() string

	// AddJob enqueues a grab and returns the client-assigned job ID.
	AddJob(ctx context.Context, req AddRequest) (string, error)

	// GetJobs returns the active queue.
	GetJobs(ctx context.Context) ([]Job, error)

	// GetHistory returns recent finished jobs, newest first.
	GetHistory(ctx context.Context, limit int) ([]HistoryItem, error)

	// Cancel removes a job, optionally deleting downloaded data.
	Cancel(ctx context.Context, externalID string, deleteData bool) error
}
