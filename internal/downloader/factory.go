// Package downloader constructs concrete download clients from stored
// configuration.
package downloader

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/fetcharr/fetcharr/internal/downloader/mock"
	"github.com/fetcharr/fetcharr/internal/downloader/sabnzbd"
	"github.com/fetcharr/fetcharr/internal/downloader/types"
	"github.com/fetcharr/fetcharr/internal/gateway"
	"github.com/fetcharr/fetcharr/internal/store"
)

// NewClient builds the client implementation for a stored configuration row.
func NewClient(cfg *store.DownloadClientConfig, gw *gateway.Gateway, logger zerolog.Logger) (types.Client, error) {
	switch cfg.Type {
	case "sabnzbd":
		return sabnzbd.New(cfg, gw, logger), nil
	case "mock":
		return mock.New(), nil
	default:
		return nil, fmt.Errorf("%w: %s", types.ErrUnsupportedClient, cfg.Type)
	}
}

// StatusToDownload maps a client-reported status onto the persisted
// download state machine.
func StatusToDownload(s types.Status) store.DownloadStatus {
	switch s {
	case types.StatusQueued:
		return store.StatusQueued
	case types.StatusDownloading:
		return store.StatusDownloading
	case types.StatusPaused:
		return store.StatusPaused
	case types.StatusCompleted:
		return store.StatusCompleted
	case types.StatusFailed:
		return store.StatusFailed
	default:
		return store.StatusDownloading
	}
}
