// Package blacklist suppresses re-grabs of releases that previously failed.
package blacklist

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/fetcharr/fetcharr/internal/indexer/newznab"
	"github.com/fetcharr/fetcharr/internal/store"
	"github.com/fetcharr/fetcharr/internal/title"
)

// Service filters releases against the persisted blacklist.
type Service struct {
	store  *store.Store
	logger zerolog.Logger
}

// NewService creates a blacklist service.
func NewService(st *store.Store, logger zerolog.Logger) *Service {
	return &Service{
		store:  st,
		logger: logger.With().Str("component", "blacklist").Logger(),
	}
}

// Filter returns only the releases not blacklisted by guid or by
// normalized title.
func (s *Service) Filter(ctx context.Context, releases []newznab.SearchResult) ([]newznab.SearchResult, error) {
	if len(releases) == 0 {
		return releases, nil
	}

	entries, err := s.store.ListBlacklist(ctx)
	if err != nil {
		return nil, fmt.Errorf("load blacklist: %w", err)
	}
	if len(entries) == 0 {
		return releases, nil
	}

	guids := make(map[string]struct{}, len(entries))
	titles := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if e.GUID != "" {
			guids[e.GUID] = struct{}{}
		}
		if e.NormalizedTitle != "" {
			titles[e.NormalizedTitle] = struct{}{}
		}
	}

	kept := releases[:0:0]
	for _, r := range releases {
		if _, ok := guids[r.GUID]; ok {
			continue
		}
		if _, ok := titles[title.Normalize(r.Title)]; ok {
			continue
		}
		kept = append(kept, r)
	}

	if dropped := len(releases) - len(kept); dropped > 0 {
		s.logger.Debug().Int("dropped", dropped).Msg("blacklist filtered releases")
	}
	return kept, nil
}

// Blocked reports whether a single release is blacklisted by guid or by
// normalized title.
func (s *Service) Blocked(ctx context.Context, guid, releaseTitle string) (bool, error) {
	kept, err := s.Filter(ctx, []newznab.SearchResult{{GUID: guid, Title: releaseTitle}})
	if err != nil {
		return false, err
	}
	return len(kept) == 0, nil
}

// Add records a release as known bad.
func (s *Service) Add(ctx context.Context, guid, releaseTitle, reason string) error {
	return s.store.AddBlacklistEntry(ctx, guid, title.Normalize(releaseTitle), reason)
}
