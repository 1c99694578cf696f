// Package maintenance holds the housekeeping tasks: database backups and
// blacklist retention.
package maintenance

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/fetcharr/fetcharr/internal/store"
)

// blacklistRetention is how long failed-release entries keep suppressing
// re-grabs before they age out.
const blacklistRetention = 90 * 24 * time.Hour

// backupKeep is how many backup files are retained.
const backupKeep = 7

// Service runs housekeeping against the database.
type Service struct {
	store  *store.Store
	dbPath string
	logger zerolog.Logger
}

// New creates a maintenance service. dbPath is the live SQLite file.
func New(st *store.Store, dbPath string, logger zerolog.Logger) *Service {
	return &Service{
		store:  st,
		dbPath: dbPath,
		logger: logger.With().Str("component", "maintenance").Logger(),
	}
}

// Backup snapshots the database into a timestamped file next to the live
// one and prunes old snapshots. VACUUM INTO produces a consistent copy
// while WAL writers continue.
func (s *Service) Backup(ctx context.Context) error {
	dir := filepath.Join(filepath.Dir(s.dbPath), "backups")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create backup dir: %w", err)
	}

	name := fmt.Sprintf("fetcharr-%s.db", time.Now().UTC().Format("20060102-150405"))
	target := filepath.Join(dir, name)

	if _, err := s.store.DB().ExecContext(ctx, `VACUUM INTO ?`, target); err != nil {
		return fmt.Errorf("backup database: %w", err)
	}
	s.logger.Info().Str("path", target).Msg("database backed up")

	return s.pruneBackups(dir)
}

func (s *Service) pruneBackups(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read backup dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".db" {
			names = append(names, e.Name())
		}
	}
	if len(names) <= backupKeep {
		return nil
	}

	// Timestamped names sort chronologically.
	sort.Strings(names)
	for _, name := range names[:len(names)-backupKeep] {
		if err := os.Remove(filepath.Join(dir, name)); err != nil {
			s.logger.Warn().Err(err).Str("name", name).Msg("remove old backup failed")
			continue
		}
		s.logger.Debug().Str("name", name).Msg("old backup removed")
	}
	return nil
}

// CleanBlacklist drops blacklist entries past the retention window.
func (s *Service) CleanBlacklist(ctx context.Context) error {
	removed, err := s.store.PruneBlacklist(ctx, time.Now().Add(-blacklistRetention))
	if err != nil {
		return err
	}
	if removed > 0 {
		s.logger.Info().Int64("removed", removed).Msg("blacklist pruned")
	}
	return nil
}
