// Package scheduler runs the background tasks on persisted intervals.
// Schedule state (interval, enabled, last/next run) lives in the database
// so it survives restarts and can be edited through the API.
package scheduler

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"

	"github.com/fetcharr/fetcharr/internal/config"
	"github.com/fetcharr/fetcharr/internal/store"
)

// Task types.
const (
	TaskDownloadMonitor  = "download-monitor"
	TaskCompletedScanner = "completed-scanner"
	TaskRSSSync          = "rss-sync"
	TaskRequestedSearch  = "requested-search"
	TaskBackup           = "backup"
	TaskBlacklistCleanup = "blacklist-cleanup"
)

// Startup stagger bounds: overdue tasks fire between these two offsets
// after Start, so a restart does not slam every provider at once.
const (
	staggerMin = 5 * time.Second
	staggerMax = 60 * time.Second
)

// TaskFunc is the function signature for scheduled tasks.
type TaskFunc func(ctx context.Context) error

// TaskConfig describes one registerable task and its default interval.
type TaskConfig struct {
	Type     string
	Name     string
	Interval time.Duration
	Func     TaskFunc
}

type taskEntry struct {
	config  TaskConfig
	job     gocron.Job
	running bool
}

// Scheduler manages the background task set.
type Scheduler struct {
	gocron    gocron.Scheduler
	store     *store.Store
	logger    zerolog.Logger
	overrides map[string]config.TaskOverride

	mu    sync.RWMutex
	tasks map[string]*taskEntry
}

// New creates a scheduler. overrides may be nil.
func New(st *store.Store, overrides map[string]config.TaskOverride, logger zerolog.Logger) (*Scheduler, error) {
	gs, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create gocron scheduler: %w", err)
	}
	return &Scheduler{
		gocron:    gs,
		store:     st,
		logger:    logger.With().Str("component", "scheduler").Logger(),
		overrides: overrides,
		tasks:     make(map[string]*taskEntry),
	}, nil
}

// RegisterTask adds a task definition. Registration must happen before Start.
func (s *Scheduler) RegisterTask(cfg TaskConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[cfg.Type]; exists {
		return fmt.Errorf("task %q already registered", cfg.Type)
	}
	s.tasks[cfg.Type] = &taskEntry{config: cfg}
	return nil
}

// Start persists schedule rows for all registered tasks, applies config
// overrides, and schedules the enabled ones. Tasks whose persisted next run
// is already past start after a short random stagger instead of immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for taskType, entry := range s.tasks {
		minutes := int(entry.config.Interval / time.Minute)
		if minutes < 1 {
			minutes = 1
		}
		if err := s.store.UpsertTask(ctx, taskType, minutes, true); err != nil {
			return err
		}

		if o, ok := s.overrides[taskType]; ok {
			row, err := s.store.GetTask(ctx, taskType)
			if err != nil {
				return err
			}
			interval, enabled := row.IntervalMinutes, row.Enabled
			if o.IntervalMinutes > 0 {
				interval = o.IntervalMinutes
			}
			if o.Enabled != nil {
				enabled = *o.Enabled
			}
			if err := s.store.UpdateTaskSchedule(ctx, taskType, interval, enabled); err != nil {
				return err
			}
		}

		row, err := s.store.GetTask(ctx, taskType)
		if err != nil {
			return err
		}
		if !row.Enabled {
			s.logger.Info().Str("task", taskType).Msg("task disabled, not scheduling")
			continue
		}

		if err := s.scheduleLocked(entry, row); err != nil {
			return err
		}
	}

	s.gocron.Start()
	s.logger.Info().Int("tasks", len(s.tasks)).Msg("scheduler started")
	return nil
}

// scheduleLocked creates the gocron job for a task. Callers hold s.mu.
func (s *Scheduler) scheduleLocked(entry *taskEntry, row *store.ScheduledTask) error {
	interval := time.Duration(row.IntervalMinutes) * time.Minute
	taskType := entry.config.Type

	firstRun := time.Now().Add(stagger())
	if row.NextRunAt != nil && row.NextRunAt.After(firstRun) {
		firstRun = *row.NextRunAt
	}

	job, err := s.gocron.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() { s.executeTask(taskType) }),
		gocron.WithName(entry.config.Name),
		gocron.WithTags(taskType),
		gocron.WithStartAt(gocron.WithStartDateTime(firstRun)),
	)
	if err != nil {
		return fmt.Errorf("schedule task %q: %w", taskType, err)
	}
	entry.job = job

	s.logger.Info().
		Str("task", taskType).
		Dur("interval", interval).
		Time("firstRun", firstRun).
		Msg("task scheduled")
	return nil
}

func stagger() time.Duration {
	return staggerMin + time.Duration(rand.Int63n(int64(staggerMax-staggerMin)))
}

// executeTask runs one task, recording run state in the database.
func (s *Scheduler) executeTask(taskType string) {
	s.mu.Lock()
	entry, exists := s.tasks[taskType]
	if !exists || entry.running {
		s.mu.Unlock()
		return
	}
	entry.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		entry.running = false
		s.mu.Unlock()
	}()

	ctx := context.Background()
	start := time.Now()
	if err := s.store.MarkTaskStarted(ctx, taskType, start); err != nil {
		s.logger.Error().Err(err).Str("task", taskType).Msg("mark task started failed")
	}

	err := entry.config.Func(ctx)
	duration := time.Since(start)

	nextRun := start.Add(time.Minute)
	if entry.job != nil {
		if n, jobErr := entry.job.NextRun(); jobErr == nil {
			nextRun = n
		}
	}
	if markErr := s.store.MarkTaskFinished(ctx, taskType, duration.Milliseconds(), nextRun); markErr != nil {
		s.logger.Error().Err(markErr).Str("task", taskType).Msg("mark task finished failed")
	}

	if err != nil {
		s.logger.Error().Err(err).Str("task", taskType).Dur("duration", duration).Msg("task failed")
		return
	}
	s.logger.Info().Str("task", taskType).Dur("duration", duration).Msg("task completed")
}

// Trigger runs a task immediately, off the schedule.
func (s *Scheduler) Trigger(taskType string) error {
	s.mu.RLock()
	entry, exists := s.tasks[taskType]
	running := exists && entry.running
	s.mu.RUnlock()

	if !exists {
		return fmt.Errorf("task %q not found", taskType)
	}
	if running {
		return fmt.Errorf("task %q is already running", taskType)
	}

	go s.executeTask(taskType)
	return nil
}

// UpdateTask changes a task's interval or enabled flag and reschedules it.
func (s *Scheduler) UpdateTask(ctx context.Context, taskType string, intervalMinutes int, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.tasks[taskType]
	if !exists {
		return fmt.Errorf("task %q not found", taskType)
	}
	if intervalMinutes < 1 {
		return fmt.Errorf("interval must be at least one minute")
	}

	if err := s.store.UpdateTaskSchedule(ctx, taskType, intervalMinutes, enabled); err != nil {
		return err
	}

	if entry.job != nil {
		if err := s.gocron.RemoveJob(entry.job.ID()); err != nil {
			s.logger.Warn().Err(err).Str("task", taskType).Msg("remove old job failed")
		}
		entry.job = nil
	}
	if !enabled {
		s.logger.Info().Str("task", taskType).Msg("task disabled")
		return nil
	}

	row, err := s.store.GetTask(ctx, taskType)
	if err != nil {
		return err
	}
	return s.scheduleLocked(entry, row)
}

// Running reports whether a task is currently executing.
func (s *Scheduler) Running(taskType string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, exists := s.tasks[taskType]
	return exists && entry.running
}

// Stop shuts the scheduler down, waiting for running jobs.
func (s *Scheduler) Stop() error {
	s.logger.Info().Msg("stopping scheduler")
	return s.gocron.Shutdown()
}
