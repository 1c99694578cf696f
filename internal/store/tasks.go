package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ScheduledTask is the persisted schedule state for one task type.
type ScheduledTask struct {
	ID              int64
	Type            string
	IntervalMinutes int
	Enabled         bool
	NextRunAt       *time.Time
	LastRunAt       *time.Time
	LastDurationMs  int64
}

// ErrTaskNotFound is returned when a scheduled task row does not exist.
var ErrTaskNotFound = errors.New("scheduled task not found")

// UpsertTask inserts a task row if absent, keeping any user-edited interval
// and enabled flag on existing rows.
func (s *Store) UpsertTask(ctx context.Context, taskType string, intervalMinutes int, enabled bool) error {
	return s.exec(ctx, "upsert task", `
		INSERT INTO scheduled_tasks (type, interval_minutes, enabled)
		VALUES (?, ?, ?)
		ON CONFLICT (type) DO NOTHING`,
		taskType, intervalMinutes, enabled)
}

const taskColumns = `id, type, interval_minutes, enabled, next_run_at, last_run_at, last_duration_ms`

func scanTask(row interface{ Scan(...any) error }) (*ScheduledTask, error) {
	var t ScheduledTask
	var next, last sql.NullString
	if err := row.Scan(&t.ID, &t.Type, &t.IntervalMinutes, &t.Enabled, &next, &last, &t.LastDurationMs); err != nil {
		return nil, err
	}
	t.NextRunAt = scanNullTime(next)
	t.LastRunAt = scanNullTime(last)
	return &t, nil
}

// ListTasks returns all scheduled task rows.
func (s *Store) ListTasks(ctx context.Context) ([]*ScheduledTask, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM scheduled_tasks ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var out []*ScheduledTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("list tasks scan: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// GetTask fetches a scheduled task by type.
func (s *Store) GetTask(ctx context.Context, taskType string) (*ScheduledTask, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM scheduled_tasks WHERE type = ?`, taskType)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// MarkTaskStarted records the start of a task execution.
func (s *Store) MarkTaskStarted(ctx context.Context, taskType string, at time.Time) error {
	return s.exec(ctx, "mark task started",
		`UPDATE scheduled_tasks SET last_run_at = ? WHERE type = ?`,
		formatTime(at), taskType)
}

// MarkTaskFinished records a completed execution and the next run time.
func (s *Store) MarkTaskFinished(ctx context.Context, taskType string, durationMs int64, nextRunAt time.Time) error {
	return s.exec(ctx, "mark task finished",
		`UPDATE scheduled_tasks SET last_duration_ms = ?, next_run_at = ? WHERE type = ?`,
		durationMs, formatTime(nextRunAt), taskType)
}

// UpdateTaskSchedule changes a task's interval and enabled flag.
func (s *Store) UpdateTaskSchedule(ctx context.Context, taskType string, intervalMinutes int, enabled bool) error {
	return s.exec(ctx, "update task schedule",
		`UPDATE scheduled_tasks SET interval_minutes = ?, enabled = ? WHERE type = ?`,
		intervalMinutes, enabled, taskType)
}
