package timer

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200

	// timestampLayout is fixed width so stored timestamps sort as text.
	timestampLayout = "2006-01-02T15:04:05.000000Z07:00"
)

// HistoryEntry is one persisted lifecycle event.
type HistoryEntry struct {
	ID        int64     `json:"id"`
	TimerID   string    `json:"timer_id"`
	Name      string    `json:"name"`
	Event     Event     `json:"event"`
	Duration  int64     `json:"duration"`
	Remaining int64     `json:"remaining"`
	CreatedAt time.Time `json:"created_at"`
}

// Repository persists timer lifecycle events.
type Repository interface {
	Record(ctx context.Context, event Event, info Info) error
	History(ctx context.Context, timerID string, limit int) ([]HistoryEntry, error)
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}

// SQLiteRepository stores timer history in the timer_events table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a timer history repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Record inserts one lifecycle event.
func (r *SQLiteRepository) Record(ctx context.Context, event Event, info Info) error {
	if info.ID == "" {
		return fmt.Errorf("timer id is required")
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO timer_events (timer_id, name, event, duration, remaining, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		info.ID, info.Name, string(event), info.Duration, info.Remaining,
		time.Now().UTC().Format(timestampLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting timer event: %w", err)
	}
	return nil
}

// History returns events newest first. An empty timerID returns events for
// every timer. limit defaults to 50 and is capped at 200.
func (r *SQLiteRepository) History(ctx context.Context, timerID string, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	query := `SELECT id, timer_id, name, event, duration, remaining, created_at
		 FROM timer_events`
	args := []any{}
	if timerID != "" {
		query += " WHERE timer_id = ?"
		args = append(args, timerID)
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying timer events: %w", err)
	}
	defer rows.Close()

	entries := make([]HistoryEntry, 0, limit)
	for rows.Next() {
		var entry HistoryEntry
		var event, createdAt string

		if err := rows.Scan(&entry.ID, &entry.TimerID, &entry.Name, &event,
			&entry.Duration, &entry.Remaining, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning timer event: %w", err)
		}
		entry.Event = Event(event)

		ts, err := time.Parse(timestampLayout, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing timer event timestamp %q: %w", createdAt, err)
		}
		entry.CreatedAt = ts

		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating timer events: %w", err)
	}

	return entries, nil
}

// Prune deletes events older than olderThan.
func (r *SQLiteRepository) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}

	cutoff := time.Now().UTC().Add(-olderThan).Format(timestampLayout)
	result, err := r.db.ExecContext(ctx, "DELETE FROM timer_events WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting timer events: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

// RecordingListener persists every lifecycle event to repo. Write failures
// are logged and never interrupt the countdown.
func RecordingListener(repo Repository, logger Logger) Listener {
	if logger == nil {
		logger = noopLogger{}
	}
	return func(ctx context.Context, event Event, info Info) {
		if err := repo.Record(ctx, event, info); err != nil {
			logger.Warn("failed to record timer event", "timer_id", info.ID, "event", string(event), "error", err)
		}
	}
}
