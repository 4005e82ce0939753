package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
)

// SchedulerStateRepository persists the scheduler's configured cycle
// interval across restarts, backed by a single-row scheduler_state table.
type SchedulerStateRepository struct{}

// NewSchedulerStateRepository constructs the repository.
func NewSchedulerStateRepository() *SchedulerStateRepository { return &SchedulerStateRepository{} }

// LoadInterval returns the persisted interval, or ok=false if no row has
// been written yet.
func (r *SchedulerStateRepository) LoadInterval(ctx context.Context, db DBTX) (time.Duration, bool, error) {
	var seconds int64
	err := db.QueryRow(ctx, `SELECT cycle_interval_seconds FROM scheduler_state WHERE id = 1`).Scan(&seconds)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return time.Duration(seconds) * time.Second, true, nil
}

// SaveInterval upserts the single scheduler_state row.
func (r *SchedulerStateRepository) SaveInterval(ctx context.Context, db DBTX, interval time.Duration) error {
	_, err := db.Exec(ctx, `
		INSERT INTO scheduler_state (id, cycle_interval_seconds, updated_at)
		VALUES (1, $1, now())
		ON CONFLICT (id) DO UPDATE SET cycle_interval_seconds = $1, updated_at = now()
	`, int64(interval.Seconds()))
	return err
}
