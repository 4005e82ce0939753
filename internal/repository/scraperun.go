package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/lineform/scraper/internal/domain"
)

type scrapeRunRepo struct{}

// NewScrapeRunRepository returns a pgx-backed ScrapeRunRepository.
func NewScrapeRunRepository() ScrapeRunRepository {
	return &scrapeRunRepo{}
}

func (r *scrapeRunRepo) Start(ctx context.Context, db DBTX, startedAt time.Time) (int64, error) {
	var id int64
	err := db.QueryRow(ctx, `
		INSERT INTO scrape_runs (status, started_at) VALUES ($1, $2) RETURNING id`,
		string(domain.ScrapeRunRunning), startedAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("start scrape run: %w", err)
	}
	return id, nil
}

func (r *scrapeRunRepo) Finish(ctx context.Context, db DBTX, runID int64, status domain.ScrapeRunStatus, finishedAt time.Time, counts domain.BatchCounts, unmappable, failures int) error {
	_, err := db.Exec(ctx, `
		UPDATE scrape_runs
		SET status = $2, finished_at = $3, inserted = $4, updated = $5, confirmed = $6,
		    unavailable = $7, available = $8, unmappable = $9, failures = $10
		WHERE id = $1`,
		runID, string(status), finishedAt, counts.Inserted, counts.Updated, counts.Confirmed,
		counts.BecameUnavailable, counts.BecameAvailable, unmappable, failures)
	if err != nil {
		return fmt.Errorf("finish scrape run: %w", err)
	}
	return nil
}

func (r *scrapeRunRepo) Get(ctx context.Context, db DBTX, runID int64) (*domain.ScrapeRun, error) {
	row := db.QueryRow(ctx, `
		SELECT id, status, started_at, finished_at, inserted, updated, confirmed, unavailable, available, unmappable, failures
		FROM scrape_runs WHERE id = $1`, runID)

	var run domain.ScrapeRun
	var status string
	if err := row.Scan(&run.ID, &status, &run.StartedAt, &run.FinishedAt, &run.Inserted, &run.Updated,
		&run.Confirmed, &run.Unavailable, &run.Available, &run.Unmappable, &run.Failures); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get scrape run: %w", err)
	}
	run.Status = domain.ScrapeRunStatus(status)
	return &run, nil
}

func (r *scrapeRunRepo) FailStaleRunning(ctx context.Context, db DBTX, cutoff time.Time) (int64, error) {
	tag, err := db.Exec(ctx, `
		UPDATE scrape_runs SET status = $1, finished_at = now()
		WHERE status = $2 AND started_at < $3`,
		string(domain.ScrapeRunFailed), string(domain.ScrapeRunRunning), cutoff)
	if err != nil {
		return 0, fmt.Errorf("fail stale scrape runs: %w", err)
	}
	return tag.RowsAffected(), nil
}
