// Package repository implements Postgres access for the scraper domain,
// one file per aggregate, following the teacher's DBTX-abstraction and
// table-per-repository layout.
package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lineform/scraper/internal/domain"
)

// DBTX abstracts pgx.Tx and pgxpool.Pool so repositories work with both,
// letting the write pipeline compose several repository calls inside one
// transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// MarketRepository provides access to markets_current and markets_history.
type MarketRepository interface {
	// Upsert writes the latest value for one canonical market identity,
	// keyed on (event, bookmaker, canonical_market_id, COALESCE(line, 0)).
	Upsert(ctx context.Context, db DBTX, event domain.ExternalMatchID, bookmaker domain.Bookmaker, m domain.MarketInsert) error

	// MarkUnavailable stamps unavailable_at on the current row.
	MarkUnavailable(ctx context.Context, db DBTX, event domain.ExternalMatchID, bookmaker domain.Bookmaker, identity domain.MarketIdentity, at time.Time) error

	// MarkAvailable clears unavailable_at on the current row.
	MarkAvailable(ctx context.Context, db DBTX, event domain.ExternalMatchID, bookmaker domain.Bookmaker, identity domain.MarketIdentity, at time.Time) error

	// AppendHistory records one immutable history point, flagged as a
	// change or as a silent confirmation.
	AppendHistory(ctx context.Context, db DBTX, p domain.HistoryPoint, confirmed bool) error

	// OddsHistory returns ordered history points for (event, bookmaker,
	// identity), most recent first, bounded by limit.
	OddsHistory(ctx context.Context, db DBTX, event domain.ExternalMatchID, bookmaker domain.Bookmaker, identity domain.MarketIdentity, limit int) ([]domain.HistoryPoint, error)

	// MarginHistory returns the change history points (confirmed = false)
	// for (event, bookmaker, identity), most recent first, bounded by
	// limit; confirmation points are left out.
	MarginHistory(ctx context.Context, db DBTX, event domain.ExternalMatchID, bookmaker domain.Bookmaker, identity domain.MarketIdentity, limit int) ([]domain.HistoryPoint, error)

	// PruneHistoryBefore deletes history rows older than cutoff, for the
	// scheduler's daily cleanup task.
	PruneHistoryBefore(ctx context.Context, db DBTX, cutoff time.Time) (int64, error)
}

// EventRepository provides access to events and tournaments.
type EventRepository interface {
	// FindByExternalID returns an event, or nil if not yet sighted.
	FindByExternalID(ctx context.Context, db DBTX, id domain.ExternalMatchID) (*domain.Event, error)

	// Upsert inserts the event on first sighting, or applies
	// ApplySighting's precedence-resolved fields on a later sighting.
	Upsert(ctx context.Context, db DBTX, e domain.Event) error

	// UpsertTournament inserts or returns the existing tournament id for
	// the (sport, name, country) natural key.
	UpsertTournament(ctx context.Context, db DBTX, t domain.Tournament) (int64, error)

	// ListTrackedExternalIDs returns every event id currently tracked,
	// for the reconciliation pass's "missing from discovery" check.
	ListTrackedExternalIDs(ctx context.Context, db DBTX) ([]domain.ExternalMatchID, error)

	// Get returns full event detail for GET /events/{id}.
	Get(ctx context.Context, db DBTX, id domain.ExternalMatchID) (*domain.Event, error)

	// List returns events matching filter for GET /events, most imminent
	// kickoff first.
	List(ctx context.Context, db DBTX, filter domain.EventFilter, limit, offset int) ([]domain.Event, error)
}

// ScrapeRunRepository provides access to scrape_runs.
type ScrapeRunRepository interface {
	// Start inserts a new RUNNING row and returns its id.
	Start(ctx context.Context, db DBTX, startedAt time.Time) (int64, error)

	// Finish transitions a run to a terminal status with its final counts.
	Finish(ctx context.Context, db DBTX, runID int64, status domain.ScrapeRunStatus, finishedAt time.Time, counts domain.BatchCounts, unmappable, failures int) error

	// Get returns one run by id, for GET /scrape/{run id}.
	Get(ctx context.Context, db DBTX, runID int64) (*domain.ScrapeRun, error)

	// FailStaleRunning marks RUNNING rows started before cutoff as FAILED,
	// used by the watchdog's sweep and its on-start rewrite.
	FailStaleRunning(ctx context.Context, db DBTX, cutoff time.Time) (int64, error)
}

// OutboxRepository provides access to the event_outbox table.
type OutboxRepository interface {
	// Insert writes an outbox row in the same transaction as the batch
	// that produced it. Never called for empty batches.
	Insert(ctx context.Context, db DBTX, draft domain.OutboxDraft) error

	// FetchUnpublished returns unpublished events for the outbox poller.
	FetchUnpublished(ctx context.Context, db DBTX, limit int) ([]OutboxRow, error)

	// MarkPublished stamps published_at on the rows with the given ids.
	MarkPublished(ctx context.Context, db DBTX, ids []int64) error
}

// OutboxRow is one persisted outbox row, as read back by the poller.
type OutboxRow struct {
	ID         int64
	Draft      domain.OutboxDraft
}
