// Package writepipeline drains WriteBatches from the odds cache onto
// Postgres: a bounded MPSC channel in front of a small worker pool, each
// batch committed atomically in one pgx transaction together with one
// event_outbox row per changed market, with exponential back-off retry on
// failure.
package writepipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lineform/scraper/internal/domain"
	"github.com/lineform/scraper/internal/repository"
)

const (
	maxAttempts  = 3
	baseBackoff  = 500 * time.Millisecond
	capBackoff   = 8 * time.Second
)

// job pairs a batch with the run it belongs to, for observability fields.
type job struct {
	runID int64
	batch domain.WriteBatch
}

// Pipeline is the write-side of the coordinator: Enqueue hands it a
// WriteBatch, a pool of workers commits it.
type Pipeline struct {
	pool     *pgxpool.Pool
	markets  repository.MarketRepository
	outbox   repository.OutboxRepository
	logger   *slog.Logger
	queue    chan job
	workers  int

	// commitFn defaults to p.commit; overridable in tests to exercise the
	// retry/back-off loop without a live database.
	commitFn func(ctx context.Context, batch domain.WriteBatch) error
}

// New constructs a pipeline with the given queue depth and worker count.
// Call Start to begin draining.
func New(pool *pgxpool.Pool, markets repository.MarketRepository, outbox repository.OutboxRepository, logger *slog.Logger, queueDepth, workers int) *Pipeline {
	if workers < 1 {
		workers = 1
	}
	p := &Pipeline{
		pool:    pool,
		markets: markets,
		outbox:  outbox,
		logger:  logger,
		queue:   make(chan job, queueDepth),
		workers: workers,
	}
	p.commitFn = p.commit
	return p
}

// SetCommitForTest overrides the commit function used by the pipeline,
// for exercising the retry/back-off path from other packages' tests
// without a live database.
func (p *Pipeline) SetCommitForTest(fn func(ctx context.Context, batch domain.WriteBatch) error) {
	p.commitFn = fn
}

// Start launches the worker pool. Workers exit when ctx is cancelled and
// the queue has drained.
func (p *Pipeline) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		go p.worker(ctx, i)
	}
	p.logger.Info("write pipeline started", "workers", p.workers, "queue_depth", cap(p.queue))
}

// Enqueue hands a batch to the pipeline. It blocks (respecting ctx) if
// the queue is full, giving back-pressure to the coordinator's fan-out
// rather than growing memory unboundedly.
func (p *Pipeline) Enqueue(ctx context.Context, runID int64, batch domain.WriteBatch) error {
	if batch.Empty() {
		return nil
	}
	select {
	case p.queue <- job{runID: runID, batch: batch}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pipeline) worker(ctx context.Context, id int) {
	for {
		select {
		case <-ctx.Done():
			// Commit what is still queued. The cancelled ctx would fail
			// every commit, so the drain runs on a context without it.
			drainCtx := context.WithoutCancel(ctx)
			for {
				select {
				case j, ok := <-p.queue:
					if !ok {
						return
					}
					p.processWithRetry(drainCtx, j)
				default:
					return
				}
			}
		case j, ok := <-p.queue:
			if !ok {
				return
			}
			p.processWithRetry(ctx, j)
		}
	}
}

func (p *Pipeline) processWithRetry(ctx context.Context, j job) {
	backoff := baseBackoff
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := p.commitFn(ctx, j.batch)
		if err == nil {
			counts := j.batch.Counts()
			p.logger.Info("write batch committed",
				"run_id", j.runID, "event", j.batch.Event, "bookmaker", j.batch.Bookmaker,
				"inserted", counts.Inserted, "updated", counts.Updated, "confirmed", counts.Confirmed,
				"became_unavailable", counts.BecameUnavailable, "became_available", counts.BecameAvailable,
				"attempt", attempt)
			return
		}

		p.logger.Error("write batch commit failed",
			"run_id", j.runID, "event", j.batch.Event, "bookmaker", j.batch.Bookmaker,
			"attempt", attempt, "error", err)

		if attempt == maxAttempts {
			p.logger.Error("write batch dropped after max attempts",
				"run_id", j.runID, "event", j.batch.Event, "bookmaker", j.batch.Bookmaker)
			return
		}

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
		backoff *= 2
		if backoff > capBackoff {
			backoff = capBackoff
		}
	}
}

// commit writes every change in the batch inside one transaction: the
// cache state is never rolled back on failure, only the database write is
// retried, per the pipeline's documented at-least-once-to-cache,
// best-effort-to-database contract.
func (p *Pipeline) commit(ctx context.Context, batch domain.WriteBatch) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()

	for _, ins := range batch.Inserts {
		if err := p.markets.Upsert(ctx, tx, batch.Event, batch.Bookmaker, ins); err != nil {
			return err
		}
		if err := p.markets.AppendHistory(ctx, tx, domain.HistoryPoint{
			Event: batch.Event, Bookmaker: batch.Bookmaker, Identity: ins.Identity,
			CapturedAt: ins.ObservedAt, Margin: ins.Margin, Outcomes: ins.Outcomes, Available: true,
		}, false); err != nil {
			return err
		}
		if err := p.insertOutboxRow(ctx, tx, batch, domain.OutboxMarketInsert, ins.Identity, ins, now); err != nil {
			return err
		}
	}

	for _, upd := range batch.Updates {
		if err := p.markets.Upsert(ctx, tx, batch.Event, batch.Bookmaker, domain.MarketInsert(upd)); err != nil {
			return err
		}
		if err := p.markets.AppendHistory(ctx, tx, domain.HistoryPoint{
			Event: batch.Event, Bookmaker: batch.Bookmaker, Identity: upd.Identity,
			CapturedAt: upd.ObservedAt, Margin: upd.Margin, Outcomes: upd.Outcomes, Available: true,
		}, false); err != nil {
			return err
		}
		if err := p.insertOutboxRow(ctx, tx, batch, domain.OutboxMarketUpdate, upd.Identity, upd, now); err != nil {
			return err
		}
	}

	for _, una := range batch.Unavailable {
		if err := p.markets.MarkUnavailable(ctx, tx, batch.Event, batch.Bookmaker, una.Identity, una.UnavailableAt); err != nil {
			return err
		}
		if err := p.markets.AppendHistory(ctx, tx, domain.HistoryPoint{
			Event: batch.Event, Bookmaker: batch.Bookmaker, Identity: una.Identity,
			CapturedAt: una.UnavailableAt, Available: false,
		}, false); err != nil {
			return err
		}
		if err := p.insertOutboxRow(ctx, tx, batch, domain.OutboxMarketUnavailable, una.Identity, una, now); err != nil {
			return err
		}
	}

	for _, avl := range batch.Available {
		if err := p.markets.MarkAvailable(ctx, tx, batch.Event, batch.Bookmaker, avl.Identity, avl.ObservedAt); err != nil {
			return err
		}
		if err := p.insertOutboxRow(ctx, tx, batch, domain.OutboxMarketAvailable, avl.Identity, avl, now); err != nil {
			return err
		}
	}

	// Confirmations verify an unchanged market: one markets_history row
	// flagged confirmed, no markets_current write and no outbox row.
	for _, cf := range batch.Confirmations {
		if err := p.markets.AppendHistory(ctx, tx, domain.HistoryPoint{
			Event: batch.Event, Bookmaker: batch.Bookmaker, Identity: cf.Identity,
			CapturedAt: cf.ObservedAt, Margin: cf.Margin, Outcomes: cf.Outcomes, Available: cf.Available,
		}, true); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (p *Pipeline) insertOutboxRow(ctx context.Context, tx repository.DBTX, batch domain.WriteBatch, eventType domain.OutboxEventType, identity domain.MarketIdentity, payload any, occurredAt time.Time) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal outbox payload: %w", err)
	}
	return p.outbox.Insert(ctx, tx, domain.OutboxDraft{
		Event: batch.Event, Bookmaker: batch.Bookmaker, EventType: eventType,
		Identity: identity, Payload: encoded, OccurredAt: occurredAt,
	})
}
