package infra

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lineform/scraper/internal/repository"
)

// OutboxPoller polls event_outbox and publishes odds-change events to
// Kafka, repurposing the teacher's outbox-poller pattern for market
// inserts/updates/availability transitions instead of wallet events.
type OutboxPoller struct {
	pool      *pgxpool.Pool
	outbox    repository.OutboxRepository
	producer  *KafkaProducer
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
}

// NewOutboxPoller creates a new outbox poller.
func NewOutboxPoller(pool *pgxpool.Pool, outbox repository.OutboxRepository, producer *KafkaProducer, logger *slog.Logger) *OutboxPoller {
	return &OutboxPoller{
		pool:      pool,
		outbox:    outbox,
		producer:  producer,
		logger:    logger,
		interval:  500 * time.Millisecond,
		batchSize: 100,
	}
}

// Start begins polling in a goroutine. Stops when ctx is cancelled.
func (p *OutboxPoller) Start(ctx context.Context) {
	p.logger.Info("outbox poller started", "interval", p.interval, "batch_size", p.batchSize)

	go func() {
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				p.logger.Info("outbox poller stopped")
				return
			case <-ticker.C:
				if err := p.poll(ctx); err != nil {
					p.logger.Error("outbox poll error", "error", err)
				}
			}
		}
	}()
}

func (p *OutboxPoller) poll(ctx context.Context) error {
	rows, err := p.outbox.FetchUnpublished(ctx, p.pool, p.batchSize)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	var published []int64
	for _, row := range rows {
		topic := "scraper.odds." + string(row.Draft.Bookmaker)
		key := []byte(strconv.FormatInt(int64(row.Draft.Event), 10))

		msg, _ := json.Marshal(map[string]any{
			"event_id":            row.Draft.Event,
			"bookmaker":           row.Draft.Bookmaker,
			"event_type":          row.Draft.EventType,
			"canonical_market_id": row.Draft.Identity.CanonicalMarketID,
			"line":                row.Draft.Identity.LineKey,
			"payload":             json.RawMessage(row.Draft.Payload),
			"occurred_at":         row.Draft.OccurredAt,
		})

		if err := p.producer.Publish(ctx, topic, key, msg); err != nil {
			p.logger.Error("kafka publish failed", "outbox_id", row.ID, "error", err)
			continue
		}
		published = append(published, row.ID)
	}

	if len(published) == 0 {
		return nil
	}
	if err := p.outbox.MarkPublished(ctx, p.pool, published); err != nil {
		return err
	}
	p.logger.Debug("outbox poll complete", "published", len(published))
	return nil
}
