package repository

import (
	"context"
	"fmt"

	"github.com/lineform/scraper/internal/domain"
)

type outboxRepo struct{}

// NewOutboxRepository returns a pgx-backed OutboxRepository, grounded on
// the teacher's event_outbox poller pattern, repurposed here to carry
// odds-change events instead of ledger/settlement events.
func NewOutboxRepository() OutboxRepository {
	return &outboxRepo{}
}

func (r *outboxRepo) Insert(ctx context.Context, db DBTX, draft domain.OutboxDraft) error {
	_, err := db.Exec(ctx, `
		INSERT INTO event_outbox (event_id, bookmaker, event_type, canonical_market_id, line, payload, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		int64(draft.Event), string(draft.Bookmaker), string(draft.EventType),
		draft.Identity.CanonicalMarketID, nullableLine(draft.Identity.LineKey), draft.Payload, draft.OccurredAt)
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}

func (r *outboxRepo) FetchUnpublished(ctx context.Context, db DBTX, limit int) ([]OutboxRow, error) {
	rows, err := db.Query(ctx, `
		SELECT id, event_id, bookmaker, event_type, canonical_market_id, line, payload, occurred_at
		FROM event_outbox
		WHERE published_at IS NULL
		ORDER BY id ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch unpublished outbox rows: %w", err)
	}
	defer rows.Close()

	var out []OutboxRow
	for rows.Next() {
		var row OutboxRow
		var eventID int64
		var bookmaker, eventType string
		var lineKey *float64
		if err := rows.Scan(&row.ID, &eventID, &bookmaker, &eventType,
			&row.Draft.Identity.CanonicalMarketID, &lineKey, &row.Draft.Payload, &row.Draft.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		row.Draft.Event = domain.ExternalMatchID(eventID)
		row.Draft.Bookmaker = domain.Bookmaker(bookmaker)
		row.Draft.EventType = domain.OutboxEventType(eventType)
		if lineKey != nil {
			row.Draft.Identity.LineKey = *lineKey
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (r *outboxRepo) MarkPublished(ctx context.Context, db DBTX, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := db.Exec(ctx, `UPDATE event_outbox SET published_at = now() WHERE id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("mark outbox rows published: %w", err)
	}
	return nil
}
