package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/lineform/scraper/internal/domain"
)

type marketRepo struct{}

// NewMarketRepository returns a pgx-backed MarketRepository.
func NewMarketRepository() MarketRepository {
	return &marketRepo{}
}

func outcomesJSON(outcomes []domain.Outcome) ([]byte, error) {
	return json.Marshal(outcomes)
}

func categoriesSlice(categories map[domain.Category]struct{}) []string {
	out := make([]string, 0, len(categories))
	for c := range categories {
		out = append(out, string(c))
	}
	return out
}

// Upsert keys on (event_id, bookmaker, canonical_market_id, COALESCE(line, 0)),
// clearing unavailable_at since an Upsert only ever happens for markets the
// cache considers present.
func (r *marketRepo) Upsert(ctx context.Context, db DBTX, event domain.ExternalMatchID, bookmaker domain.Bookmaker, m domain.MarketInsert) error {
	outcomes, err := outcomesJSON(m.Outcomes)
	if err != nil {
		return fmt.Errorf("marshal outcomes: %w", err)
	}

	_, err = db.Exec(ctx, `
		INSERT INTO markets_current
		  (event_id, bookmaker, canonical_market_id, line, display_name, categories, outcomes, margin, observed_at, unavailable_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULL)
		ON CONFLICT (event_id, bookmaker, canonical_market_id, (COALESCE(line, 0)))
		DO UPDATE SET display_name = EXCLUDED.display_name, categories = EXCLUDED.categories,
		              outcomes = EXCLUDED.outcomes, margin = EXCLUDED.margin,
		              observed_at = EXCLUDED.observed_at, unavailable_at = NULL`,
		int64(event), string(bookmaker), m.Identity.CanonicalMarketID, nullableLine(m.Identity.LineKey),
		m.DisplayName, categoriesSlice(m.Categories), outcomes, m.Margin, m.ObservedAt)
	if err != nil {
		return fmt.Errorf("upsert market: %w", err)
	}
	return nil
}

func (r *marketRepo) MarkUnavailable(ctx context.Context, db DBTX, event domain.ExternalMatchID, bookmaker domain.Bookmaker, identity domain.MarketIdentity, at time.Time) error {
	_, err := db.Exec(ctx, `
		UPDATE markets_current SET unavailable_at = $5
		WHERE event_id = $1 AND bookmaker = $2 AND canonical_market_id = $3 AND COALESCE(line, 0) = $4`,
		int64(event), string(bookmaker), identity.CanonicalMarketID, identity.LineKey, at)
	if err != nil {
		return fmt.Errorf("mark market unavailable: %w", err)
	}
	return nil
}

func (r *marketRepo) MarkAvailable(ctx context.Context, db DBTX, event domain.ExternalMatchID, bookmaker domain.Bookmaker, identity domain.MarketIdentity, at time.Time) error {
	_, err := db.Exec(ctx, `
		UPDATE markets_current SET unavailable_at = NULL
		WHERE event_id = $1 AND bookmaker = $2 AND canonical_market_id = $3 AND COALESCE(line, 0) = $4`,
		int64(event), string(bookmaker), identity.CanonicalMarketID, identity.LineKey)
	if err != nil {
		return fmt.Errorf("mark market available: %w", err)
	}
	return nil
}

func (r *marketRepo) AppendHistory(ctx context.Context, db DBTX, p domain.HistoryPoint, confirmed bool) error {
	outcomes, err := outcomesJSON(p.Outcomes)
	if err != nil {
		return fmt.Errorf("marshal outcomes: %w", err)
	}
	_, err = db.Exec(ctx, `
		INSERT INTO markets_history
		  (event_id, bookmaker, canonical_market_id, line, captured_at, margin, outcomes, available, confirmed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		int64(p.Event), string(p.Bookmaker), p.Identity.CanonicalMarketID, nullableLine(p.Identity.LineKey),
		p.CapturedAt, p.Margin, outcomes, p.Available, confirmed)
	if err != nil {
		return fmt.Errorf("append market history: %w", err)
	}
	return nil
}

func (r *marketRepo) OddsHistory(ctx context.Context, db DBTX, event domain.ExternalMatchID, bookmaker domain.Bookmaker, identity domain.MarketIdentity, limit int) ([]domain.HistoryPoint, error) {
	rows, err := db.Query(ctx, `
		SELECT captured_at, margin, outcomes, available, confirmed
		FROM markets_history
		WHERE event_id = $1 AND bookmaker = $2 AND canonical_market_id = $3 AND COALESCE(line, 0) = $4
		ORDER BY captured_at DESC
		LIMIT $5`,
		int64(event), string(bookmaker), identity.CanonicalMarketID, identity.LineKey, limit)
	if err != nil {
		return nil, fmt.Errorf("query odds history: %w", err)
	}
	defer rows.Close()
	return scanHistoryPoints(rows, event, bookmaker, identity)
}

func (r *marketRepo) MarginHistory(ctx context.Context, db DBTX, event domain.ExternalMatchID, bookmaker domain.Bookmaker, identity domain.MarketIdentity, limit int) ([]domain.HistoryPoint, error) {
	rows, err := db.Query(ctx, `
		SELECT captured_at, margin, outcomes, available, confirmed
		FROM markets_history
		WHERE event_id = $1 AND bookmaker = $2 AND canonical_market_id = $3 AND COALESCE(line, 0) = $4 AND confirmed = false
		ORDER BY captured_at DESC
		LIMIT $5`,
		int64(event), string(bookmaker), identity.CanonicalMarketID, identity.LineKey, limit)
	if err != nil {
		return nil, fmt.Errorf("query margin history: %w", err)
	}
	defer rows.Close()
	return scanHistoryPoints(rows, event, bookmaker, identity)
}

func scanHistoryPoints(rows pgx.Rows, event domain.ExternalMatchID, bookmaker domain.Bookmaker, identity domain.MarketIdentity) ([]domain.HistoryPoint, error) {
	var points []domain.HistoryPoint
	for rows.Next() {
		var p domain.HistoryPoint
		var outcomesRaw []byte
		if err := rows.Scan(&p.CapturedAt, &p.Margin, &outcomesRaw, &p.Available, &p.Confirmed); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		if err := json.Unmarshal(outcomesRaw, &p.Outcomes); err != nil {
			return nil, fmt.Errorf("unmarshal history outcomes: %w", err)
		}
		p.Event, p.Bookmaker, p.Identity = event, bookmaker, identity
		points = append(points, p)
	}
	return points, rows.Err()
}

func (r *marketRepo) PruneHistoryBefore(ctx context.Context, db DBTX, cutoff time.Time) (int64, error) {
	tag, err := db.Exec(ctx, `DELETE FROM markets_history WHERE captured_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune market history: %w", err)
	}
	return tag.RowsAffected(), nil
}

// nullableLine returns nil for the zero line key (the COALESCE(line, 0)
// bucket), so a market with no line parameter stores SQL NULL. An explicit
// 0.0 line has the same key and is stored as NULL too, sharing one row
// with the no-line market — the column-level counterpart of
// domain.Line.Key's intentional collision.
func nullableLine(key float64) any {
	if key == 0 {
		return nil
	}
	return key
}
