package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/lineform/scraper/internal/domain"
)

type eventRepo struct{}

// NewEventRepository returns a pgx-backed EventRepository.
func NewEventRepository() EventRepository {
	return &eventRepo{}
}

func (r *eventRepo) FindByExternalID(ctx context.Context, db DBTX, id domain.ExternalMatchID) (*domain.Event, error) {
	return r.Get(ctx, db, id)
}

func (r *eventRepo) Get(ctx context.Context, db DBTX, id domain.ExternalMatchID) (*domain.Event, error) {
	row := db.QueryRow(ctx, `
		SELECT external_id, home_team, away_team, kickoff, tournament_id, sport, sourced_from
		FROM events WHERE external_id = $1`, int64(id))

	var e domain.Event
	var extID int64
	var sourcedFrom string
	if err := row.Scan(&extID, &e.HomeTeam, &e.AwayTeam, &e.Kickoff, &e.TournamentID, &e.Sport, &sourcedFrom); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	e.ExternalID = domain.ExternalMatchID(extID)
	e.SourcedFrom = domain.Bookmaker(sourcedFrom)
	return &e, nil
}

// Upsert inserts the event on first sighting. On conflict, the caller is
// expected to have already resolved ApplySighting precedence in-memory
// (via the cache's event tracker) and passes the fully-resolved Event, so
// the write simply overwrites — precedence is a read-then-decide concern,
// not something the SQL layer re-derives.
func (r *eventRepo) Upsert(ctx context.Context, db DBTX, e domain.Event) error {
	_, err := db.Exec(ctx, `
		INSERT INTO events (external_id, home_team, away_team, kickoff, tournament_id, sport, sourced_from)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (external_id) DO UPDATE SET
		  home_team = EXCLUDED.home_team, away_team = EXCLUDED.away_team,
		  kickoff = EXCLUDED.kickoff, tournament_id = EXCLUDED.tournament_id,
		  sport = EXCLUDED.sport, sourced_from = EXCLUDED.sourced_from`,
		int64(e.ExternalID), e.HomeTeam, e.AwayTeam, e.Kickoff, e.TournamentID, e.Sport, string(e.SourcedFrom))
	if err != nil {
		return fmt.Errorf("upsert event: %w", err)
	}
	return nil
}

func (r *eventRepo) UpsertTournament(ctx context.Context, db DBTX, t domain.Tournament) (int64, error) {
	var id int64
	err := db.QueryRow(ctx, `
		INSERT INTO tournaments (sport, name, country)
		VALUES ($1, $2, $3)
		ON CONFLICT (sport, name, COALESCE(country, '')) DO UPDATE SET name = EXCLUDED.name
		RETURNING id`,
		t.Sport, t.Name, t.Country).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert tournament: %w", err)
	}
	return id, nil
}

func (r *eventRepo) ListTrackedExternalIDs(ctx context.Context, db DBTX) ([]domain.ExternalMatchID, error) {
	rows, err := db.Query(ctx, `SELECT external_id FROM events WHERE kickoff > now() - interval '1 hour'`)
	if err != nil {
		return nil, fmt.Errorf("list tracked events: %w", err)
	}
	defer rows.Close()

	var ids []domain.ExternalMatchID
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan tracked event id: %w", err)
		}
		ids = append(ids, domain.ExternalMatchID(id))
	}
	return ids, rows.Err()
}

// List joins tournaments to support the tournament-name and country
// filters; kickoff window and include-started are plain predicates on
// events.kickoff. Every filter is optional and additive.
func (r *eventRepo) List(ctx context.Context, db DBTX, filter domain.EventFilter, limit, offset int) ([]domain.Event, error) {
	query := `
		SELECT e.external_id, e.home_team, e.away_team, e.kickoff, e.tournament_id, e.sport, e.sourced_from
		FROM events e
		JOIN tournaments t ON t.id = e.tournament_id
		WHERE 1 = 1`

	var args []any
	placeholder := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Tournament != "" {
		query += " AND t.name = " + placeholder(filter.Tournament)
	}
	if len(filter.Countries) > 0 {
		query += " AND t.country = ANY(" + placeholder(filter.Countries) + ")"
	}
	if filter.KickoffFrom != nil {
		query += " AND e.kickoff >= " + placeholder(*filter.KickoffFrom)
	}
	if filter.KickoffTo != nil {
		query += " AND e.kickoff <= " + placeholder(*filter.KickoffTo)
	}
	if !filter.IncludeStarted {
		query += " AND e.kickoff > now()"
	}

	query += " ORDER BY e.kickoff ASC LIMIT " + placeholder(limit) + " OFFSET " + placeholder(offset)

	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var e domain.Event
		var extID int64
		var sourcedFrom string
		if err := rows.Scan(&extID, &e.HomeTeam, &e.AwayTeam, &e.Kickoff, &e.TournamentID, &e.Sport, &sourcedFrom); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		e.ExternalID = domain.ExternalMatchID(extID)
		e.SourcedFrom = domain.Bookmaker(sourcedFrom)
		events = append(events, e)
	}
	return events, rows.Err()
}
