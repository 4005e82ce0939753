package handler

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/lineform/scraper/internal/cache"
	"github.com/lineform/scraper/internal/domain"
	"github.com/lineform/scraper/internal/repository"
)

// EventHandler serves the read API's event endpoints, reading current
// markets from the in-memory cache and event metadata from Postgres.
type EventHandler struct {
	events repository.EventRepository
	cache  *cache.Cache
	pool   repository.DBTX
}

// NewEventHandler constructs the handler.
func NewEventHandler(events repository.EventRepository, c *cache.Cache, pool repository.DBTX) *EventHandler {
	return &EventHandler{events: events, cache: c, pool: pool}
}

// eventView is the JSON shape for one event: canonical metadata plus
// per-bookmaker current markets from the cache.
type eventView struct {
	ExternalID domain.ExternalMatchID                       `json:"external_id"`
	HomeTeam   string                                        `json:"home_team"`
	AwayTeam   string                                        `json:"away_team"`
	Kickoff    string                                        `json:"kickoff"`
	Sport      string                                        `json:"sport"`
	Markets    map[domain.Bookmaker][]domain.Market           `json:"markets"`
}

func (h *EventHandler) toView(e domain.Event) eventView {
	view := eventView{
		ExternalID: e.ExternalID,
		HomeTeam:   e.HomeTeam,
		AwayTeam:   e.AwayTeam,
		Kickoff:    e.Kickoff.Format("2006-01-02T15:04:05Z"),
		Sport:      e.Sport,
		Markets:    make(map[domain.Bookmaker][]domain.Market),
	}
	for b, snap := range h.cache.GetCurrent(e.ExternalID) {
		markets := make([]domain.Market, 0, len(snap.Markets))
		for _, m := range snap.Markets {
			markets = append(markets, m)
		}
		view.Markets[b] = markets
	}
	return view
}

// List handles GET /events. Query parameters: tournament (exact name),
// country (repeatable or comma-separated), kickoff_from/kickoff_to
// (RFC3339), include_started (bool, default false), limit, offset.
func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := parseIntDefault(q.Get("limit"), 50)
	offset := parseIntDefault(q.Get("offset"), 0)

	filter, err := parseEventFilter(q)
	if err != nil {
		RespondError(w, domain.ErrValidation(err.Error()))
		return
	}

	events, err := h.events.List(r.Context(), h.pool, filter, limit, offset)
	if err != nil {
		RespondError(w, domain.ErrInternal("list events", err))
		return
	}

	views := make([]eventView, 0, len(events))
	for _, e := range events {
		views = append(views, h.toView(e))
	}
	RespondJSON(w, http.StatusOK, views)
}

// Get handles GET /events/{id}.
func (h *EventHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseExternalID(r)
	if !ok {
		RespondError(w, domain.ErrValidation("invalid event id"))
		return
	}

	event, err := h.events.Get(r.Context(), h.pool, id)
	if err != nil {
		RespondError(w, domain.ErrInternal("get event", err))
		return
	}
	if event == nil {
		RespondError(w, domain.ErrNotFound("event", strconv.FormatInt(int64(id), 10)))
		return
	}
	RespondJSON(w, http.StatusOK, h.toView(*event))
}

func parseExternalID(r *http.Request) (domain.ExternalMatchID, bool) {
	raw := chi.URLParam(r, "id")
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return domain.ExternalMatchID(n), true
}

// parseEventFilter builds an EventFilter from GET /events' query
// parameters. country accepts either repeated "country=" values or one
// comma-separated value; kickoff bounds are RFC3339 timestamps.
func parseEventFilter(q url.Values) (domain.EventFilter, error) {
	var filter domain.EventFilter

	filter.Tournament = q.Get("tournament")

	var countries []string
	for _, raw := range q["country"] {
		for _, c := range strings.Split(raw, ",") {
			if c = strings.TrimSpace(c); c != "" {
				countries = append(countries, c)
			}
		}
	}
	filter.Countries = countries

	if raw := q.Get("kickoff_from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, fmt.Errorf("invalid kickoff_from: %w", err)
		}
		filter.KickoffFrom = &t
	}
	if raw := q.Get("kickoff_to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, fmt.Errorf("invalid kickoff_to: %w", err)
		}
		filter.KickoffTo = &t
	}

	if raw := q.Get("include_started"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return filter, fmt.Errorf("invalid include_started: %w", err)
		}
		filter.IncludeStarted = b
	}

	return filter, nil
}

func parseIntDefault(raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
