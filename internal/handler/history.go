package handler

import (
	"net/http"
	"strconv"

	"github.com/lineform/scraper/internal/domain"
	"github.com/lineform/scraper/internal/repository"
)

// HistoryHandler serves GET /history/odds and GET /history/margin.
type HistoryHandler struct {
	markets repository.MarketRepository
	pool    repository.DBTX
}

// NewHistoryHandler constructs the handler.
func NewHistoryHandler(markets repository.MarketRepository, pool repository.DBTX) *HistoryHandler {
	return &HistoryHandler{markets: markets, pool: pool}
}

func (h *HistoryHandler) parseQuery(r *http.Request) (domain.ExternalMatchID, domain.Bookmaker, domain.MarketIdentity, int, bool) {
	q := r.URL.Query()

	eventRaw := q.Get("event")
	eventN, err := strconv.ParseInt(eventRaw, 10, 64)
	if err != nil {
		return 0, "", domain.MarketIdentity{}, 0, false
	}

	bookmaker := domain.Bookmaker(q.Get("bookmaker"))
	if !bookmaker.Valid() {
		return 0, "", domain.MarketIdentity{}, 0, false
	}

	market := q.Get("market")
	if market == "" {
		return 0, "", domain.MarketIdentity{}, 0, false
	}

	var line float64
	if raw := q.Get("line"); raw != "" {
		line, err = strconv.ParseFloat(raw, 64)
		if err != nil {
			return 0, "", domain.MarketIdentity{}, 0, false
		}
	}

	limit := parseIntDefault(q.Get("limit"), 100)
	return domain.ExternalMatchID(eventN), bookmaker, domain.MarketIdentity{CanonicalMarketID: market, LineKey: line}, limit, true
}

// Odds handles GET /history/odds?event&market&bookmaker&line.
func (h *HistoryHandler) Odds(w http.ResponseWriter, r *http.Request) {
	event, bookmaker, identity, limit, ok := h.parseQuery(r)
	if !ok {
		RespondError(w, domain.ErrValidation("event, bookmaker and market are required"))
		return
	}

	points, err := h.markets.OddsHistory(r.Context(), h.pool, event, bookmaker, identity, limit)
	if err != nil {
		RespondError(w, domain.ErrInternal("odds history", err))
		return
	}
	RespondJSON(w, http.StatusOK, points)
}

// Margin handles GET /history/margin?event&market&bookmaker&line.
func (h *HistoryHandler) Margin(w http.ResponseWriter, r *http.Request) {
	event, bookmaker, identity, limit, ok := h.parseQuery(r)
	if !ok {
		RespondError(w, domain.ErrValidation("event, bookmaker and market are required"))
		return
	}

	points, err := h.markets.MarginHistory(r.Context(), h.pool, event, bookmaker, identity, limit)
	if err != nil {
		RespondError(w, domain.ErrInternal("margin history", err))
		return
	}
	RespondJSON(w, http.StatusOK, points)
}
