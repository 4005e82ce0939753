package fetcher

import (
	"log/slog"
	"time"

	"github.com/lineform/scraper/internal/domain"
	"github.com/lineform/scraper/internal/guard"
)

// The three bookmakers' real wire formats are proprietary and undocumented
// outside their own client SDKs, so decodeDiscovery/decodeEvent are built
// against one shared JSON envelope here rather than three divergent ones.
// Swapping in a bookmaker's actual shape only means replacing these two
// functions per bookmaker; HTTPFetcher's retry/auth plumbing is unaffected.

type discoveryEnvelope struct {
	Events []discoveryEventJSON `json:"events"`
}

type discoveryEventJSON struct {
	ExternalID int64   `json:"external_id"`
	HomeTeam   string  `json:"home_team"`
	AwayTeam   string  `json:"away_team"`
	KickoffUTC string  `json:"kickoff_utc"`
	Sport      string  `json:"sport"`
	Tournament string  `json:"tournament"`
	Country    *string `json:"country"`
}

type eventEnvelope struct {
	Markets []marketJSON `json:"markets"`
}

type marketJSON struct {
	MarketID     string        `json:"market_id"`
	Line         *float64      `json:"line"`
	HandicapHome *float64      `json:"handicap_home"`
	Outcomes     []outcomeJSON `json:"outcomes"`
}

type outcomeJSON struct {
	Label  string  `json:"label"`
	Odds   float64 `json:"odds"`
	Active bool    `json:"active"`
}

// decodeDiscoveryEnvelope decodes the shared discovery JSON shape.
func decodeDiscoveryEnvelope(body []byte) ([]domain.DiscoveredEvent, error) {
	env, err := decodeJSON[discoveryEnvelope](body)
	if err != nil {
		return nil, err
	}

	out := make([]domain.DiscoveredEvent, 0, len(env.Events))
	for _, e := range env.Events {
		kickoff, err := time.Parse(time.RFC3339, e.KickoffUTC)
		if err != nil {
			continue
		}
		out = append(out, domain.DiscoveredEvent{
			ExternalID: domain.ExternalMatchID(e.ExternalID),
			HomeTeam:   e.HomeTeam,
			AwayTeam:   e.AwayTeam,
			Kickoff:    kickoff,
			Sport:      e.Sport,
			Tournament: e.Tournament,
			Country:    e.Country,
		})
	}
	return out, nil
}

// decodeEventEnvelope decodes the shared event-detail JSON shape into raw
// markets, tagging each with the owning bookmaker.
func decodeEventEnvelope(bookmaker domain.Bookmaker) func([]byte, domain.ExternalMatchID) (domain.RawEventDocument, error) {
	return func(body []byte, externalID domain.ExternalMatchID) (domain.RawEventDocument, error) {
		env, err := decodeJSON[eventEnvelope](body)
		if err != nil {
			return domain.RawEventDocument{}, err
		}

		markets := make([]domain.RawMarket, 0, len(env.Markets))
		for _, m := range env.Markets {
			outcomes := make([]domain.RawOutcome, 0, len(m.Outcomes))
			for _, o := range m.Outcomes {
				outcomes = append(outcomes, domain.RawOutcome{Label: o.Label, Odds: o.Odds, Active: o.Active})
			}
			markets = append(markets, domain.RawMarket{
				Bookmaker:    bookmaker,
				MarketID:     m.MarketID,
				Line:         m.Line,
				HandicapHome: m.HandicapHome,
				Outcomes:     outcomes,
			})
		}
		return domain.RawEventDocument{Bookmaker: bookmaker, ExternalID: externalID, Markets: markets}, nil
	}
}

// NewBetpawaFetcher, NewSportyBetFetcher and NewBet9jaFetcher build the
// three production fetchers over the shared envelope decoders. A base URL
// of "" means the bookmaker is not configured; callers should skip
// registering it rather than pointing an HTTPFetcher at an empty host.
func NewBetpawaFetcher(baseURL, apiKey string, logger *slog.Logger, circuit *guard.CircuitBreaker) *HTTPFetcher {
	return NewHTTPFetcher(domain.Betpawa, baseURL, apiKey, logger, circuit, decodeDiscoveryEnvelope, decodeEventEnvelope(domain.Betpawa))
}

func NewSportyBetFetcher(baseURL, apiKey string, logger *slog.Logger, circuit *guard.CircuitBreaker) *HTTPFetcher {
	return NewHTTPFetcher(domain.SportyBet, baseURL, apiKey, logger, circuit, decodeDiscoveryEnvelope, decodeEventEnvelope(domain.SportyBet))
}

func NewBet9jaFetcher(baseURL, apiKey string, logger *slog.Logger, circuit *guard.CircuitBreaker) *HTTPFetcher {
	return NewHTTPFetcher(domain.Bet9ja, baseURL, apiKey, logger, circuit, decodeDiscoveryEnvelope, decodeEventEnvelope(domain.Bet9ja))
}
