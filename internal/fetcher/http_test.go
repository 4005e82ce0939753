package fetcher

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lineform/scraper/internal/domain"
	"github.com/lineform/scraper/internal/guard"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHTTPFetcher_DiscoverDecodesSharedEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/discovery", r.URL.Path)
		require.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(discoveryEnvelope{
			Events: []discoveryEventJSON{
				{ExternalID: 555, HomeTeam: "Home", AwayTeam: "Away", KickoffUTC: time.Now().UTC().Format(time.RFC3339), Sport: "football", Tournament: "Premier League"},
			},
		})
	}))
	defer srv.Close()

	f := NewBetpawaFetcher(srv.URL, "secret", testLogger(), guard.NewCircuitBreaker(5, time.Minute))
	events, err := f.Discover(t.Context())
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, domain.ExternalMatchID(555), events[0].ExternalID)
}

func TestHTTPFetcher_FetchEventDecodesMarkets(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/events/42", r.URL.Path)
		json.NewEncoder(w).Encode(eventEnvelope{
			Markets: []marketJSON{
				{MarketID: "1X2", Outcomes: []outcomeJSON{{Label: "1", Odds: 1.9, Active: true}}},
			},
		})
	}))
	defer srv.Close()

	f := NewSportyBetFetcher(srv.URL, "", testLogger(), guard.NewCircuitBreaker(5, time.Minute))
	doc, err := f.FetchEvent(t.Context(), 42)
	require.NoError(t, err)
	require.Equal(t, domain.SportyBet, doc.Bookmaker)
	require.Len(t, doc.Markets, 1)
	require.Equal(t, "1X2", doc.Markets[0].MarketID)
}

func TestHTTPFetcher_RetriesOn503ThenSucceeds(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(discoveryEnvelope{})
	}))
	defer srv.Close()

	f := NewBet9jaFetcher(srv.URL, "", testLogger(), guard.NewCircuitBreaker(5, time.Minute))
	_, err := f.Discover(t.Context())
	require.NoError(t, err)
	require.Equal(t, 2, attempts)
}

func TestHTTPFetcher_OpenCircuitShortCircuitsWithoutHTTPCall(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	circuit := guard.NewCircuitBreaker(1, time.Minute)
	f := NewBetpawaFetcher(srv.URL, "", testLogger(), circuit)

	_, err := f.Discover(t.Context())
	require.Error(t, err)
	callsAfterFirstFailure := calls

	_, err = f.Discover(t.Context())
	require.Error(t, err)
	require.Equal(t, callsAfterFirstFailure, calls, "circuit should be open, no further HTTP calls made")
}
