package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/lineform/scraper/internal/domain"
	"github.com/lineform/scraper/internal/guard"
)

// HTTPFetcher is a generic bookmaker connector: it knows the base URL,
// auth header, and response decoding for one bookmaker, parametrised by
// decode functions so the three bookmakers (each with its own JSON shape)
// share one retrying HTTP client instead of three copies of it. A shared
// circuit breaker (keyed by bookmaker) trips after repeated upstream
// failures so a down bookmaker stops being hammered every cycle.
type HTTPFetcher struct {
	bookmaker domain.Bookmaker
	baseURL   string
	apiKey    string
	client    *http.Client
	logger    *slog.Logger
	circuit   *guard.CircuitBreaker

	decodeDiscovery func([]byte) ([]domain.DiscoveredEvent, error)
	decodeEvent     func([]byte, domain.ExternalMatchID) (domain.RawEventDocument, error)
}

// NewHTTPFetcher constructs a bookmaker connector. decodeDiscovery and
// decodeEvent translate that bookmaker's native JSON into the shared
// domain shapes; everything else (retry, auth header, timeouts, circuit
// breaking) is common.
func NewHTTPFetcher(
	bookmaker domain.Bookmaker,
	baseURL, apiKey string,
	logger *slog.Logger,
	circuit *guard.CircuitBreaker,
	decodeDiscovery func([]byte) ([]domain.DiscoveredEvent, error),
	decodeEvent func([]byte, domain.ExternalMatchID) (domain.RawEventDocument, error),
) *HTTPFetcher {
	return &HTTPFetcher{
		bookmaker:       bookmaker,
		baseURL:         baseURL,
		apiKey:          apiKey,
		client:          &http.Client{Timeout: 15 * time.Second},
		logger:          logger,
		circuit:         circuit,
		decodeDiscovery: decodeDiscovery,
		decodeEvent:     decodeEvent,
	}
}

func (f *HTTPFetcher) Bookmaker() domain.Bookmaker { return f.bookmaker }

func (f *HTTPFetcher) Discover(ctx context.Context) ([]domain.DiscoveredEvent, error) {
	body, err := f.guardedGet(ctx, "/discovery")
	if err != nil {
		return nil, fmt.Errorf("%s discover: %w", f.bookmaker, err)
	}
	return f.decodeDiscovery(body)
}

func (f *HTTPFetcher) FetchEvent(ctx context.Context, externalID domain.ExternalMatchID) (domain.RawEventDocument, error) {
	body, err := f.guardedGet(ctx, fmt.Sprintf("/events/%d", externalID))
	if err != nil {
		return domain.RawEventDocument{}, fmt.Errorf("%s fetch event %d: %w", f.bookmaker, externalID, err)
	}
	return f.decodeEvent(body, externalID)
}

// guardedGet checks the circuit breaker before calling get, and records
// the outcome afterwards so a string of failures opens the circuit.
func (f *HTTPFetcher) guardedGet(ctx context.Context, path string) ([]byte, error) {
	key := string(f.bookmaker)
	if result := f.circuit.Check(ctx, key); !result.Allowed {
		return nil, fmt.Errorf("%s: %s", f.bookmaker, result.Reason)
	}

	body, err := f.get(ctx, path)
	if err != nil {
		f.circuit.RecordFailure(key)
		return nil, err
	}
	f.circuit.RecordSuccess(key)
	return body, nil
}

// get performs a GET with bearer auth, making up to three attempts on
// 429/5xx or transport errors, with exponential back-off starting at 500ms.
func (f *HTTPFetcher) get(ctx context.Context, path string) ([]byte, error) {
	url := f.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if f.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+f.apiKey)
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		resp, err := f.client.Do(req)
		if err != nil {
			lastErr = err
			f.sleep(attempt)
			continue
		}

		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("%s returned %d", f.bookmaker, resp.StatusCode)
			f.logger.Warn("fetcher retry", "bookmaker", f.bookmaker, "path", path, "status", resp.StatusCode, "attempt", attempt+1)
			f.sleep(attempt)
			continue
		}

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("%s returned %d: %s", f.bookmaker, resp.StatusCode, string(body))
		}
		return body, nil
	}
	return nil, fmt.Errorf("%s failed after 3 attempts: %w", f.bookmaker, lastErr)
}

func (f *HTTPFetcher) sleep(attempt int) {
	delay := time.Duration(math.Pow(2, float64(attempt))*500) * time.Millisecond
	time.Sleep(delay)
}

// decodeJSON is a small shared helper for the per-bookmaker decode
// functions built in decode.go.
func decodeJSON[T any](body []byte) (T, error) {
	var v T
	err := json.Unmarshal(body, &v)
	return v, err
}
