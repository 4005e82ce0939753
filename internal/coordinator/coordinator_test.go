package coordinator

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/lineform/scraper/internal/cache"
	"github.com/lineform/scraper/internal/domain"
	"github.com/lineform/scraper/internal/fetcher"
	"github.com/lineform/scraper/internal/mapping"
	"github.com/lineform/scraper/internal/pushhub"
	"github.com/lineform/scraper/internal/repository"
	"github.com/lineform/scraper/internal/writepipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeFetcher returns a fixed discovery list and a 1X2 market for every
// FetchEvent call, so the mapping engine has something real to chew on.
type fakeFetcher struct {
	bookmaker  domain.Bookmaker
	discovered []domain.DiscoveredEvent
	odds       [3]float64 // 1, X, 2
	failFetch  bool
}

func (f *fakeFetcher) Bookmaker() domain.Bookmaker { return f.bookmaker }

func (f *fakeFetcher) Discover(ctx context.Context) ([]domain.DiscoveredEvent, error) {
	return f.discovered, nil
}

func (f *fakeFetcher) FetchEvent(ctx context.Context, externalID domain.ExternalMatchID) (domain.RawEventDocument, error) {
	if f.failFetch {
		return domain.RawEventDocument{}, assert.AnError
	}
	return domain.RawEventDocument{
		Bookmaker:  f.bookmaker,
		ExternalID: externalID,
		Markets: []domain.RawMarket{{
			Bookmaker: f.bookmaker,
			MarketID:  "1X2",
			Outcomes: []domain.RawOutcome{
				{Label: "1", Odds: f.odds[0], Active: true},
				{Label: "X", Odds: f.odds[1], Active: true},
				{Label: "2", Odds: f.odds[2], Active: true},
			},
		}},
	}, nil
}

// memEventRepo is a minimal in-memory EventRepository stand-in so the
// coordinator's reconciliation pass can run without a database.
type memEventRepo struct {
	mu     sync.Mutex
	events map[domain.ExternalMatchID]domain.Event
}

func newMemEventRepo() *memEventRepo {
	return &memEventRepo{events: make(map[domain.ExternalMatchID]domain.Event)}
}

func (r *memEventRepo) FindByExternalID(ctx context.Context, db repository.DBTX, id domain.ExternalMatchID) (*domain.Event, error) {
	return r.Get(ctx, db, id)
}

func (r *memEventRepo) Upsert(ctx context.Context, db repository.DBTX, e domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[e.ExternalID] = e
	return nil
}

func (r *memEventRepo) UpsertTournament(ctx context.Context, db repository.DBTX, t domain.Tournament) (int64, error) {
	return 1, nil
}

func (r *memEventRepo) ListTrackedExternalIDs(ctx context.Context, db repository.DBTX) ([]domain.ExternalMatchID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.ExternalMatchID, 0, len(r.events))
	for id := range r.events {
		out = append(out, id)
	}
	return out, nil
}

func (r *memEventRepo) Get(ctx context.Context, db repository.DBTX, id domain.ExternalMatchID) (*domain.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.events[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (r *memEventRepo) List(ctx context.Context, db repository.DBTX, filter domain.EventFilter, limit, offset int) ([]domain.Event, error) {
	return nil, nil
}

func noopScrapeRunRepo() repository.ScrapeRunRepository { return nil }

func newTestCoordinator(fetchers ...fetcher.Fetcher) (*Coordinator, *cache.Cache) {
	c := cache.New()
	pipeline := writepipeline.New(nil, nil, nil, testLogger(), 100, 0)
	pipeline.SetCommitForTest(func(ctx context.Context, b domain.WriteBatch) error { return nil })
	hub := pushhub.NewHub(testLogger())

	co := New(
		DefaultConfig(),
		c,
		fetcher.NewRegistry(fetchers...),
		mapping.NewEngine(),
		pipeline,
		hub,
		newMemEventRepo(),
		noopScrapeRunRepo(),
		testLogger(),
	)
	return co, c
}

func TestRunSingleEvent_MapsAndCachesAllBookmakers(t *testing.T) {
	betpawa := &fakeFetcher{bookmaker: domain.Betpawa, odds: [3]float64{2.0, 3.0, 4.0}}
	sportybet := &fakeFetcher{bookmaker: domain.SportyBet, odds: [3]float64{2.1, 3.1, 4.1}}
	bet9ja := &fakeFetcher{bookmaker: domain.Bet9ja, odds: [3]float64{2.2, 3.2, 4.2}}

	co, c := newTestCoordinator(betpawa, sportybet, bet9ja)
	counts := co.RunSingleEvent(context.Background(), nil, 1, domain.ExternalMatchID(555))

	assert.Equal(t, 3, counts.Inserted)

	current := c.GetCurrent(domain.ExternalMatchID(555))
	require.Len(t, current, 3)
	for _, b := range domain.AllBookmakers {
		snap, ok := current[b]
		require.True(t, ok, "expected snapshot for %s", b)
		assert.Len(t, snap.Markets, 1)
	}
}

func TestRunSingleEvent_OneBookmakerFailureDoesNotBlockSiblings(t *testing.T) {
	betpawa := &fakeFetcher{bookmaker: domain.Betpawa, odds: [3]float64{2.0, 3.0, 4.0}}
	sportybet := &fakeFetcher{bookmaker: domain.SportyBet, failFetch: true}
	bet9ja := &fakeFetcher{bookmaker: domain.Bet9ja, odds: [3]float64{2.2, 3.2, 4.2}}

	co, c := newTestCoordinator(betpawa, sportybet, bet9ja)
	co.RunSingleEvent(context.Background(), nil, 1, domain.ExternalMatchID(777))

	current := c.GetCurrent(domain.ExternalMatchID(777))
	assert.Len(t, current, 2)
	assert.Contains(t, current, domain.Betpawa)
	assert.Contains(t, current, domain.Bet9ja)
	assert.NotContains(t, current, domain.SportyBet)
}

func TestRunCycle_DiscoveryFeedsQueueAndScrapesEveryEvent(t *testing.T) {
	now := time.Now()
	discovered := []domain.DiscoveredEvent{
		{ExternalID: 1001, HomeTeam: "A", AwayTeam: "B", Kickoff: now.Add(2 * time.Hour), Sport: "football"},
		{ExternalID: 1002, HomeTeam: "C", AwayTeam: "D", Kickoff: now.Add(48 * time.Hour), Sport: "football"},
	}

	betpawa := &fakeFetcher{bookmaker: domain.Betpawa, discovered: discovered, odds: [3]float64{2.0, 3.0, 4.0}}
	sportybet := &fakeFetcher{bookmaker: domain.SportyBet, discovered: discovered, odds: [3]float64{2.1, 3.1, 4.1}}
	bet9ja := &fakeFetcher{bookmaker: domain.Bet9ja, discovered: discovered, odds: [3]float64{2.2, 3.2, 4.2}}

	co, c := newTestCoordinator(betpawa, sportybet, bet9ja)
	co.RunCycle(context.Background(), nil, 1)

	assert.Len(t, c.GetCurrent(domain.ExternalMatchID(1001)), 3)
	assert.Len(t, c.GetCurrent(domain.ExternalMatchID(1002)), 3)
}

func TestRunSingleEvent_UnchangedOddsAcrossCyclesEmitConfirmation(t *testing.T) {
	betpawa := &fakeFetcher{bookmaker: domain.Betpawa, odds: [3]float64{2.0, 3.0, 4.0}}
	sportybet := &fakeFetcher{bookmaker: domain.SportyBet, odds: [3]float64{2.1, 3.1, 4.1}}
	bet9ja := &fakeFetcher{bookmaker: domain.Bet9ja, odds: [3]float64{2.2, 3.2, 4.2}}

	var mu sync.Mutex
	var committed []domain.WriteBatch

	c := cache.New()
	pipeline := writepipeline.New(nil, nil, nil, testLogger(), 100, 0)
	pipeline.SetCommitForTest(func(ctx context.Context, b domain.WriteBatch) error {
		mu.Lock()
		committed = append(committed, b)
		mu.Unlock()
		return nil
	})
	hub := pushhub.NewHub(testLogger())

	co := New(DefaultConfig(), c, fetcher.NewRegistry(betpawa, sportybet, bet9ja),
		mapping.NewEngine(), pipeline, hub, newMemEventRepo(), noopScrapeRunRepo(), testLogger())

	// First cycle: every market is new, no confirmations expected.
	firstCounts := co.RunSingleEvent(context.Background(), nil, 1, domain.ExternalMatchID(9001))
	assert.Equal(t, 3, firstCounts.Inserted)
	assert.Zero(t, firstCounts.Confirmed)

	// Second cycle: identical odds from every bookmaker, so cache.Put
	// returns an empty batch per bookmaker and the coordinator should
	// route a confirmation history point through the pipeline instead of
	// silently dropping it.
	secondCounts := co.RunSingleEvent(context.Background(), nil, 1, domain.ExternalMatchID(9001))
	assert.Zero(t, secondCounts.Inserted)
	assert.Zero(t, secondCounts.Updated)
	assert.Equal(t, 3, secondCounts.Confirmed, "one confirmation per bookmaker for the unchanged 1X2 market")

	mu.Lock()
	defer mu.Unlock()
	var confirmedBatches int
	for _, b := range committed {
		if len(b.Confirmations) > 0 {
			confirmedBatches++
			require.Len(t, b.Confirmations, 1)
			assert.True(t, b.Confirmations[0].Available)
		}
	}
	assert.Equal(t, 3, confirmedBatches, "each bookmaker's unchanged batch should reach the pipeline")
}

func TestRunCycle_ReconcilesEventsMissingFromDiscovery(t *testing.T) {
	now := time.Now()
	initial := []domain.DiscoveredEvent{
		{ExternalID: 2001, HomeTeam: "A", AwayTeam: "B", Kickoff: now.Add(2 * time.Hour), Sport: "football"},
	}

	betpawa := &fakeFetcher{bookmaker: domain.Betpawa, discovered: initial, odds: [3]float64{2.0, 3.0, 4.0}}
	sportybet := &fakeFetcher{bookmaker: domain.SportyBet, discovered: initial, odds: [3]float64{2.1, 3.1, 4.1}}
	bet9ja := &fakeFetcher{bookmaker: domain.Bet9ja, discovered: initial, odds: [3]float64{2.2, 3.2, 4.2}}

	co, c := newTestCoordinator(betpawa, sportybet, bet9ja)

	events := co.events.(*memEventRepo)
	events.events[2001] = domain.Event{ExternalID: 2001}

	co.RunCycle(context.Background(), nil, 1)
	require.Len(t, c.GetCurrent(domain.ExternalMatchID(2001)), 3)

	// Second cycle: discovery comes back empty for all bookmakers, so the
	// previously-seen event should be reconciled to unavailable.
	betpawa.discovered = nil
	sportybet.discovered = nil
	bet9ja.discovered = nil

	co.RunCycle(context.Background(), nil, 2)

	current := c.GetCurrent(domain.ExternalMatchID(2001))
	for _, snap := range current {
		for _, m := range snap.Markets {
			assert.False(t, m.IsAvailable())
		}
	}
}
