// Package coordinator runs one scrape cycle end to end: discover, reconcile
// missing coverage, build the priority queue, fan out per-event fetches
// across three bookmakers under layered concurrency limits, map, change-
// detect, enqueue writes, publish push messages, and evict stale events.
// Grounded in the teacher's service-orchestration layer (a thin struct
// holding its collaborators, one public entry point per invocation shape)
// generalised from one gameplay round to one scrape cycle.
package coordinator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/lineform/scraper/internal/cache"
	"github.com/lineform/scraper/internal/domain"
	"github.com/lineform/scraper/internal/fetcher"
	"github.com/lineform/scraper/internal/mapping"
	"github.com/lineform/scraper/internal/pqueue"
	"github.com/lineform/scraper/internal/pushhub"
	"github.com/lineform/scraper/internal/repository"
	"github.com/lineform/scraper/internal/writepipeline"
)

// Config bounds the concurrency and timeouts of the fan-out.
type Config struct {
	BetpawaConcurrency   int
	SportyBetConcurrency int
	Bet9jaConcurrency    int
	EventParallelism     int
	FetchTimeout         time.Duration
	CycleDeadline        time.Duration
}

// DefaultConfig matches the spec's documented defaults.
func DefaultConfig() Config {
	return Config{
		BetpawaConcurrency:   50,
		SportyBetConcurrency: 50,
		Bet9jaConcurrency:    15,
		EventParallelism:     10,
		FetchTimeout:         20 * time.Second,
		CycleDeadline:        15 * time.Minute,
	}
}

// Coordinator owns one cycle's worth of collaborators. It holds no cycle
// state between calls beyond its fixed semaphores.
type Coordinator struct {
	cfg       Config
	cache     *cache.Cache
	fetchers  *fetcher.Registry
	mapper    *mapping.Engine
	pipeline  *writepipeline.Pipeline
	hub       *pushhub.Hub
	events    repository.EventRepository
	runs      repository.ScrapeRunRepository
	logger    *slog.Logger

	bookmakerSem map[domain.Bookmaker]*semaphore.Weighted
	eventSem     *semaphore.Weighted
}

// New builds a Coordinator. pool-level resources (DB, hub, pipeline) are
// already started; New only wires references.
func New(
	cfg Config,
	c *cache.Cache,
	fetchers *fetcher.Registry,
	mapper *mapping.Engine,
	pipeline *writepipeline.Pipeline,
	hub *pushhub.Hub,
	events repository.EventRepository,
	runs repository.ScrapeRunRepository,
	logger *slog.Logger,
) *Coordinator {
	return &Coordinator{
		cfg:      cfg,
		cache:    c,
		fetchers: fetchers,
		mapper:   mapper,
		pipeline: pipeline,
		hub:      hub,
		events:   events,
		runs:     runs,
		logger:   logger,
		bookmakerSem: map[domain.Bookmaker]*semaphore.Weighted{
			domain.Betpawa:   semaphore.NewWeighted(int64(cfg.BetpawaConcurrency)),
			domain.SportyBet: semaphore.NewWeighted(int64(cfg.SportyBetConcurrency)),
			domain.Bet9ja:    semaphore.NewWeighted(int64(cfg.Bet9jaConcurrency)),
		},
		eventSem: semaphore.NewWeighted(int64(cfg.EventParallelism)),
	}
}

// discoveryResult records, per bookmaker, which external ids were seen in
// one discovery pass.
type discoveryResult struct {
	seen map[domain.Bookmaker]map[domain.ExternalMatchID]struct{}
	meta map[domain.ExternalMatchID]domain.DiscoveredEvent
}

func newDiscoveryResult() *discoveryResult {
	return &discoveryResult{
		seen: make(map[domain.Bookmaker]map[domain.ExternalMatchID]struct{}),
		meta: make(map[domain.ExternalMatchID]domain.DiscoveredEvent),
	}
}

func (d *discoveryResult) sawEvent(b domain.Bookmaker, id domain.ExternalMatchID) bool {
	_, ok := d.seen[b][id]
	return ok
}

func (d *discoveryResult) allEvents() []domain.ExternalMatchID {
	out := make([]domain.ExternalMatchID, 0, len(d.meta))
	for id := range d.meta {
		out = append(out, id)
	}
	return out
}

// RunCycle executes the full scheduled cycle protocol and returns the
// final counts for the ScrapeRun row. db is the DBTX the caller has
// already opened against the pool (a bare pool satisfies DBTX directly).
func (co *Coordinator) RunCycle(ctx context.Context, db repository.DBTX, runID int64) domain.BatchCounts {
	ctx, cancel := context.WithTimeout(ctx, co.cfg.CycleDeadline)
	defer cancel()

	discovery := co.discover(ctx, db)
	co.reconcileMissing(ctx, db, runID, discovery)

	queue := co.buildQueue(discovery)

	var (
		mu     sync.Mutex
		totals domain.BatchCounts
	)

	var wg sync.WaitGroup
	for queue.Len() > 0 {
		item := queue.Pop()
		if err := co.eventSem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(item *pqueue.Item) {
			defer wg.Done()
			defer co.eventSem.Release(1)
			counts := co.scrapeEvent(ctx, db, runID, item.Event)
			mu.Lock()
			totals = addCounts(totals, counts)
			mu.Unlock()
		}(item)
	}
	wg.Wait()

	evicted := co.cache.EvictExpired(time.Now())
	if len(evicted) > 0 {
		co.logger.Info("evicted expired events", "count", len(evicted))
	}

	return totals
}

// RunSingleEvent performs the per-event fan-out logic (fetch, map,
// change-detect, persist, publish) for one externally supplied id, without
// a discovery pass and without the end-of-cycle eviction.
func (co *Coordinator) RunSingleEvent(ctx context.Context, db repository.DBTX, runID int64, externalID domain.ExternalMatchID) domain.BatchCounts {
	ctx, cancel := context.WithTimeout(ctx, co.cfg.FetchTimeout*3)
	defer cancel()
	return co.scrapeEvent(ctx, db, runID, externalID)
}

// discover concurrently calls each bookmaker's discovery endpoint and
// merges the results, upserting events/tournaments as they resolve so
// ApplySighting's precedence rule runs against every sighting, not just
// the canonical bookmaker's.
func (co *Coordinator) discover(ctx context.Context, db repository.DBTX) *discoveryResult {
	result := newDiscoveryResult()
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, f := range co.fetchers.All() {
		wg.Add(1)
		go func(f fetcher.Fetcher) {
			defer wg.Done()
			fetchCtx, cancel := context.WithTimeout(ctx, co.cfg.FetchTimeout)
			defer cancel()

			discovered, err := f.Discover(fetchCtx)
			if err != nil {
				co.logger.Error("discovery failed", "bookmaker", f.Bookmaker(), "error", err)
				return
			}

			mu.Lock()
			if result.seen[f.Bookmaker()] == nil {
				result.seen[f.Bookmaker()] = make(map[domain.ExternalMatchID]struct{})
			}
			for _, de := range discovered {
				result.seen[f.Bookmaker()][de.ExternalID] = struct{}{}
				result.meta[de.ExternalID] = de
				co.cache.SetKickoff(de.ExternalID, de.Kickoff)
			}
			mu.Unlock()

			for _, de := range discovered {
				co.upsertSighting(ctx, db, f.Bookmaker(), de)
			}
		}(f)
	}
	wg.Wait()
	return result
}

// upsertSighting resolves the discovered event's tournament and applies
// this bookmaker's sighting to the event row, honoring
// domain.BookmakerPrecedence via Event.ApplySighting.
func (co *Coordinator) upsertSighting(ctx context.Context, db repository.DBTX, b domain.Bookmaker, de domain.DiscoveredEvent) {
	tournamentID, err := co.events.UpsertTournament(ctx, db, domain.Tournament{
		Sport: de.Sport, Name: de.Tournament, Country: de.Country,
	})
	if err != nil {
		co.logger.Error("upsert tournament failed", "event", de.ExternalID, "bookmaker", b, "error", err)
		return
	}

	existing, err := co.events.FindByExternalID(ctx, db, de.ExternalID)
	if err != nil {
		co.logger.Error("find event failed", "event", de.ExternalID, "bookmaker", b, "error", err)
		return
	}

	event := domain.Event{ExternalID: de.ExternalID}
	if existing != nil {
		event = *existing
	}
	event.ApplySighting(b, de.HomeTeam, de.AwayTeam, de.Kickoff, tournamentID, de.Sport)

	if err := co.events.Upsert(ctx, db, event); err != nil {
		co.logger.Error("upsert event failed", "event", de.ExternalID, "bookmaker", b, "error", err)
	}
}

// reconcileMissing marks unavailable every (event, bookmaker) the cache
// already knows about but that vanished from this cycle's discovery.
func (co *Coordinator) reconcileMissing(ctx context.Context, db repository.DBTX, runID int64, discovery *discoveryResult) {
	tracked, err := co.events.ListTrackedExternalIDs(ctx, db)
	if err != nil {
		co.logger.Error("reconcile: list tracked events failed", "error", err)
		return
	}

	now := time.Now()
	for _, eventID := range tracked {
		for _, b := range domain.AllBookmakers {
			if discovery.sawEvent(b, eventID) {
				continue
			}
			if len(co.cache.GetCurrent(eventID)) == 0 {
				continue
			}
			batch := co.cache.MarkUnavailable(eventID, b, now)
			if batch.Empty() {
				continue
			}
			if err := co.pipeline.Enqueue(ctx, runID, batch); err != nil {
				co.logger.Error("reconcile: enqueue failed", "event", eventID, "bookmaker", b, "error", err)
				continue
			}
			co.publishOddsUpdate(runID, eventID, b, batch)
		}
	}
}

// buildQueue constructs the priority queue from the union of discovered
// events, using each event's current cache coverage as the tiebreaker.
func (co *Coordinator) buildQueue(discovery *discoveryResult) *pqueue.Queue {
	now := time.Now()
	items := make([]*pqueue.Item, 0, len(discovery.meta))
	for id, de := range discovery.meta {
		coverage := co.cache.CoverageFor(id)
		_, hasBetpawa := coverage[domain.Betpawa]
		items = append(items, &pqueue.Item{
			Event:        id,
			Kickoff:      de.Kickoff,
			Tier:         pqueue.TierFor(de.Kickoff, now),
			Coverage:     len(coverage),
			HasNoBetpawa: !hasBetpawa,
		})
	}
	return pqueue.New(items)
}

// scrapeEvent fans out to every bookmaker fetcher for one event, maps and
// persists whatever comes back. A single bookmaker's failure never
// cancels its siblings.
func (co *Coordinator) scrapeEvent(ctx context.Context, db repository.DBTX, runID int64, eventID domain.ExternalMatchID) domain.BatchCounts {
	var (
		mu     sync.Mutex
		totals domain.BatchCounts
		wg     sync.WaitGroup
	)

	for _, f := range co.fetchers.All() {
		wg.Add(1)
		go func(f fetcher.Fetcher) {
			defer wg.Done()

			sem := co.bookmakerSem[f.Bookmaker()]
			if err := sem.Acquire(ctx, 1); err != nil {
				return
			}
			defer sem.Release(1)

			counts := co.fetchMapPersistOne(ctx, runID, eventID, f)
			mu.Lock()
			totals = addCounts(totals, counts)
			mu.Unlock()
		}(f)
	}
	wg.Wait()
	return totals
}

func (co *Coordinator) fetchMapPersistOne(ctx context.Context, runID int64, eventID domain.ExternalMatchID, f fetcher.Fetcher) domain.BatchCounts {
	start := time.Now()
	fetchCtx, cancel := context.WithTimeout(ctx, co.cfg.FetchTimeout)
	defer cancel()

	doc, err := f.FetchEvent(fetchCtx, eventID)
	if err != nil {
		co.logger.Error("fetch failed", "event", eventID, "bookmaker", f.Bookmaker(), "error", err)
		co.publishProgress(runID, eventID, f.Bookmaker(), domain.BatchCounts{}, 0, true, time.Since(start))
		return domain.BatchCounts{}
	}

	mapper := co.mapper.MapperFor(f.Bookmaker())
	mapped := make([]domain.MappedMarket, 0, len(doc.Markets))
	unmappable := 0
	for _, raw := range doc.Markets {
		mm, reason := mapper.Map(raw)
		if reason != nil {
			unmappable++
			co.logger.Warn("unmappable market", "event", eventID, "bookmaker", f.Bookmaker(), "market_id", raw.MarketID, "reason", reason.String())
			continue
		}
		mapped = append(mapped, mm)
	}

	observedAt := time.Now()
	batch := co.cache.Put(eventID, f.Bookmaker(), mapped, observedAt)
	changed := !batch.Empty()

	if !changed {
		// Nothing changed: still route one confirmation history point
		// per market through the pipeline, instead of stopping at the
		// in-memory last_confirmed_at update.
		batch.Confirmations = co.cache.Confirm(eventID, f.Bookmaker(), observedAt)
	}

	if !batch.Empty() {
		if err := co.pipeline.Enqueue(ctx, runID, batch); err != nil {
			co.logger.Error("enqueue failed", "event", eventID, "bookmaker", f.Bookmaker(), "error", err)
		} else if changed {
			co.publishOddsUpdate(runID, eventID, f.Bookmaker(), batch)
		}
	}

	counts := batch.Counts()
	co.publishProgress(runID, eventID, f.Bookmaker(), counts, unmappable, false, time.Since(start))
	return counts
}

func addCounts(a, b domain.BatchCounts) domain.BatchCounts {
	return domain.BatchCounts{
		Inserted:          a.Inserted + b.Inserted,
		Updated:           a.Updated + b.Updated,
		Confirmed:         a.Confirmed + b.Confirmed,
		BecameUnavailable: a.BecameUnavailable + b.BecameUnavailable,
		BecameAvailable:   a.BecameAvailable + b.BecameAvailable,
	}
}

func (co *Coordinator) publishProgress(runID int64, eventID domain.ExternalMatchID, b domain.Bookmaker, counts domain.BatchCounts, unmappable int, failed bool, duration time.Duration) {
	if co.hub == nil {
		return
	}
	co.hub.Publish(pushhub.NewMessage(domain.TopicScrapeProgress, domain.ScrapeProgressPayload{
		RunID: runID, Event: int64(eventID), Bookmaker: b,
		Inserted: counts.Inserted, Updated: counts.Updated, Confirmed: counts.Confirmed,
		Unmappable: unmappable, Failed: failed, DurationMS: duration.Milliseconds(),
	}))
}

func (co *Coordinator) publishOddsUpdate(runID int64, eventID domain.ExternalMatchID, b domain.Bookmaker, batch domain.WriteBatch) {
	if co.hub == nil {
		return
	}
	co.hub.Publish(pushhub.NewMessage(domain.TopicOddsUpdates, domain.OddsUpdatePayload{
		RunID: runID, Event: int64(eventID), Bookmaker: b, Counts: batch.Counts(),
	}))
}
