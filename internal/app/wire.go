// Package app assembles the process's collaborators into a running HTTP
// server: repositories, cache, write pipeline, push hub, fetchers,
// coordinator and scheduler, wired the same way the teacher's RouterDeps
// + NewRouter wiring assembles its service layer.
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lineform/scraper/internal/cache"
	"github.com/lineform/scraper/internal/coordinator"
	"github.com/lineform/scraper/internal/fetcher"
	"github.com/lineform/scraper/internal/guard"
	"github.com/lineform/scraper/internal/handler"
	"github.com/lineform/scraper/internal/infra"
	"github.com/lineform/scraper/internal/mapping"
	"github.com/lineform/scraper/internal/pushhub"
	"github.com/lineform/scraper/internal/repository"
	"github.com/lineform/scraper/internal/scheduler"
	"github.com/lineform/scraper/internal/writepipeline"
)

// RouterDeps holds all dependencies needed by New.
type RouterDeps struct {
	Pool   *pgxpool.Pool
	Config *infra.Config
	Logger *slog.Logger
}

// buildFetchers constructs one HTTPFetcher per bookmaker with a configured
// base URL, skipping any bookmaker whose connectivity was left unset. All
// three share one circuit breaker instance, keyed internally by bookmaker,
// so a bookmaker outage trips independently of its siblings.
func buildFetchers(cfg *infra.Config, logger *slog.Logger) []fetcher.Fetcher {
	circuit := guard.NewCircuitBreaker(5, 2*time.Minute)

	var fetchers []fetcher.Fetcher
	if cfg.BetpawaBaseURL != "" {
		fetchers = append(fetchers, fetcher.NewBetpawaFetcher(cfg.BetpawaBaseURL, cfg.BetpawaAPIKey, logger, circuit))
	}
	if cfg.SportyBetBaseURL != "" {
		fetchers = append(fetchers, fetcher.NewSportyBetFetcher(cfg.SportyBetBaseURL, cfg.SportyBetAPIKey, logger, circuit))
	}
	if cfg.Bet9jaBaseURL != "" {
		fetchers = append(fetchers, fetcher.NewBet9jaFetcher(cfg.Bet9jaBaseURL, cfg.Bet9jaAPIKey, logger, circuit))
	}
	return fetchers
}

// App bundles everything bootstrap needs to start and stop the process.
type App struct {
	Router       chi.Router
	Hub          *pushhub.Hub
	Pipeline     *writepipeline.Pipeline
	Scheduler    *scheduler.Scheduler
	OutboxPoller *infra.OutboxPoller
}

// New assembles the full dependency graph and returns the router plus the
// background services the caller must Start/Stop.
func New(deps RouterDeps) *App {
	pool := deps.Pool
	cfg := deps.Config
	logger := deps.Logger

	marketRepo := repository.NewMarketRepository()
	eventRepo := repository.NewEventRepository()
	runRepo := repository.NewScrapeRunRepository()
	outboxRepo := repository.NewOutboxRepository()
	stateRepo := repository.NewSchedulerStateRepository()

	oddsCache := cache.New()
	mapper := mapping.NewEngine()
	hub := pushhub.NewHub(logger)

	pipeline := writepipeline.New(pool, marketRepo, outboxRepo, logger, cfg.WriteQueueDepth, cfg.WriteWorkers)

	kafkaProducer := infra.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaEnabled, logger)
	outboxPoller := infra.NewOutboxPoller(pool, outboxRepo, kafkaProducer, logger)

	registry := fetcher.NewRegistry(buildFetchers(cfg, logger)...)

	coordCfg := coordinator.DefaultConfig()
	coordCfg.BetpawaConcurrency = cfg.BetpawaConcurrency
	coordCfg.SportyBetConcurrency = cfg.SportyBetConcurrency
	coordCfg.Bet9jaConcurrency = cfg.Bet9jaConcurrency
	coordCfg.EventParallelism = cfg.EventParallelism
	coordCfg.CycleDeadline = cfg.CycleDeadline
	co := coordinator.New(coordCfg, oddsCache, registry, mapper, pipeline, hub, eventRepo, runRepo, logger)

	schedCfg := scheduler.Config{
		CycleInterval:      cfg.CycleInterval,
		WatchdogInterval:   cfg.WatchdogInterval,
		WatchdogStaleAfter: cfg.WatchdogStaleAfter,
		CleanupHourUTC:     cfg.CleanupHourUTC,
		RetentionDays:      cfg.RetentionDays,
	}
	sched := scheduler.New(schedCfg, co, runRepo, marketRepo, pool, stateRepo, logger)

	eventHandler := handler.NewEventHandler(eventRepo, oddsCache, pool)
	historyHandler := handler.NewHistoryHandler(marketRepo, pool)
	scrapeHandler := handler.NewScrapeHandler(co, sched, runRepo, pool)
	wsHandler := handler.NewWSHandler(hub, cfg.CORSAllowedOrigins, logger)

	// On-demand scrape triggers are the only externally writable surface;
	// rate limit by client IP so a misbehaving caller cannot force
	// back-to-back cycles outside the scheduler's own pacing.
	scrapeLimiter := guard.NewRateLimiter(10, time.Minute)
	rateLimited := handler.RateLimitMiddleware(scrapeLimiter, handler.ClientIP)

	r := chi.NewRouter()
	r.Use(handler.Recovery(logger))
	r.Use(handler.RequestID)
	r.Use(handler.RequestLogger(logger))
	r.Use(handler.CORSWithOrigins(cfg.CORSAllowedOrigins))
	r.Use(handler.JSONContentType)

	r.Get("/health", handler.HealthHandler(pool))

	r.Get("/events", eventHandler.List)
	r.Get("/events/{id}", eventHandler.Get)
	r.Get("/history/odds", historyHandler.Odds)
	r.Get("/history/margin", historyHandler.Margin)

	r.With(rateLimited).Post("/scrape/event/{id}", scrapeHandler.TriggerEvent)
	r.With(rateLimited).Post("/scrape", scrapeHandler.TriggerCycle)
	r.Get("/scrape/{runID}", scrapeHandler.GetRun)
	r.Get("/scrape/stream", scrapeHandler.Stream)

	r.Get("/ws", wsHandler.ServeHTTP)

	return &App{Router: r, Hub: hub, Pipeline: pipeline, Scheduler: sched, OutboxPoller: outboxPoller}
}

// Start launches the background services: the push hub's broadcast loop,
// the write pipeline's worker pool, the outbox/Kafka bridge, and the
// scheduler's cycle/watchdog/cleanup loops.
func (a *App) Start(ctx context.Context) {
	go a.Hub.Run(ctx)
	a.Pipeline.Start(ctx)
	a.OutboxPoller.Start(ctx)
	a.Scheduler.Start(ctx)
}

// Stop releases the scheduler's loops. The hub and pipeline goroutines
// stop on ctx cancellation from the caller's own context.
func (a *App) Stop() {
	a.Scheduler.Stop()
}
