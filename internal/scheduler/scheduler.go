// Package scheduler triggers scrape cycles at a configured interval,
// guarantees no overlapping runs, sweeps stale cycles with an independent
// watchdog, and runs a daily retention cleanup. Grounded in the teacher's
// background-task goroutine pattern (a single control-channel loop driven
// by a ticker, exposing Start/Stop to the bootstrap code).
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/lineform/scraper/internal/coordinator"
	"github.com/lineform/scraper/internal/domain"
	"github.com/lineform/scraper/internal/repository"
)

// Config holds the scheduler's timing knobs.
type Config struct {
	CycleInterval      time.Duration
	WatchdogInterval    time.Duration
	WatchdogStaleAfter time.Duration
	CleanupHourUTC     int
	RetentionDays      int
}

// StateStore persists the scheduler's configured interval across
// restarts, backed by a single scheduler_state row.
type StateStore interface {
	LoadInterval(ctx context.Context, db repository.DBTX) (time.Duration, bool, error)
	SaveInterval(ctx context.Context, db repository.DBTX, interval time.Duration) error
}

// Scheduler owns the cycle timer, the pause/resume flag, and the watchdog
// and cleanup timers. Not safe for concurrent Start calls; all other
// methods are.
type Scheduler struct {
	cfg         Config
	co          *coordinator.Coordinator
	runs        repository.ScrapeRunRepository
	markets     repository.MarketRepository
	db          repository.DBTX
	state       StateStore
	logger      *slog.Logger

	mu       sync.Mutex
	interval time.Duration
	paused   bool

	triggerCh chan struct{}
	setIntervalCh chan time.Duration

	cancel context.CancelFunc
}

// New constructs an idle scheduler. Call Start to begin its loops.
func New(cfg Config, co *coordinator.Coordinator, runs repository.ScrapeRunRepository, markets repository.MarketRepository, db repository.DBTX, state StateStore, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cfg:           cfg,
		co:            co,
		runs:          runs,
		markets:       markets,
		db:            db,
		state:         state,
		logger:        logger,
		interval:      cfg.CycleInterval,
		triggerCh:     make(chan struct{}, 1),
		setIntervalCh: make(chan time.Duration, 1),
	}
}

// Start launches the cycle loop, watchdog loop, and cleanup loop. It
// rewrites any RUNNING cycle row left over from a previous process before
// entering the loop, per the watchdog's on-start contract.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	if loaded, ok, err := s.state.LoadInterval(ctx, s.db); err == nil && ok {
		s.mu.Lock()
		s.interval = loaded
		s.mu.Unlock()
	} else if err != nil {
		s.logger.Warn("scheduler: load persisted interval failed", "error", err)
	}

	if n, err := s.runs.FailStaleRunning(ctx, s.db, time.Now()); err != nil {
		s.logger.Error("scheduler: on-start stale run sweep failed", "error", err)
	} else if n > 0 {
		s.logger.Info("scheduler: failed stale runs from previous process", "count", n)
	}

	go s.cycleLoop(ctx)
	go s.watchdogLoop(ctx)
	go s.cleanupLoop(ctx)

	s.logger.Info("scheduler started", "interval", s.interval)
}

// Stop cancels every loop the scheduler owns.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

// Pause suspends the cycle loop without cancelling it; a cycle already in
// flight still runs to completion.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = true
}

// Resume re-enables the cycle loop.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = false
}

// TriggerNow requests an immediate cycle, coalesced with any already
// pending trigger.
func (s *Scheduler) TriggerNow() {
	select {
	case s.triggerCh <- struct{}{}:
	default:
	}
}

// SetInterval changes the cycle interval and persists it so a restart
// resumes with the new value.
func (s *Scheduler) SetInterval(ctx context.Context, interval time.Duration) error {
	s.mu.Lock()
	s.interval = interval
	s.mu.Unlock()

	select {
	case s.setIntervalCh <- interval:
	default:
	}
	return s.state.SaveInterval(ctx, s.db, interval)
}

func (s *Scheduler) currentInterval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

// cycleLoop runs exactly one cycle at a time. If a cycle overruns the
// interval, the timer has already fired and the next tick is consumed
// immediately without starting a second concurrent cycle, per the
// no-overlap guarantee.
func (s *Scheduler) cycleLoop(ctx context.Context) {
	timer := time.NewTimer(s.currentInterval())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case newInterval := <-s.setIntervalCh:
			stopAndDrain(timer)
			timer.Reset(newInterval)

		case <-s.triggerCh:
			s.runOneCycle(ctx)
			stopAndDrain(timer)
			timer.Reset(s.currentInterval())

		case <-timer.C:
			s.mu.Lock()
			paused := s.paused
			s.mu.Unlock()
			if !paused {
				s.runOneCycle(ctx)
			}
			timer.Reset(s.currentInterval())
		}
	}
}

func stopAndDrain(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}

func (s *Scheduler) runOneCycle(ctx context.Context) {
	runID, err := s.runs.Start(ctx, s.db, time.Now())
	if err != nil {
		s.logger.Error("scheduler: start run failed", "error", err)
		return
	}

	counts := s.co.RunCycle(ctx, s.db, runID)

	if err := s.runs.Finish(ctx, s.db, runID, domain.ScrapeRunSuccess, time.Now(), counts, 0, 0); err != nil {
		s.logger.Error("scheduler: finish run failed", "run_id", runID, "error", err)
	}
}

// watchdogLoop independently sweeps cycles whose start time predates the
// stale threshold, releasing any implicit claim on pooled resources.
func (s *Scheduler) watchdogLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.WatchdogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-s.cfg.WatchdogStaleAfter)
			n, err := s.runs.FailStaleRunning(ctx, s.db, cutoff)
			if err != nil {
				s.logger.Error("watchdog: sweep failed", "error", err)
				continue
			}
			if n > 0 {
				s.logger.Warn("watchdog: failed stale cycles", "count", n)
			}
		}
	}
}

// cleanupLoop runs the daily retention trim at CleanupHourUTC, checking
// every minute rather than computing a precise next-fire duration, to
// stay correct across DST-free UTC wall-clock changes to the system
// clock.
func (s *Scheduler) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	lastRunDate := ""
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			now = now.UTC()
			today := now.Format("2006-01-02")
			if now.Hour() == s.cfg.CleanupHourUTC && lastRunDate != today {
				lastRunDate = today
				s.runCleanup(ctx)
			}
		}
	}
}

func (s *Scheduler) runCleanup(ctx context.Context) {
	cutoff := time.Now().UTC().AddDate(0, 0, -s.cfg.RetentionDays)
	n, err := s.markets.PruneHistoryBefore(ctx, s.db, cutoff)
	if err != nil {
		s.logger.Error("cleanup: prune history failed", "error", err)
		return
	}
	s.logger.Info("cleanup: pruned history", "rows", n, "cutoff", cutoff)
}
