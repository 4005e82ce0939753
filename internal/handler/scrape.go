package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/lineform/scraper/internal/coordinator"
	"github.com/lineform/scraper/internal/domain"
	"github.com/lineform/scraper/internal/repository"
	"github.com/lineform/scraper/internal/scheduler"
)

// ScrapeHandler exposes on-demand cycle triggers and run status lookups.
// Thin handlers delegating to the coordinator/scheduler the scheduled path
// already uses, rather than a separate admin-only code path.
type ScrapeHandler struct {
	co        *coordinator.Coordinator
	scheduler *scheduler.Scheduler
	runs      repository.ScrapeRunRepository
	pool      repository.DBTX
}

// NewScrapeHandler constructs the handler.
func NewScrapeHandler(co *coordinator.Coordinator, sched *scheduler.Scheduler, runs repository.ScrapeRunRepository, pool repository.DBTX) *ScrapeHandler {
	return &ScrapeHandler{co: co, scheduler: sched, runs: runs, pool: pool}
}

// TriggerEvent handles POST /scrape/event/{external id}: an on-demand
// single-event refresh, reusing the same fan-out logic a scheduled cycle
// uses for one event.
func (h *ScrapeHandler) TriggerEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := parseExternalID(r)
	if !ok {
		RespondError(w, domain.ErrValidation("invalid event id"))
		return
	}

	runID, err := h.runs.Start(r.Context(), h.pool, time.Now())
	if err != nil {
		RespondError(w, domain.ErrInternal("start run", err))
		return
	}

	counts := h.co.RunSingleEvent(r.Context(), h.pool, runID, id)
	if err := h.runs.Finish(r.Context(), h.pool, runID, domain.ScrapeRunSuccess, time.Now(), counts, 0, 0); err != nil {
		RespondError(w, domain.ErrInternal("finish run", err))
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{"run_id": runID, "counts": counts})
}

// TriggerCycle handles POST /scrape: forces an immediate full cycle via
// the scheduler, so the no-overlap guarantee still applies.
func (h *ScrapeHandler) TriggerCycle(w http.ResponseWriter, r *http.Request) {
	h.scheduler.TriggerNow()
	RespondJSON(w, http.StatusAccepted, map[string]string{"status": "triggered"})
}

// GetRun handles GET /scrape/{run id}.
func (h *ScrapeHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "runID")
	runID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		RespondError(w, domain.ErrValidation("invalid run id"))
		return
	}

	run, err := h.runs.Get(r.Context(), h.pool, runID)
	if err != nil {
		RespondError(w, domain.ErrInternal("get run", err))
		return
	}
	if run == nil {
		RespondError(w, domain.ErrNotFound("scrape run", raw))
		return
	}
	RespondJSON(w, http.StatusOK, run)
}

// Stream handles GET /scrape/stream: the historical polling route,
// replaced by the GET /ws push channel.
func (h *ScrapeHandler) Stream(w http.ResponseWriter, r *http.Request) {
	RespondError(w, domain.ErrGone("GET /scrape/stream has been replaced by GET /ws"))
}
