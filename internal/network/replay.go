package network

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/MRamiBalles/coreria/internal/events"
	"github.com/MRamiBalles/coreria/internal/infra/cache"
	"github.com/MRamiBalles/coreria/internal/infra/storage"
	"github.com/MRamiBalles/coreria/internal/platform/logger"
)

const defaultRunLimit = 20

// HistoryHandler serves recorded runs and events.
type HistoryHandler struct {
	eventLog  *events.EventLog
	runRepo   storage.RunRepository
	eventRepo storage.EventRepository
	status    *cache.StatusCache
	logger    *logger.Logger
}

// NewHistoryHandler creates a history handler. The repositories and the
// status cache may be nil; their routes then answer 503.
func NewHistoryHandler(el *events.EventLog, runRepo storage.RunRepository, eventRepo storage.EventRepository, status *cache.StatusCache, log *logger.Logger) *HistoryHandler {
	return &HistoryHandler{
		eventLog:  el,
		runRepo:   runRepo,
		eventRepo: eventRepo,
		status:    status,
		logger:    log,
	}
}

// EventsResponse is the body of GET /api/events.
type EventsResponse struct {
	Total       int            `json:"total"`
	Next        int            `json:"next"` // pass as ?since= to continue
	GeneratedAt string         `json:"generated_at"`
	Events      []events.Event `json:"events"`
}

// HandleEvents returns in-memory events.
// GET /api/events?since=N&run=ID&type=HEARTBEAT
func (hh *HistoryHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	since := 0
	if s := r.URL.Query().Get("since"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			jsonError(w, "Invalid since", http.StatusBadRequest)
			return
		}
		since = n
	}
	runID := r.URL.Query().Get("run")
	eventType := events.EventType(r.URL.Query().Get("type"))

	all, next := hh.eventLog.Since(since)
	filtered := make([]events.Event, 0, len(all))
	for _, e := range all {
		if runID != "" && e.RunID != runID {
			continue
		}
		if eventType != "" && e.Type != eventType {
			continue
		}
		filtered = append(filtered, e)
	}

	jsonStatus(w, http.StatusOK, EventsResponse{
		Total:       len(filtered),
		Next:        next,
		GeneratedAt: time.Now().Format(time.RFC3339),
		Events:      filtered,
	})
}

// HandleRuns lists recorded runs, newest first.
// GET /api/runs?limit=N
func (hh *HistoryHandler) HandleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if hh.runRepo == nil {
		jsonError(w, "Run storage disabled", http.StatusServiceUnavailable)
		return
	}

	limit := defaultRunLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			jsonError(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	runs, err := hh.runRepo.List(r.Context(), limit)
	if err != nil {
		hh.logger.Error("failed to list runs", "error", err)
		jsonError(w, "Failed to list runs", http.StatusInternalServerError)
		return
	}
	jsonStatus(w, http.StatusOK, map[string]interface{}{
		"total": len(runs),
		"runs":  runs,
	})
}

// HandleRun returns one run with its stored events.
// GET /api/run?id=ID
func (hh *HistoryHandler) HandleRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if hh.runRepo == nil || hh.eventRepo == nil {
		jsonError(w, "Run storage disabled", http.StatusServiceUnavailable)
		return
	}

	id := r.URL.Query().Get("id")
	if id == "" {
		jsonError(w, "Missing id", http.StatusBadRequest)
		return
	}

	run, err := hh.runRepo.Get(r.Context(), id)
	if errors.Is(err, storage.ErrRunNotFound) {
		jsonError(w, "Run not found", http.StatusNotFound)
		return
	}
	if err != nil {
		hh.logger.Error("failed to get run", "run", id, "error", err)
		jsonError(w, "Failed to get run", http.StatusInternalServerError)
		return
	}

	evts, err := hh.eventRepo.GetByRun(r.Context(), id)
	if err != nil {
		hh.logger.Error("failed to get run events", "run", id, "error", err)
		jsonError(w, "Failed to get run events", http.StatusInternalServerError)
		return
	}
	jsonStatus(w, http.StatusOK, map[string]interface{}{
		"run":    run,
		"events": evts,
	})
}

// HandleStatus returns the cached status of the current run.
// GET /api/status
func (hh *HistoryHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if hh.status == nil {
		jsonError(w, "Status cache disabled", http.StatusServiceUnavailable)
		return
	}

	status, err := hh.status.GetStatus(r.Context())
	if errors.Is(err, cache.ErrMiss) {
		jsonError(w, "No run yet", http.StatusNotFound)
		return
	}
	if err != nil {
		hh.logger.Warn("failed to read status cache", "error", err)
		jsonError(w, "Status unavailable", http.StatusBadGateway)
		return
	}
	jsonStatus(w, http.StatusOK, status)
}

// RegisterRoutes sets up the history API routes.
func (hh *HistoryHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/events", hh.HandleEvents)
	mux.HandleFunc("/api/runs", hh.HandleRuns)
	mux.HandleFunc("/api/run", hh.HandleRun)
	mux.HandleFunc("/api/status", hh.HandleStatus)
}
