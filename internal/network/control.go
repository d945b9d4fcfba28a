package network

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/MRamiBalles/coreria/internal/actors"
	"github.com/MRamiBalles/coreria/internal/events"
	"github.com/MRamiBalles/coreria/internal/platform/logger"
)

// ErrSpawnQueueFull is returned by Spawn when the spawner cannot take more work.
var ErrSpawnQueueFull = errors.New("spawn queue full")

// Stopper is the part of the engine Control may call from any goroutine.
type Stopper interface {
	Stop()
	IsRunning() bool
}

// Control turns client requests into engine input. It only touches the
// engine through Stop and the spawner's queue, so it is safe to use from
// HTTP and WebSocket goroutines while a run is in progress.
type Control struct {
	engine   Stopper
	spawner  *actors.Spawner
	eventLog *events.EventLog
	logger   *logger.Logger
}

// NewControl creates the control surface.
func NewControl(eng Stopper, spawner *actors.Spawner, el *events.EventLog, log *logger.Logger) *Control {
	return &Control{engine: eng, spawner: spawner, eventLog: el, logger: log}
}

// Spawn queues a new entity of the given kind and returns its ID.
func (ctl *Control) Spawn(kind, source string) (string, error) {
	entity, err := actors.New(kind, ctl.logger)
	if err != nil {
		return "", err
	}
	id := actors.IDOf(entity)
	if !ctl.spawner.Enqueue(entity, kind, source) {
		ctl.append(events.Event{
			Type:     events.EventTypeSpawnRejected,
			ActorID:  source,
			TargetID: id,
			Payload:  actors.SpawnPayload{Kind: kind, Source: source},
		})
		ctl.logger.Event(string(events.EventTypeSpawnRejected), source, "spawn queue full, dropped "+kind)
		return "", ErrSpawnQueueFull
	}
	ctl.logger.Debug("spawn queued", "kind", kind, "id", id, "source", source)
	return id, nil
}

// Stop requests the current run to end at the next tick boundary.
func (ctl *Control) Stop(source string) {
	ctl.append(events.Event{Type: events.EventTypeStopRequested, ActorID: source})
	ctl.engine.Stop()
	ctl.logger.Event(string(events.EventTypeStopRequested), source, "stop requested")
}

func (ctl *Control) append(e events.Event) {
	if _, err := ctl.eventLog.Append(e); err != nil {
		ctl.logger.Error("failed to persist event", "type", e.Type, "error", err)
	}
}

// SpawnRequest is the body of POST /api/spawn.
type SpawnRequest struct {
	Kind string `json:"kind"`
}

// HandleSpawn queues an entity.
// POST /api/spawn {"kind":"counter"}
func (ctl *Control) HandleSpawn(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req SpawnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	id, err := ctl.Spawn(req.Kind, "api:"+r.RemoteAddr)
	switch {
	case errors.Is(err, actors.ErrUnknownKind):
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, ErrSpawnQueueFull):
		jsonError(w, err.Error(), http.StatusServiceUnavailable)
		return
	case err != nil:
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	jsonStatus(w, http.StatusAccepted, map[string]interface{}{
		"id":      id,
		"kind":    req.Kind,
		"pending": ctl.spawner.Pending(),
	})
}

// HandleStop stops the current run.
// POST /api/stop
func (ctl *Control) HandleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	wasRunning := ctl.engine.IsRunning()
	ctl.Stop("api:" + r.RemoteAddr)
	jsonStatus(w, http.StatusOK, map[string]interface{}{
		"stopped":     true,
		"was_running": wasRunning,
	})
}

// RegisterRoutes sets up the control API routes.
func (ctl *Control) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/spawn", ctl.HandleSpawn)
	mux.HandleFunc("/api/stop", ctl.HandleStop)
}

// jsonError sends an error response.
func jsonError(w http.ResponseWriter, message string, status int) {
	jsonStatus(w, status, map[string]string{"error": message})
}

// jsonStatus sends data with the given status.
func jsonStatus(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
