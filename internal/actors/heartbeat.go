package actors

import (
	"github.com/MRamiBalles/coreria/internal/engine"
	"github.com/MRamiBalles/coreria/internal/events"
	"github.com/MRamiBalles/coreria/internal/platform/logger"
)

// ActorHeartbeat is the actor ID on HEARTBEAT events.
const ActorHeartbeat = "HEARTBEAT"

// HeartbeatPayload is attached to HEARTBEAT events.
type HeartbeatPayload struct {
	Elapsed float64 `json:"elapsed"`
}

// Heartbeat appends a HEARTBEAT event every `every` ticks from its Render.
// Its tick count is its own: it counts the ticks it has been part of.
type Heartbeat struct {
	every    int64
	ticks    int64
	elapsed  float64
	eventLog *events.EventLog
	run      RunState
	logger   *logger.Logger
}

// NewHeartbeat creates a heartbeat firing every `every` ticks (minimum 1).
func NewHeartbeat(every int, eventLog *events.EventLog, run RunState, log *logger.Logger) *Heartbeat {
	if every < 1 {
		every = 1
	}
	return &Heartbeat{every: int64(every), eventLog: eventLog, run: run, logger: log}
}

func (h *Heartbeat) ID() string { return ActorHeartbeat }

func (h *Heartbeat) Update(dt float64) {
	h.ticks++
	h.elapsed += dt
}

func (h *Heartbeat) Render() {
	if h.ticks%h.every != 0 {
		return
	}
	e := events.Event{
		Type:    events.EventTypeHeartbeat,
		ActorID: ActorHeartbeat,
		Tick:    h.ticks,
		Payload: HeartbeatPayload{Elapsed: h.elapsed},
	}
	if h.run != nil {
		e.RunID = h.run.RunID()
		// Render runs before the engine reports the tick as completed.
		e.Tick = h.run.Tick() + 1
	}
	if _, err := h.eventLog.Append(e); err != nil {
		h.logger.Error("failed to persist heartbeat", "tick", e.Tick, "error", err)
	}
}

var _ engine.Entity = (*Heartbeat)(nil)
