package events

import (
	"github.com/MRamiBalles/coreria/internal/engine"
	"github.com/MRamiBalles/coreria/internal/platform/logger"
)

// ActorEngine is the actor ID used for events emitted by the loop itself.
const ActorEngine = "ENGINE"

// RunStartedPayload is attached to RUN_STARTED events.
type RunStartedPayload struct {
	Duration float64 `json:"duration"`
	TickRate float64 `json:"tick_rate"`
	Entities int     `json:"entities"`
}

// RunFinishedPayload is attached to RUN_FINISHED events.
type RunFinishedPayload struct {
	Ticks   int64   `json:"ticks"`
	Elapsed float64 `json:"elapsed"`
	WallMS  int64   `json:"wall_ms"`
	Reason  string  `json:"reason"`
}

// Recorder turns engine run lifecycle callbacks into log events.
// It implements engine.Observer.
type Recorder struct {
	eventLog *EventLog
	logger   *logger.Logger
	runID    string
	tick     int64
}

// NewRecorder creates a recorder writing to eventLog.
func NewRecorder(eventLog *EventLog, log *logger.Logger) *Recorder {
	return &Recorder{eventLog: eventLog, logger: log}
}

// RunID returns the ID of the current or last run, empty before the first run.
func (r *Recorder) RunID() string {
	return r.runID
}

// Tick returns the last completed tick number of the current run.
func (r *Recorder) Tick() int64 {
	return r.tick
}

func (r *Recorder) RunStarted(info engine.RunInfo) {
	r.runID = info.RunID.String()
	r.tick = 0
	r.append(Event{
		Timestamp: info.StartedAt,
		Type:      EventTypeRunStarted,
		RunID:     r.runID,
		ActorID:   ActorEngine,
		Payload: RunStartedPayload{
			Duration: info.Duration,
			TickRate: info.TickRate,
			Entities: info.Entities,
		},
	})
}

func (r *Recorder) TickCompleted(stats engine.TickStats) {
	r.tick = stats.Tick
}

func (r *Recorder) RunFinished(summary engine.RunSummary) {
	r.append(Event{
		Timestamp: summary.FinishedAt,
		Type:      EventTypeRunFinished,
		RunID:     r.runID,
		ActorID:   ActorEngine,
		Tick:      summary.Ticks,
		Payload: RunFinishedPayload{
			Ticks:   summary.Ticks,
			Elapsed: summary.Elapsed,
			WallMS:  summary.Wall.Milliseconds(),
			Reason:  string(summary.Reason),
		},
	})
}

func (r *Recorder) append(e Event) {
	if _, err := r.eventLog.Append(e); err != nil {
		r.logger.Error("failed to persist event", "type", e.Type, "run", e.RunID, "error", err)
	}
}
