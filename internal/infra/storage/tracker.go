package storage

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"github.com/MRamiBalles/coreria/internal/engine"
	"github.com/MRamiBalles/coreria/internal/events"
	"github.com/MRamiBalles/coreria/internal/platform/logger"
)

// writeTimeout bounds a single database write issued from the run loop.
const writeTimeout = 2 * time.Second

// RunTracker records every Engine.Run in the run repository.
// It implements engine.Observer.
type RunTracker struct {
	repo   RunRepository
	logger *logger.Logger
	run    Run
}

// NewRunTracker creates a tracker writing to repo.
func NewRunTracker(repo RunRepository, log *logger.Logger) *RunTracker {
	return &RunTracker{repo: repo, logger: log}
}

func (t *RunTracker) RunStarted(info engine.RunInfo) {
	t.run = Run{
		ID:        info.RunID.String(),
		StartedAt: info.StartedAt,
		TickRate:  info.TickRate,
		Entities:  info.Entities,
	}
	if !math.IsInf(info.Duration, 0) && !math.IsNaN(info.Duration) {
		d := info.Duration
		t.run.Duration = &d
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := t.repo.Create(ctx, t.run); err != nil {
		t.logger.Error("failed to record run start", "run", t.run.ID, "error", err)
	}
}

func (t *RunTracker) TickCompleted(engine.TickStats) {}

func (t *RunTracker) RunFinished(summary engine.RunSummary) {
	finished := summary.FinishedAt
	t.run.FinishedAt = &finished
	t.run.Ticks = summary.Ticks
	t.run.Elapsed = summary.Elapsed
	t.run.WallMS = summary.Wall.Milliseconds()
	t.run.Reason = string(summary.Reason)

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := t.repo.Finish(ctx, t.run); err != nil {
		t.logger.Error("failed to record run finish", "run", t.run.ID, "error", err)
	}
}

// EventPersister adapts an EventRepository to events.Persister.
type EventPersister struct {
	repo    EventRepository
	onWrite func(latency time.Duration, err error)
}

// NewEventPersister creates a persister. onWrite, when set, is told about
// every write, e.g. to feed metrics.
func NewEventPersister(repo EventRepository, onWrite func(time.Duration, error)) *EventPersister {
	return &EventPersister{repo: repo, onWrite: onWrite}
}

// Append translates a domain event into a stored event and writes it.
func (p *EventPersister) Append(event events.Event) error {
	start := time.Now()
	err := p.append(event)
	if p.onWrite != nil {
		p.onWrite(time.Since(start), err)
	}
	return err
}

func (p *EventPersister) append(event events.Event) error {
	// Round-trip through JSON so typed payloads land as generic maps.
	var payload map[string]interface{}
	if event.Payload != nil {
		raw, err := json.Marshal(event.Payload)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(raw, &payload); err != nil {
			payload = map[string]interface{}{"value": event.Payload}
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return p.repo.Append(ctx, StoredEvent{
		ID:        event.ID,
		RunID:     event.RunID,
		Timestamp: event.Timestamp,
		EventType: string(event.Type),
		ActorID:   event.ActorID,
		TargetID:  event.TargetID,
		Tick:      event.Tick,
		Payload:   payload,
	})
}
