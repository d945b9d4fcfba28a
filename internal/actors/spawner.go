package actors

import (
	"github.com/MRamiBalles/coreria/internal/engine"
	"github.com/MRamiBalles/coreria/internal/events"
	"github.com/MRamiBalles/coreria/internal/platform/logger"
)

// Registry is the part of the engine the spawner mutates.
type Registry interface {
	AddEntity(entity engine.Entity)
	RemoveEntity(entity engine.Entity) bool
}

// RunState reports the position of the current run. *events.Recorder
// implements it.
type RunState interface {
	RunID() string
	Tick() int64
}

// SpawnPayload is attached to ENTITY_SPAWNED and ENTITY_REMOVED events.
type SpawnPayload struct {
	Kind   string `json:"kind"`
	Source string `json:"source,omitempty"`
}

type request struct {
	entity engine.Entity
	kind   string
	source string
	remove bool
}

// Spawner lets other goroutines add entities to a running engine. Requests
// are queued on a buffered channel and applied during the spawner's own
// Update, on the run goroutine, so the entity sequence is only ever touched
// by the loop. Entities added this way take part from the next tick on.
type Spawner struct {
	engine.Base
	registry Registry
	queue    chan request
	eventLog *events.EventLog
	run      RunState
	logger   *logger.Logger
}

// NewSpawner creates a spawner with room for buffer pending requests.
// eventLog and run may be nil.
func NewSpawner(registry Registry, buffer int, eventLog *events.EventLog, run RunState, log *logger.Logger) *Spawner {
	return &Spawner{
		registry: registry,
		queue:    make(chan request, buffer),
		eventLog: eventLog,
		run:      run,
		logger:   log,
	}
}

// Enqueue schedules entity for addition. It returns false without blocking
// when the queue is full.
func (s *Spawner) Enqueue(entity engine.Entity, kind, source string) bool {
	return s.offer(request{entity: entity, kind: kind, source: source})
}

// Dequeue schedules entity for removal.
func (s *Spawner) Dequeue(entity engine.Entity, source string) bool {
	return s.offer(request{entity: entity, source: source, remove: true})
}

func (s *Spawner) offer(r request) bool {
	select {
	case s.queue <- r:
		return true
	default:
		return false
	}
}

// Pending returns the number of queued requests.
func (s *Spawner) Pending() int {
	return len(s.queue)
}

// Update applies every request queued so far.
func (s *Spawner) Update(float64) {
	for {
		select {
		case r := <-s.queue:
			s.apply(r)
		default:
			return
		}
	}
}

func (s *Spawner) apply(r request) {
	eventType := events.EventTypeEntitySpawned
	if r.remove {
		if !s.registry.RemoveEntity(r.entity) {
			return
		}
		eventType = events.EventTypeEntityRemoved
	} else {
		s.registry.AddEntity(r.entity)
	}

	if s.eventLog == nil {
		return
	}
	e := events.Event{
		Type:     eventType,
		ActorID:  r.source,
		TargetID: IDOf(r.entity),
		Payload:  SpawnPayload{Kind: r.kind, Source: r.source},
	}
	if s.run != nil {
		e.RunID = s.run.RunID()
		e.Tick = s.run.Tick() + 1
	}
	if _, err := s.eventLog.Append(e); err != nil {
		s.logger.Error("failed to persist spawn event", "target", e.TargetID, "error", err)
	}
}
