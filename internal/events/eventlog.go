// Package events provides the append-only log of simulation events.
// Runs, heartbeats and entity spawns are recorded here; the websocket hub
// and the storage layer both read from it.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType defines the category of an event.
type EventType string

const (
	EventTypeRunStarted    EventType = "RUN_STARTED"
	EventTypeRunFinished   EventType = "RUN_FINISHED"
	EventTypeHeartbeat     EventType = "HEARTBEAT"
	EventTypeEntitySpawned EventType = "ENTITY_SPAWNED"
	EventTypeEntityRemoved EventType = "ENTITY_REMOVED"
	EventTypeStopRequested EventType = "STOP_REQUESTED"
	EventTypeSpawnRejected EventType = "SPAWN_REJECTED"
)

// Event represents an immutable record of something that happened in a run.
type Event struct {
	ID        string      `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	Type      EventType   `json:"type"`
	RunID     string      `json:"run_id,omitempty"`
	ActorID   string      `json:"actor_id"`
	TargetID  string      `json:"target_id,omitempty"`
	Tick      int64       `json:"tick"`
	Payload   interface{} `json:"payload,omitempty"`
}

// Persister defines how an event is durably stored.
type Persister interface {
	Append(event Event) error
}

// EventLog is the in-memory append-only log with optional write-through.
type EventLog struct {
	mu        sync.RWMutex
	events    []Event
	persister Persister
}

// NewEventLog creates a new event log. persister may be nil.
func NewEventLog(persister Persister) *EventLog {
	return &EventLog{
		events:    make([]Event, 0),
		persister: persister,
	}
}

// Append adds an event to the log, filling ID and Timestamp when empty.
// The event is kept in memory even if the persister fails; the persister
// error is returned to the caller.
func (el *EventLog) Append(event Event) (Event, error) {
	if event.ID == "" {
		event.ID = GenerateEventID()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	el.mu.Lock()
	el.events = append(el.events, event)
	el.mu.Unlock()

	if el.persister != nil {
		if err := el.persister.Append(event); err != nil {
			return event, err
		}
	}
	return event, nil
}

// Len returns the number of events in the log.
func (el *EventLog) Len() int {
	el.mu.RLock()
	defer el.mu.RUnlock()
	return len(el.events)
}

// Since returns the events appended after the first n, and the new length.
// Pollers keep the returned length as their cursor.
func (el *EventLog) Since(n int) ([]Event, int) {
	el.mu.RLock()
	defer el.mu.RUnlock()

	if n < 0 {
		n = 0
	}
	if n >= len(el.events) {
		return nil, len(el.events)
	}
	out := make([]Event, len(el.events)-n)
	copy(out, el.events[n:])
	return out, len(el.events)
}

// ByType returns all events of the given type.
func (el *EventLog) ByType(t EventType) []Event {
	el.mu.RLock()
	defer el.mu.RUnlock()

	var result []Event
	for _, e := range el.events {
		if e.Type == t {
			result = append(result, e)
		}
	}
	return result
}

// ByRun returns all events recorded for a run.
func (el *EventLog) ByRun(runID string) []Event {
	el.mu.RLock()
	defer el.mu.RUnlock()

	var result []Event
	for _, e := range el.events {
		if e.RunID == runID {
			result = append(result, e)
		}
	}
	return result
}

// Replay returns a copy of the full history.
func (el *EventLog) Replay() []Event {
	events, _ := el.Since(0)
	return events
}

// GenerateEventID creates a unique event identifier.
func GenerateEventID() string {
	return uuid.NewString()
}
