// Package storage provides the persistence layer for runs and their events.
// It implements the repository pattern so the engine and event log never
// see SQL.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrRunNotFound is returned when a run ID has no row.
var ErrRunNotFound = errors.New("run not found")

// ReasonInterrupted marks runs closed by the Reconstructor after a crash.
const ReasonInterrupted = "interrupted"

// Run is the persisted record of one Engine.Run call.
type Run struct {
	ID         string     `json:"id" db:"id"`
	StartedAt  time.Time  `json:"started_at" db:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty" db:"finished_at"`
	TickRate   float64    `json:"tick_rate" db:"tick_rate"`
	Duration   *float64   `json:"duration,omitempty" db:"duration"` // nil for open-ended runs
	Entities   int        `json:"entities" db:"entities"`
	Ticks      int64      `json:"ticks" db:"ticks"`
	Elapsed    float64    `json:"elapsed" db:"elapsed"`
	WallMS     int64      `json:"wall_ms" db:"wall_ms"`
	Reason     string     `json:"reason,omitempty" db:"reason"`
}

// StoredEvent mirrors events.Event for persistence.
// The events package does not import this; the adapter translates.
type StoredEvent struct {
	ID        string                 `json:"id" db:"id"`
	RunID     string                 `json:"run_id" db:"run_id"`
	Timestamp time.Time              `json:"timestamp" db:"timestamp"`
	EventType string                 `json:"event_type" db:"event_type"`
	ActorID   string                 `json:"actor_id" db:"actor_id"`
	TargetID  string                 `json:"target_id" db:"target_id"`
	Tick      int64                  `json:"tick" db:"tick"`
	Payload   map[string]interface{} `json:"payload" db:"payload"`
}

// RunRepository defines run persistence.
type RunRepository interface {
	// Create inserts a run at start.
	Create(ctx context.Context, run Run) error

	// Finish records the outcome of a run.
	Finish(ctx context.Context, run Run) error

	// Get returns one run or ErrRunNotFound.
	Get(ctx context.Context, id string) (*Run, error)

	// List returns the most recent runs first.
	List(ctx context.Context, limit int) ([]Run, error)

	// Unfinished returns runs that never recorded a finish.
	Unfinished(ctx context.Context) ([]Run, error)
}

// EventRepository defines event persistence.
type EventRepository interface {
	// Append adds a new event to the immutable ledger.
	Append(ctx context.Context, event StoredEvent) error

	// GetByRun retrieves all events of a run in order.
	GetByRun(ctx context.Context, runID string) ([]StoredEvent, error)

	// GetByType retrieves all events of a type across runs.
	GetByType(ctx context.Context, eventType string) ([]StoredEvent, error)
}
