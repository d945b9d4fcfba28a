// Package engine contains the fixed-tick simulation loop.
//
// The Engine owns an ordered sequence of entities and advances all of them
// once per tick, in registration order. Run paces ticks against the wall
// clock for a bounded duration; Tick can also be driven directly by a caller
// that owns its own clock.
//
// The Engine is meant for single-goroutine use. Stop and IsRunning are the
// exceptions and may be called from any goroutine.
package engine

import (
	"errors"
	"math"
	"reflect"
	"sync/atomic"
)

const (
	// DefaultTickRate is the tick rate of a new Engine, in ticks per second.
	DefaultTickRate = 60.0
	// DefaultDuration is the run length used by RunDefault, in seconds.
	DefaultDuration = 1.0
)

// ErrInvalidTickRate is returned when a tick rate is zero, negative, NaN or infinite.
var ErrInvalidTickRate = errors.New("tick rate must be positive and finite")

// Engine drives Update and Render for a collection of entities.
type Engine struct {
	entities  []Entity
	running   atomic.Bool
	tickRate  float64
	clock     Clock
	observers observers
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces the clock used for pacing.
func WithClock(c Clock) Option {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

// WithObserver registers an observer for Run lifecycle callbacks.
// Observers are called in registration order.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		if o != nil {
			e.observers = append(e.observers, o)
		}
	}
}

// NewEngine creates an empty, stopped engine with the default tick rate.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		tickRate: DefaultTickRate,
		clock:    SystemClock,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AddEntity appends entity to the sequence. Duplicates are allowed.
// An entity added while a tick is in progress is first processed on the next tick.
func (e *Engine) AddEntity(entity Entity) {
	e.entities = append(e.entities, entity)
}

// RemoveEntity removes the first occurrence of entity, compared by identity.
// Entities of a non-comparable type (such as Func) can't be removed and
// report false. A tick already in progress still visits the removed entity.
func (e *Engine) RemoveEntity(entity Entity) bool {
	if entity == nil || !reflect.TypeOf(entity).Comparable() {
		return false
	}
	for i, existing := range e.entities {
		if existing != entity {
			continue
		}
		// Build a fresh slice so an in-flight snapshot is left untouched.
		next := make([]Entity, 0, len(e.entities)-1)
		next = append(next, e.entities[:i]...)
		next = append(next, e.entities[i+1:]...)
		e.entities = next
		return true
	}
	return false
}

// Len returns the number of registered entities.
func (e *Engine) Len() int {
	return len(e.entities)
}

// Tick advances every entity by dt seconds: Update then Render, one entity
// at a time, in registration order. dt is passed through unvalidated.
func (e *Engine) Tick(dt float64) {
	// The slice header is captured once. Appends made by entities during
	// this tick land beyond its length, and removals allocate a new slice.
	snapshot := e.entities
	for _, entity := range snapshot {
		entity.Update(dt)
		entity.Render()
	}
}

// SetTickRate sets the rate used by RunFor and RunDefault.
func (e *Engine) SetTickRate(rate float64) error {
	if err := validateTickRate(rate); err != nil {
		return err
	}
	e.tickRate = rate
	return nil
}

// TickRate returns the configured tick rate in ticks per second.
func (e *Engine) TickRate() float64 {
	return e.tickRate
}

// Stop asks a running loop to exit. It takes effect at the next loop-top
// check, never in the middle of a tick. Calling Stop while no Run is active
// has no lasting effect.
func (e *Engine) Stop() {
	e.running.Store(false)
}

// IsRunning reports whether Run is currently looping.
func (e *Engine) IsRunning() bool {
	return e.running.Load()
}

func validateTickRate(rate float64) error {
	if math.IsNaN(rate) || math.IsInf(rate, 0) || rate <= 0 {
		return ErrInvalidTickRate
	}
	return nil
}
