// Package actors holds the concrete entities driven by the engine.
package actors

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/MRamiBalles/coreria/internal/engine"
	"github.com/MRamiBalles/coreria/internal/platform/logger"
)

// ErrUnknownKind is returned by New for kinds it cannot build.
var ErrUnknownKind = errors.New("unknown entity kind")

// Entity kinds accepted by New.
const (
	KindCounter = "counter"
	KindPlayer  = "player"
)

// Identified is implemented by entities that carry a stable ID.
type Identified interface {
	ID() string
}

// Counter counts how many times it has been updated and the simulated
// time it has seen.
type Counter struct {
	engine.Base
	id      string
	Updates int64
	Elapsed float64
}

// NewCounter creates a counter with a fresh ID.
func NewCounter() *Counter {
	return &Counter{id: uuid.NewString()}
}

func (c *Counter) ID() string { return c.id }

func (c *Counter) Update(dt float64) {
	c.Updates++
	c.Elapsed += dt
}

// Player is the demo entity: a counter that logs every update.
type Player struct {
	Counter
	Name   string
	logger *logger.Logger
}

// NewPlayer creates a named player logging to log.
func NewPlayer(name string, log *logger.Logger) *Player {
	return &Player{Counter: *NewCounter(), Name: name, logger: log}
}

func (p *Player) Update(dt float64) {
	p.Counter.Update(dt)
	p.logger.Info(fmt.Sprintf("tick %d: dt=%.3f", p.Updates, dt), "player", p.Name)
}

// New builds an entity of the given kind.
func New(kind string, log *logger.Logger) (engine.Entity, error) {
	switch kind {
	case KindCounter:
		return NewCounter(), nil
	case KindPlayer:
		return NewPlayer("player-"+uuid.NewString()[:8], log), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

// IDOf returns the entity's ID, or its Go type for anonymous entities.
func IDOf(e engine.Entity) string {
	if id, ok := e.(Identified); ok {
		return id.ID()
	}
	return fmt.Sprintf("%T", e)
}
