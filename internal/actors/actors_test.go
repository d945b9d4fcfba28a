package actors

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/MRamiBalles/coreria/internal/engine"
	"github.com/MRamiBalles/coreria/internal/engine/enginetest"
	"github.com/MRamiBalles/coreria/internal/events"
	"github.com/MRamiBalles/coreria/internal/platform/logger"
)

func TestCounter(t *testing.T) {
	c := NewCounter()
	c.Update(0.25)
	c.Update(0.25)
	c.Render()

	if c.Updates != 2 || c.Elapsed != 0.5 {
		t.Errorf("Expected 2 updates over 0.5s, got %d over %v", c.Updates, c.Elapsed)
	}
	if c.ID() == "" || c.ID() == NewCounter().ID() {
		t.Errorf("Expected a unique ID, got %q", c.ID())
	}
}

func TestPlayerLogsEveryTick(t *testing.T) {
	var buf bytes.Buffer
	p := NewPlayer("p1", logger.New(logger.Options{Output: &buf}))
	eng := engine.NewEngine(engine.WithClock(enginetest.NewClock()))
	eng.AddEntity(p)

	if err := eng.Run(context.Background(), 0.2, 5); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if p.Updates != 1 {
		t.Errorf("Expected 1 update, got %d", p.Updates)
	}
	if !strings.Contains(buf.String(), "tick 1: dt=0.200") {
		t.Errorf("Expected tick log line, got %q", buf.String())
	}
}

func TestNew(t *testing.T) {
	for _, kind := range []string{KindCounter, KindPlayer} {
		e, err := New(kind, nil)
		if err != nil || e == nil {
			t.Errorf("New(%q) = %v, %v", kind, e, err)
		}
	}
	if _, err := New("dragon", nil); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("Expected ErrUnknownKind, got %v", err)
	}
}

func TestIDOf(t *testing.T) {
	c := NewCounter()
	if IDOf(c) != c.ID() {
		t.Errorf("Expected counter ID, got %q", IDOf(c))
	}
	if IDOf(engine.Base{}) != "engine.Base" {
		t.Errorf("Expected type name, got %q", IDOf(engine.Base{}))
	}
}

type fixedRun struct{ tick int64 }

func (f *fixedRun) RunID() string { return "run-1" }
func (f *fixedRun) Tick() int64   { return f.tick }

func TestSpawnerAddsOnNextTick(t *testing.T) {
	eng := engine.NewEngine()
	el := events.NewEventLog(nil)
	s := NewSpawner(eng, 4, el, &fixedRun{tick: 6}, nil)
	eng.AddEntity(s)

	c := NewCounter()
	if !s.Enqueue(c, KindCounter, "api") {
		t.Fatal("Expected Enqueue to succeed")
	}
	if s.Pending() != 1 {
		t.Errorf("Expected 1 pending request, got %d", s.Pending())
	}

	eng.Tick(0.1)
	if eng.Len() != 2 {
		t.Fatalf("Expected spawned entity registered, got %d entities", eng.Len())
	}
	// Added during the tick, so it was not in that tick's snapshot.
	if c.Updates != 0 {
		t.Errorf("Expected no update in the spawning tick, got %d", c.Updates)
	}
	eng.Tick(0.1)
	if c.Updates != 1 {
		t.Errorf("Expected 1 update on the next tick, got %d", c.Updates)
	}

	spawned := el.ByType(events.EventTypeEntitySpawned)
	if len(spawned) != 1 {
		t.Fatalf("Expected 1 spawn event, got %d", len(spawned))
	}
	if spawned[0].TargetID != c.ID() || spawned[0].RunID != "run-1" || spawned[0].Tick != 7 {
		t.Errorf("Unexpected spawn event %+v", spawned[0])
	}
}

func TestSpawnerRemove(t *testing.T) {
	eng := engine.NewEngine()
	el := events.NewEventLog(nil)
	s := NewSpawner(eng, 4, el, nil, nil)
	c := NewCounter()
	eng.AddEntity(s)
	eng.AddEntity(c)

	s.Dequeue(c, "ws")
	s.Dequeue(NewCounter(), "ws") // not registered: ignored
	eng.Tick(0.1)

	if eng.Len() != 1 {
		t.Errorf("Expected only the spawner left, got %d entities", eng.Len())
	}
	if n := len(el.ByType(events.EventTypeEntityRemoved)); n != 1 {
		t.Errorf("Expected 1 remove event, got %d", n)
	}
}

func TestSpawnerFullQueue(t *testing.T) {
	s := NewSpawner(engine.NewEngine(), 1, nil, nil, nil)
	if !s.Enqueue(NewCounter(), KindCounter, "api") {
		t.Fatal("Expected first Enqueue to succeed")
	}
	if s.Enqueue(NewCounter(), KindCounter, "api") {
		t.Error("Expected Enqueue on a full queue to fail")
	}
}

func TestHeartbeatEveryN(t *testing.T) {
	el := events.NewEventLog(nil)
	rec := events.NewRecorder(el, nil)
	eng := engine.NewEngine(engine.WithClock(enginetest.NewClock()), engine.WithObserver(rec))
	eng.AddEntity(NewHeartbeat(3, el, rec, nil))

	if err := eng.Run(context.Background(), 1, 8); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	beats := el.ByType(events.EventTypeHeartbeat)
	if len(beats) != 2 {
		t.Fatalf("Expected heartbeats at ticks 3 and 6, got %d", len(beats))
	}
	for i, want := range []int64{3, 6} {
		if beats[i].Tick != want || beats[i].RunID != rec.RunID() {
			t.Errorf("Heartbeat %d: got tick %d run %q", i, beats[i].Tick, beats[i].RunID)
		}
	}
	if p := beats[1].Payload.(HeartbeatPayload); p.Elapsed != 0.75 {
		t.Errorf("Expected 0.75s elapsed at tick 6, got %v", p.Elapsed)
	}
}
