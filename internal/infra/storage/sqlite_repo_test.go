package storage

import (
	"bytes"
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/MRamiBalles/coreria/internal/engine"
	"github.com/MRamiBalles/coreria/internal/engine/enginetest"
	"github.com/MRamiBalles/coreria/internal/events"
	"github.com/MRamiBalles/coreria/internal/platform/logger"
)

func openTestDB(t *testing.T) (*SQLiteRunRepository, *SQLiteEventRepository) {
	t.Helper()
	db, err := InitSQLite(filepath.Join(t.TempDir(), "data", "test.db"), 1, 1)
	if err != nil {
		t.Fatalf("InitSQLite failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewSQLiteRunRepository(db), NewSQLiteEventRepository(db)
}

func quietLogger() *logger.Logger {
	return logger.New(logger.Options{Output: &bytes.Buffer{}})
}

func TestRunTrackerRecordsRun(t *testing.T) {
	runs, _ := openTestDB(t)
	tracker := NewRunTracker(runs, quietLogger())
	eng := engine.NewEngine(engine.WithClock(enginetest.NewClock()), engine.WithObserver(tracker))
	eng.AddEntity(engine.Base{})
	eng.AddEntity(engine.Base{})

	if err := eng.Run(context.Background(), 1, 4); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	list, err := runs.List(context.Background(), 10)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("Expected 1 run, got %d", len(list))
	}
	got := list[0]
	if got.Ticks != 4 || got.Entities != 2 || got.TickRate != 4 || got.Reason != string(engine.ReasonFinished) {
		t.Errorf("Unexpected run %+v", got)
	}
	if got.Duration == nil || *got.Duration != 1 {
		t.Errorf("Expected duration 1, got %v", got.Duration)
	}
	if got.FinishedAt == nil || got.WallMS != 1000 {
		t.Errorf("Expected a finished run with 1000ms wall time, got %+v", got)
	}
}

func TestRunTrackerWriteFailureWithoutLogger(t *testing.T) {
	db, err := InitSQLite(filepath.Join(t.TempDir(), "test.db"), 1, 1)
	if err != nil {
		t.Fatalf("InitSQLite failed: %v", err)
	}
	db.Close()

	tracker := NewRunTracker(NewSQLiteRunRepository(db), nil)
	eng := engine.NewEngine(engine.WithClock(enginetest.NewClock()), engine.WithObserver(tracker))
	if err := eng.Run(context.Background(), 1, 4); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
}

func TestRunTrackerOpenEndedRun(t *testing.T) {
	runs, _ := openTestDB(t)
	tracker := NewRunTracker(runs, quietLogger())
	id := uuid.New()

	tracker.RunStarted(engine.RunInfo{RunID: id, Duration: math.Inf(1), TickRate: 60, StartedAt: time.Now()})

	got, err := runs.Get(context.Background(), id.String())
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Duration != nil {
		t.Errorf("Expected no duration for an open-ended run, got %v", *got.Duration)
	}
	if got.FinishedAt != nil {
		t.Error("Expected run to be unfinished")
	}
}

func TestGetUnknownRun(t *testing.T) {
	runs, _ := openTestDB(t)
	if _, err := runs.Get(context.Background(), "missing"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("Expected ErrRunNotFound, got %v", err)
	}
	now := time.Now()
	if err := runs.Finish(context.Background(), Run{ID: "missing", FinishedAt: &now}); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("Expected ErrRunNotFound from Finish, got %v", err)
	}
}

func TestListNewestFirst(t *testing.T) {
	runs, _ := openTestDB(t)
	ctx := context.Background()
	base := time.Now().UTC()
	for i, id := range []string{"old", "mid", "new"} {
		if err := runs.Create(ctx, Run{ID: id, StartedAt: base.Add(time.Duration(i) * time.Minute), TickRate: 60}); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	list, err := runs.List(ctx, 2)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 2 || list[0].ID != "new" || list[1].ID != "mid" {
		t.Errorf("Unexpected order %+v", list)
	}
}

func TestEventPersisterWritesThrough(t *testing.T) {
	_, evRepo := openTestDB(t)
	var writes int
	persister := NewEventPersister(evRepo, func(_ time.Duration, err error) {
		if err == nil {
			writes++
		}
	})
	el := events.NewEventLog(persister)

	_, err := el.Append(events.Event{
		Type:    events.EventTypeRunFinished,
		RunID:   "r1",
		ActorID: events.ActorEngine,
		Tick:    12,
		Payload: events.RunFinishedPayload{Ticks: 12, Reason: "stopped"},
	})
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	stored, err := evRepo.GetByRun(context.Background(), "r1")
	if err != nil {
		t.Fatalf("GetByRun failed: %v", err)
	}
	if len(stored) != 1 {
		t.Fatalf("Expected 1 stored event, got %d", len(stored))
	}
	if stored[0].Payload["reason"] != "stopped" || stored[0].Payload["ticks"] != float64(12) {
		t.Errorf("Unexpected payload %v", stored[0].Payload)
	}
	if writes != 1 {
		t.Errorf("Expected onWrite to be called once, got %d", writes)
	}

	byType, err := evRepo.GetByType(context.Background(), string(events.EventTypeRunFinished))
	if err != nil || len(byType) != 1 {
		t.Errorf("Expected 1 event by type, got %d (%v)", len(byType), err)
	}
}

func TestReconstructorClosesInterruptedRuns(t *testing.T) {
	runs, evRepo := openTestDB(t)
	ctx := context.Background()
	start := time.Now().UTC().Truncate(time.Millisecond)

	if err := runs.Create(ctx, Run{ID: "crashed", StartedAt: start, TickRate: 30}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	for i, tick := range []int64{30, 60} {
		err := evRepo.Append(ctx, StoredEvent{
			ID:        uuid.NewString(),
			RunID:     "crashed",
			Timestamp: start.Add(time.Duration(i+1) * time.Second),
			EventType: string(events.EventTypeHeartbeat),
			ActorID:   "heartbeat",
			Tick:      tick,
		})
		if err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	recovered, err := NewReconstructor(runs, evRepo).RecoverRuns(ctx)
	if err != nil {
		t.Fatalf("RecoverRuns failed: %v", err)
	}
	if len(recovered) != 1 {
		t.Fatalf("Expected 1 recovered run, got %d", len(recovered))
	}

	got, err := runs.Get(ctx, "crashed")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Reason != ReasonInterrupted || got.Ticks != 60 || got.Elapsed != 2 || got.WallMS != 2000 {
		t.Errorf("Unexpected recovered run %+v", got)
	}

	open, err := runs.Unfinished(ctx)
	if err != nil || len(open) != 0 {
		t.Errorf("Expected no unfinished runs, got %d (%v)", len(open), err)
	}
}
