package network

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MRamiBalles/coreria/internal/actors"
	"github.com/MRamiBalles/coreria/internal/engine"
	"github.com/MRamiBalles/coreria/internal/engine/enginetest"
	"github.com/MRamiBalles/coreria/internal/events"
	"github.com/MRamiBalles/coreria/internal/infra/storage"
)

func newControl(buffer int) (*engine.Engine, *actors.Spawner, *events.EventLog, *Control) {
	eng := engine.NewEngine()
	el := events.NewEventLog(nil)
	spawner := actors.NewSpawner(eng, buffer, el, nil, nil)
	eng.AddEntity(spawner)
	return eng, spawner, el, NewControl(eng, spawner, el, quietLogger())
}

func TestHandleSpawn(t *testing.T) {
	eng, _, el, ctl := newControl(1)

	tests := []struct {
		name   string
		method string
		body   string
		status int
	}{
		{"queued", http.MethodPost, `{"kind":"counter"}`, http.StatusAccepted},
		{"queue full", http.MethodPost, `{"kind":"counter"}`, http.StatusServiceUnavailable},
		{"unknown kind", http.MethodPost, `{"kind":"dragon"}`, http.StatusBadRequest},
		{"bad body", http.MethodPost, `{`, http.StatusBadRequest},
		{"wrong method", http.MethodGet, ``, http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			ctl.HandleSpawn(rec, httptest.NewRequest(tt.method, "/api/spawn", strings.NewReader(tt.body)))
			if rec.Code != tt.status {
				t.Errorf("Expected status %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
		})
	}

	if n := len(el.ByType(events.EventTypeSpawnRejected)); n != 1 {
		t.Errorf("Expected 1 rejected spawn event, got %d", n)
	}

	eng.Tick(0.1)
	if eng.Len() != 2 {
		t.Errorf("Expected the queued counter to join, got %d entities", eng.Len())
	}
}

func TestHandleStopEndsRun(t *testing.T) {
	eng := engine.NewEngine(engine.WithClock(enginetest.NewClock()))
	el := events.NewEventLog(nil)
	ctl := NewControl(eng, actors.NewSpawner(eng, 4, el, nil, nil), el, quietLogger())

	var ticks int
	eng.AddEntity(engine.Func(func(float64) {
		ticks++
		if ticks == 2 {
			rec := httptest.NewRecorder()
			ctl.HandleStop(rec, httptest.NewRequest(http.MethodPost, "/api/stop", nil))
			var body map[string]bool
			json.Unmarshal(rec.Body.Bytes(), &body)
			if !body["was_running"] {
				t.Error("Expected engine to be running when stopped")
			}
		}
	}))

	if err := eng.Run(context.Background(), 10, 10); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if ticks != 2 {
		t.Errorf("Expected run to end after 2 ticks, got %d", ticks)
	}
	if n := len(el.ByType(events.EventTypeStopRequested)); n != 1 {
		t.Errorf("Expected 1 stop event, got %d", n)
	}
}

func TestHistoryHandler(t *testing.T) {
	db, err := storage.InitSQLite(filepath.Join(t.TempDir(), "history.db"), 1, 1)
	if err != nil {
		t.Fatalf("InitSQLite failed: %v", err)
	}
	defer db.Close()
	runRepo := storage.NewSQLiteRunRepository(db)
	eventRepo := storage.NewSQLiteEventRepository(db)

	el := events.NewEventLog(storage.NewEventPersister(eventRepo, nil))
	rec := events.NewRecorder(el, quietLogger())
	eng := engine.NewEngine(
		engine.WithClock(enginetest.NewClock()),
		engine.WithObserver(storage.NewRunTracker(runRepo, quietLogger())),
		engine.WithObserver(rec),
	)
	eng.AddEntity(actors.NewHeartbeat(2, el, rec, quietLogger()))
	if err := eng.Run(context.Background(), 1, 4); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	hh := NewHistoryHandler(el, runRepo, eventRepo, nil, quietLogger())
	mux := http.NewServeMux()
	hh.RegisterRoutes(mux)

	get := func(path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		return w
	}

	w := get("/api/events?type=HEARTBEAT")
	var evResp EventsResponse
	json.Unmarshal(w.Body.Bytes(), &evResp)
	if evResp.Total != 2 || evResp.Next != 4 {
		t.Errorf("Expected 2 heartbeats of 4 events, got %+v", evResp)
	}

	w = get("/api/runs")
	var runsResp struct {
		Total int           `json:"total"`
		Runs  []storage.Run `json:"runs"`
	}
	json.Unmarshal(w.Body.Bytes(), &runsResp)
	if runsResp.Total != 1 || runsResp.Runs[0].ID != rec.RunID() {
		t.Fatalf("Unexpected runs response %s", w.Body.String())
	}

	w = get("/api/run?id=" + rec.RunID())
	var runResp struct {
		Run    storage.Run           `json:"run"`
		Events []storage.StoredEvent `json:"events"`
	}
	json.Unmarshal(w.Body.Bytes(), &runResp)
	if runResp.Run.Ticks != 4 || len(runResp.Events) != 4 {
		t.Errorf("Unexpected run response %s", w.Body.String())
	}

	for path, status := range map[string]int{
		"/api/run?id=missing": http.StatusNotFound,
		"/api/run":            http.StatusBadRequest,
		"/api/runs?limit=0":   http.StatusBadRequest,
		"/api/events?since=x": http.StatusBadRequest,
		"/api/status":         http.StatusServiceUnavailable,
	} {
		if w := get(path); w.Code != status {
			t.Errorf("GET %s: expected %d, got %d", path, status, w.Code)
		}
	}
}
