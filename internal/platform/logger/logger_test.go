package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestFanoutWritesBothSinks(t *testing.T) {
	var text, js bytes.Buffer
	log := New(Options{Output: &text, JSON: &js})

	log.Event("RUN_STARTED", "engine", "run started")

	if !strings.Contains(text.String(), "event=RUN_STARTED") {
		t.Errorf("Expected text sink to carry the event attr, got %q", text.String())
	}
	var rec map[string]any
	if err := json.Unmarshal(js.Bytes(), &rec); err != nil {
		t.Fatalf("Expected one JSON record, got %q: %v", js.String(), err)
	}
	if rec["msg"] != "run started" || rec["actor"] != "engine" {
		t.Errorf("Unexpected JSON record %v", rec)
	}
}

func TestSetLevelFiltersAtRuntime(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Output: &buf, Level: "warn"})

	log.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("Expected info to be filtered at warn level, got %q", buf.String())
	}

	log.SetLevel("debug")
	log.Debug("shown", "tick", 3)
	if !strings.Contains(buf.String(), "tick=3") {
		t.Errorf("Expected debug record after SetLevel, got %q", buf.String())
	}
	if log.Level() != slog.LevelDebug {
		t.Errorf("Expected debug level, got %v", log.Level())
	}
}

func TestNilLoggerDiscards(t *testing.T) {
	var log *Logger

	log.Debug("d")
	log.Info("i", "k", 1)
	log.Warn("w")
	log.Error("e")
	log.Event("RUN_STARTED", "engine", "run started")
	log.SetLevel("debug")
	log.With("run", "x").Info("still nothing")

	if log.Level() != slog.LevelInfo {
		t.Errorf("Expected info level from a nil logger, got %v", log.Level())
	}
	if log.Slog() == nil {
		t.Fatal("Expected a usable slog.Logger from a nil logger")
	}
	log.Slog().Info("discarded")
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"":        slog.LevelInfo,
		"DEBUG":   slog.LevelDebug,
		"warning": slog.LevelWarn,
		" error ": slog.LevelError,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
