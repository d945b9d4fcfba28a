package optimization

import "testing"

func TestForProfile(t *testing.T) {
	for _, name := range []string{"", ProfileDefault, ProfileStressTest, ProfileLowResource} {
		cfg, err := ForProfile(name)
		if err != nil {
			t.Fatalf("ForProfile(%q) failed: %v", name, err)
		}
		if cfg.ClientSendBuffer <= 0 || cfg.MaxMessagesPerSecond <= 0 {
			t.Errorf("ForProfile(%q) returned unusable sizes %+v", name, cfg)
		}
	}
	if _, err := ForProfile("turbo"); err == nil {
		t.Error("Expected an error for an unknown profile")
	}
}

func TestAnalyzeOverruns(t *testing.T) {
	snapshot := map[string]interface{}{
		"tick": map[string]interface{}{
			"count":    int64(100),
			"overruns": int64(20),
		},
		"websocket": map[string]interface{}{
			"dropped": int64(3),
		},
	}

	rec := Analyze(snapshot)

	if !rec.LowerTickRate {
		t.Error("Expected a tick rate recommendation")
	}
	if !rec.IncreaseBroadcastBuffer {
		t.Error("Expected a broadcast buffer recommendation")
	}
	if len(rec.Notes) != 2 {
		t.Errorf("Expected 2 notes, got %v", rec.Notes)
	}

	cfg := ApplyRecommendations(LowResourceConfig(), rec)
	if cfg.ClientSendBuffer != 16 {
		t.Errorf("Expected client send buffer to double to 16, got %d", cfg.ClientSendBuffer)
	}
}

func TestAnalyzeHealthy(t *testing.T) {
	rec := Analyze(map[string]interface{}{
		"tick": map[string]interface{}{"count": int64(100), "overruns": int64(5)},
	})
	if rec.LowerTickRate || len(rec.Notes) != 0 {
		t.Errorf("Expected no recommendations, got %+v", rec)
	}
}
