package main

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/MRamiBalles/coreria/internal/engine"
)

func TestRunDemoPrintsSummary(t *testing.T) {
	var out bytes.Buffer
	if err := runDemo(context.Background(), &out, nil, 0.25, 8, 2); err != nil {
		t.Fatalf("runDemo failed: %v", err)
	}
	text := out.String()
	for _, want := range []string{"player-1: 2 updates", "player-2: 2 updates", "ticks=2"} {
		if !strings.Contains(text, want) {
			t.Errorf("Expected %q in summary:\n%s", want, text)
		}
	}
}

func TestRunDemoInterruptedExitsCleanly(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	if err := runDemo(ctx, &out, nil, 5, 10, 1); err != nil {
		t.Fatalf("Expected an interrupted demo to return nil, got %v", err)
	}
	if !strings.Contains(out.String(), "player-1: 0 updates") {
		t.Errorf("Expected the summary after an interrupt, got:\n%s", out.String())
	}
}

func TestRunDemoInvalidRate(t *testing.T) {
	err := runDemo(context.Background(), &bytes.Buffer{}, nil, 1, 0, 1)
	if !errors.Is(err, engine.ErrInvalidTickRate) {
		t.Errorf("Expected ErrInvalidTickRate, got %v", err)
	}
}

func TestStartHTTPFailsOnBusyPort(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer busy.Close()

	srv, _, err := startHTTP(busy.Addr().String(), http.NotFoundHandler())
	if err == nil {
		srv.Close()
		t.Fatal("Expected startHTTP to fail on a port already in use")
	}
}

func TestStartHTTPServes(t *testing.T) {
	srv, serveErr, err := startHTTP("127.0.0.1:0", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	if err != nil {
		t.Fatalf("startHTTP failed: %v", err)
	}

	resp, err := http.Get("http://" + srv.Addr + "/")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusTeapot {
		t.Errorf("Expected 418, got %d", resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	select {
	case err := <-serveErr:
		t.Errorf("Expected a clean shutdown to report nothing, got %v", err)
	case <-time.After(50 * time.Millisecond):
	}
}
