package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/MRamiBalles/coreria/internal/actors"
	"github.com/MRamiBalles/coreria/internal/network"
)

type agitateConfig struct {
	URL        string
	Clients    int
	Interval   time.Duration
	Duration   time.Duration
	ResultFile string
}

// agitateStats tracks load test counters.
type agitateStats struct {
	Sent        int64
	Acked       int64
	Rejected    int64
	RateLimited int64
	Broadcasts  int64
	Errors      int64

	mu        sync.Mutex
	latencies []time.Duration
}

func agitateCmd() *cobra.Command {
	var ac agitateConfig
	cmd := &cobra.Command{
		Use:   "agitate",
		Short: "Load test a running server with concurrent WebSocket clients",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), ac.Duration)
			defer cancel()
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
			defer stop()

			appLog.Info("agitating", "url", ac.URL, "clients", ac.Clients, "interval", ac.Interval, "duration", ac.Duration)
			stats := runAgitation(ctx, ac)
			return reportAgitation(stats, ac)
		},
	}
	cmd.Flags().StringVar(&ac.URL, "url", "ws://localhost:8080/ws", "WebSocket server URL")
	cmd.Flags().IntVar(&ac.Clients, "clients", 50, "number of concurrent clients")
	cmd.Flags().DurationVar(&ac.Interval, "interval", 100*time.Millisecond, "command interval per client")
	cmd.Flags().DurationVar(&ac.Duration, "duration", 30*time.Second, "test duration")
	cmd.Flags().StringVar(&ac.ResultFile, "out", "", "write results as JSON to this file")
	return cmd
}

func runAgitation(ctx context.Context, ac agitateConfig) *agitateStats {
	stats := &agitateStats{}
	var wg sync.WaitGroup

	for i := 0; i < ac.Clients; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			agitateClient(ctx, id, ac, stats)
		}(i)

		// Stagger client starts to avoid thundering herd
		time.Sleep(10 * time.Millisecond)
	}

	progress := time.NewTicker(5 * time.Second)
	defer progress.Stop()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	for {
		select {
		case <-done:
			return stats
		case <-progress.C:
			appLog.Info("progress",
				"sent", atomic.LoadInt64(&stats.Sent),
				"acked", atomic.LoadInt64(&stats.Acked),
				"rate_limited", atomic.LoadInt64(&stats.RateLimited),
				"errors", atomic.LoadInt64(&stats.Errors))
		}
	}
}

func agitateClient(ctx context.Context, id int, ac agitateConfig, stats *agitateStats) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, ac.URL, nil)
	if err != nil {
		appLog.Warn("connection failed", "client", id, "error", err)
		atomic.AddInt64(&stats.Errors, 1)
		return
	}
	defer conn.Close()

	// Commands are acknowledged in order, so the oldest pending send time
	// matches the next reply.
	var (
		pendingMu sync.Mutex
		pending   []time.Time
	)

	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			for _, raw := range bytes.Split(data, []byte{'\n'}) {
				var reply network.Reply
				if err := json.Unmarshal(raw, &reply); err != nil || reply.Type == "" {
					atomic.AddInt64(&stats.Broadcasts, 1)
					continue
				}
				// Broadcast events carry upper-case types; replies do not.
				if reply.Type != "ack" && reply.Type != "error" {
					atomic.AddInt64(&stats.Broadcasts, 1)
					continue
				}

				pendingMu.Lock()
				if len(pending) > 0 {
					stats.record(time.Since(pending[0]))
					pending = pending[1:]
				}
				pendingMu.Unlock()

				switch {
				case reply.Type == "ack":
					atomic.AddInt64(&stats.Acked, 1)
				case reply.Error == "rate limit exceeded":
					atomic.AddInt64(&stats.RateLimited, 1)
				default:
					atomic.AddInt64(&stats.Rejected, 1)
				}
			}
		}
	}()

	ticker := time.NewTicker(ac.Interval)
	defer ticker.Stop()
	kinds := []string{actors.KindCounter, actors.KindCounter, actors.KindCounter, "bogus"}

	for {
		select {
		case <-ctx.Done():
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case <-ticker.C:
			cmd := network.Command{Type: network.CommandSpawn, Kind: kinds[rand.Intn(len(kinds))]}
			pendingMu.Lock()
			pending = append(pending, time.Now())
			pendingMu.Unlock()
			if err := conn.WriteJSON(cmd); err != nil {
				atomic.AddInt64(&stats.Errors, 1)
				return
			}
			atomic.AddInt64(&stats.Sent, 1)
		}
	}
}

func (s *agitateStats) record(d time.Duration) {
	s.mu.Lock()
	s.latencies = append(s.latencies, d)
	s.mu.Unlock()
}

func reportAgitation(stats *agitateStats, ac agitateConfig) error {
	sent := atomic.LoadInt64(&stats.Sent)
	errs := atomic.LoadInt64(&stats.Errors)

	fmt.Printf("Commands sent:      %d\n", sent)
	fmt.Printf("Acknowledged:       %d\n", atomic.LoadInt64(&stats.Acked))
	fmt.Printf("Rejected:           %d\n", atomic.LoadInt64(&stats.Rejected))
	fmt.Printf("Rate limited:       %d\n", atomic.LoadInt64(&stats.RateLimited))
	fmt.Printf("Broadcasts seen:    %d\n", atomic.LoadInt64(&stats.Broadcasts))
	fmt.Printf("Errors:             %d\n", errs)
	throughput := float64(sent) / ac.Duration.Seconds()
	fmt.Printf("Throughput:         %.2f cmd/sec\n", throughput)

	stats.mu.Lock()
	lat := stats.latencies
	stats.mu.Unlock()
	var minLat, avgLat, maxLat time.Duration
	if len(lat) > 0 {
		var total time.Duration
		minLat, maxLat = lat[0], lat[0]
		for _, l := range lat {
			total += l
			minLat = min(minLat, l)
			maxLat = max(maxLat, l)
		}
		avgLat = total / time.Duration(len(lat))
		fmt.Printf("Reply latency:      min=%v avg=%v max=%v\n", minLat, avgLat, maxLat)
	}

	if ac.ResultFile == "" {
		return nil
	}
	results := map[string]interface{}{
		"sent":               sent,
		"acked":              atomic.LoadInt64(&stats.Acked),
		"rejected":           atomic.LoadInt64(&stats.Rejected),
		"rate_limited":       atomic.LoadInt64(&stats.RateLimited),
		"broadcasts":         atomic.LoadInt64(&stats.Broadcasts),
		"errors":             errs,
		"throughput_per_sec": throughput,
		"latency_ms": map[string]float64{
			"min": float64(minLat) / 1e6,
			"avg": float64(avgLat) / 1e6,
			"max": float64(maxLat) / 1e6,
		},
		"config": map[string]interface{}{
			"clients":  ac.Clients,
			"interval": ac.Interval.String(),
			"duration": ac.Duration.String(),
		},
	}
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(ac.ResultFile, data, 0o644)
}
