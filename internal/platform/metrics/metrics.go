// Package metrics provides observability for the simulation server.
package metrics

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MRamiBalles/coreria/internal/engine"
)

// Collector gathers performance metrics. It implements engine.Observer.
type Collector struct {
	// Tick metrics
	TickCount      int64
	TickLatencySum int64 // nanoseconds spent inside Tick
	TickLatencyMax int64
	TickOverruns   int64
	SleepSum       int64 // nanoseconds of pacing sleep requested
	Entities       int64
	LastTickTime   time.Time

	// Run metrics
	RunsStarted  int64
	RunsFinished map[engine.StopReason]int64
	Running      int64

	// Event metrics
	EventsWritten    int64
	EventWriteLatSum int64
	EventWriteLatMax int64
	EventWriteErrors int64

	// WebSocket metrics
	WSConnectionsActive int64
	WSMessagesIn        int64
	WSMessagesOut       int64
	WSDropped           int64
	WSRateLimited       int64
	WSErrors            int64

	// System
	StartTime time.Time
	mu        sync.RWMutex
}

// NewCollector returns an empty collector.
func NewCollector() *Collector {
	return &Collector{
		StartTime:    time.Now(),
		RunsFinished: make(map[engine.StopReason]int64),
	}
}

// Global collector instance
var collector = NewCollector()

// Get returns the global collector.
func Get() *Collector {
	return collector
}

// RunStarted records the start of an engine run.
func (c *Collector) RunStarted(info engine.RunInfo) {
	atomic.AddInt64(&c.RunsStarted, 1)
	atomic.StoreInt64(&c.Running, 1)
	atomic.StoreInt64(&c.Entities, int64(info.Entities))
}

// TickCompleted records a tick cycle completion.
func (c *Collector) TickCompleted(stats engine.TickStats) {
	c.RecordTick(stats.Busy)
	atomic.AddInt64(&c.SleepSum, int64(stats.Slept))
	atomic.StoreInt64(&c.Entities, int64(stats.Entities))
	if stats.Overrun {
		atomic.AddInt64(&c.TickOverruns, 1)
	}
}

// RunFinished records the end of an engine run.
func (c *Collector) RunFinished(summary engine.RunSummary) {
	atomic.StoreInt64(&c.Running, 0)
	c.mu.Lock()
	c.RunsFinished[summary.Reason]++
	c.mu.Unlock()
}

// RecordTick records the time spent inside one tick.
func (c *Collector) RecordTick(latency time.Duration) {
	atomic.AddInt64(&c.TickCount, 1)
	atomic.AddInt64(&c.TickLatencySum, int64(latency))

	// Update max (non-atomic but acceptable for metrics)
	if int64(latency) > atomic.LoadInt64(&c.TickLatencyMax) {
		atomic.StoreInt64(&c.TickLatencyMax, int64(latency))
	}

	c.mu.Lock()
	c.LastTickTime = time.Now()
	c.mu.Unlock()
}

// RecordEventWrite records an event write to the database.
func (c *Collector) RecordEventWrite(latency time.Duration, err error) {
	atomic.AddInt64(&c.EventsWritten, 1)
	atomic.AddInt64(&c.EventWriteLatSum, int64(latency))

	if int64(latency) > atomic.LoadInt64(&c.EventWriteLatMax) {
		atomic.StoreInt64(&c.EventWriteLatMax, int64(latency))
	}

	if err != nil {
		atomic.AddInt64(&c.EventWriteErrors, 1)
	}
}

// RecordWSConnection records WebSocket connection changes.
func (c *Collector) RecordWSConnection(delta int64) {
	atomic.AddInt64(&c.WSConnectionsActive, delta)
}

// RecordWSMessage records WebSocket messages.
func (c *Collector) RecordWSMessage(incoming bool) {
	if incoming {
		atomic.AddInt64(&c.WSMessagesIn, 1)
	} else {
		atomic.AddInt64(&c.WSMessagesOut, 1)
	}
}

// RecordWSDropped records a client dropped for not keeping up.
func (c *Collector) RecordWSDropped() {
	atomic.AddInt64(&c.WSDropped, 1)
}

// RecordWSRateLimited records an inbound message rejected by the rate limiter.
func (c *Collector) RecordWSRateLimited() {
	atomic.AddInt64(&c.WSRateLimited, 1)
}

// RecordWSError records a WebSocket error.
func (c *Collector) RecordWSError() {
	atomic.AddInt64(&c.WSErrors, 1)
}

// Snapshot returns current metrics as a map.
func (c *Collector) Snapshot() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	tickCount := atomic.LoadInt64(&c.TickCount)
	eventsWritten := atomic.LoadInt64(&c.EventsWritten)

	var tickAvg, eventAvg float64
	if tickCount > 0 {
		tickAvg = float64(atomic.LoadInt64(&c.TickLatencySum)) / float64(tickCount) / 1e6 // ms
	}
	if eventsWritten > 0 {
		eventAvg = float64(atomic.LoadInt64(&c.EventWriteLatSum)) / float64(eventsWritten) / 1e6
	}

	lastTick := ""
	if !c.LastTickTime.IsZero() {
		lastTick = c.LastTickTime.Format(time.RFC3339)
	}

	finished := make(map[string]int64, len(c.RunsFinished))
	for reason, n := range c.RunsFinished {
		finished[string(reason)] = n
	}

	return map[string]interface{}{
		"uptime_seconds": time.Since(c.StartTime).Seconds(),

		"tick": map[string]interface{}{
			"count":          tickCount,
			"overruns":       atomic.LoadInt64(&c.TickOverruns),
			"avg_latency_ms": tickAvg,
			"max_latency_ms": float64(atomic.LoadInt64(&c.TickLatencyMax)) / 1e6,
			"sleep_total_ms": float64(atomic.LoadInt64(&c.SleepSum)) / 1e6,
			"entities":       atomic.LoadInt64(&c.Entities),
			"last_tick":      lastTick,
		},

		"runs": map[string]interface{}{
			"started":  atomic.LoadInt64(&c.RunsStarted),
			"running":  atomic.LoadInt64(&c.Running) == 1,
			"finished": finished,
		},

		"events": map[string]interface{}{
			"written":          eventsWritten,
			"avg_write_lat_ms": eventAvg,
			"max_write_lat_ms": float64(atomic.LoadInt64(&c.EventWriteLatMax)) / 1e6,
			"errors":           atomic.LoadInt64(&c.EventWriteErrors),
		},

		"websocket": map[string]interface{}{
			"active_connections": atomic.LoadInt64(&c.WSConnectionsActive),
			"messages_in":        atomic.LoadInt64(&c.WSMessagesIn),
			"messages_out":       atomic.LoadInt64(&c.WSMessagesOut),
			"dropped":            atomic.LoadInt64(&c.WSDropped),
			"rate_limited":       atomic.LoadInt64(&c.WSRateLimited),
			"errors":             atomic.LoadInt64(&c.WSErrors),
		},
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (c *Collector) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache")

		json.NewEncoder(w).Encode(c.Snapshot())
	}
}

// PrometheusHandler returns metrics in Prometheus text format.
func (c *Collector) PrometheusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

		// Tick metrics
		fmt.Fprintf(w, "# HELP coreria_tick_count Total ticks executed by Run\n")
		fmt.Fprintf(w, "# TYPE coreria_tick_count counter\n")
		fmt.Fprintf(w, "coreria_tick_count %d\n\n", atomic.LoadInt64(&c.TickCount))

		fmt.Fprintf(w, "# HELP coreria_tick_overruns_total Ticks that exceeded their frame budget\n")
		fmt.Fprintf(w, "# TYPE coreria_tick_overruns_total counter\n")
		fmt.Fprintf(w, "coreria_tick_overruns_total %d\n\n", atomic.LoadInt64(&c.TickOverruns))

		fmt.Fprintf(w, "# HELP coreria_tick_latency_max_ms Maximum time spent inside a tick\n")
		fmt.Fprintf(w, "# TYPE coreria_tick_latency_max_ms gauge\n")
		fmt.Fprintf(w, "coreria_tick_latency_max_ms %.3f\n\n", float64(atomic.LoadInt64(&c.TickLatencyMax))/1e6)

		fmt.Fprintf(w, "# HELP coreria_entities Registered entities after the last tick\n")
		fmt.Fprintf(w, "# TYPE coreria_entities gauge\n")
		fmt.Fprintf(w, "coreria_entities %d\n\n", atomic.LoadInt64(&c.Entities))

		// Run metrics
		fmt.Fprintf(w, "# HELP coreria_runs_started_total Runs started\n")
		fmt.Fprintf(w, "# TYPE coreria_runs_started_total counter\n")
		fmt.Fprintf(w, "coreria_runs_started_total %d\n\n", atomic.LoadInt64(&c.RunsStarted))

		c.mu.RLock()
		fmt.Fprintf(w, "# HELP coreria_runs_finished_total Runs finished, by reason\n")
		fmt.Fprintf(w, "# TYPE coreria_runs_finished_total counter\n")
		for _, reason := range []engine.StopReason{engine.ReasonFinished, engine.ReasonStopped, engine.ReasonCanceled} {
			fmt.Fprintf(w, "coreria_runs_finished_total{reason=%q} %d\n", reason, c.RunsFinished[reason])
		}
		c.mu.RUnlock()
		fmt.Fprintln(w)

		// Event metrics
		fmt.Fprintf(w, "# HELP coreria_events_written Total events written\n")
		fmt.Fprintf(w, "# TYPE coreria_events_written counter\n")
		fmt.Fprintf(w, "coreria_events_written %d\n\n", atomic.LoadInt64(&c.EventsWritten))

		fmt.Fprintf(w, "# HELP coreria_event_write_errors Total event write errors\n")
		fmt.Fprintf(w, "# TYPE coreria_event_write_errors counter\n")
		fmt.Fprintf(w, "coreria_event_write_errors %d\n\n", atomic.LoadInt64(&c.EventWriteErrors))

		// WebSocket metrics
		fmt.Fprintf(w, "# HELP coreria_ws_connections Active WebSocket connections\n")
		fmt.Fprintf(w, "# TYPE coreria_ws_connections gauge\n")
		fmt.Fprintf(w, "coreria_ws_connections %d\n\n", atomic.LoadInt64(&c.WSConnectionsActive))

		fmt.Fprintf(w, "# HELP coreria_ws_messages_total Total WebSocket messages\n")
		fmt.Fprintf(w, "# TYPE coreria_ws_messages_total counter\n")
		fmt.Fprintf(w, "coreria_ws_messages_total{direction=\"in\"} %d\n", atomic.LoadInt64(&c.WSMessagesIn))
		fmt.Fprintf(w, "coreria_ws_messages_total{direction=\"out\"} %d\n\n", atomic.LoadInt64(&c.WSMessagesOut))

		fmt.Fprintf(w, "# HELP coreria_ws_rate_limited_total Inbound messages rejected by the rate limiter\n")
		fmt.Fprintf(w, "# TYPE coreria_ws_rate_limited_total counter\n")
		fmt.Fprintf(w, "coreria_ws_rate_limited_total %d\n", atomic.LoadInt64(&c.WSRateLimited))
	}
}
