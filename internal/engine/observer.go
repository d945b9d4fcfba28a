package engine

import (
	"time"

	"github.com/google/uuid"
)

// StopReason explains why a Run returned.
type StopReason string

const (
	ReasonFinished StopReason = "finished" // nominal elapsed reached the duration
	ReasonStopped  StopReason = "stopped"  // Stop was observed at the loop top
	ReasonCanceled StopReason = "canceled" // the context was done
)

// RunInfo describes a Run at entry.
type RunInfo struct {
	RunID     uuid.UUID
	Duration  float64 // seconds, as requested
	TickRate  float64
	DT        float64
	Entities  int
	StartedAt time.Time
}

// TickStats describes one paced frame inside Run.
type TickStats struct {
	RunID    uuid.UUID
	Tick     int64 // 1-based within the run
	DT       float64
	Busy     time.Duration // time spent inside Tick
	Slept    time.Duration // pacing sleep requested after Tick
	Overrun  bool          // Tick took longer than the frame budget
	Entities int           // sequence length after the tick
}

// RunSummary describes a Run at exit.
type RunSummary struct {
	RunID      uuid.UUID
	Ticks      int64
	Elapsed    float64 // nominal seconds, ticks * dt
	Wall       time.Duration
	Reason     StopReason
	FinishedAt time.Time
}

// Observer receives lifecycle callbacks from Run. Callbacks run on the
// goroutine that called Run, between ticks, and must not block for long.
type Observer interface {
	RunStarted(info RunInfo)
	TickCompleted(stats TickStats)
	RunFinished(summary RunSummary)
}

type observers []Observer

func (o observers) runStarted(info RunInfo) {
	for _, ob := range o {
		ob.RunStarted(info)
	}
}

func (o observers) tickCompleted(stats TickStats) {
	for _, ob := range o {
		ob.TickCompleted(stats)
	}
}

func (o observers) runFinished(summary RunSummary) {
	for _, ob := range o {
		ob.RunFinished(summary)
	}
}
