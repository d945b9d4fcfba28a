package engine

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// Run ticks the engine at tickRate ticks per second until duration seconds
// of simulated time have elapsed, Stop is observed, or ctx is done.
//
// Simulated time advances by the nominal dt = 1/tickRate per tick, not by
// the measured frame time, so the number of ticks only depends on
// duration and tickRate. Oversleeping makes ticks late, never fewer.
// A duration <= 0 runs zero ticks.
//
// The returned error is ErrInvalidTickRate for a bad rate, ctx.Err() when
// the context ended the run, and nil otherwise. Panics raised by entities
// are not recovered.
func (e *Engine) Run(ctx context.Context, duration, tickRate float64) error {
	if err := validateTickRate(tickRate); err != nil {
		return fmt.Errorf("run: %w (got %v)", err, tickRate)
	}
	e.tickRate = tickRate

	e.running.Store(true)
	defer e.running.Store(false)

	dt := 1.0 / tickRate
	frame := seconds(dt)

	runID := uuid.New()
	started := e.clock.Now()
	e.observers.runStarted(RunInfo{
		RunID:     runID,
		Duration:  duration,
		TickRate:  tickRate,
		DT:        dt,
		Entities:  len(e.entities),
		StartedAt: started,
	})

	var (
		elapsed float64
		ticks   int64
		reason  StopReason
	)
	for {
		if !e.running.Load() {
			reason = ReasonStopped
			break
		}
		if !(elapsed < duration) {
			reason = ReasonFinished
			break
		}
		if ctx.Err() != nil {
			reason = ReasonCanceled
			break
		}

		frameStart := e.clock.Now()
		e.Tick(dt)
		busy := e.clock.Now().Sub(frameStart)
		ticks++

		sleep := frame - busy
		if sleep > 0 {
			select {
			case <-e.clock.After(sleep):
			case <-ctx.Done():
			}
		} else {
			sleep = 0
		}
		elapsed += dt

		e.observers.tickCompleted(TickStats{
			RunID:    runID,
			Tick:     ticks,
			DT:       dt,
			Busy:     busy,
			Slept:    sleep,
			Overrun:  busy > frame,
			Entities: len(e.entities),
		})
	}

	finished := e.clock.Now()
	e.observers.runFinished(RunSummary{
		RunID:      runID,
		Ticks:      ticks,
		Elapsed:    elapsed,
		Wall:       finished.Sub(started),
		Reason:     reason,
		FinishedAt: finished,
	})

	if reason == ReasonCanceled {
		return ctx.Err()
	}
	return nil
}

// RunFor runs for d at the configured tick rate.
func (e *Engine) RunFor(ctx context.Context, d time.Duration) error {
	return e.Run(ctx, d.Seconds(), e.tickRate)
}

// RunDefault runs for DefaultDuration seconds at the configured tick rate.
func (e *Engine) RunDefault(ctx context.Context) error {
	return e.Run(ctx, DefaultDuration, e.tickRate)
}

// seconds converts s to a Duration, saturating at the largest Duration
// for very slow tick rates instead of wrapping negative.
func seconds(s float64) time.Duration {
	ns := s * float64(time.Second)
	if ns >= math.MaxInt64 {
		return math.MaxInt64
	}
	return time.Duration(ns)
}
