package storage

import (
	"context"
	"fmt"
)

// Reconstructor closes runs that never recorded a finish, typically because
// the process died mid-run. The outcome is rebuilt from the run's events:
// the last recorded tick and timestamp become the run's end.
type Reconstructor struct {
	runRepo   RunRepository
	eventRepo EventRepository
}

// NewReconstructor creates a new run reconstructor.
func NewReconstructor(runRepo RunRepository, eventRepo EventRepository) *Reconstructor {
	return &Reconstructor{runRepo: runRepo, eventRepo: eventRepo}
}

// RecoverRuns finishes every unfinished run with ReasonInterrupted and
// returns the rebuilt records.
func (r *Reconstructor) RecoverRuns(ctx context.Context) ([]Run, error) {
	open, err := r.runRepo.Unfinished(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list unfinished runs: %w", err)
	}

	recovered := make([]Run, 0, len(open))
	for _, run := range open {
		rebuilt, err := r.rebuild(ctx, run)
		if err != nil {
			return recovered, err
		}
		if err := r.runRepo.Finish(ctx, rebuilt); err != nil {
			return recovered, err
		}
		recovered = append(recovered, rebuilt)
	}
	return recovered, nil
}

func (r *Reconstructor) rebuild(ctx context.Context, run Run) (Run, error) {
	evts, err := r.eventRepo.GetByRun(ctx, run.ID)
	if err != nil {
		return run, fmt.Errorf("failed to get events for run %s: %w", run.ID, err)
	}

	last := run.StartedAt
	var ticks int64
	for _, e := range evts {
		if e.Tick > ticks {
			ticks = e.Tick
		}
		if e.Timestamp.After(last) {
			last = e.Timestamp
		}
	}

	run.Ticks = ticks
	if run.TickRate > 0 {
		run.Elapsed = float64(ticks) / run.TickRate
	}
	run.FinishedAt = &last
	run.WallMS = last.Sub(run.StartedAt).Milliseconds()
	run.Reason = ReasonInterrupted
	return run, nil
}
