package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// SQLiteEventRepository implements EventRepository for SQLite.
type SQLiteEventRepository struct {
	db *sql.DB
}

func NewSQLiteEventRepository(db *sql.DB) *SQLiteEventRepository {
	return &SQLiteEventRepository{db: db}
}

func (r *SQLiteEventRepository) Append(ctx context.Context, event StoredEvent) error {
	payloadBytes, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	query := `
		INSERT INTO events (id, run_id, timestamp, event_type, actor_id, target_id, tick, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, query,
		event.ID, event.RunID, event.Timestamp, event.EventType, event.ActorID,
		event.TargetID, event.Tick, string(payloadBytes),
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

func (r *SQLiteEventRepository) getMany(ctx context.Context, query string, args ...interface{}) ([]StoredEvent, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []StoredEvent
	for rows.Next() {
		var e StoredEvent
		var payloadStr string
		err := rows.Scan(
			&e.ID, &e.RunID, &e.Timestamp, &e.EventType, &e.ActorID,
			&e.TargetID, &e.Tick, &payloadStr,
		)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(payloadStr), &e.Payload); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (r *SQLiteEventRepository) GetByRun(ctx context.Context, runID string) ([]StoredEvent, error) {
	query := `SELECT id, run_id, timestamp, event_type, actor_id, target_id, tick, payload FROM events WHERE run_id = ? ORDER BY timestamp ASC, rowid ASC`
	return r.getMany(ctx, query, runID)
}

func (r *SQLiteEventRepository) GetByType(ctx context.Context, eventType string) ([]StoredEvent, error) {
	query := `SELECT id, run_id, timestamp, event_type, actor_id, target_id, tick, payload FROM events WHERE event_type = ? ORDER BY timestamp ASC, rowid ASC`
	return r.getMany(ctx, query, eventType)
}

// ---------------------------------------------------------
// SQLiteRunRepository
// ---------------------------------------------------------

type SQLiteRunRepository struct {
	db *sql.DB
}

func NewSQLiteRunRepository(db *sql.DB) *SQLiteRunRepository {
	return &SQLiteRunRepository{db: db}
}

const runColumns = `id, started_at, finished_at, tick_rate, duration, entities, ticks, elapsed, wall_ms, reason`

func (r *SQLiteRunRepository) Create(ctx context.Context, run Run) error {
	query := `
		INSERT INTO runs (id, started_at, tick_rate, duration, entities)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query, run.ID, run.StartedAt, run.TickRate, nullFloat(run.Duration), run.Entities)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

func (r *SQLiteRunRepository) Finish(ctx context.Context, run Run) error {
	if run.FinishedAt == nil {
		return fmt.Errorf("finish run %s: missing finish time", run.ID)
	}
	query := `
		UPDATE runs SET finished_at = ?, ticks = ?, elapsed = ?, wall_ms = ?, reason = ?
		WHERE id = ?
	`
	res, err := r.db.ExecContext(ctx, query, *run.FinishedAt, run.Ticks, run.Elapsed, run.WallMS, run.Reason, run.ID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finish run %s: %w", run.ID, ErrRunNotFound)
	}
	return nil
}

func (r *SQLiteRunRepository) Get(ctx context.Context, id string) (*Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE id = ?`
	run, err := scanRun(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("get run %s: %w", id, ErrRunNotFound)
		}
		return nil, err
	}
	return run, nil
}

func (r *SQLiteRunRepository) List(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC LIMIT ?`
	return r.getMany(ctx, query, limit)
}

func (r *SQLiteRunRepository) Unfinished(ctx context.Context) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE finished_at IS NULL ORDER BY started_at ASC`
	return r.getMany(ctx, query)
}

func (r *SQLiteRunRepository) getMany(ctx context.Context, query string, args ...interface{}) ([]Run, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var (
		run      Run
		finished sql.NullTime
		duration sql.NullFloat64
	)
	err := row.Scan(
		&run.ID, &run.StartedAt, &finished, &run.TickRate, &duration,
		&run.Entities, &run.Ticks, &run.Elapsed, &run.WallMS, &run.Reason,
	)
	if err != nil {
		return nil, err
	}
	if finished.Valid {
		t := finished.Time
		run.FinishedAt = &t
	}
	if duration.Valid {
		d := duration.Float64
		run.Duration = &d
	}
	return &run, nil
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
