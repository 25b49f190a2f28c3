package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/thinker/internal/ir"
)

// ErrRunNotFound is returned when a run ID has no record.
var ErrRunNotFound = errors.New("run not found")

// GetRun returns the record of one run.
func (s *Store) GetRun(ctx context.Context, runID string) (ir.Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, engine_version, ticks, digest
		FROM runs
		WHERE id = ?
	`, runID)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Run{}, fmt.Errorf("get run %s: %w", runID, ErrRunNotFound)
	}
	if err != nil {
		return ir.Run{}, fmt.Errorf("get run %s: %w", runID, err)
	}
	return run, nil
}

// ListRuns returns all runs ordered by ID. Run IDs are UUIDv7, so this is
// creation order.
//
// Returns an empty slice (not nil) if no runs exist.
func (s *Store) ListRuns(ctx context.Context) ([]ir.Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, engine_version, ticks, digest
		FROM runs
		ORDER BY id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []ir.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// LatestRun returns the most recently created run.
func (s *Store) LatestRun(ctx context.Context) (ir.Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, engine_version, ticks, digest
		FROM runs
		ORDER BY id COLLATE BINARY DESC
		LIMIT 1
	`)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Run{}, fmt.Errorf("latest run: %w", ErrRunNotFound)
	}
	if err != nil {
		return ir.Run{}, fmt.Errorf("latest run: %w", err)
	}
	return run, nil
}

// ReadEvents returns a run's events in seq order.
//
// Returns an empty slice (not nil) if the run has no events.
func (s *Store) ReadEvents(ctx context.Context, runID string) ([]ir.Event, error) {
	return s.queryEvents(ctx, `
		SELECT run_id, seq, tick, kind, handle, label, action, detail
		FROM events
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
}

// ReadTick returns the events a run recorded during one tick, in seq order.
func (s *Store) ReadTick(ctx context.Context, runID string, tick uint64) ([]ir.Event, error) {
	return s.queryEvents(ctx, `
		SELECT run_id, seq, tick, kind, handle, label, action, detail
		FROM events
		WHERE run_id = ? AND tick = ?
		ORDER BY seq ASC
	`, runID, int64(tick))
}

func (s *Store) queryEvents(ctx context.Context, query string, args ...any) ([]ir.Event, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []ir.Event{}
	for rows.Next() {
		var (
			ev   ir.Event
			tick int64
			kind string
		)
		if err := rows.Scan(&ev.RunID, &ev.Seq, &tick, &kind, &ev.Handle, &ev.Label, &ev.Action, &ev.Detail); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Tick = uint64(tick)
		ev.Kind = ir.EventKind(kind)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (ir.Run, error) {
	var (
		run   ir.Run
		ticks int64
	)
	if err := row.Scan(&run.ID, &run.Name, &run.EngineVersion, &ticks, &run.Digest); err != nil {
		return ir.Run{}, err
	}
	run.Ticks = uint64(ticks)
	return run, nil
}
