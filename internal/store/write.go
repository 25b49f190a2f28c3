package store

import (
	"context"
	"fmt"

	"github.com/roach88/thinker/internal/ir"
)

// WriteRun inserts a run record. Writing a run that already exists updates
// its name and engine version and keeps its events.
func (s *Store) WriteRun(ctx context.Context, run ir.Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, name, engine_version, ticks, digest)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			engine_version = excluded.engine_version
	`,
		run.ID,
		run.Name,
		run.EngineVersion,
		int64(run.Ticks),
		run.Digest,
	)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	return nil
}

// FinishRun stores the final tick count and trace digest of a run.
func (s *Store) FinishRun(ctx context.Context, runID string, ticks uint64, digest string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET ticks = ?, digest = ?, finished = 1
		WHERE id = ?
	`, int64(ticks), digest, runID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("finish run %s: %w", runID, ErrRunNotFound)
	}
	return nil
}

// RecordEvents appends events in a single transaction.
// Uses ON CONFLICT DO NOTHING for idempotency - events already stored under
// the same (run_id, seq) are silently ignored.
//
// A run record is created for any run ID not yet stored.
//
// Implements engine.Recorder.
func (s *Store) RecordEvents(ctx context.Context, events []ir.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record events: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	runStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO runs (id, engine_version) VALUES (?, ?)
		ON CONFLICT(id) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("record events: prepare run: %w", err)
	}
	defer runStmt.Close()

	eventStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO events (run_id, seq, tick, kind, handle, label, action, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, seq) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("record events: prepare event: %w", err)
	}
	defer eventStmt.Close()

	seen := make(map[string]bool)
	for _, ev := range events {
		if !ev.Kind.Valid() {
			return fmt.Errorf("record events: seq %d: invalid kind %q", ev.Seq, ev.Kind)
		}
		if !seen[ev.RunID] {
			seen[ev.RunID] = true
			if _, err := runStmt.ExecContext(ctx, ev.RunID, ir.EngineVersion); err != nil {
				return fmt.Errorf("record events: run %s: %w", ev.RunID, err)
			}
		}

		_, err := eventStmt.ExecContext(ctx,
			ev.RunID,
			ev.Seq,
			int64(ev.Tick),
			string(ev.Kind),
			ev.Handle,
			ev.Label,
			ev.Action,
			ev.Detail,
		)
		if err != nil {
			return fmt.Errorf("record events: seq %d: %w", ev.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("record events: commit: %w", err)
	}
	return nil
}
