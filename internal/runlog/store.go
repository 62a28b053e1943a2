// Package runlog persists per-epoch loss records to SQLite so finished and
// in-flight runs can be inspected without opening checkpoints.
package runlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Store manages run-log persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	started_at TEXT NOT NULL,
	outfile TEXT NOT NULL,
	encoders INTEGER NOT NULL,
	note TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS epoch_losses (
	run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	phase INTEGER NOT NULL,
	encoder INTEGER NOT NULL,
	epoch INTEGER NOT NULL,
	fidelity REAL NOT NULL,
	similarity REAL NOT NULL,
	aug_fidelity REAL NOT NULL,
	aug_similarity REAL NOT NULL,
	consistency REAL NOT NULL,
	PRIMARY KEY (run_id, phase, encoder, epoch)
);
`

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

// Open initializes or connects to the run-log database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init run-log schema: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// StartRun records a new training run.
func (s *Store) StartRun(ctx context.Context, id, outfile string, encoders int, note string) error {
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO runs (id, started_at, outfile, encoders, note) VALUES (?, ?, ?, ?, ?)`,
			id, time.Now().UTC().Format(time.RFC3339), outfile, encoders, note)
		return err
	})
}

// RecordEpoch upserts the loss terms of one phase/encoder/epoch.
func (s *Store) RecordEpoch(ctx context.Context, runID string, phase, encoder, epoch int, terms []float64) error {
	if len(terms) != 5 {
		return fmt.Errorf("runlog: expected 5 loss terms, got %d", len(terms))
	}
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO epoch_losses (run_id, phase, encoder, epoch, fidelity, similarity, aug_fidelity, aug_similarity, consistency)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (run_id, phase, encoder, epoch) DO UPDATE SET
				fidelity = excluded.fidelity,
				similarity = excluded.similarity,
				aug_fidelity = excluded.aug_fidelity,
				aug_similarity = excluded.aug_similarity,
				consistency = excluded.consistency`,
			runID, phase, encoder, epoch, terms[0], terms[1], terms[2], terms[3], terms[4])
		return err
	})
}

// EpochRecord is one stored loss row.
type EpochRecord struct {
	Phase   int
	Encoder int
	Epoch   int
	Terms   [5]float64
}

// Epochs returns all loss rows of a run ordered by epoch.
func (s *Store) Epochs(ctx context.Context, runID string) ([]EpochRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT phase, encoder, epoch, fidelity, similarity, aug_fidelity, aug_similarity, consistency
		 FROM epoch_losses WHERE run_id = ? ORDER BY epoch, phase, encoder`, runID)
	if err != nil {
		return nil, fmt.Errorf("query epoch losses: %w", err)
	}
	defer rows.Close()
	var out []EpochRecord
	for rows.Next() {
		var rec EpochRecord
		if err := rows.Scan(&rec.Phase, &rec.Encoder, &rec.Epoch,
			&rec.Terms[0], &rec.Terms[1], &rec.Terms[2], &rec.Terms[3], &rec.Terms[4]); err != nil {
			return nil, fmt.Errorf("scan epoch loss row: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
