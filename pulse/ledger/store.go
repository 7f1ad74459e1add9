// Package ledger persists batch runs and per-item outcomes in SQLite.
// The CSV error log stays the audit record of failures; the ledger adds run history.
package ledger

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/teranos/vsbatch/errors"
	"github.com/teranos/vsbatch/pulse/async"
)

// Run is one invocation of the batch
type Run struct {
	ID         string     `json:"id"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"` // nil while running or after a crash
	Workers    int        `json:"workers"`
	Total      int        `json:"total"`
	Skipped    int        `json:"skipped"`
	Succeeded  int        `json:"succeeded"`
	Failed     int        `json:"failed"`
	LigandDir  string     `json:"ligand_dir"`
	OutputDir  string     `json:"output_dir"`
}

// Finished reports whether the run drained
func (r Run) Finished() bool {
	return r.FinishedAt != nil
}

// OutcomeRecord is one item's terminal state within a run
type OutcomeRecord struct {
	RunID      string       `json:"run_id"`
	Item       string       `json:"item"`
	Index      int          `json:"index"`
	Status     async.Status `json:"status"`
	Reason     string       `json:"reason,omitempty"`
	DurationMS int64        `json:"duration_ms"`
	RecordedAt time.Time    `json:"recorded_at"`
}

// Store handles persistence of runs and outcomes
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore creates a new ledger store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// NewRunID returns a fresh run identifier
func NewRunID() string {
	return uuid.NewString()
}

// BeginRun inserts a run row. An empty ID is assigned; a zero StartedAt is set to now.
func (s *Store) BeginRun(run *Run) error {
	if run.ID == "" {
		run.ID = NewRunID()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = s.now().UTC()
	}

	query := `
		INSERT INTO batch_runs (
			id, started_at, workers, total,
			ligand_dir, output_dir
		) VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.Exec(query,
		run.ID,
		run.StartedAt,
		run.Workers,
		run.Total,
		run.LigandDir,
		run.OutputDir,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to begin run %s", run.ID)
	}
	return nil
}

// RecordOutcome inserts one outcome for a run
func (s *Store) RecordOutcome(ctx context.Context, runID string, outcome async.Outcome) error {
	query := `
		INSERT INTO batch_outcomes (
			run_id, item, item_index, status,
			reason, duration_ms, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	reason := outcome.Result.Reason()
	_, err := s.db.ExecContext(ctx, query,
		runID,
		outcome.Item.Name,
		outcome.Item.Index,
		string(outcome.Status),
		sql.NullString{String: reason, Valid: reason != ""},
		outcome.Result.Duration.Milliseconds(),
		s.now().UTC(),
	)
	if err != nil {
		return errors.Wrapf(err, "failed to record outcome for %s", outcome.Item.Name)
	}
	return nil
}

// FinishRun stores the drained summary
func (s *Store) FinishRun(runID string, summary async.Summary, finishedAt time.Time) error {
	query := `
		UPDATE batch_runs
		SET finished_at = ?, total = ?, skipped = ?, succeeded = ?, failed = ?
		WHERE id = ?
	`
	result, err := s.db.Exec(query,
		finishedAt.UTC(),
		summary.Total,
		len(summary.Skipped),
		len(summary.Succeeded),
		len(summary.Failed),
		runID,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to finish run %s", runID)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to check rows affected")
	}
	if rows == 0 {
		return errors.Wrapf(errors.ErrNotFound, "run %s", runID)
	}
	return nil
}

// GetRun retrieves a run by ID
func (s *Store) GetRun(runID string) (*Run, error) {
	query := `
		SELECT id, started_at, finished_at, workers, total,
			skipped, succeeded, failed, ligand_dir, output_dir
		FROM batch_runs
		WHERE id = ?
	`
	run, err := scanRun(s.db.QueryRow(query, runID))
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(errors.ErrNotFound, "run %s", runID)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get run %s", runID)
	}
	return run, nil
}

// ListRuns returns the most recent runs first
func (s *Store) ListRuns(limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT id, started_at, finished_at, workers, total,
			skipped, succeeded, failed, ligand_dir, output_dir
		FROM batch_runs
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?
	`
	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list runs")
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan run")
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate runs")
	}
	return runs, nil
}

// ListOutcomes returns a run's outcomes in index order, optionally filtered by status ("" = all)
func (s *Store) ListOutcomes(runID string, status async.Status) ([]OutcomeRecord, error) {
	query := `
		SELECT run_id, item, item_index, status, reason, duration_ms, recorded_at
		FROM batch_outcomes
		WHERE run_id = ? AND (? = '' OR status = ?)
		ORDER BY item_index, id
	`
	rows, err := s.db.Query(query, runID, string(status), string(status))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list outcomes for run %s", runID)
	}
	defer rows.Close()

	var records []OutcomeRecord
	for rows.Next() {
		var rec OutcomeRecord
		var status string
		var reason sql.NullString
		if err := rows.Scan(&rec.RunID, &rec.Item, &rec.Index, &status, &reason, &rec.DurationMS, &rec.RecordedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan outcome")
		}
		rec.Status = async.Status(status)
		rec.Reason = reason.String
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate outcomes")
	}
	return records, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*Run, error) {
	var run Run
	var finishedAt sql.NullTime
	err := row.Scan(
		&run.ID,
		&run.StartedAt,
		&finishedAt,
		&run.Workers,
		&run.Total,
		&run.Skipped,
		&run.Succeeded,
		&run.Failed,
		&run.LigandDir,
		&run.OutputDir,
	)
	if err != nil {
		return nil, err
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		run.FinishedAt = &t
	}
	return &run, nil
}

// Recorder binds the store to one run so the worker pool can record outcomes as they complete
type Recorder struct {
	store *Store
	runID string
}

// Recorder returns an async.OutcomeRecorder for runID
func (s *Store) Recorder(runID string) *Recorder {
	return &Recorder{store: s, runID: runID}
}

// RecordOutcome implements async.OutcomeRecorder
func (r *Recorder) RecordOutcome(ctx context.Context, outcome async.Outcome) error {
	return r.store.RecordOutcome(ctx, r.runID, outcome)
}
