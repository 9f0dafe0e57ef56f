package ledger

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const runColumns = `
	id, started_at, finished_at, finished_at IS NOT NULL,
	strategy, group_key, source_url, batch_size, status, fetched_bytes,
	transformed, skipped, duplicates, deleted, succeeded, failed,
	verified, expected, actual, COALESCE(error, '')`

// CreateRun inserts a new run record and assigns an ID if needed
func (l *Ledger) CreateRun(run *Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	if run.Status == "" {
		run.Status = StatusRunning
	}

	_, err := l.db.Exec(`
		INSERT INTO runs (id, started_at, strategy, group_key, source_url, batch_size, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.StartedAt, run.Strategy, run.GroupKey, run.SourceURL, run.BatchSize, run.Status)

	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	return nil
}

// FinishRun records the final counters and status for a run
func (l *Ledger) FinishRun(run *Run) error {
	if run.FinishedAt.IsZero() {
		run.FinishedAt = time.Now().UTC()
	}

	verified := 0
	if run.Verified {
		verified = 1
	}

	_, err := l.db.Exec(`
		UPDATE runs SET
			finished_at = ?, status = ?, fetched_bytes = ?,
			transformed = ?, skipped = ?, duplicates = ?, deleted = ?,
			succeeded = ?, failed = ?,
			verified = ?, expected = ?, actual = ?, error = ?
		WHERE id = ?
	`, run.FinishedAt, run.Status, run.FetchedBytes,
		run.Transformed, run.Skipped, run.Duplicates, run.Deleted,
		run.Succeeded, run.Failed,
		verified, run.Expected, run.Actual, run.Error,
		run.ID)

	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	run := &Run{}
	// finished_at is selected as a plain column (not an expression) so the
	// driver keeps the DATETIME decltype and converts it; NULL means unfinished
	var finishedAt sql.NullTime
	var finished int
	var verified int

	err := row.Scan(
		&run.ID, &run.StartedAt, &finishedAt, &finished,
		&run.Strategy, &run.GroupKey, &run.SourceURL, &run.BatchSize, &run.Status, &run.FetchedBytes,
		&run.Transformed, &run.Skipped, &run.Duplicates, &run.Deleted,
		&run.Succeeded, &run.Failed,
		&verified, &run.Expected, &run.Actual, &run.Error,
	)
	if err != nil {
		return nil, err
	}

	if finished != 0 {
		run.FinishedAt = finishedAt.Time
	}
	run.Verified = verified == 1

	return run, nil
}

// GetRun retrieves a run by ID, or nil if it does not exist
func (l *Ledger) GetRun(id string) (*Run, error) {
	row := l.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id)

	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	return run, nil
}

// LatestRun retrieves the most recently started run, or nil if none exist
func (l *Ledger) LatestRun() (*Run, error) {
	row := l.db.QueryRow(`SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC, id LIMIT 1`)

	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest run: %w", err)
	}

	return run, nil
}

// ListRuns retrieves the most recent runs, newest first
func (l *Ledger) ListRuns(limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := l.db.Query(`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// CountRuns returns the total number of recorded runs
func (l *Ledger) CountRuns() (int, error) {
	var count int
	err := l.db.QueryRow("SELECT COUNT(*) FROM runs").Scan(&count)

	return count, err
}

// InsertChunkFailure records a chunk that exhausted its write retries
func (l *Ledger) InsertChunkFailure(cf *ChunkFailure) error {
	if cf.CreatedAt.IsZero() {
		cf.CreatedAt = time.Now().UTC()
	}

	result, err := l.db.Exec(`
		INSERT INTO chunk_failures (run_id, chunk_index, chunk_size, reason, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, cf.RunID, cf.ChunkIndex, cf.ChunkSize, cf.Reason, cf.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to insert chunk failure: %w", err)
	}

	if cf.ID == 0 {
		if id, err := result.LastInsertId(); err == nil {
			cf.ID = id
		}
	}

	return nil
}

// GetChunkFailures retrieves the failed chunks for a run in chunk order
func (l *Ledger) GetChunkFailures(runID string) ([]*ChunkFailure, error) {
	rows, err := l.db.Query(`
		SELECT id, run_id, chunk_index, chunk_size, COALESCE(reason, ''), created_at
		FROM chunk_failures
		WHERE run_id = ?
		ORDER BY chunk_index
	`, runID)

	if err != nil {
		return nil, fmt.Errorf("failed to query chunk failures: %w", err)
	}
	defer rows.Close()

	var failures []*ChunkFailure
	for rows.Next() {
		cf := &ChunkFailure{}
		err := rows.Scan(&cf.ID, &cf.RunID, &cf.ChunkIndex, &cf.ChunkSize, &cf.Reason, &cf.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chunk failure: %w", err)
		}
		failures = append(failures, cf)
	}

	return failures, rows.Err()
}
