// Package ledger provides the durable, append-only audit trail of phase
// executions. Every phase run — successful or not — appends exactly one
// immutable row, keyed by batch and phase, making failures diagnosable and
// re-runs traceable.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Phase identifies one stage of the pipeline.
type Phase string

const (
	PhaseIngest  Phase = "ingest"
	PhaseProcess Phase = "process"
	PhaseDQ      Phase = "dq"
	PhaseLoad    Phase = "load"
)

// Status is the terminal outcome of a phase run. A data-quality failure is
// not a failed run: only a run that could not evaluate at all is failed.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Entry is one immutable ledger row describing a single phase run.
type Entry struct {
	BatchID       string
	Phase         Phase
	StartTime     time.Time
	EndTime       time.Time
	Status        Status
	RowsProcessed int
	DQPassed      *bool
	ErrorMessage  string
	InsertedAt    time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS pipeline_metadata (
	batch_id TEXT NOT NULL,
	phase TEXT NOT NULL,
	start_time TIMESTAMP NOT NULL,
	end_time TIMESTAMP NOT NULL,
	status TEXT NOT NULL,
	rows_processed INTEGER NOT NULL,
	dq_passed BOOLEAN,
	error_message TEXT,
	inserted_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);`

// Client appends to and queries the pipeline_metadata table. A Client is
// scoped to one phase invocation: open it at the start of the run and
// close it on every exit path.
type Client struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens a ledger client against the given SQLite database file. The
// backing table is created lazily and idempotently, so independent phase
// processes need no coordination.
func Open(path string, logger *slog.Logger) (*Client, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure ledger schema: %w", err)
	}
	return &Client{db: db, logger: logger}, nil
}

// Close releases the database handle.
func (c *Client) Close() error {
	return c.db.Close()
}

// Record appends exactly one row for a phase run. Entries are never
// updated or deleted.
func (c *Client) Record(ctx context.Context, e Entry) error {
	var dqPassed sql.NullBool
	if e.DQPassed != nil {
		dqPassed = sql.NullBool{Bool: *e.DQPassed, Valid: true}
	}
	var errMsg sql.NullString
	if e.ErrorMessage != "" {
		errMsg = sql.NullString{String: e.ErrorMessage, Valid: true}
	}

	_, err := c.db.ExecContext(ctx, `
		INSERT INTO pipeline_metadata (
			batch_id, phase, start_time, end_time, status,
			rows_processed, dq_passed, error_message
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.BatchID, string(e.Phase), e.StartTime.UTC(), e.EndTime.UTC(),
		string(e.Status), e.RowsProcessed, dqPassed, errMsg)
	if err != nil {
		return fmt.Errorf("record ledger entry: %w", err)
	}
	c.logger.Debug("ledger entry recorded",
		"batch_id", e.BatchID, "phase", e.Phase, "status", e.Status)
	return nil
}

// Entries returns the recorded runs for one batch and phase, oldest first.
func (c *Client) Entries(ctx context.Context, batchID string, phase Phase) ([]Entry, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT batch_id, phase, start_time, end_time, status,
			rows_processed, dq_passed, error_message, inserted_at
		FROM pipeline_metadata
		WHERE batch_id = ? AND phase = ?
		ORDER BY inserted_at, rowid`,
		batchID, string(phase))
	if err != nil {
		return nil, fmt.Errorf("query ledger entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e        Entry
			phaseStr string
			status   string
			dqPassed sql.NullBool
			errMsg   sql.NullString
		)
		if err := rows.Scan(&e.BatchID, &phaseStr, &e.StartTime, &e.EndTime, &status,
			&e.RowsProcessed, &dqPassed, &errMsg, &e.InsertedAt); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		e.Phase = Phase(phaseStr)
		e.Status = Status(status)
		if dqPassed.Valid {
			v := dqPassed.Bool
			e.DQPassed = &v
		}
		e.ErrorMessage = errMsg.String
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger entries: %w", err)
	}
	return out, nil
}
