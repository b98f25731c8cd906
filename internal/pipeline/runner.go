// Package pipeline orchestrates the batch phases: ingest, process, dq,
// and load. Each phase runs as a short-lived sequential process for one
// batch, wrapped by a Runner that ledgers every invocation.
package pipeline

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/weather-pipeline/internal/ledger"
	"github.com/couchcryptid/weather-pipeline/internal/observability"
	"github.com/jonboulle/clockwork"
)

// Recorder appends one ledger entry per phase run.
type Recorder interface {
	Record(ctx context.Context, e ledger.Entry) error
}

// Result is what a phase reports when it finishes. DQPassed is set only by
// the quality phase; a returned error from the phase means the run itself
// failed, while a data-quality failure travels through Result.
type Result struct {
	RowsProcessed int
	DQPassed      *bool
}

// PhaseFunc executes one phase for one batch.
type PhaseFunc func(ctx context.Context) (Result, error)

// Runner wraps every phase with uniform timing, metrics, and ledger
// recording. Exactly one entry is appended per invocation whatever the
// outcome; a ledger write failure is logged locally and never masks the
// phase's own status.
type Runner struct {
	recorder Recorder
	metrics  *observability.Metrics
	clock    clockwork.Clock
	logger   *slog.Logger
}

// NewRunner creates a phase runner.
func NewRunner(recorder Recorder, metrics *observability.Metrics, clock clockwork.Clock, logger *slog.Logger) *Runner {
	return &Runner{
		recorder: recorder,
		metrics:  metrics,
		clock:    clock,
		logger:   logger,
	}
}

// Run executes fn and appends its ledger entry. The entry is recorded on
// every path, including runs that fail before doing any work; recording
// uses a non-cancelable context so a cancelled run still leaves its trace.
func (r *Runner) Run(ctx context.Context, phase ledger.Phase, batchID string, fn PhaseFunc) error {
	start := r.clock.Now()
	res, err := fn(ctx)
	end := r.clock.Now()

	entry := ledger.Entry{
		BatchID:       batchID,
		Phase:         phase,
		StartTime:     start,
		EndTime:       end,
		Status:        ledger.StatusSuccess,
		RowsProcessed: res.RowsProcessed,
		DQPassed:      res.DQPassed,
	}
	if err != nil {
		entry.Status = ledger.StatusFailed
		entry.ErrorMessage = err.Error()
	}

	if recErr := r.recorder.Record(context.WithoutCancel(ctx), entry); recErr != nil {
		r.logger.Error("ledger write failed",
			"phase", phase, "batch_id", batchID, "error", recErr)
	}

	r.metrics.PhaseRuns.WithLabelValues(string(phase), string(entry.Status)).Inc()
	r.metrics.PhaseDuration.WithLabelValues(string(phase)).Observe(end.Sub(start).Seconds())
	r.metrics.RowsProcessed.WithLabelValues(string(phase)).Add(float64(res.RowsProcessed))

	if err != nil {
		r.logger.Error("phase failed", "phase", phase, "batch_id", batchID, "error", err)
		return err
	}
	r.logger.Info("phase complete",
		"phase", phase, "batch_id", batchID,
		"rows_processed", res.RowsProcessed, "duration", end.Sub(start))
	return nil
}
