package pipeline

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/weather-pipeline/internal/domain"
	"github.com/couchcryptid/weather-pipeline/internal/observability"
	"github.com/couchcryptid/weather-pipeline/internal/quality"
	"github.com/couchcryptid/weather-pipeline/internal/store"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// EventEmitter publishes a quality summary after a dq run. Emission is
// best-effort: a failure is logged and never changes the run's outcome.
type EventEmitter interface {
	Emit(ctx context.Context, event domain.QualityEvent) error
}

// QualityPhase is the core of the pipeline: classifier → quarantine
// router → gate controller, strictly in that order, with the ledger entry
// appended afterwards by the Runner.
type QualityPhase struct {
	warehouse *store.Warehouse
	router    *quality.Router
	gate      *quality.Gate
	emitter   EventEmitter // nil when Kafka is not configured
	metrics   *observability.Metrics
	clock     clockwork.Clock
	logger    *slog.Logger
}

// NewQualityPhase creates the quality phase. Pass a nil emitter to
// disable quality-event publication.
func NewQualityPhase(
	warehouse *store.Warehouse,
	router *quality.Router,
	gate *quality.Gate,
	emitter EventEmitter,
	metrics *observability.Metrics,
	clock clockwork.Clock,
	logger *slog.Logger,
) *QualityPhase {
	return &QualityPhase{
		warehouse: warehouse,
		router:    router,
		gate:      gate,
		emitter:   emitter,
		metrics:   metrics,
		clock:     clock,
		logger:    logger,
	}
}

// Run classifies the batch and persists the outcome. A missing batch or a
// storage failure is a failed run; finding invalid rows is not — the run
// succeeds with DQPassed=false and the gate forced to FAIL. On every path
// that cannot end in a pass, the gate is set to FAIL first so a stale PASS
// from an earlier run cannot authorize a load.
func (q *QualityPhase) Run(ctx context.Context, batchID string) (Result, error) {
	rows, err := q.warehouse.Batch(ctx, batchID)
	if err != nil {
		return q.fail(batchID), err
	}

	part := domain.Classify(rows)
	counts := part.ReasonCounts()
	for _, rule := range domain.RuleOrder {
		if n := counts[rule]; n > 0 {
			q.metrics.InvalidRows.WithLabelValues(string(rule)).Add(float64(n))
		}
	}

	if err := q.router.Route(ctx, batchID, part); err != nil {
		return q.fail(batchID), err
	}

	passed := part.Passed()
	if err := q.gate.Set(batchID, passed); err != nil {
		return q.fail(batchID), err
	}
	if passed {
		q.metrics.GatePassed.Set(1)
	} else {
		q.metrics.GatePassed.Set(0)
	}

	q.emit(ctx, batchID, part, passed)

	res := Result{DQPassed: &passed}
	if passed {
		// rows_processed is the valid-row count only when the gate passes.
		res.RowsProcessed = len(part.Valid)
	}
	return res, nil
}

// fail forces the gate to FAIL and reports dq_passed=false. A gate update
// failure here is logged but not returned: the caller already holds the
// error that ended the run.
func (q *QualityPhase) fail(batchID string) Result {
	if err := q.gate.Set(batchID, false); err != nil {
		q.logger.Error("gate update failed", "batch_id", batchID, "error", err)
	}
	q.metrics.GatePassed.Set(0)
	failed := false
	return Result{DQPassed: &failed}
}

func (q *QualityPhase) emit(ctx context.Context, batchID string, part domain.Partition, passed bool) {
	if q.emitter == nil {
		return
	}
	event := domain.QualityEvent{
		ID:           uuid.NewString(),
		BatchID:      batchID,
		Passed:       passed,
		TotalRows:    part.Total,
		ValidRows:    len(part.Valid),
		InvalidRows:  len(part.Invalid),
		ReasonCounts: part.ReasonCounts(),
		EmittedAt:    q.clock.Now(),
	}
	if err := q.emitter.Emit(ctx, event); err != nil {
		q.logger.Warn("quality event emit failed", "batch_id", batchID, "error", err)
	}
}
