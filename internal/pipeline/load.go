package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/weather-pipeline/internal/quality"
	"github.com/couchcryptid/weather-pipeline/internal/store"
)

// ErrGateFailed reports that a batch's gate signal is absent, so the load
// phase refused to touch the long-lived table.
var ErrGateFailed = errors.New("data quality gate is not set to pass")

// LoadPhase appends a batch's staged rows to the long-lived weather
// table, but only behind a PASS gate.
type LoadPhase struct {
	warehouse *store.Warehouse
	gate      *quality.Gate
	logger    *slog.Logger
}

// NewLoadPhase creates the load phase.
func NewLoadPhase(warehouse *store.Warehouse, gate *quality.Gate, logger *slog.Logger) *LoadPhase {
	return &LoadPhase{
		warehouse: warehouse,
		gate:      gate,
		logger:    logger,
	}
}

// Run checks the batch's gate and moves its staged rows into the final
// table. Zero staged rows behind a PASS gate is a degenerate but
// successful load.
func (p *LoadPhase) Run(ctx context.Context, batchID string) (Result, error) {
	passed, err := p.gate.Passed(batchID)
	if err != nil {
		return Result{}, err
	}
	if !passed {
		return Result{}, fmt.Errorf("%w: batch %s", ErrGateFailed, batchID)
	}

	n, err := p.warehouse.AppendFinal(ctx, batchID)
	if err != nil {
		return Result{}, err
	}
	if n == 0 {
		p.logger.Info("no rows to load", "batch_id", batchID)
	} else {
		p.logger.Info("batch loaded", "batch_id", batchID, "rows", n)
	}
	return Result{RowsProcessed: n}, nil
}
