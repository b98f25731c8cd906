package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/weather-pipeline/internal/domain"
	"github.com/couchcryptid/weather-pipeline/internal/store"
)

// ProcessPhase projects a batch's raw documents into the warehouse's flat
// processed partition, replacing any prior content for the same batch.
type ProcessPhase struct {
	raw       *store.RawStore
	warehouse *store.Warehouse
	logger    *slog.Logger
}

// NewProcessPhase creates the process phase.
func NewProcessPhase(raw *store.RawStore, warehouse *store.Warehouse, logger *slog.Logger) *ProcessPhase {
	return &ProcessPhase{
		raw:       raw,
		warehouse: warehouse,
		logger:    logger,
	}
}

// Run reads the batch's raw documents, projects each into an Observation,
// and replaces the batch's processed partition. Missing raw documents are
// a fatal precondition: the batch was never ingested.
func (p *ProcessPhase) Run(ctx context.Context, batchID string) (Result, error) {
	docs, err := p.raw.ListBatch(batchID)
	if err != nil {
		return Result{}, err
	}
	if len(docs) == 0 {
		return Result{}, fmt.Errorf("no raw documents for batch %s", batchID)
	}

	rows := make([]domain.Observation, 0, len(docs))
	for _, doc := range docs {
		obs, err := domain.ProjectRawObservation(doc.Payload, batchID)
		if err != nil {
			return Result{}, fmt.Errorf("project %s: %w", doc.Path, err)
		}
		rows = append(rows, obs)
	}

	if err := p.warehouse.ReplaceBatch(ctx, batchID, rows); err != nil {
		return Result{}, err
	}
	p.logger.Info("batch processed", "batch_id", batchID, "rows", len(rows))
	return Result{RowsProcessed: len(rows)}, nil
}
