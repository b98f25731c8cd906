package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/weather-pipeline/internal/config"
	"github.com/couchcryptid/weather-pipeline/internal/store"
)

// Fetcher retrieves the raw current-conditions document for one location
// query. Implemented by the weatherapi adapter.
type Fetcher interface {
	Current(ctx context.Context, query string) ([]byte, error)
}

// IngestPhase fetches raw observations for every configured city and
// persists one document per city per batch. A fetch failure for a single
// city is logged and skipped; the batch continues with the rest.
type IngestPhase struct {
	fetcher Fetcher
	raw     *store.RawStore
	cfg     *config.Config
	logger  *slog.Logger
}

// NewIngestPhase creates the ingest phase.
func NewIngestPhase(fetcher Fetcher, raw *store.RawStore, cfg *config.Config, logger *slog.Logger) *IngestPhase {
	return &IngestPhase{
		fetcher: fetcher,
		raw:     raw,
		cfg:     cfg,
		logger:  logger,
	}
}

// Run fetches and saves the batch's raw documents. Config validation
// happens here rather than at startup so a misconfigured invocation still
// gets its ledger entry.
func (p *IngestPhase) Run(ctx context.Context, batchID string) (Result, error) {
	if err := p.cfg.ValidateIngest(); err != nil {
		return Result{}, err
	}
	cities, err := p.cfg.Cities()
	if err != nil {
		return Result{}, err
	}

	saved := 0
	for _, city := range cities {
		payload, err := p.fetcher.Current(ctx, city.Query)
		if err != nil {
			if ctx.Err() != nil {
				return Result{RowsProcessed: saved}, ctx.Err()
			}
			p.logger.Error("fetch failed", "city", city.Name, "error", err)
			continue
		}
		path, err := p.raw.Save(city.Name, batchID, payload)
		if err != nil {
			return Result{RowsProcessed: saved}, fmt.Errorf("save raw document for %s: %w", city.Name, err)
		}
		p.logger.Info("raw document saved", "city", city.Name, "path", path)
		saved++
	}
	return Result{RowsProcessed: saved}, nil
}
