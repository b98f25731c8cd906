package quality

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/couchcryptid/weather-pipeline/internal/domain"
	"github.com/couchcryptid/weather-pipeline/internal/store"
	"github.com/jonboulle/clockwork"
)

// Router persists a classified batch: valid rows to the staging area,
// deduplicated reason-tagged invalid rows to the quarantine area, both
// replacing the batch's prior partition. A non-empty quarantine
// additionally produces a timestamped CSV snapshot for offline
// inspection; nothing downstream reads it.
type Router struct {
	warehouse *store.Warehouse
	reportDir string
	clock     clockwork.Clock
	logger    *slog.Logger
}

// NewRouter creates a quarantine router writing reports under reportDir.
func NewRouter(warehouse *store.Warehouse, reportDir string, clock clockwork.Clock, logger *slog.Logger) *Router {
	return &Router{
		warehouse: warehouse,
		reportDir: reportDir,
		clock:     clock,
		logger:    logger,
	}
}

// Route persists both partitions. Any write failure is fatal to the run:
// a partially staged batch must never count as a pass.
func (r *Router) Route(ctx context.Context, batchID string, part domain.Partition) error {
	if err := r.warehouse.ReplaceStaging(ctx, batchID, part.Valid); err != nil {
		return fmt.Errorf("stage valid rows: %w", err)
	}
	if err := r.warehouse.ReplaceQuarantine(ctx, batchID, part.Invalid); err != nil {
		return fmt.Errorf("quarantine invalid rows: %w", err)
	}

	if len(part.Invalid) == 0 {
		r.logger.Info("batch routed", "batch_id", batchID, "valid", len(part.Valid), "invalid", 0)
		return nil
	}

	path, err := r.writeReport(part.Invalid)
	if err != nil {
		return fmt.Errorf("write quality report: %w", err)
	}
	r.logger.Warn("invalid rows quarantined",
		"batch_id", batchID, "valid", len(part.Valid), "invalid", len(part.Invalid), "report", path)
	return nil
}

// writeReport exports the quarantined rows as a timestamped CSV.
func (r *Router) writeReport(invalid []domain.InvalidObservation) (string, error) {
	if err := os.MkdirAll(r.reportDir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}
	name := "invalid_records_" + r.clock.Now().Format("2006-01-02_15-04-05") + ".csv"
	path := filepath.Join(r.reportDir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create report file: %w", err)
	}
	defer f.Close()

	wr := csv.NewWriter(f)
	header := append(append([]string{}, domain.RequiredFields...), "batch_id", "dq_type")
	if err := wr.Write(header); err != nil {
		return "", fmt.Errorf("write report header: %w", err)
	}
	for _, iv := range invalid {
		row := make([]string, 0, len(header))
		for _, field := range iv.Observation.Fields() {
			if field == nil {
				row = append(row, "")
				continue
			}
			row = append(row, *field)
		}
		row = append(row, iv.Observation.BatchID, string(iv.Reason()))
		if err := wr.Write(row); err != nil {
			return "", fmt.Errorf("write report row: %w", err)
		}
	}
	wr.Flush()
	if err := wr.Error(); err != nil {
		return "", fmt.Errorf("flush report: %w", err)
	}
	return path, nil
}
