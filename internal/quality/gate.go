// Package quality implements the data-quality half of the pipeline: the
// quarantine router that splits a classified batch into the staging and
// quarantine areas, and the gate controller that authorizes loading.
package quality

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Gate controls the per-batch pass flag the load phase checks before
// touching the long-lived table. Presence of the flag file is the PASS
// signal, absence is FAIL; keying the flag by batch keeps concurrent
// batches from racing on a shared artifact.
type Gate struct {
	dir    string
	logger *slog.Logger
}

// NewGate creates a gate controller writing flags under dir.
func NewGate(dir string, logger *slog.Logger) *Gate {
	return &Gate{dir: dir, logger: logger}
}

// Set overwrites the batch's gate state unconditionally: write the flag on
// pass, remove any stale flag on fail. A run that fails before
// classification must call Set(batchID, false) so a stale PASS from an
// earlier run cannot survive.
func (g *Gate) Set(batchID string, passed bool) error {
	path := g.flagPath(batchID)
	if passed {
		if err := os.MkdirAll(g.dir, 0o755); err != nil {
			return fmt.Errorf("create flag dir: %w", err)
		}
		if err := os.WriteFile(path, []byte("DQ passed\n"), 0o644); err != nil {
			return fmt.Errorf("write gate flag: %w", err)
		}
		g.logger.Info("gate set to pass", "batch_id", batchID, "flag", path)
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("clear gate flag: %w", err)
	}
	g.logger.Info("gate set to fail", "batch_id", batchID)
	return nil
}

// Passed reports the batch's current gate state.
func (g *Gate) Passed(batchID string) (bool, error) {
	_, err := os.Stat(g.flagPath(batchID))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("read gate flag: %w", err)
}

func (g *Gate) flagPath(batchID string) string {
	return filepath.Join(g.dir, "dq_pass_"+batchID+".flag")
}
