// Command weather runs one phase of the batch weather pipeline. Each
// invocation is a short-lived process: it executes a single phase for a
// single batch, appends its ledger entry, and exits.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	"github.com/couchcryptid/weather-pipeline/internal/adapter/kafka"
	"github.com/couchcryptid/weather-pipeline/internal/adapter/weatherapi"
	"github.com/couchcryptid/weather-pipeline/internal/config"
	"github.com/couchcryptid/weather-pipeline/internal/ledger"
	"github.com/couchcryptid/weather-pipeline/internal/observability"
	"github.com/couchcryptid/weather-pipeline/internal/pipeline"
	"github.com/couchcryptid/weather-pipeline/internal/quality"
	"github.com/couchcryptid/weather-pipeline/internal/store"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "weather",
		Short:         "Batch weather pipeline phases",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newIngestCmd(), newProcessCmd(), newDQCmd(), newLoadCmd())
	return root
}

// app bundles the dependencies every phase command opens and tears down.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	metrics   *observability.Metrics
	clock     clockwork.Clock
	warehouse *store.Warehouse
	ledger    *ledger.Client
	runner    *pipeline.Runner
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	warehouse, err := store.Open(cfg.DBPath, logger)
	if err != nil {
		return nil, err
	}
	ledgerClient, err := ledger.Open(cfg.DBPath, logger)
	if err != nil {
		closeQuietly(warehouse, logger)
		return nil, err
	}

	return &app{
		cfg:       cfg,
		logger:    logger,
		metrics:   metrics,
		clock:     clock,
		warehouse: warehouse,
		ledger:    ledgerClient,
		runner:    pipeline.NewRunner(ledgerClient, metrics, clock, logger),
	}, nil
}

func (a *app) close() {
	closeQuietly(a.ledger, a.logger)
	closeQuietly(a.warehouse, a.logger)
}

// pushMetrics ships the process's metrics to the Pushgateway when one is
// configured. Phase processes are too short-lived to be scraped.
func (a *app) pushMetrics(phase ledger.Phase) {
	if err := a.metrics.Push(a.cfg.PushgatewayURL, string(phase)); err != nil {
		a.logger.Warn("metrics push failed", "phase", phase, "error", err)
	}
}

func closeQuietly(c io.Closer, logger *slog.Logger) {
	if err := c.Close(); err != nil {
		logger.Warn("close failed", "error", err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newIngestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest [batch-id]",
		Short: "Fetch raw observations for every configured city",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()
			defer a.pushMetrics(ledger.PhaseIngest)

			batchID := a.clock.Now().Format("20060102_150405")
			if len(args) == 1 {
				batchID = args[0]
			}

			fetcher := weatherapi.NewClient(
				a.cfg.WeatherAPIKey, a.cfg.WeatherAPIBaseURL, a.cfg.WeatherAPITimeout, a.logger)
			raw := store.NewRawStore(a.cfg.RawDataDir)
			phase := pipeline.NewIngestPhase(fetcher, raw, a.cfg, a.logger)

			ctx, cancel := signalContext()
			defer cancel()
			return a.runner.Run(ctx, ledger.PhaseIngest, batchID, func(ctx context.Context) (pipeline.Result, error) {
				return phase.Run(ctx, batchID)
			})
		},
	}
}

func newProcessCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "process <batch-id>",
		Short: "Project a batch's raw documents into the processed table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()
			defer a.pushMetrics(ledger.PhaseProcess)

			batchID := args[0]
			raw := store.NewRawStore(a.cfg.RawDataDir)
			phase := pipeline.NewProcessPhase(raw, a.warehouse, a.logger)

			ctx, cancel := signalContext()
			defer cancel()
			return a.runner.Run(ctx, ledger.PhaseProcess, batchID, func(ctx context.Context) (pipeline.Result, error) {
				return phase.Run(ctx, batchID)
			})
		},
	}
}

func newDQCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dq <batch-id>",
		Short: "Classify a batch, quarantine invalid rows, and set the gate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()
			defer a.pushMetrics(ledger.PhaseDQ)

			batchID := args[0]
			router := quality.NewRouter(a.warehouse, a.cfg.QualityReportDir(), a.clock, a.logger)
			gate := quality.NewGate(a.cfg.FlagDir(), a.logger)

			var emitter pipeline.EventEmitter
			if a.cfg.KafkaEnabled() {
				writer := kafka.NewWriter(a.cfg, a.logger)
				defer closeQuietly(writer, a.logger)
				emitter = writer
			}

			phase := pipeline.NewQualityPhase(
				a.warehouse, router, gate, emitter, a.metrics, a.clock, a.logger)

			ctx, cancel := signalContext()
			defer cancel()
			return a.runner.Run(ctx, ledger.PhaseDQ, batchID, func(ctx context.Context) (pipeline.Result, error) {
				return phase.Run(ctx, batchID)
			})
		},
	}
}

func newLoadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "load <batch-id>",
		Short: "Append a gated batch's staged rows to the final table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()
			defer a.pushMetrics(ledger.PhaseLoad)

			batchID := args[0]
			gate := quality.NewGate(a.cfg.FlagDir(), a.logger)
			phase := pipeline.NewLoadPhase(a.warehouse, gate, a.logger)

			ctx, cancel := signalContext()
			defer cancel()
			return a.runner.Run(ctx, ledger.PhaseLoad, batchID, func(ctx context.Context) (pipeline.Result, error) {
				return phase.Run(ctx, batchID)
			})
		},
	}
}
