package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sensorflow/sensorflow/pkg/discover"
	"github.com/sensorflow/sensorflow/pkg/export"
	"github.com/sensorflow/sensorflow/pkg/ingest"
	"github.com/sensorflow/sensorflow/pkg/logger"
	"github.com/sensorflow/sensorflow/pkg/reader"
	"github.com/sensorflow/sensorflow/pkg/transform"
	"github.com/sensorflow/sensorflow/pkg/watch"
)

var watchDebounce time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the source folder and ingest new files as they arrive",
	Long: `Watch the source folder and run an ingestion sweep whenever sensor
files appear or change. Events are debounced, and the ledger keeps sweeps
idempotent, so bursts of copied files are handled once.

Runs until interrupted.

Examples:
  sensorflow watch --folder /data/exports --pattern 'machine_.*\.csv'
  sensorflow watch --folder /data --pattern '.*\.csv' --debounce 10s`,
	RunE: runWatchCmd,
}

func init() {
	f := watchCmd.Flags()
	f.StringVar(&flagPlant, "plant", "", "Plant annotation stamped on every record")
	f.StringVar(&flagMachineID, "machine-id", "", "Machine ID annotation")
	f.StringVar(&flagDataLabel, "data-label", "", "Data label annotation")
	f.IntVar(&flagBatchSize, "batch-size", 5, "Files per batch")
	f.IntVar(&flagChunkSize, "chunk-size", 10000, "Rows per insert transaction")
	f.StringVar(&flagOutputDir, "output-dir", "", "Write per-file Parquet side outputs here")
	f.StringVar(&flagLedgerBackend, "ledger", "", "Ledger backend (file, redis, s3)")
	f.StringVar(&flagLedgerPath, "ledger-path", "", "Ledger file path (file backend)")
	f.DurationVar(&watchDebounce, "debounce", watch.DefaultDebounce, "Quiet period before a sweep starts")

	rootCmd.AddCommand(watchCmd)
}

func runWatchCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Close()
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	r, err := reader.New(cfg.Source.Encoding)
	if err != nil {
		return err
	}

	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	l, err := openLedger(ctx, cfg)
	if err != nil {
		return err
	}

	g := ingest.New(r, l, s, ingest.Config{
		Table:     cfg.Store.Table,
		BatchSize: cfg.Ingest.BatchSize,
		Metadata: transform.Metadata{
			Plant:     cfg.Metadata.Plant,
			MachineID: cfg.Metadata.MachineID,
			DataLabel: cfg.Metadata.DataLabel,
		},
	})
	if cfg.Ingest.OutputDir != "" {
		exporter, err := export.New(s, cfg.Ingest.OutputDir, "")
		if err != nil {
			return err
		}
		g = g.WithSideOutput(exporter)
	}

	sweep := func(ctx context.Context) error {
		candidates, err := discover.Find(cfg.Source.Folder, cfg.Source.Pattern)
		if err != nil {
			return err
		}
		result, err := g.Run(ctx, candidates)
		if err != nil {
			return err
		}
		if result.Loaded > 0 || result.Failed > 0 {
			logger.Info("sweep finished",
				zap.Int("loaded", result.Loaded),
				zap.Int("failed", result.Failed),
				zap.Int64("records", result.TotalRecords))
		}
		return nil
	}

	// One sweep up front so a backlog is drained before waiting for events.
	if err := sweep(ctx); err != nil {
		return err
	}

	w, err := watch.New(cfg.Source.Folder, watchDebounce)
	if err != nil {
		return err
	}
	w.OnSweep = sweep

	fmt.Printf("Watching %s (pattern %s), Ctrl-C to stop\n", cfg.Source.Folder, cfg.Source.Pattern)
	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
