package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sensorflow/sensorflow/pkg/compaction"
	"github.com/sensorflow/sensorflow/pkg/logger"
)

var compactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Remove duplicate readings from the integrated table",
	Long: `Deduplicate the integrated table by (TIME, SENSOR_ID).

Among duplicates, the earliest-ingested reading is kept. The table is
rebuilt one day at a time so memory stays bounded regardless of total
table size, and swapped in atomically at the end.

Examples:
  sensorflow compact
  sensorflow compact --db sensor_data.duckdb --table sensor_data_integrated`,
	RunE: runCompactCmd,
}

func init() {
	f := compactCmd.Flags()
	f.StringVar(&flagMemoryLimit, "memory-limit", "", "DuckDB memory limit (e.g. 4GB)")
	f.StringVar(&flagMaxTempSize, "max-temp-directory-size", "", "DuckDB spill space limit (e.g. 20GB)")
	f.IntVar(&flagThreads, "threads", 0, "DuckDB threads (0 = auto)")

	rootCmd.AddCommand(compactCmd)
}

func runCompactCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Close()

	ctx, cancel := signalContext()
	defer cancel()

	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	start := time.Now()
	rows, err := compaction.New(s).Compact(ctx, cfg.Store.Table)
	if err != nil {
		return fmt.Errorf("compaction failed: %w", err)
	}
	fmt.Printf("Compacted %s: %d rows in %v\n",
		cfg.Store.Table, rows, time.Since(start).Round(time.Millisecond))
	return nil
}
