// SensorFlow - Sensor log integration pipeline
// Discovers wide-format sensor CSV exports (plain or zipped), pivots them to
// long form, and loads them into a DuckDB analytical store.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sensorflow/sensorflow/pkg/config"
	"github.com/sensorflow/sensorflow/pkg/ledger"
	"github.com/sensorflow/sensorflow/pkg/logger"
	"github.com/sensorflow/sensorflow/pkg/store"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// CLI flags
var (
	flagFolder    string
	flagPattern   string
	flagEncoding  string
	flagDatabase  string
	flagTable     string
	flagPlant     string
	flagMachineID string
	flagDataLabel string

	flagBatchSize int
	flagChunkSize int
	flagOutputDir string

	flagLedgerBackend string
	flagLedgerPath    string
	flagRedisAddress  string
	flagS3Bucket      string
	flagS3Region      string

	flagMemoryLimit string
	flagMaxTempSize string
	flagThreads     int

	flagLogLevel   string
	flagNoProgress bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "sensorflow",
	Short: "SensorFlow - Integrate wide-format sensor logs into DuckDB",
	Long: `SensorFlow ingests wide-format sensor CSV exports into a DuckDB store.

Source files are discovered under a folder (plain .csv or members of .zip
archives), pivoted from wide to long form, annotated with plant metadata,
and appended to the integrated table. A content-hash ledger keeps reruns
idempotent, and the compact command removes duplicate readings.`,
	Version: fmt.Sprintf("%s (%s)", version, commit),
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagFolder, "folder", "", "Source folder to scan for sensor files")
	pf.StringVar(&flagPattern, "pattern", "", "Filename regex candidates must match")
	pf.StringVar(&flagEncoding, "encoding", "", "Source text encoding (IANA name, e.g. shift_jis)")
	pf.StringVar(&flagDatabase, "db", "", "DuckDB database file")
	pf.StringVar(&flagTable, "table", "", "Integrated table name")
	pf.StringVar(&flagLogLevel, "log-level", "", "Log level (debug, info, warn, error)")

	rootCmd.SetVersionTemplate("sensorflow {{.Version}}\n")
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// loadConfig builds the effective configuration: files and environment first,
// then any flags the user actually set.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	set := func(name string, apply func()) {
		if cmd.Flags().Changed(name) {
			apply()
		}
	}
	set("folder", func() { cfg.Source.Folder = flagFolder })
	set("pattern", func() { cfg.Source.Pattern = flagPattern })
	set("encoding", func() { cfg.Source.Encoding = flagEncoding })
	set("db", func() { cfg.Store.Database = flagDatabase })
	set("table", func() { cfg.Store.Table = flagTable })
	set("plant", func() { cfg.Metadata.Plant = flagPlant })
	set("machine-id", func() { cfg.Metadata.MachineID = flagMachineID })
	set("data-label", func() { cfg.Metadata.DataLabel = flagDataLabel })
	set("batch-size", func() { cfg.Ingest.BatchSize = flagBatchSize })
	set("chunk-size", func() { cfg.Ingest.ChunkSize = flagChunkSize })
	set("output-dir", func() { cfg.Ingest.OutputDir = flagOutputDir })
	set("ledger", func() { cfg.Ledger.Backend = flagLedgerBackend })
	set("ledger-path", func() { cfg.Ledger.Path = flagLedgerPath })
	set("redis-address", func() { cfg.Ledger.Redis.Address = flagRedisAddress })
	set("s3-bucket", func() { cfg.Ledger.S3.Bucket = flagS3Bucket })
	set("s3-region", func() { cfg.Ledger.S3.Region = flagS3Region })
	set("memory-limit", func() { cfg.Store.MemoryLimit = flagMemoryLimit })
	set("max-temp-directory-size", func() { cfg.Store.MaxTempDirectorySize = flagMaxTempSize })
	set("threads", func() { cfg.Store.Threads = flagThreads })
	set("log-level", func() { cfg.Log.Level = flagLogLevel })
	set("no-progress", func() { cfg.Ingest.Progress = !flagNoProgress })

	if err := logger.Init(cfg.Log.Level, cfg.Log.Development); err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}
	return cfg, nil
}

// openStore connects to the analytical store. Connection failure aborts the
// run before any file is touched.
func openStore(cfg *config.Config) (*store.DuckDB, error) {
	s, err := store.Connect(cfg.Store.Database, store.Options{
		MemoryLimit:          cfg.Store.MemoryLimit,
		MaxTempDirectorySize: cfg.Store.MaxTempDirectorySize,
		Threads:              cfg.Store.Threads,
		ChunkSize:            cfg.Ingest.ChunkSize,
	})
	if err != nil {
		return nil, fmt.Errorf("cannot open store %s: %w", cfg.Store.Database, err)
	}
	return s, nil
}

// openLedger builds the configured ledger backend and opens the ledger over it.
func openLedger(ctx context.Context, cfg *config.Config) (*ledger.Ledger, error) {
	var backend ledger.Backend
	switch cfg.Ledger.Backend {
	case "redis":
		rc := ledger.DefaultRedisConfig(cfg.Ledger.Redis.Address)
		rc.Password = cfg.Ledger.Redis.Password
		rc.Database = cfg.Ledger.Redis.Database
		if cfg.Ledger.Redis.Key != "" {
			rc.Key = cfg.Ledger.Redis.Key
		}
		b, err := ledger.NewRedisBackend(rc)
		if err != nil {
			return nil, fmt.Errorf("redis ledger: %w", err)
		}
		backend = b
	case "s3":
		sc := ledger.DefaultS3Config(cfg.Ledger.S3.Bucket)
		sc.Region = cfg.Ledger.S3.Region
		if cfg.Ledger.S3.Key != "" {
			sc.Key = cfg.Ledger.S3.Key
		}
		b, err := ledger.NewS3Backend(ctx, sc)
		if err != nil {
			return nil, fmt.Errorf("s3 ledger: %w", err)
		}
		backend = b
	default:
		backend = ledger.NewFileBackend(cfg.Ledger.Path)
	}
	return ledger.Open(ctx, backend), nil
}
