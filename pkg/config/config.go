// Package config provides hierarchical configuration management.
// Priority: defaults < user < project < env < flags
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all SensorFlow configuration.
type Config struct {
	Version int `yaml:"version"`

	Source   SourceConfig   `yaml:"source"`
	Metadata MetadataConfig `yaml:"metadata"`
	Store    StoreConfig    `yaml:"store"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Ledger   LedgerConfig   `yaml:"ledger"`
	Log      LogConfig      `yaml:"log"`
}

// SourceConfig describes where candidate files come from.
type SourceConfig struct {
	Folder   string `yaml:"folder"`   // root directory to scan
	Pattern  string `yaml:"pattern"`  // filename regex
	Encoding string `yaml:"encoding"` // text codec of the source files
}

// MetadataConfig holds the fixed annotations stamped on every long record.
type MetadataConfig struct {
	Plant     string `yaml:"plant"`
	MachineID string `yaml:"machine_id"`
	DataLabel string `yaml:"data_label"`
}

// StoreConfig configures the DuckDB analytical store.
type StoreConfig struct {
	Database             string `yaml:"database"` // store path
	Table                string `yaml:"table"`
	MemoryLimit          string `yaml:"memory_limit"`            // e.g. "4GB"
	MaxTempDirectorySize string `yaml:"max_temp_directory_size"` // e.g. "20GB"
	Threads              int    `yaml:"threads"`                 // 0 = auto
}

// IngestConfig controls the batch loop.
type IngestConfig struct {
	BatchSize int    `yaml:"batch_size"` // files per batch
	ChunkSize int    `yaml:"chunk_size"` // rows per insert transaction
	OutputDir string `yaml:"output_dir"` // optional Parquet side output
	Progress  bool   `yaml:"progress"`   // show a progress bar per batch
}

// LedgerConfig selects where the processed-file ledger lives.
type LedgerConfig struct {
	Backend string `yaml:"backend"` // file | redis | s3
	Path    string `yaml:"path"`    // ledger file path (file backend)

	Redis RedisLedgerConfig `yaml:"redis"`
	S3    S3LedgerConfig    `yaml:"s3"`
}

// RedisLedgerConfig configures the Redis ledger backend.
type RedisLedgerConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	Database int    `yaml:"database"`
	Key      string `yaml:"key"`
}

// S3LedgerConfig configures the S3 ledger backend.
type S3LedgerConfig struct {
	Bucket string `yaml:"bucket"`
	Key    string `yaml:"key"`
	Region string `yaml:"region"`
}

// LogConfig controls logging output.
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Version: 1,
		Source: SourceConfig{
			Encoding: "utf-8",
		},
		Store: StoreConfig{
			Database:             "sensor_data.duckdb",
			Table:                "sensor_data_integrated",
			MaxTempDirectorySize: "20GB",
			Threads:              0, // auto
		},
		Ingest: IngestConfig{
			BatchSize: 5,
			ChunkSize: 10000,
			Progress:  true,
		},
		Ledger: LedgerConfig{
			Backend: "file",
			Path:    "processed_files.json",
			Redis: RedisLedgerConfig{
				Key: "sensorflow:ledger",
			},
			S3: S3LedgerConfig{
				Key: "sensorflow/processed_files.json",
			},
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load builds the configuration from all sources in priority order.
func Load() (*Config, error) {
	cfg := Default()

	for _, path := range configPaths() {
		if err := loadFile(cfg, path); err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to load %s: %w", path, err)
			}
		}
	}

	loadEnv(cfg)
	return cfg, nil
}

// configPaths returns config file paths in priority order.
func configPaths() []string {
	var paths []string

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".sensorflow", "config.yaml"))
	}
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".sensorflow.yaml"))
	}

	return paths
}

// loadFile loads a single config file and merges its non-zero values.
func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var partial Config
	if err := yaml.Unmarshal(data, &partial); err != nil {
		return err
	}

	merge(cfg, &partial)
	return nil
}

// merge merges non-zero values from src into dst.
func merge(dst, src *Config) {
	if src.Source.Folder != "" {
		dst.Source.Folder = src.Source.Folder
	}
	if src.Source.Pattern != "" {
		dst.Source.Pattern = src.Source.Pattern
	}
	if src.Source.Encoding != "" {
		dst.Source.Encoding = src.Source.Encoding
	}

	if src.Metadata.Plant != "" {
		dst.Metadata.Plant = src.Metadata.Plant
	}
	if src.Metadata.MachineID != "" {
		dst.Metadata.MachineID = src.Metadata.MachineID
	}
	if src.Metadata.DataLabel != "" {
		dst.Metadata.DataLabel = src.Metadata.DataLabel
	}

	if src.Store.Database != "" {
		dst.Store.Database = src.Store.Database
	}
	if src.Store.Table != "" {
		dst.Store.Table = src.Store.Table
	}
	if src.Store.MemoryLimit != "" {
		dst.Store.MemoryLimit = src.Store.MemoryLimit
	}
	if src.Store.MaxTempDirectorySize != "" {
		dst.Store.MaxTempDirectorySize = src.Store.MaxTempDirectorySize
	}
	if src.Store.Threads != 0 {
		dst.Store.Threads = src.Store.Threads
	}

	if src.Ingest.BatchSize != 0 {
		dst.Ingest.BatchSize = src.Ingest.BatchSize
	}
	if src.Ingest.ChunkSize != 0 {
		dst.Ingest.ChunkSize = src.Ingest.ChunkSize
	}
	if src.Ingest.OutputDir != "" {
		dst.Ingest.OutputDir = src.Ingest.OutputDir
	}

	if src.Ledger.Backend != "" {
		dst.Ledger.Backend = src.Ledger.Backend
	}
	if src.Ledger.Path != "" {
		dst.Ledger.Path = src.Ledger.Path
	}
	if src.Ledger.Redis.Address != "" {
		dst.Ledger.Redis = src.Ledger.Redis
	}
	if src.Ledger.S3.Bucket != "" {
		dst.Ledger.S3 = src.Ledger.S3
	}

	if src.Log.Level != "" {
		dst.Log.Level = src.Log.Level
	}
	if src.Log.Development {
		dst.Log.Development = true
	}
}

// loadEnv overrides configuration from SENSORFLOW_* environment variables.
func loadEnv(cfg *Config) {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	setString("SENSORFLOW_FOLDER", &cfg.Source.Folder)
	setString("SENSORFLOW_PATTERN", &cfg.Source.Pattern)
	setString("SENSORFLOW_ENCODING", &cfg.Source.Encoding)
	setString("SENSORFLOW_PLANT", &cfg.Metadata.Plant)
	setString("SENSORFLOW_MACHINE_ID", &cfg.Metadata.MachineID)
	setString("SENSORFLOW_DATA_LABEL", &cfg.Metadata.DataLabel)
	setString("SENSORFLOW_DB", &cfg.Store.Database)
	setString("SENSORFLOW_TABLE", &cfg.Store.Table)
	setString("SENSORFLOW_PROCESSED_MARKER", &cfg.Ledger.Path)
	setString("SENSORFLOW_OUTPUT_DIR", &cfg.Ingest.OutputDir)
	setString("SENSORFLOW_LOG_LEVEL", &cfg.Log.Level)
	setString("SENSORFLOW_MAX_TEMP_DIRECTORY_SIZE", &cfg.Store.MaxTempDirectorySize)

	if v := os.Getenv("SENSORFLOW_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Ingest.BatchSize = n
		}
	}
	if v := os.Getenv("SENSORFLOW_CHUNK_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Ingest.ChunkSize = n
		}
	}
}

// Validate checks that the configuration is usable for an ingest run.
func (c *Config) Validate() error {
	if c.Source.Folder == "" {
		return fmt.Errorf("source folder is required")
	}
	if c.Source.Pattern == "" {
		return fmt.Errorf("filename pattern is required")
	}
	if _, err := regexp.Compile(c.Source.Pattern); err != nil {
		return fmt.Errorf("invalid filename pattern: %w", err)
	}
	if _, err := os.Stat(c.Source.Folder); err != nil {
		return fmt.Errorf("source folder not accessible: %w", err)
	}
	if c.Ingest.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", c.Ingest.BatchSize)
	}
	if c.Ingest.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", c.Ingest.ChunkSize)
	}
	switch c.Ledger.Backend {
	case "file", "redis", "s3":
	default:
		return fmt.Errorf("unknown ledger backend %q", c.Ledger.Backend)
	}
	return nil
}
