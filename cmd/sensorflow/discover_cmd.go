package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sensorflow/sensorflow/pkg/discover"
	"github.com/sensorflow/sensorflow/pkg/logger"
)

var discoverShowProcessed bool

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "List candidate files without loading anything",
	Long: `Scan the source folder and list every file that would be ingested.

Shows each candidate's ledger status, so a dry run before a real ingest
reveals exactly what new work is pending.

Examples:
  sensorflow discover --folder /data/exports --pattern 'machine_.*\.csv'
  sensorflow discover --folder /data --pattern '.*\.csv' --all`,
	RunE: runDiscoverCmd,
}

func init() {
	f := discoverCmd.Flags()
	f.StringVar(&flagLedgerBackend, "ledger", "", "Ledger backend (file, redis, s3)")
	f.StringVar(&flagLedgerPath, "ledger-path", "", "Ledger file path (file backend)")
	f.BoolVar(&discoverShowProcessed, "all", false, "Also list already-processed files")

	rootCmd.AddCommand(discoverCmd)
}

func runDiscoverCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Close()
	if err := cfg.Validate(); err != nil {
		return err
	}

	candidates, err := discover.Find(cfg.Source.Folder, cfg.Source.Pattern)
	if err != nil {
		return fmt.Errorf("discovery failed: %w", err)
	}

	l, err := openLedger(context.Background(), cfg)
	if err != nil {
		return err
	}

	pending := 0
	for _, fd := range candidates {
		if l.IsProcessed(fd) {
			if discoverShowProcessed {
				fmt.Printf("  processed  %s\n", fd.Identity())
			}
			continue
		}
		pending++
		fmt.Printf("  pending    %s\n", fd.Identity())
	}
	fmt.Printf("%d candidates, %d pending\n", len(candidates), pending)
	return nil
}
