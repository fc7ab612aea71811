// Package compaction removes duplicate sensor readings from the integrated
// table. Duplicates share (TIME, SENSOR_ID); the earliest-ingested row wins.
// The table is rebuilt one day partition at a time through a shadow table so
// peak memory stays bounded by the largest single day, then atomically swapped
// into place.
package compaction

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	sferrors "github.com/sensorflow/sensorflow/pkg/errors"
	"github.com/sensorflow/sensorflow/pkg/logger"
	"github.com/sensorflow/sensorflow/pkg/store"
)

// Compactor deduplicates a table in place.
type Compactor struct {
	store store.Store
}

// New creates a compactor over the given store.
func New(s store.Store) *Compactor {
	return &Compactor{store: s}
}

// Compact rebuilds the table without duplicates and returns the resulting row
// count. On failure it returns the pre-compaction count alongside the error:
// the target table is never left partially rewritten, because all writes go to
// the shadow until the final swap.
func (c *Compactor) Compact(ctx context.Context, table string) (int64, error) {
	pre, err := c.store.QueryCount(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, quoteIdent(table)))
	if err != nil {
		return 0, sferrors.Wrap(err, sferrors.CodeStoreQuery, "failed to count rows before compaction").
			WithContext("table", table)
	}
	if pre == 0 {
		logger.Info("table empty, nothing to compact", zap.String("table", table))
		return 0, nil
	}

	columns, err := c.store.TableSchema(ctx, table)
	if err != nil {
		return pre, err
	}
	names := make([]string, len(columns))
	for i, col := range columns {
		names[i] = quoteIdent(col.Name)
	}
	columnList := strings.Join(names, ", ")

	shadow := fmt.Sprintf("%s_shadow_%s", table, uuid.New().String()[:8])
	if err := c.store.Execute(ctx, fmt.Sprintf(
		`CREATE TABLE %s AS SELECT * FROM %s WHERE 1 = 0`,
		quoteIdent(shadow), quoteIdent(table))); err != nil {
		return pre, err
	}

	days, err := c.store.QueryStrings(ctx, fmt.Sprintf(
		`SELECT DISTINCT CAST(DATE_TRUNC('day', TIME) AS VARCHAR) FROM %s ORDER BY 1`,
		quoteIdent(table)))
	if err != nil {
		c.dropShadow(ctx, shadow)
		return pre, err
	}

	logger.Info("compaction started",
		zap.String("table", table),
		zap.Int64("rows", pre),
		zap.Int("days", len(days)))

	for _, day := range days {
		if err := ctx.Err(); err != nil {
			c.dropShadow(ctx, shadow)
			return pre, err
		}
		if err := c.compactDay(ctx, table, shadow, columnList, day); err != nil {
			logger.Error("compaction failed, table left unchanged",
				zap.String("table", table),
				zap.String("day", day),
				zap.Error(err))
			c.dropShadow(ctx, shadow)
			return pre, err
		}
	}

	if err := c.store.Execute(ctx, fmt.Sprintf(`DROP TABLE %s`, quoteIdent(table))); err != nil {
		c.dropShadow(ctx, shadow)
		return pre, err
	}
	if err := c.store.Execute(ctx, fmt.Sprintf(
		`ALTER TABLE %s RENAME TO %s`, quoteIdent(shadow), quoteIdent(table))); err != nil {
		return pre, err
	}

	post, err := c.store.QueryCount(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, quoteIdent(table)))
	if err != nil {
		return pre, err
	}

	logger.Info("compaction finished",
		zap.String("table", table),
		zap.Int64("before", pre),
		zap.Int64("after", post),
		zap.Int64("removed", pre-post))
	return post, nil
}

// compactDay moves one day's survivors into the shadow table and releases the
// day's rows from the source so the engine can reclaim the space.
func (c *Compactor) compactDay(ctx context.Context, table, shadow, columnList, day string) error {
	insert := fmt.Sprintf(`
		INSERT INTO %s (%s)
		SELECT %s FROM (
			SELECT *, ROW_NUMBER() OVER (
				PARTITION BY TIME, SENSOR_ID
				ORDER BY INGEST_SEQ
			) AS rn
			FROM %s
			WHERE CAST(DATE_TRUNC('day', TIME) AS VARCHAR) = '%s'
		) ranked
		WHERE rn = 1
	`, quoteIdent(shadow), columnList, columnList, quoteIdent(table), escape(day))
	if err := c.store.Execute(ctx, insert); err != nil {
		return err
	}

	if err := c.store.Execute(ctx, fmt.Sprintf(
		`DELETE FROM %s WHERE CAST(DATE_TRUNC('day', TIME) AS VARCHAR) = '%s'`,
		quoteIdent(table), escape(day))); err != nil {
		return err
	}

	// Force a checkpoint so deleted rows are actually reclaimed between days.
	// Failure only costs disk headroom, not correctness.
	if err := c.store.Execute(ctx, `PRAGMA force_checkpoint`); err != nil {
		logger.Warn("checkpoint after day failed",
			zap.String("day", day), zap.Error(err))
	}

	logger.Debug("day compacted", zap.String("day", day))
	return nil
}

func (c *Compactor) dropShadow(ctx context.Context, shadow string) {
	if err := c.store.Execute(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, quoteIdent(shadow))); err != nil {
		logger.Warn("failed to drop shadow table", zap.String("table", shadow), zap.Error(err))
	}
}

func quoteIdent(v string) string {
	return `"` + strings.ReplaceAll(v, `"`, `""`) + `"`
}

func escape(v string) string {
	return strings.ReplaceAll(v, "'", "''")
}
