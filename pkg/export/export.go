// Package export writes Parquet side outputs next to the analytical store, so
// BI tools can read ingested data without opening the database file.
package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	sferrors "github.com/sensorflow/sensorflow/pkg/errors"
	"github.com/sensorflow/sensorflow/pkg/store"
)

// DefaultCompression is the Parquet codec used when none is configured.
const DefaultCompression = "snappy"

// Exporter copies table slices out to Parquet files via the store's COPY
// support.
type Exporter struct {
	store       store.Store
	outputDir   string
	compression string
}

// New creates an exporter writing into outputDir, creating it if needed.
func New(s store.Store, outputDir, compression string) (*Exporter, error) {
	if compression == "" {
		compression = DefaultCompression
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, sferrors.Wrap(err, sferrors.CodeFileUnreadable, "failed to create output directory").
			WithContext("dir", outputDir)
	}
	return &Exporter{store: s, outputDir: outputDir, compression: compression}, nil
}

// ExportFile writes the rows loaded from one source file to
// processed_<name>.parquet.
func (e *Exporter) ExportFile(ctx context.Context, table, fileName string) error {
	out := filepath.Join(e.outputDir, "processed_"+stem(fileName)+".parquet")
	query := fmt.Sprintf(`
		COPY (
			SELECT * FROM %s WHERE file_name = '%s' ORDER BY INGEST_SEQ
		) TO '%s' (FORMAT PARQUET, COMPRESSION '%s')
	`, quoteIdent(table), escape(fileName), escape(out), escape(e.compression))
	return e.store.Execute(ctx, query)
}

// ExportTable writes the whole table to <name>.parquet and returns the path.
func (e *Exporter) ExportTable(ctx context.Context, table, name string) (string, error) {
	out := filepath.Join(e.outputDir, stem(name)+".parquet")
	query := fmt.Sprintf(`
		COPY (
			SELECT * FROM %s ORDER BY INGEST_SEQ
		) TO '%s' (FORMAT PARQUET, COMPRESSION '%s')
	`, quoteIdent(table), escape(out), escape(e.compression))
	if err := e.store.Execute(ctx, query); err != nil {
		return "", err
	}
	return out, nil
}

// stem strips the extension and flattens path separators so archive member
// names stay single-segment.
func stem(name string) string {
	name = strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	return strings.NewReplacer("/", "_", "\\", "_", ":", "_").Replace(name)
}

func quoteIdent(v string) string {
	return `"` + strings.ReplaceAll(v, `"`, `""`) + `"`
}

func escape(v string) string {
	return strings.ReplaceAll(v, "'", "''")
}
