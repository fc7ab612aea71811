// Package store provides the narrow analytical-store contract the pipeline
// depends on, plus its DuckDB implementation. The ingestor and compactor only
// ever touch the four operations of the Store interface, so they can be
// exercised against a fake in tests.
package store

import (
	"context"

	"github.com/sensorflow/sensorflow/internal/model"
)

// ImportMode controls what ImportAppend does with an existing table.
type ImportMode string

const (
	// ModeAppend appends to the table, creating it when missing.
	ModeAppend ImportMode = "append"
	// ModeReplace drops any existing table first.
	ModeReplace ImportMode = "replace"
)

// Column describes one column of a table schema.
type Column struct {
	Name string
	Type string
}

// Store is the analytical-store contract. Implementations must support
// standard SQL DDL/DML plus ROW_NUMBER() OVER (...) ranking and DATE_TRUNC
// day truncation, which the compactor issues through Execute/QueryStrings.
type Store interface {
	// Execute runs a statement with no result rows.
	Execute(ctx context.Context, query string, args ...interface{}) error

	// QueryStrings runs a single-column query and returns the values as text.
	QueryStrings(ctx context.Context, query string, args ...interface{}) ([]string, error)

	// QueryCount runs a single-value count query.
	QueryCount(ctx context.Context, query string, args ...interface{}) (int64, error)

	// ImportAppend loads records into the table, assigning each record its
	// import-order sequence number. It returns the number of rows written.
	ImportAppend(ctx context.Context, table string, records []model.LongRecord, mode ImportMode) (int64, error)

	// TableSchema returns the table's columns in ordinal order.
	TableSchema(ctx context.Context, table string) ([]Column, error)
}
