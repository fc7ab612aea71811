package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/sensorflow/sensorflow/internal/model"
	sferrors "github.com/sensorflow/sensorflow/pkg/errors"
)

// Options tunes the DuckDB connection.
type Options struct {
	// MemoryLimit, e.g. "4GB". Empty leaves the engine default.
	MemoryLimit string
	// MaxTempDirectorySize bounds spill space, e.g. "20GB".
	MaxTempDirectorySize string
	// Threads, 0 = auto.
	Threads int
	// ChunkSize is the number of rows per insert transaction (default 10000).
	ChunkSize int
}

// DuckDB implements Store over a DuckDB database file.
type DuckDB struct {
	db   *sql.DB
	opts Options

	mu sync.Mutex
	// nextSeq caches the next INGEST_SEQ per table, seeded from the table's
	// current maximum on first import.
	nextSeq map[string]int64
	// timeType caches the TIME column type per table.
	timeType map[string]string
}

// Connect opens the database file, applies resource pragmas, and verifies the
// connection. Failure here aborts the run before any batch begins.
func Connect(path string, opts Options) (*DuckDB, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, sferrors.Wrap(err, sferrors.CodeStoreConnect, "failed to open duckdb").
			WithContext("path", path)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, sferrors.Wrap(err, sferrors.CodeStoreConnect, "failed to connect").
			WithContext("path", path)
	}

	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 10000
	}

	pragmas := []string{}
	if opts.MemoryLimit != "" {
		pragmas = append(pragmas, fmt.Sprintf("SET memory_limit = '%s'", escape(opts.MemoryLimit)))
	}
	if opts.MaxTempDirectorySize != "" {
		pragmas = append(pragmas, fmt.Sprintf("SET max_temp_directory_size = '%s'", escape(opts.MaxTempDirectorySize)))
	}
	if opts.Threads > 0 {
		pragmas = append(pragmas, fmt.Sprintf("SET threads = %d", opts.Threads))
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, sferrors.Wrap(err, sferrors.CodeStoreConnect, "failed to apply setting").
				WithContext("setting", pragma)
		}
	}

	return &DuckDB{
		db:       db,
		opts:     opts,
		nextSeq:  make(map[string]int64),
		timeType: make(map[string]string),
	}, nil
}

// Close releases the connection.
func (s *DuckDB) Close() error { return s.db.Close() }

// Execute implements Store.
func (s *DuckDB) Execute(ctx context.Context, query string, args ...interface{}) error {
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return sferrors.Wrap(err, sferrors.CodeStoreQuery, "statement failed").
			WithContext("query", firstLine(query))
	}
	return nil
}

// QueryStrings implements Store.
func (s *DuckDB) QueryStrings(ctx context.Context, query string, args ...interface{}) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, sferrors.Wrap(err, sferrors.CodeStoreQuery, "query failed").
			WithContext("query", firstLine(query))
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v sql.NullString
		if err := rows.Scan(&v); err != nil {
			return nil, sferrors.Wrap(err, sferrors.CodeStoreQuery, "scan failed")
		}
		values = append(values, v.String)
	}
	if err := rows.Err(); err != nil {
		return nil, sferrors.Wrap(err, sferrors.CodeStoreQuery, "row iteration failed")
	}
	return values, nil
}

// QueryCount implements Store.
func (s *DuckDB) QueryCount(ctx context.Context, query string, args ...interface{}) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, sferrors.Wrap(err, sferrors.CodeStoreQuery, "count query failed").
			WithContext("query", firstLine(query))
	}
	return count, nil
}

// TableSchema implements Store.
func (s *DuckDB) TableSchema(ctx context.Context, table string) ([]Column, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT column_name, data_type
		FROM information_schema.columns
		WHERE table_name = ?
		ORDER BY ordinal_position
	`, table)
	if err != nil {
		return nil, sferrors.Wrap(err, sferrors.CodeStoreQuery, "schema query failed").
			WithContext("table", table)
	}
	defer rows.Close()

	var columns []Column
	for rows.Next() {
		var c Column
		if err := rows.Scan(&c.Name, &c.Type); err != nil {
			return nil, sferrors.Wrap(err, sferrors.CodeStoreQuery, "schema scan failed")
		}
		columns = append(columns, c)
	}
	return columns, rows.Err()
}

// ImportAppend implements Store. The table is created on first import; the
// TIME column type is inferred from that first record set (TIMESTAMP when
// every timestamp parsed, VARCHAR otherwise). Records are inserted in chunks
// of ChunkSize rows per transaction, each stamped with a monotonically
// increasing INGEST_SEQ.
func (s *DuckDB) ImportAppend(ctx context.Context, table string, records []model.LongRecord, mode ImportMode) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if mode == ModeReplace {
		if err := s.Execute(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS "%s"`, escapeIdent(table))); err != nil {
			return 0, err
		}
		delete(s.nextSeq, table)
		delete(s.timeType, table)
	}

	if err := s.prepareTable(ctx, table, records); err != nil {
		return 0, err
	}

	next := s.nextSeq[table]
	timestampTime := s.timeType[table] == "TIMESTAMP"

	insert := fmt.Sprintf(`
		INSERT INTO "%s"
			(PLANT, MACHINE_ID, DATA_LABEL, TIME, SENSOR_ID, SENSOR_NAME, SENSOR_UNIT, VALUE, file_name, INGEST_SEQ)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, escapeIdent(table))

	written := int64(0)
	for start := 0; start < len(records); start += s.opts.ChunkSize {
		end := start + s.opts.ChunkSize
		if end > len(records) {
			end = len(records)
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return written, sferrors.StoreImport(table, err)
		}
		stmt, err := tx.PrepareContext(ctx, insert)
		if err != nil {
			tx.Rollback()
			return written, sferrors.StoreImport(table, err)
		}

		for i := start; i < end; i++ {
			rec := &records[i]
			rec.Seq = next + int64(i)

			var timeArg interface{}
			if timestampTime && rec.TimeParsed {
				timeArg = rec.Time
			} else {
				timeArg = rec.TimeText()
			}

			if _, err := stmt.ExecContext(ctx,
				rec.Plant, rec.MachineID, rec.DataLabel, timeArg,
				rec.SensorID, rec.SensorName, rec.SensorUnit,
				rec.Value, rec.FileName, rec.Seq,
			); err != nil {
				stmt.Close()
				tx.Rollback()
				return written, sferrors.StoreImport(table, err)
			}
		}

		stmt.Close()
		if err := tx.Commit(); err != nil {
			return written, sferrors.StoreImport(table, err)
		}
		written += int64(end - start)
		// Committed sequence numbers are spoken for even if a later chunk
		// fails, so the cache advances per commit.
		s.nextSeq[table] = next + written
	}

	return written, nil
}

// prepareTable creates the target table if missing and seeds the per-table
// sequence and TIME type caches.
func (s *DuckDB) prepareTable(ctx context.Context, table string, records []model.LongRecord) error {
	if _, ok := s.nextSeq[table]; ok {
		return nil
	}

	exists, err := s.tableExists(ctx, table)
	if err != nil {
		return err
	}

	if exists {
		columns, err := s.TableSchema(ctx, table)
		if err != nil {
			return err
		}
		s.timeType[table] = "VARCHAR"
		for _, c := range columns {
			if c.Name == "TIME" && strings.Contains(strings.ToUpper(c.Type), "TIMESTAMP") {
				s.timeType[table] = "TIMESTAMP"
			}
		}

		max, err := s.QueryCount(ctx, fmt.Sprintf(`SELECT COALESCE(MAX(INGEST_SEQ), 0) FROM "%s"`, escapeIdent(table)))
		if err != nil {
			return err
		}
		s.nextSeq[table] = max + 1
		return nil
	}

	timeType := "TIMESTAMP"
	for _, rec := range records {
		if !rec.TimeParsed {
			timeType = "VARCHAR"
			break
		}
	}

	create := fmt.Sprintf(`
		CREATE TABLE "%s" (
			PLANT VARCHAR,
			MACHINE_ID VARCHAR,
			DATA_LABEL VARCHAR,
			TIME %s,
			SENSOR_ID VARCHAR,
			SENSOR_NAME VARCHAR,
			SENSOR_UNIT VARCHAR,
			VALUE VARCHAR,
			file_name VARCHAR,
			INGEST_SEQ BIGINT
		)
	`, escapeIdent(table), timeType)
	if err := s.Execute(ctx, create); err != nil {
		return err
	}

	s.timeType[table] = timeType
	s.nextSeq[table] = 1
	return nil
}

// tableExists reports whether the table is present in the main schema.
func (s *DuckDB) tableExists(ctx context.Context, table string) (bool, error) {
	count, err := s.QueryCount(ctx,
		`SELECT COUNT(*) FROM information_schema.tables WHERE table_name = ?`, table)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// escape doubles single quotes for embedding in SQL string literals.
func escape(v string) string {
	return strings.ReplaceAll(v, "'", "''")
}

// escapeIdent doubles double quotes for embedding in quoted identifiers.
func escapeIdent(v string) string {
	return strings.ReplaceAll(v, `"`, `""`)
}

// firstLine trims a query down to something loggable.
func firstLine(query string) string {
	query = strings.TrimSpace(query)
	if i := strings.IndexByte(query, '\n'); i >= 0 {
		query = query[:i] + " ..."
	}
	return query
}
