package compaction

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sensorflow/sensorflow/internal/model"
	"github.com/sensorflow/sensorflow/pkg/store"
)

// scriptStore replays canned counts/days and records every statement so tests
// can assert on the exact rewrite sequence.
type scriptStore struct {
	counts   []int64
	countIdx int
	days     []string
	columns  []store.Column
	executed []string
	failWhen func(query string) error
}

func newScriptStore(counts []int64, days []string) *scriptStore {
	return &scriptStore{
		counts: counts,
		days:   days,
		columns: []store.Column{
			{Name: "PLANT", Type: "VARCHAR"},
			{Name: "TIME", Type: "TIMESTAMP"},
			{Name: "SENSOR_ID", Type: "VARCHAR"},
			{Name: "VALUE", Type: "VARCHAR"},
			{Name: "INGEST_SEQ", Type: "BIGINT"},
		},
	}
}

func (s *scriptStore) Execute(ctx context.Context, query string, args ...interface{}) error {
	if s.failWhen != nil {
		if err := s.failWhen(query); err != nil {
			return err
		}
	}
	s.executed = append(s.executed, strings.Join(strings.Fields(query), " "))
	return nil
}

func (s *scriptStore) QueryStrings(ctx context.Context, query string, args ...interface{}) ([]string, error) {
	return s.days, nil
}

func (s *scriptStore) QueryCount(ctx context.Context, query string, args ...interface{}) (int64, error) {
	if s.countIdx >= len(s.counts) {
		return 0, errors.New("unexpected count query")
	}
	n := s.counts[s.countIdx]
	s.countIdx++
	return n, nil
}

func (s *scriptStore) ImportAppend(ctx context.Context, table string, records []model.LongRecord, mode store.ImportMode) (int64, error) {
	return 0, errors.New("not used")
}

func (s *scriptStore) TableSchema(ctx context.Context, table string) ([]store.Column, error) {
	return s.columns, nil
}

func (s *scriptStore) statements(substr string) []string {
	var out []string
	for _, q := range s.executed {
		if strings.Contains(q, substr) {
			out = append(out, q)
		}
	}
	return out
}

func TestCompactRewriteSequence(t *testing.T) {
	days := []string{"2024-01-01 00:00:00", "2024-01-02 00:00:00"}
	s := newScriptStore([]int64{10, 7}, days)

	post, err := New(s).Compact(context.Background(), "sensor_data_integrated")
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if post != 7 {
		t.Errorf("post count = %d, want 7", post)
	}

	inserts := s.statements("INSERT INTO")
	if len(inserts) != 2 {
		t.Fatalf("inserts = %d, want one per day", len(inserts))
	}
	for i, q := range inserts {
		if !strings.Contains(q, "PARTITION BY TIME, SENSOR_ID") {
			t.Errorf("insert %d missing duplicate key partition: %s", i, q)
		}
		if !strings.Contains(q, "ORDER BY INGEST_SEQ") {
			t.Errorf("insert %d missing arrival-order ranking: %s", i, q)
		}
		if !strings.Contains(q, "rn = 1") {
			t.Errorf("insert %d must keep only the first-ranked row: %s", i, q)
		}
		if !strings.Contains(q, days[i]) {
			t.Errorf("insert %d targets wrong day, want %s: %s", i, days[i], q)
		}
	}

	if deletes := s.statements("DELETE FROM"); len(deletes) != 2 {
		t.Errorf("deletes = %d, want one per day", len(deletes))
	}
	if cps := s.statements("force_checkpoint"); len(cps) != 2 {
		t.Errorf("checkpoints = %d, want one per day", len(cps))
	}

	// The swap comes last: drop the original, rename the shadow over it.
	n := len(s.executed)
	if !strings.HasPrefix(s.executed[n-2], `DROP TABLE "sensor_data_integrated"`) {
		t.Errorf("second-to-last statement should drop the original: %s", s.executed[n-2])
	}
	if !strings.Contains(s.executed[n-1], `RENAME TO "sensor_data_integrated"`) {
		t.Errorf("last statement should rename the shadow: %s", s.executed[n-1])
	}
}

func TestCompactEmptyTable(t *testing.T) {
	s := newScriptStore([]int64{0}, nil)
	post, err := New(s).Compact(context.Background(), "t")
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if post != 0 {
		t.Errorf("post = %d, want 0", post)
	}
	if len(s.executed) != 0 {
		t.Errorf("empty table must not be rewritten, got %v", s.executed)
	}
}

func TestCompactFailureReturnsPreCount(t *testing.T) {
	s := newScriptStore([]int64{10}, []string{"2024-01-01 00:00:00", "2024-01-02 00:00:00"})
	s.failWhen = func(query string) error {
		if strings.Contains(query, "DELETE FROM") && strings.Contains(query, "2024-01-02") {
			return errors.New("disk full")
		}
		return nil
	}

	post, err := New(s).Compact(context.Background(), "t")
	if err == nil {
		t.Fatal("expected error")
	}
	if post != 10 {
		t.Errorf("failed compaction should report the pre-count, got %d", post)
	}

	// Cleanup drops the half-filled shadow; the original is never touched.
	last := s.executed[len(s.executed)-1]
	if !strings.Contains(last, "DROP TABLE IF EXISTS") || !strings.Contains(last, "_shadow_") {
		t.Errorf("shadow should be dropped on failure: %s", last)
	}
	if got := s.statements(`DROP TABLE "t"`); len(got) != 0 {
		t.Errorf("original table must not be dropped on failure: %v", got)
	}
}

func TestCompactCheckpointFailureIsNonFatal(t *testing.T) {
	s := newScriptStore([]int64{5, 5}, []string{"2024-01-01 00:00:00"})
	s.failWhen = func(query string) error {
		if strings.Contains(query, "force_checkpoint") {
			return errors.New("checkpoint busy")
		}
		return nil
	}

	post, err := New(s).Compact(context.Background(), "t")
	if err != nil {
		t.Fatalf("checkpoint failure must not fail compaction: %v", err)
	}
	if post != 5 {
		t.Errorf("post = %d, want 5", post)
	}
}
