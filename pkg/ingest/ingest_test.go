package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/sensorflow/sensorflow/internal/model"
	"github.com/sensorflow/sensorflow/pkg/ledger"
	"github.com/sensorflow/sensorflow/pkg/reader"
	"github.com/sensorflow/sensorflow/pkg/store"
	"github.com/sensorflow/sensorflow/pkg/transform"
)

// fakeStore records imports in memory and can be told to reject specific
// source files.
type fakeStore struct {
	tables    map[string][]model.LongRecord
	nextSeq   int64
	failFiles map[string]bool
	imports   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		tables:    make(map[string][]model.LongRecord),
		failFiles: make(map[string]bool),
	}
}

func (f *fakeStore) Execute(ctx context.Context, query string, args ...interface{}) error {
	return nil
}

func (f *fakeStore) QueryStrings(ctx context.Context, query string, args ...interface{}) ([]string, error) {
	return nil, nil
}

func (f *fakeStore) QueryCount(ctx context.Context, query string, args ...interface{}) (int64, error) {
	return 0, nil
}

func (f *fakeStore) TableSchema(ctx context.Context, table string) ([]store.Column, error) {
	return nil, nil
}

func (f *fakeStore) ImportAppend(ctx context.Context, table string, records []model.LongRecord, mode store.ImportMode) (int64, error) {
	f.imports++
	for _, rec := range records {
		if f.failFiles[rec.FileName] {
			return 0, errors.New("simulated import failure")
		}
	}
	for i := range records {
		f.nextSeq++
		records[i].Seq = f.nextSeq
	}
	f.tables[table] = append(f.tables[table], records...)
	return int64(len(records)), nil
}

const wideCSV = ",S1,S2\n,NameA,NameB\n,Unit1,Unit2\n" +
	"2024-01-01 00:00:00,10,20,\n" +
	"2024-01-01 00:00:01,11,21,\n"

func writeCandidates(t *testing.T, dir string, n int) []model.FileDescriptor {
	t.Helper()
	var candidates []model.FileDescriptor
	for i := 1; i <= n; i++ {
		path := filepath.Join(dir, fmt.Sprintf("sensor_%02d.csv", i))
		if err := os.WriteFile(path, []byte(wideCSV), 0644); err != nil {
			t.Fatal(err)
		}
		candidates = append(candidates, model.FileDescriptor{Path: path, Kind: model.KindPlain})
	}
	return candidates
}

func newIngestor(t *testing.T, s store.Store, ledgerPath string, batchSize int) *Ingestor {
	t.Helper()
	r, err := reader.New("utf-8")
	if err != nil {
		t.Fatal(err)
	}
	l := ledger.Open(context.Background(), ledger.NewFileBackend(ledgerPath))
	return New(r, l, s, Config{
		Table:     "sensor_data_integrated",
		BatchSize: batchSize,
		Metadata:  transform.Metadata{Plant: "p1", MachineID: "m1", DataLabel: "d1"},
	})
}

func TestRunLoadsAllFiles(t *testing.T) {
	dir := t.TempDir()
	candidates := writeCandidates(t, dir, 3)
	s := newFakeStore()
	g := newIngestor(t, s, filepath.Join(dir, "ledger.json"), 5)

	result, err := g.Run(context.Background(), candidates)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// 2 rows x 2 sensors per file.
	if result.TotalRecords != 12 {
		t.Errorf("TotalRecords = %d, want 12", result.TotalRecords)
	}
	if result.Loaded != 3 || result.Skipped != 0 || result.Failed != 0 {
		t.Errorf("counts = %d/%d/%d, want 3/0/0",
			result.Loaded, result.Skipped, result.Failed)
	}
	if got := len(s.tables["sensor_data_integrated"]); got != 12 {
		t.Errorf("store rows = %d, want 12", got)
	}
}

func TestRunBatchBoundary(t *testing.T) {
	dir := t.TempDir()
	candidates := writeCandidates(t, dir, 12)

	// File 7 is malformed: fewer than 4 lines.
	if err := os.WriteFile(candidates[6].Path, []byte(",S1\n,NameA\n"), 0644); err != nil {
		t.Fatal(err)
	}

	s := newFakeStore()
	g := newIngestor(t, s, filepath.Join(dir, "ledger.json"), 5)

	result, err := g.Run(context.Background(), candidates)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.Batches != 3 {
		t.Errorf("Batches = %d, want 3 (5,5,2)", result.Batches)
	}
	if result.Loaded != 11 || result.Failed != 1 {
		t.Errorf("counts = loaded %d failed %d, want 11/1", result.Loaded, result.Failed)
	}

	// Original order preserved, failure isolated to file 7.
	for i, fr := range result.Files {
		if fr.File.Identity() != candidates[i].Identity() {
			t.Fatalf("result %d out of order: %s", i, fr.File.Identity())
		}
		wantStatus := StatusLoaded
		if i == 6 {
			wantStatus = StatusFailed
		}
		if fr.Status != wantStatus {
			t.Errorf("file %d status = %v, want %v", i+1, fr.Status, wantStatus)
		}
	}
}

func TestRunIdempotence(t *testing.T) {
	dir := t.TempDir()
	candidates := writeCandidates(t, dir, 4)
	s := newFakeStore()
	ledgerPath := filepath.Join(dir, "ledger.json")

	first, err := newIngestor(t, s, ledgerPath, 5).Run(context.Background(), candidates)
	if err != nil {
		t.Fatal(err)
	}
	if first.TotalRecords != 16 {
		t.Fatalf("first run records = %d, want 16", first.TotalRecords)
	}

	// Fresh ingestor with the same persisted ledger: everything skips.
	second, err := newIngestor(t, s, ledgerPath, 5).Run(context.Background(), candidates)
	if err != nil {
		t.Fatal(err)
	}
	if second.TotalRecords != 0 {
		t.Errorf("second run records = %d, want 0", second.TotalRecords)
	}
	if second.Skipped != 4 {
		t.Errorf("second run skipped = %d, want 4", second.Skipped)
	}
}

func TestRunChangeDetection(t *testing.T) {
	dir := t.TempDir()
	candidates := writeCandidates(t, dir, 2)
	s := newFakeStore()
	ledgerPath := filepath.Join(dir, "ledger.json")

	if _, err := newIngestor(t, s, ledgerPath, 5).Run(context.Background(), candidates); err != nil {
		t.Fatal(err)
	}

	// Mutate one byte of file 1.
	changed := []byte(wideCSV)
	changed[len(changed)-2] = '9'
	if err := os.WriteFile(candidates[0].Path, changed, 0644); err != nil {
		t.Fatal(err)
	}

	result, err := newIngestor(t, s, ledgerPath, 5).Run(context.Background(), candidates)
	if err != nil {
		t.Fatal(err)
	}
	if result.Loaded != 1 || result.Skipped != 1 {
		t.Errorf("counts = loaded %d skipped %d, want 1/1", result.Loaded, result.Skipped)
	}
	if result.Files[0].Status != StatusLoaded {
		t.Error("changed file should be reprocessed")
	}
}

func TestFailedImportNotMarkedProcessed(t *testing.T) {
	dir := t.TempDir()
	candidates := writeCandidates(t, dir, 1)
	s := newFakeStore()
	s.failFiles["sensor_01.csv"] = true
	ledgerPath := filepath.Join(dir, "ledger.json")

	result, err := newIngestor(t, s, ledgerPath, 5).Run(context.Background(), candidates)
	if err != nil {
		t.Fatal(err)
	}
	if result.Failed != 1 {
		t.Fatalf("Failed = %d, want 1", result.Failed)
	}

	// Clear the fault: the same file must be retried, not skipped.
	s.failFiles = map[string]bool{}
	retry, err := newIngestor(t, s, ledgerPath, 5).Run(context.Background(), candidates)
	if err != nil {
		t.Fatal(err)
	}
	if retry.Loaded != 1 {
		t.Errorf("retry loaded = %d, want 1 (failure must not mark processed)", retry.Loaded)
	}
}

func TestEndToEndRecordShape(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sensor_e2e.csv")
	src := ",S1,S2\n,NameA,NameB\n,Unit1,Unit2\n2024-01-01 00:00:00,10,20,\n"
	if err := os.WriteFile(path, []byte(src), 0644); err != nil {
		t.Fatal(err)
	}

	s := newFakeStore()
	g := newIngestor(t, s, filepath.Join(dir, "ledger.json"), 5)
	result, err := g.Run(context.Background(), []model.FileDescriptor{{Path: path, Kind: model.KindPlain}})
	if err != nil {
		t.Fatal(err)
	}
	if result.TotalRecords != 2 {
		t.Fatalf("records = %d, want 2", result.TotalRecords)
	}

	rows := s.tables["sensor_data_integrated"]
	if rows[0].SensorID != "S1" || rows[0].Value != "10" {
		t.Errorf("first record = %+v", rows[0])
	}
	if rows[1].SensorID != "S2" || rows[1].Value != "20" {
		t.Errorf("second record = %+v", rows[1])
	}
	for _, r := range rows {
		if !r.TimeParsed || r.TimeText() != "2024-01-01 00:00:00" {
			t.Errorf("timestamp not normalized: %+v", r)
		}
		if r.FileName != "sensor_e2e.csv" || r.Plant != "p1" {
			t.Errorf("metadata wrong: %+v", r)
		}
	}
}
