package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/sensorflow/sensorflow/internal/model"
)

func testRecord(t *testing.T, ts, sensorID, value string) model.LongRecord {
	t.Helper()
	parsed, err := time.Parse("2006-01-02 15:04:05", ts)
	if err != nil {
		t.Fatal(err)
	}
	return model.LongRecord{
		Plant:      "p1",
		MachineID:  "m1",
		DataLabel:  "d1",
		Time:       parsed,
		TimeRaw:    ts,
		TimeParsed: true,
		SensorID:   sensorID,
		SensorName: "Sensor " + sensorID,
		SensorUnit: "u",
		Value:      value,
		FileName:   "test.csv",
	}
}

func rawTimeRecord(sensorID, raw string) model.LongRecord {
	return model.LongRecord{
		Plant:      "p1",
		MachineID:  "m1",
		DataLabel:  "d1",
		TimeRaw:    raw,
		TimeParsed: false,
		SensorID:   sensorID,
		SensorName: "Sensor " + sensorID,
		SensorUnit: "u",
		Value:      "1",
		FileName:   "test.csv",
	}
}

func TestImportAppendAssignsMonotoneSequence(t *testing.T) {
	ctx := context.Background()
	s, err := Connect(filepath.Join(t.TempDir(), "t.duckdb"), Options{ChunkSize: 2})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	first := []model.LongRecord{
		testRecord(t, "2024-01-01 00:00:00", "S1", "10"),
		testRecord(t, "2024-01-01 00:00:00", "S2", "20"),
		testRecord(t, "2024-01-01 00:00:01", "S1", "11"),
	}
	if _, err := s.ImportAppend(ctx, "readings", first, ModeAppend); err != nil {
		t.Fatal(err)
	}
	second := []model.LongRecord{testRecord(t, "2024-01-01 00:00:02", "S1", "12")}
	if _, err := s.ImportAppend(ctx, "readings", second, ModeAppend); err != nil {
		t.Fatal(err)
	}

	seqs, err := s.QueryStrings(ctx, `SELECT CAST(INGEST_SEQ AS VARCHAR) FROM readings ORDER BY INGEST_SEQ`)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"1", "2", "3", "4"}
	if len(seqs) != len(want) {
		t.Fatalf("rows = %d, want %d", len(seqs), len(want))
	}
	for i, got := range seqs {
		if got != want[i] {
			t.Errorf("seq[%d] = %s, want %s", i, got, want[i])
		}
	}
}

func TestImportSequenceAdvancesPastFailedChunk(t *testing.T) {
	ctx := context.Background()
	s, err := Connect(filepath.Join(t.TempDir(), "t.duckdb"), Options{ChunkSize: 1})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	// All-parsed first import fixes the TIME column as TIMESTAMP.
	if _, err := s.ImportAppend(ctx, "readings",
		[]model.LongRecord{testRecord(t, "2024-01-01 00:00:00", "S1", "10")}, ModeAppend); err != nil {
		t.Fatal(err)
	}

	// Chunk 1 (parsed) commits, chunk 2 (raw text into TIMESTAMP) fails.
	mixed := []model.LongRecord{
		testRecord(t, "2024-01-01 00:00:01", "S2", "20"),
		rawTimeRecord("S3", "not a timestamp"),
	}
	written, err := s.ImportAppend(ctx, "readings", mixed, ModeAppend)
	if err == nil {
		t.Fatal("expected import failure on unparsable timestamp")
	}
	if written != 1 {
		t.Fatalf("written = %d, want 1 committed chunk", written)
	}

	// The committed chunk's sequence number must stay spoken for.
	if _, err := s.ImportAppend(ctx, "readings",
		[]model.LongRecord{testRecord(t, "2024-01-01 00:00:03", "S4", "40")}, ModeAppend); err != nil {
		t.Fatal(err)
	}

	seqs, err := s.QueryStrings(ctx, `SELECT CAST(INGEST_SEQ AS VARCHAR) FROM readings ORDER BY INGEST_SEQ`)
	if err != nil {
		t.Fatal(err)
	}
	seen := make(map[string]bool)
	for _, seq := range seqs {
		if seen[seq] {
			t.Fatalf("INGEST_SEQ %s assigned twice: %v", seq, seqs)
		}
		seen[seq] = true
	}
	if len(seqs) != 3 {
		t.Fatalf("rows = %d, want 3", len(seqs))
	}
}

func TestImportSequenceSeededFromExistingTable(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "t.duckdb")

	s, err := Connect(path, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.ImportAppend(ctx, "readings",
		[]model.LongRecord{testRecord(t, "2024-01-01 00:00:00", "S1", "10")}, ModeAppend); err != nil {
		t.Fatal(err)
	}
	s.Close()

	// A fresh connection must continue the sequence, not restart it.
	s2, err := Connect(path, Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()
	if _, err := s2.ImportAppend(ctx, "readings",
		[]model.LongRecord{testRecord(t, "2024-01-01 00:00:01", "S2", "20")}, ModeAppend); err != nil {
		t.Fatal(err)
	}

	max, err := s2.QueryCount(ctx, `SELECT MAX(INGEST_SEQ) FROM readings`)
	if err != nil {
		t.Fatal(err)
	}
	if max != 2 {
		t.Errorf("max seq = %d, want 2", max)
	}
}
