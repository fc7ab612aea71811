package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSweepOnNewFile(t *testing.T) {
	dir := t.TempDir()
	w, err := New(dir, 50*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}

	swept := make(chan struct{}, 1)
	w.OnSweep = func(ctx context.Context) error {
		select {
		case swept <- struct{}{}:
		default:
		}
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	// Give the watch loop a moment to start before producing events.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(dir, "fresh.csv"), []byte("a,b\n"), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-swept:
	case <-time.After(5 * time.Second):
		t.Fatal("no sweep after a new csv appeared")
	}
}

func TestIrrelevantFilesIgnored(t *testing.T) {
	dir := t.TempDir()
	w, err := New(dir, 50*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}

	swept := make(chan struct{}, 1)
	w.OnSweep = func(ctx context.Context) error {
		select {
		case swept <- struct{}{}:
		default:
		}
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-swept:
		t.Fatal("txt file must not trigger a sweep")
	case <-time.After(500 * time.Millisecond):
	}
}

func TestRelevant(t *testing.T) {
	cases := map[string]bool{
		"a.csv":      true,
		"A.CSV":      true,
		"bundle.zip": true,
		"notes.txt":  false,
		"data.json":  false,
	}
	for path, want := range cases {
		if got := relevant(path); got != want {
			t.Errorf("relevant(%q) = %v, want %v", path, got, want)
		}
	}
}
