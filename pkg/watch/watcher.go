// Package watch monitors a source folder for new or rewritten sensor files
// and triggers ingestion sweeps. Events are debounced so a burst of copies
// (an operator dropping a day's worth of exports at once) produces a single
// sweep, and the ledger makes sweeps idempotent anyway.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/sensorflow/sensorflow/pkg/logger"
)

// DefaultDebounce is how long the watcher waits after the last event before
// sweeping.
const DefaultDebounce = 2 * time.Second

// Watcher triggers OnSweep after relevant filesystem activity settles.
type Watcher struct {
	watcher  *fsnotify.Watcher
	root     string
	debounce time.Duration

	mu      sync.Mutex
	pending *time.Timer

	// OnSweep runs an ingestion pass. Errors are logged, not fatal: the next
	// event schedules another sweep.
	OnSweep func(ctx context.Context) error
}

// New creates a watcher over root and all its existing subdirectories.
func New(root string, debounce time.Duration) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	w := &Watcher{watcher: fsWatcher, root: root, debounce: debounce}

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.watcher.Add(path)
		}
		return nil
	})
	if err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", root, err)
	}
	return w, nil
}

// Run blocks until the context is cancelled, dispatching debounced sweeps.
func (w *Watcher) Run(ctx context.Context) error {
	logger.Info("watching for new files",
		zap.String("folder", w.root),
		zap.Duration("debounce", w.debounce))

	for {
		select {
		case <-ctx.Done():
			w.Close()
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}

			// New subdirectories need to be added to the watch set so files
			// landing inside them are seen.
			if event.Op&fsnotify.Create != 0 {
				if fi, err := os.Stat(event.Name); err == nil && fi.IsDir() {
					if err := w.watcher.Add(event.Name); err != nil {
						logger.Warn("failed to watch new directory",
							zap.String("dir", event.Name), zap.Error(err))
					}
					w.schedule(ctx)
					continue
				}
			}

			if !relevant(event.Name) {
				continue
			}
			logger.Debug("file event", zap.String("path", event.Name), zap.String("op", event.Op.String()))
			w.schedule(ctx)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch error", zap.Error(err))
		}
	}
}

// schedule arms (or re-arms) the debounce timer.
func (w *Watcher) schedule(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending != nil {
		w.pending.Stop()
	}
	w.pending = time.AfterFunc(w.debounce, func() {
		if ctx.Err() != nil {
			return
		}
		if w.OnSweep == nil {
			return
		}
		if err := w.OnSweep(ctx); err != nil {
			logger.Error("sweep failed", zap.Error(err))
		}
	})
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.pending != nil {
		w.pending.Stop()
	}
	w.mu.Unlock()
	return w.watcher.Close()
}

// relevant reports whether a path could be a source file.
func relevant(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".zip":
		return true
	}
	return false
}
