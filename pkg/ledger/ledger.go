// Package ledger tracks which source files have already been ingested.
// An entry maps a file identity to the content digest observed when the file
// was loaded; a file is "processed" only while its current digest still
// matches, so edited files are picked up again on the next run.
package ledger

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sensorflow/sensorflow/internal/model"
	sferrors "github.com/sensorflow/sensorflow/pkg/errors"
	"github.com/sensorflow/sensorflow/pkg/fingerprint"
	"github.com/sensorflow/sensorflow/pkg/logger"
)

// Entry records one successfully ingested file.
type Entry struct {
	Hash      string    `json:"hash"`
	Timestamp time.Time `json:"timestamp"`
}

// Ledger is the in-memory view of the processed-file mapping, persisted
// through a Backend as one whole document after every mark.
type Ledger struct {
	mu      sync.Mutex
	entries map[string]Entry
	backend Backend
	now     func() time.Time
}

// Open loads the ledger from the backend. A missing or corrupt document
// degrades to an empty ledger with a warning; it never fails the run.
func Open(ctx context.Context, backend Backend) *Ledger {
	entries, err := backend.Load(ctx)
	if err != nil {
		logger.Warn("ledger unreadable, starting empty",
			zap.String("backend", backend.Name()), zap.Error(err))
		entries = nil
	}
	if entries == nil {
		entries = make(map[string]Entry)
	}

	return &Ledger{
		entries: entries,
		backend: backend,
		now:     time.Now,
	}
}

// IsProcessed reports whether the file's identity has an entry whose stored
// digest matches the file's current content. A file that cannot be hashed is
// treated as not processed.
func (l *Ledger) IsProcessed(fd model.FileDescriptor) bool {
	hash, err := fingerprint.Hash(fd)
	if err != nil {
		logger.Debug("fingerprint failed, treating as unprocessed",
			zap.String("file", fd.Identity()), zap.Error(err))
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.entries[fd.Identity()]
	return ok && entry.Hash == hash
}

// MarkProcessed computes the file's current digest, upserts its entry, and
// persists the whole mapping. A persistence failure is returned as a ledger
// error but the in-memory entry is kept, so accounting for the current run is
// unaffected (the file may be reprocessed next run, which is idempotent).
func (l *Ledger) MarkProcessed(ctx context.Context, fd model.FileDescriptor) error {
	hash, err := fingerprint.Hash(fd)
	if err != nil {
		return err
	}

	l.mu.Lock()
	l.entries[fd.Identity()] = Entry{Hash: hash, Timestamp: l.now()}
	snapshot := make(map[string]Entry, len(l.entries))
	for k, v := range l.entries {
		snapshot[k] = v
	}
	l.mu.Unlock()

	if err := l.backend.Save(ctx, snapshot); err != nil {
		return sferrors.Wrap(err, sferrors.CodeLedgerUnwritable, "ledger write failed").
			WithContext("backend", l.backend.Name()).
			WithContext("file", fd.Identity())
	}
	return nil
}

// Len returns the number of ledger entries.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
