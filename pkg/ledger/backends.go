package ledger

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
)

// Backend persists the whole processed-file mapping as one document.
// Implementations can store it locally, in Redis, or in S3.
type Backend interface {
	// Load retrieves the full mapping. A backend with no document yet
	// returns an empty (or nil) map and no error.
	Load(ctx context.Context) (map[string]Entry, error)

	// Save replaces the stored document with the given mapping.
	Save(ctx context.Context, entries map[string]Entry) error

	// Name returns the backend name for logging.
	Name() string
}

// FileBackend stores the ledger as a JSON file on local disk.
type FileBackend struct {
	path string
}

// NewFileBackend creates a file-based ledger backend.
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

// Load reads the JSON document. A missing file yields an empty ledger.
func (b *FileBackend) Load(ctx context.Context) (map[string]Entry, error) {
	data, err := os.ReadFile(b.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var entries map[string]Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// Save writes the whole document. Write goes to a temp file first, then
// renames, so a crash mid-write never corrupts the existing ledger.
func (b *FileBackend) Save(ctx context.Context, entries map[string]Entry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}

	if dir := filepath.Dir(b.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	tempPath := b.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return err
	}
	return os.Rename(tempPath, b.path)
}

// Name returns "file".
func (b *FileBackend) Name() string { return "file" }
