package fingerprint

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/sensorflow/sensorflow/internal/model"
	sferrors "github.com/sensorflow/sensorflow/pkg/errors"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func writeZip(t *testing.T, dir, name string, members map[string]string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	for member, content := range members {
		w, err := zw.Create(member)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestHashDeterministic(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.csv", "hello,world\n")
	fd := model.FileDescriptor{Path: path, Kind: model.KindPlain}

	h1, err := Hash(fd)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	h2, err := Hash(fd)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if h1 != h2 {
		t.Errorf("hash not deterministic: %s vs %s", h1, h2)
	}
	if len(h1) != 32 {
		t.Errorf("expected 32 hex chars, got %d", len(h1))
	}
}

func TestHashChangesWithContent(t *testing.T) {
	dir := t.TempDir()
	fd := model.FileDescriptor{Path: writeFile(t, dir, "a.csv", "abc"), Kind: model.KindPlain}

	h1, err := Hash(fd)
	if err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(fd.Path, []byte("abd"), 0644); err != nil {
		t.Fatal(err)
	}
	h2, err := Hash(fd)
	if err != nil {
		t.Fatal(err)
	}
	if h1 == h2 {
		t.Error("one-byte change did not change the digest")
	}
}

func TestHashArchiveMemberMatchesPlain(t *testing.T) {
	dir := t.TempDir()
	content := "1,2,3\n4,5,6\n"
	plain := model.FileDescriptor{Path: writeFile(t, dir, "a.csv", content), Kind: model.KindPlain}
	zipPath := writeZip(t, dir, "a.zip", map[string]string{"inner/a.csv": content})
	archived := model.FileDescriptor{
		ArchivePath: zipPath,
		Member:      "inner/a.csv",
		Kind:        model.KindArchived,
	}

	hp, err := Hash(plain)
	if err != nil {
		t.Fatal(err)
	}
	ha, err := Hash(archived)
	if err != nil {
		t.Fatal(err)
	}
	if hp != ha {
		t.Error("archived member digest should match the identical plain file")
	}
}

func TestHashErrors(t *testing.T) {
	dir := t.TempDir()
	zipPath := writeZip(t, dir, "a.zip", map[string]string{"a.csv": "x"})

	tests := []struct {
		name string
		fd   model.FileDescriptor
	}{
		{"missing file", model.FileDescriptor{Path: filepath.Join(dir, "gone.csv"), Kind: model.KindPlain}},
		{"missing archive", model.FileDescriptor{ArchivePath: filepath.Join(dir, "gone.zip"), Member: "a.csv", Kind: model.KindArchived}},
		{"missing member", model.FileDescriptor{ArchivePath: zipPath, Member: "nope.csv", Kind: model.KindArchived}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Hash(tt.fd)
			if err == nil {
				t.Fatal("expected error")
			}
			if sferrors.KindOf(err) != sferrors.KindIO {
				t.Errorf("expected IO error kind, got %v", sferrors.KindOf(err))
			}
		})
	}
}
