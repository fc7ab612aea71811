// Package model defines the core data types flowing through the ingestion
// pipeline: candidate file descriptors, the wide-format table produced by the
// reader, and the long-form records loaded into the store.
package model

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"time"
)

// FileKind distinguishes plain files from archive members.
type FileKind int

const (
	// KindPlain is a regular file on disk.
	KindPlain FileKind = iota
	// KindArchived is a member inside a ZIP archive.
	KindArchived
)

// FileDescriptor identifies a candidate input file. Immutable once discovered.
type FileDescriptor struct {
	// Path is the file path for plain files.
	Path string
	// ArchivePath and Member identify a ZIP archive member.
	ArchivePath string
	Member      string
	Kind        FileKind
}

// Identity returns the stable ledger/hash identity of the file:
// "archive::member" for archived entries, the plain path otherwise.
func (d FileDescriptor) Identity() string {
	if d.Kind == KindArchived {
		return d.ArchivePath + "::" + d.Member
	}
	return d.Path
}

// Name returns the base file name (of the archive member for archived entries).
func (d FileDescriptor) Name() string {
	if d.Kind == KindArchived {
		return path.Base(d.Member)
	}
	return filepath.Base(d.Path)
}

// Open returns a reader over the file's (decompressed) byte content.
// For archived entries the member is streamed without extracting the archive.
func (d FileDescriptor) Open() (io.ReadCloser, error) {
	if d.Kind != KindArchived {
		return os.Open(d.Path)
	}

	archive, err := zip.OpenReader(d.ArchivePath)
	if err != nil {
		return nil, err
	}
	for _, member := range archive.File {
		if member.Name == d.Member {
			rc, err := member.Open()
			if err != nil {
				archive.Close()
				return nil, err
			}
			return &memberReadCloser{rc: rc, archive: archive}, nil
		}
	}
	archive.Close()
	return nil, fmt.Errorf("member %q not found in %s", d.Member, d.ArchivePath)
}

// memberReadCloser ties the archive's lifetime to the member reader.
type memberReadCloser struct {
	rc      io.ReadCloser
	archive *zip.ReadCloser
}

func (m *memberReadCloser) Read(p []byte) (int, error) { return m.rc.Read(p) }

func (m *memberReadCloser) Close() error {
	err := m.rc.Close()
	if cerr := m.archive.Close(); err == nil {
		err = cerr
	}
	return err
}

// WideRow is one data row of a wide-format table. Values are positional:
// Values[i] belongs to sensor i of the header arrays.
type WideRow struct {
	Time   string
	Values []string
}

// WideTable is the parsed three-row-header wide layout. The header arrays are
// parallel; index i describes sensor i. They may differ in length when the
// source header rows are ragged, which the transformer tolerates per sensor.
type WideTable struct {
	SensorIDs   []string
	SensorNames []string
	SensorUnits []string
	Rows        []WideRow
}

// Sensors returns the number of sensor columns declared by the ID header row.
func (t *WideTable) Sensors() int { return len(t.SensorIDs) }

// LongRecord is one (timestamp, sensor) observation in long form.
type LongRecord struct {
	Plant     string
	MachineID string
	DataLabel string

	// Time is valid only when TimeParsed is true; otherwise TimeRaw holds the
	// original unparsable text and is what gets loaded.
	Time       time.Time
	TimeRaw    string
	TimeParsed bool

	SensorID   string
	SensorName string
	SensorUnit string
	Value      string
	FileName   string

	// Seq is the import-order sequence number assigned by the store. It is the
	// duplicate-resolution tie-break: the lowest Seq in a (TIME, SENSOR_ID)
	// group survives compaction.
	Seq int64
}

// TimeText returns the canonical timestamp text for loading: a normalized
// "YYYY-MM-DD HH:MM:SS" form when parsed, the original text otherwise.
func (r *LongRecord) TimeText() string {
	if r.TimeParsed {
		return r.Time.Format("2006-01-02 15:04:05")
	}
	return r.TimeRaw
}
