// Package reader parses the fixed wide sensor-log layout: three header rows
// (sensor ids, names, units) followed by comma-delimited data rows whose
// first column is a free-text timestamp.
package reader

import (
	"errors"
	"io"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/sensorflow/sensorflow/internal/model"
	sferrors "github.com/sensorflow/sensorflow/pkg/errors"
	"github.com/sensorflow/sensorflow/pkg/logger"
)

var errUndecodable = errors.New("undecodable bytes in source")

// Reader parses wide-format sources with a caller-supplied text encoding.
type Reader struct {
	encodingName string
	enc          encoding.Encoding // nil for UTF-8 passthrough
}

// New creates a reader for the named encoding. An empty name or any UTF-8
// alias selects passthrough decoding.
func New(encodingName string) (*Reader, error) {
	name := strings.ToLower(strings.TrimSpace(encodingName))
	switch name {
	case "", "utf-8", "utf8":
		return &Reader{encodingName: "utf-8"}, nil
	}

	enc, err := ianaindex.IANA.Encoding(encodingName)
	if err != nil || enc == nil {
		return nil, sferrors.New(sferrors.CodeBadEncoding, "unsupported encoding").
			WithContext("encoding", encodingName)
	}
	if enc == unicode.UTF8 {
		return &Reader{encodingName: encodingName}, nil
	}
	return &Reader{encodingName: encodingName, enc: enc}, nil
}

// Read parses the file behind fd into a WideTable. It fails with a format
// error when fewer than 4 lines are present (3 header rows + at least 1 data
// row) and with an I/O error when the source cannot be opened.
func (r *Reader) Read(fd model.FileDescriptor) (*model.WideTable, error) {
	rc, err := fd.Open()
	if err != nil {
		return nil, sferrors.FileUnreadable(fd.Identity(), err)
	}
	defer rc.Close()

	var src io.Reader = rc
	if r.enc != nil {
		src = transform.NewReader(rc, r.enc.NewDecoder())
	}

	content, err := io.ReadAll(src)
	if err != nil {
		return nil, sferrors.DecodeFailed(fd.Identity(), r.encodingName, err)
	}

	text := string(content)
	// The decoders substitute U+FFFD for undecodable input rather than
	// failing, and passthrough accepts any byte sequence. Either way the
	// values would load as mojibake and the file would be marked processed,
	// so reject the whole file. ContainsRune with RuneError also matches raw
	// invalid UTF-8 in the passthrough case.
	if strings.ContainsRune(text, utf8.RuneError) {
		return nil, sferrors.DecodeFailed(fd.Identity(), r.encodingName, errUndecodable)
	}

	lines := splitLines(text)
	if len(lines) < 4 {
		return nil, sferrors.TooFewLines(fd.Identity(), len(lines))
	}

	// The first field of each header line is a placeholder for the TIME
	// column and is discarded.
	sensorIDs := dropFirst(splitTrim(lines[0]))
	sensorNames := dropFirst(splitTrim(lines[1]))
	sensorUnits := dropFirst(splitTrim(lines[2]))

	// Column layout: TIME + one column per sensor id.
	columns := 1 + len(sensorIDs)

	table := &model.WideTable{
		SensorIDs:   sensorIDs,
		SensorNames: sensorNames,
		SensorUnits: sensorUnits,
	}

	dropped := 0
	for i, line := range lines[3:] {
		// A trailing comma is an artifact of the source format; strip exactly one.
		trimmed := strings.TrimSpace(line)
		trimmed = strings.TrimSuffix(trimmed, ",")

		fields := splitTrim(trimmed)
		if len(fields) < columns {
			dropped++
			logger.Debug("short data row dropped",
				zap.String("file", fd.Identity()),
				zap.Int("line", i+4),
				zap.Int("fields", len(fields)),
				zap.Int("columns", columns))
			continue
		}

		// Surplus fields beyond the column count are ignored.
		table.Rows = append(table.Rows, model.WideRow{
			Time:   fields[0],
			Values: fields[1:columns],
		})
	}

	if dropped > 0 {
		logger.Debug("data rows dropped for too few fields",
			zap.String("file", fd.Identity()), zap.Int("dropped", dropped))
	}

	return table, nil
}

// splitLines splits on newlines, tolerating CRLF and a trailing newline.
func splitLines(content string) []string {
	lines := strings.Split(content, "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return lines
}

// splitTrim splits a line on commas and trims whitespace per field.
func splitTrim(line string) []string {
	fields := strings.Split(line, ",")
	for i, f := range fields {
		fields[i] = strings.TrimSpace(f)
	}
	return fields
}

// dropFirst discards the leading placeholder field of a header line.
func dropFirst(fields []string) []string {
	if len(fields) == 0 {
		return fields
	}
	return fields[1:]
}
