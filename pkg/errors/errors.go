// Package errors provides structured error handling for SensorFlow.
// Errors carry a code for programmatic handling plus key-value context,
// so the batch driver can classify per-file failures without string matching.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Code identifies an error class.
type Code string

const (
	// I/O errors (1xx): file, archive, or member unreadable.
	CodeFileUnreadable    Code = "E101"
	CodeArchiveUnreadable Code = "E102"
	CodeMemberNotFound    Code = "E103"

	// Format errors (2xx): header/row-count violations, decode failures.
	CodeTooFewLines  Code = "E201"
	CodeDecodeFailed Code = "E202"
	CodeBadEncoding  Code = "E203"

	// Ledger errors (4xx): non-fatal, degrade to empty/no-op ledger.
	CodeLedgerCorrupt    Code = "E401"
	CodeLedgerUnwritable Code = "E402"

	// Store errors (5xx): query/import failures against the analytical store.
	CodeStoreConnect Code = "E501"
	CodeStoreQuery   Code = "E502"
	CodeStoreImport  Code = "E503"

	CodeUnknown Code = "E999"
)

// Kind groups codes into the four top-level categories.
type Kind string

const (
	KindIO     Kind = "io"
	KindFormat Kind = "format"
	KindLedger Kind = "ledger"
	KindStore  Kind = "store"
	KindOther  Kind = "other"
)

// Error is the base error type for all SensorFlow errors.
type Error struct {
	Code    Code
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface.
func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if len(e.Context) > 0 {
		sb.WriteString(" (")
		first := true
		for k, v := range e.Context {
			if !first {
				sb.WriteString(", ")
			}
			sb.WriteString(fmt.Sprintf("%s=%v", k, v))
			first = false
		}
		sb.WriteString(")")
	}

	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}

	return sb.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Cause }

// Is matches on code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WithContext adds context to the error.
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a new Error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap wraps an existing error with a code and message.
func Wrap(err error, code Code, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Cause: err}
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, code Code, format string, args ...interface{}) *Error {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// --- Convenience constructors ---

// FileUnreadable creates an I/O error for an unreadable file.
func FileUnreadable(identity string, err error) *Error {
	return Wrap(err, CodeFileUnreadable, "file unreadable").WithContext("file", identity)
}

// TooFewLines creates a format error for a source shorter than the required
// three header rows plus one data row.
func TooFewLines(identity string, lines int) *Error {
	return New(CodeTooFewLines, "need 3 header rows and at least 1 data row").
		WithContext("file", identity).
		WithContext("lines", lines)
}

// DecodeFailed creates a format error for a text-decoding failure.
func DecodeFailed(identity, encoding string, err error) *Error {
	return Wrap(err, CodeDecodeFailed, "text decoding failed").
		WithContext("file", identity).
		WithContext("encoding", encoding)
}

// LedgerCorrupt creates a ledger-load error.
func LedgerCorrupt(location string, err error) *Error {
	return Wrap(err, CodeLedgerCorrupt, "ledger unreadable or corrupt").
		WithContext("location", location)
}

// StoreImport creates a store-import error for a table.
func StoreImport(table string, err error) *Error {
	return Wrap(err, CodeStoreImport, "import failed").WithContext("table", table)
}

// --- Error checking utilities ---

// IsCode checks if an error has a specific code.
func IsCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// KindOf maps an error to its top-level category.
func KindOf(err error) Kind {
	code := string(GetCode(err))
	if len(code) < 2 {
		return KindOther
	}
	switch code[1] {
	case '1':
		return KindIO
	case '2':
		return KindFormat
	case '4':
		return KindLedger
	case '5':
		return KindStore
	default:
		return KindOther
	}
}
