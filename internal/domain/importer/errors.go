package importer

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	// ErrMalformedExport marks a payload whose structure cannot be parsed.
	// Nothing from such an import may reach the metric store.
	ErrMalformedExport = errors.New("malformed export")
	// ErrUnknownFormat is returned for a Request.Format the importer does not speak.
	ErrUnknownFormat = errors.New("unknown export format")
	// ErrJobPending is returned by Job.Result before the job has finished.
	ErrJobPending = errors.New("import job not finished")
)

// MalformedExportError names the first record that could not be parsed.
type MalformedExportError struct {
	// Ordinal is the 1-based position of the failing record.
	Ordinal int
	// Offset is the byte offset where the failing record starts.
	Offset int64
	Err    error
}

func (e *MalformedExportError) Error() string {
	return fmt.Sprintf("malformed export at record %d (byte %d): %v", e.Ordinal, e.Offset, e.Err)
}

// Unwrap exposes both the sentinel and the parser error.
func (e *MalformedExportError) Unwrap() []error {
	return []error{ErrMalformedExport, e.Err}
}

func malformed(ordinal int, offset int64, err error) error {
	return &MalformedExportError{Ordinal: ordinal, Offset: offset, Err: err}
}
