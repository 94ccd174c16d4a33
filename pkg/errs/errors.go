// Package errs defines the error taxonomy shared across the batch
// processing pipelines.
//
// Folder-level and configuration errors abort a run before any item is
// touched; per-item errors are recorded on the worklist item and the run
// continues. Every error carries enough context to produce a
// human-readable message without consulting logs.
package errs

import (
	"errors"
	"fmt"
)

// NotFoundError reports a missing folder or file.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("not found: %s", e.Path)
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e)
}

// UnsupportedFormatError reports that no registered loader accepts a file.
type UnsupportedFormatError struct {
	Path   string
	Reason string
}

func (e *UnsupportedFormatError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("unsupported format: %s (%s)", e.Path, e.Reason)
	}
	return fmt.Sprintf("unsupported format: %s", e.Path)
}

// IsUnsupportedFormat reports whether err is (or wraps) an
// UnsupportedFormatError.
func IsUnsupportedFormat(err error) bool {
	var e *UnsupportedFormatError
	return errors.As(err, &e)
}

// ProcessingError reports a failure inside a processing function while
// handling a single item.
type ProcessingError struct {
	Function string
	Path     string
	Err      error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("processing %s with %s: %v", e.Path, e.Function, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// IsProcessing reports whether err is (or wraps) a ProcessingError.
func IsProcessing(err error) bool {
	var e *ProcessingError
	return errors.As(err, &e)
}

// WriteError reports a failed output write.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("writing %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// IsWrite reports whether err is (or wraps) a WriteError.
func IsWrite(err error) bool {
	var e *WriteError
	return errors.As(err, &e)
}

// BusyError reports an attempt to start a batch run while another one is
// active on the same coordinator.
type BusyError struct {
	JobID string
}

func (e *BusyError) Error() string {
	if e.JobID != "" {
		return fmt.Sprintf("a batch run is already active (job %s)", e.JobID)
	}
	return "a batch run is already active"
}

// IsBusy reports whether err is (or wraps) a BusyError.
func IsBusy(err error) bool {
	var e *BusyError
	return errors.As(err, &e)
}
