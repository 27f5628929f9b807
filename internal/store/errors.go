package store

import (
	"errors"
	"fmt"
)

// Common errors.
var (
	ErrEmpty           = errors.New("store has no records")
	ErrNotFound        = errors.New("record not found")
	ErrMalformedRecord = errors.New("malformed record")
	ErrBatchTooLarge   = errors.New("batch size exceeds record count")
	ErrUnsupportedType = errors.New("unsupported store type")
)

// DataSourceError reports a store that cannot serve the requested data:
// a missing or unreadable path, an unsupported store type, or a batch
// larger than the number of records.
type DataSourceError struct {
	Path string // Store path
	Op   string // Operation (e.g., "open", "get", "read batch")
	Err  error  // Underlying cause
}

// Error implements the error interface.
func (e *DataSourceError) Error() string {
	return fmt.Sprintf("store %s %q: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying cause.
func (e *DataSourceError) Unwrap() error {
	return e.Err
}
