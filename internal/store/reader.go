package store

import (
	"fmt"
)

// Reader feeds fixed-size batches from a store. It owns both the database
// handle and the cursor, and is what a DB-creating operator leaves in the
// workspace.
type Reader struct {
	db     *DB
	cursor *Cursor
}

// NewReader opens a store of the given type for sequential batch reads.
func NewReader(path, dbType string) (*Reader, error) {
	db, err := OpenType(path, dbType)
	if err != nil {
		return nil, err
	}
	return &Reader{db: db, cursor: db.NewCursor()}, nil
}

// Len returns the number of records in the store.
func (r *Reader) Len() int { return r.db.Len() }

// Path returns the store path.
func (r *Reader) Path() string { return r.db.Path() }

// ReadBatch decodes the next n records, wrapping at the end of the store.
func (r *Reader) ReadBatch(n int) ([]Record, error) {
	if n > r.db.Len() {
		return nil, &DataSourceError{
			Path: r.db.Path(),
			Op:   "read batch",
			Err:  fmt.Errorf("%w: batch %d, records %d", ErrBatchTooLarge, n, r.db.Len()),
		}
	}
	out := make([]Record, n)
	for i := range out {
		v, err := r.cursor.Next()
		if err != nil {
			return nil, err
		}
		rec, err := DecodeRecord(v)
		if err != nil {
			return nil, &DataSourceError{Path: r.db.Path(), Op: "decode", Err: err}
		}
		out[i] = rec
	}
	return out, nil
}

// Close releases the cursor and the database.
func (r *Reader) Close() error {
	_ = r.cursor.Close()
	return r.db.Close()
}
