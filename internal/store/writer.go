package store

import (
	"github.com/syndtr/goleveldb/leveldb"
)

// defaultBatchSize is the number of puts buffered before a write.
const defaultBatchSize = 1000

// Writer creates a store and appends records under sequential keys.
type Writer struct {
	path  string
	ldb   *leveldb.DB
	batch *leveldb.Batch
	next  int
	limit int
}

// Create opens path for writing, creating the database if needed.
// Existing keys are overwritten as records are added.
func Create(path string) (*Writer, error) {
	ldb, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, &DataSourceError{Path: path, Op: "create", Err: err}
	}
	return &Writer{path: path, ldb: ldb, batch: new(leveldb.Batch), limit: defaultBatchSize}, nil
}

// Add appends a record under the next key.
func (w *Writer) Add(r Record) error {
	return w.Put(Key(w.next), EncodeRecord(r))
}

// Put stores a raw value and counts it as a record.
func (w *Writer) Put(key, value []byte) error {
	w.batch.Put(key, value)
	w.next++
	if w.batch.Len() >= w.limit {
		return w.Flush()
	}
	return nil
}

// Count returns the number of records written so far.
func (w *Writer) Count() int { return w.next }

// Flush writes buffered records.
func (w *Writer) Flush() error {
	if w.batch.Len() == 0 {
		return nil
	}
	if err := w.ldb.Write(w.batch, nil); err != nil {
		return &DataSourceError{Path: w.path, Op: "write", Err: err}
	}
	w.batch.Reset()
	return nil
}

// Close flushes and closes the database.
func (w *Writer) Close() error {
	ferr := w.Flush()
	cerr := w.ldb.Close()
	if ferr != nil {
		return ferr
	}
	if cerr != nil {
		return &DataSourceError{Path: w.path, Op: "close", Err: cerr}
	}
	return nil
}
