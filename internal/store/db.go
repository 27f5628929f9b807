// Package store reads and writes the LevelDB record stores that hold the
// labelled images.
//
// Keys are zero-padded decimal indices ("00000000", "00000001", ...) and
// values are TensorProtos records (see EncodeRecord). Readers open the
// database read-only.
package store

import (
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

// TypeLevelDB is the only supported store type.
const TypeLevelDB = "leveldb"

// DB is a read-only record store.
type DB struct {
	path  string
	ldb   *leveldb.DB
	count int
}

// Open opens an existing store read-only and counts its records.
func Open(path string) (*DB, error) {
	return OpenType(path, TypeLevelDB)
}

// OpenType opens a store of the named type.
func OpenType(path, dbType string) (*DB, error) {
	if dbType != TypeLevelDB {
		return nil, &DataSourceError{Path: path, Op: "open", Err: fmt.Errorf("%w: %q", ErrUnsupportedType, dbType)}
	}
	ldb, err := leveldb.OpenFile(path, &opt.Options{ReadOnly: true, ErrorIfMissing: true})
	if err != nil {
		return nil, &DataSourceError{Path: path, Op: "open", Err: err}
	}

	it := ldb.NewIterator(nil, nil)
	count := 0
	for it.Next() {
		count++
	}
	it.Release()
	if err := it.Error(); err != nil {
		_ = ldb.Close()
		return nil, &DataSourceError{Path: path, Op: "open", Err: err}
	}

	return &DB{path: path, ldb: ldb, count: count}, nil
}

// Path returns the store path.
func (db *DB) Path() string { return db.path }

// Len returns the number of records.
func (db *DB) Len() int { return db.count }

// Get returns the raw value stored under key.
func (db *DB) Get(key []byte) ([]byte, error) {
	v, err := db.ldb.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, &DataSourceError{Path: db.path, Op: "get", Err: fmt.Errorf("%w: key %q", ErrNotFound, key)}
	}
	if err != nil {
		return nil, &DataSourceError{Path: db.path, Op: "get", Err: err}
	}
	return v, nil
}

// Record reads and decodes the record at index i.
func (db *DB) Record(i int) (Record, error) {
	v, err := db.Get(Key(i))
	if err != nil {
		return Record{}, err
	}
	r, err := DecodeRecord(v)
	if err != nil {
		return Record{}, &DataSourceError{Path: db.path, Op: "decode", Err: err}
	}
	return r, nil
}

// Close releases the database.
func (db *DB) Close() error {
	return db.ldb.Close()
}

// NewCursor returns a cursor positioned before the first record.
func (db *DB) NewCursor() *Cursor {
	return &Cursor{db: db, it: db.ldb.NewIterator(nil, nil)}
}

// Cursor reads records in key order and wraps to the first key after the last.
// A cursor is not safe for concurrent use.
type Cursor struct {
	db *DB
	it iterator.Iterator
}

// Next returns the next value. The returned slice is owned by the caller.
func (c *Cursor) Next() ([]byte, error) {
	if !c.it.Next() {
		if err := c.it.Error(); err != nil {
			return nil, &DataSourceError{Path: c.db.path, Op: "read", Err: err}
		}
		if !c.it.First() {
			return nil, &DataSourceError{Path: c.db.path, Op: "read", Err: ErrEmpty}
		}
	}
	return append([]byte(nil), c.it.Value()...), nil
}

// Close releases the iterator. It does not close the store.
func (c *Cursor) Close() error {
	c.it.Release()
	return nil
}
