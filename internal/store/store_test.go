package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeStore(t *testing.T, n int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "db")
	w, err := Create(path)
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		img := make([]byte, 784)
		img[i%784] = byte(i + 1)
		require.NoError(t, w.Add(Record{Image: img, Dims: []int{1, 28, 28}, Label: int32(i % 10)}))
	}
	require.Equal(t, n, w.Count())
	require.NoError(t, w.Close())
	return path
}

func TestKey(t *testing.T) {
	assert.Equal(t, "00000000", string(Key(0)))
	assert.Equal(t, "00000937", string(Key(937)))
	assert.Equal(t, "00059999", string(Key(59999)))
}

func TestRecordRoundTrip(t *testing.T) {
	img := make([]byte, 784)
	img[10] = 200
	v := EncodeRecord(Record{Image: img, Dims: []int{1, 28, 28}, Label: 7})

	r, err := DecodeRecord(v)
	require.NoError(t, err)
	assert.Equal(t, int32(7), r.Label)
	assert.Equal(t, []int{1, 28, 28}, r.Dims)
	assert.Equal(t, img, r.Image)
}

func TestDecodeRecordMalformed(t *testing.T) {
	_, err := DecodeRecord([]byte{0x0a, 0x05, 0x01})
	require.Error(t, err)

	v := EncodeRecord(Record{Image: make([]byte, 10), Dims: []int{1, 28, 28}, Label: 1})
	_, err = DecodeRecord(v)
	require.ErrorIs(t, err, ErrMalformedRecord)
}

func TestOpenAndGet(t *testing.T) {
	path := writeStore(t, 5)

	db, err := Open(path)
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, 5, db.Len())
	r, err := db.Record(3)
	require.NoError(t, err)
	assert.Equal(t, int32(3), r.Label)
	assert.Equal(t, byte(4), r.Image[3])

	_, err = db.Get(Key(99))
	var dse *DataSourceError
	require.ErrorAs(t, err, &dse)
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "get", dse.Op)
}

func TestOpenMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope")
	_, err := Open(path)

	var dse *DataSourceError
	require.ErrorAs(t, err, &dse)
	assert.Equal(t, path, dse.Path)
	assert.Equal(t, "open", dse.Op)
}

func TestOpenUnsupportedType(t *testing.T) {
	_, err := OpenType(t.TempDir(), "lmdb")
	require.ErrorIs(t, err, ErrUnsupportedType)
}

// TestCursorWraps verifies that reading past the last key starts over at the first.
func TestCursorWraps(t *testing.T) {
	db, err := Open(writeStore(t, 3))
	require.NoError(t, err)
	defer db.Close()

	c := db.NewCursor()
	defer c.Close()

	var labels []int32
	for i := 0; i < 7; i++ {
		v, err := c.Next()
		require.NoError(t, err)
		r, err := DecodeRecord(v)
		require.NoError(t, err)
		labels = append(labels, r.Label)
	}
	assert.Equal(t, []int32{0, 1, 2, 0, 1, 2, 0}, labels)
}

func TestCursorEmpty(t *testing.T) {
	db, err := Open(writeStore(t, 0))
	require.NoError(t, err)
	defer db.Close()

	c := db.NewCursor()
	defer c.Close()
	_, err = c.Next()
	require.ErrorIs(t, err, ErrEmpty)
}

func TestWriterFlushesInBatches(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db")
	w, err := Create(path)
	require.NoError(t, err)
	w.limit = 2
	for i := 0; i < 5; i++ {
		require.NoError(t, w.Put(Key(i), []byte{byte(i)}))
	}
	require.NoError(t, w.Close())

	db, err := Open(path)
	require.NoError(t, err)
	defer db.Close()
	assert.Equal(t, 5, db.Len())
}

func TestReaderBatches(t *testing.T) {
	r, err := NewReader(writeStore(t, 4), TypeLevelDB)
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, 4, r.Len())
	b1, err := r.ReadBatch(3)
	require.NoError(t, err)
	b2, err := r.ReadBatch(3)
	require.NoError(t, err)

	assert.Equal(t, int32(3), b2[0].Label)
	assert.Equal(t, int32(0), b2[1].Label, "cursor wraps")
	assert.Equal(t, b1[0].Image, b2[1].Image)
}

func TestReaderBatchTooLarge(t *testing.T) {
	r, err := NewReader(writeStore(t, 2), TypeLevelDB)
	require.NoError(t, err)
	defer r.Close()

	_, err = r.ReadBatch(3)
	var dse *DataSourceError
	require.ErrorAs(t, err, &dse)
	require.ErrorIs(t, err, ErrBatchTooLarge)
}
