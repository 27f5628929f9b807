// Package mnist reads the MNIST IDX files, converts them into record stores
// and prepares single images for classification.
package mnist

import (
	"bufio"
	"compress/gzip"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// IDX magic numbers.
const (
	magicLabels = 2049
	magicImages = 2051
)

// Image geometry.
const (
	Rows      = 28
	Cols      = 28
	ImageSize = Rows * Cols
)

// ErrFormat reports a malformed IDX file.
var ErrFormat = errors.New("mnist: invalid idx file")

// Images is a set of equally sized grayscale images.
type Images struct {
	Rows, Cols int
	Pixels     [][]byte
}

// open returns a reader over path, transparently gunzipping .gz content.
func open(path string) (io.ReadCloser, error) {
	//nolint:gosec // G304: dataset path comes from the command line
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	br := bufio.NewReader(f)
	head, err := br.Peek(2)
	if err == nil && head[0] == 0x1f && head[1] == 0x8b {
		zr, err := gzip.NewReader(br)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return struct {
			io.Reader
			io.Closer
		}{zr, f}, nil
	}
	return struct {
		io.Reader
		io.Closer
	}{br, f}, nil
}

func readHeader(r io.Reader, magic uint32, dims int) ([]uint32, error) {
	var got uint32
	if err := binary.Read(r, binary.BigEndian, &got); err != nil {
		return nil, fmt.Errorf("%w: read magic: %w", ErrFormat, err)
	}
	if got != magic {
		return nil, fmt.Errorf("%w: magic %d, want %d", ErrFormat, got, magic)
	}
	out := make([]uint32, dims)
	if err := binary.Read(r, binary.BigEndian, out); err != nil {
		return nil, fmt.Errorf("%w: read dims: %w", ErrFormat, err)
	}
	return out, nil
}

// ReadImages reads an images file (idx3-ubyte, optionally gzipped).
func ReadImages(path string) (*Images, error) {
	rc, err := open(path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	dims, err := readHeader(rc, magicImages, 3)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	n, rows, cols := int(dims[0]), int(dims[1]), int(dims[2])
	if rows == 0 || cols == 0 {
		return nil, fmt.Errorf("%s: %w: image size %dx%d", path, ErrFormat, rows, cols)
	}
	imgs := &Images{Rows: rows, Cols: cols, Pixels: make([][]byte, n)}
	for i := range imgs.Pixels {
		imgs.Pixels[i] = make([]byte, rows*cols)
		if _, err := io.ReadFull(rc, imgs.Pixels[i]); err != nil {
			return nil, fmt.Errorf("%s: %w: image %d: %w", path, ErrFormat, i, err)
		}
	}
	return imgs, nil
}

// ReadLabels reads a labels file (idx1-ubyte, optionally gzipped).
func ReadLabels(path string) ([]byte, error) {
	rc, err := open(path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	dims, err := readHeader(rc, magicLabels, 1)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	labels := make([]byte, dims[0])
	if _, err := io.ReadFull(rc, labels); err != nil {
		return nil, fmt.Errorf("%s: %w: labels: %w", path, ErrFormat, err)
	}
	return labels, nil
}
