package tensor

import (
	"errors"
	"fmt"
)

// ErrDTypeMismatch is returned when a tensor is accessed as the wrong type.
var ErrDTypeMismatch = errors.New("tensor dtype mismatch")

// Tensor is a dense, row-major value held in a workspace blob.
//
// Exactly one backing slice is populated, selected by the data type. Operators
// resize tensors in place so that blobs updated every step (parameters,
// gradients, activations) keep their identity across runs.
type Tensor struct {
	shape Shape
	dtype DataType

	f32 []float32
	i32 []int32
	i64 []int64
	u8  []uint8
}

// New allocates a zero-filled tensor.
func New(shape Shape, dtype DataType) (*Tensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	if !dtype.Valid() {
		return nil, fmt.Errorf("tensor: unsupported dtype %s", dtype)
	}
	t := &Tensor{dtype: dtype}
	t.Resize(shape)
	return t, nil
}

// FromFloat32 wraps data as a float32 tensor without copying.
func FromFloat32(data []float32, shape Shape) (*Tensor, error) {
	if err := checkLen(len(data), shape); err != nil {
		return nil, err
	}
	return &Tensor{shape: shape.Clone(), dtype: Float, f32: data}, nil
}

// FromInt32 wraps data as an int32 tensor without copying.
func FromInt32(data []int32, shape Shape) (*Tensor, error) {
	if err := checkLen(len(data), shape); err != nil {
		return nil, err
	}
	return &Tensor{shape: shape.Clone(), dtype: Int32, i32: data}, nil
}

// FromInt64 wraps data as an int64 tensor without copying.
func FromInt64(data []int64, shape Shape) (*Tensor, error) {
	if err := checkLen(len(data), shape); err != nil {
		return nil, err
	}
	return &Tensor{shape: shape.Clone(), dtype: Int64, i64: data}, nil
}

// FromUint8 wraps data as a uint8 tensor without copying.
func FromUint8(data []uint8, shape Shape) (*Tensor, error) {
	if err := checkLen(len(data), shape); err != nil {
		return nil, err
	}
	return &Tensor{shape: shape.Clone(), dtype: Uint8, u8: data}, nil
}

func checkLen(n int, shape Shape) error {
	if err := shape.Validate(); err != nil {
		return err
	}
	if n != shape.NumElements() {
		return fmt.Errorf("tensor: data length %d does not match shape %v (%d elements)",
			n, shape, shape.NumElements())
	}
	return nil
}

// Shape returns the tensor dimensions. Callers must not modify it.
func (t *Tensor) Shape() Shape { return t.shape }

// DType returns the element type.
func (t *Tensor) DType() DataType { return t.dtype }

// NumElements returns the number of elements.
func (t *Tensor) NumElements() int { return t.shape.NumElements() }

// Float32 returns the float32 backing slice, or nil for other dtypes.
func (t *Tensor) Float32() []float32 { return t.f32 }

// Int32 returns the int32 backing slice, or nil for other dtypes.
func (t *Tensor) Int32() []int32 { return t.i32 }

// Int64 returns the int64 backing slice, or nil for other dtypes.
func (t *Tensor) Int64() []int64 { return t.i64 }

// Uint8 returns the uint8 backing slice, or nil for other dtypes.
func (t *Tensor) Uint8() []uint8 { return t.u8 }

// Resize changes the shape, reallocating only when the element count grows.
// Contents are unspecified after a resize that changes the element count.
func (t *Tensor) Resize(shape Shape) {
	n := shape.NumElements()
	t.shape = shape.Clone()
	switch t.dtype.Storage() {
	case Float:
		t.f32 = grow(t.f32, n)
	case Int32:
		t.i32 = grow(t.i32, n)
	case Int64:
		t.i64 = grow(t.i64, n)
	case Uint8:
		t.u8 = grow(t.u8, n)
	}
}

// Reshape changes the shape without touching data.
func (t *Tensor) Reshape(shape Shape) error {
	if shape.NumElements() != t.shape.NumElements() {
		return fmt.Errorf("tensor: cannot reshape %v to %v", t.shape, shape)
	}
	t.shape = shape.Clone()
	return nil
}

// Matches reports whether the tensor already has the given shape and dtype.
func (t *Tensor) Matches(shape Shape, dtype DataType) bool {
	return t.dtype == dtype && t.shape.Equal(shape)
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	c := &Tensor{shape: t.shape.Clone(), dtype: t.dtype}
	if t.f32 != nil {
		c.f32 = append([]float32(nil), t.f32...)
	}
	if t.i32 != nil {
		c.i32 = append([]int32(nil), t.i32...)
	}
	if t.i64 != nil {
		c.i64 = append([]int64(nil), t.i64...)
	}
	if t.u8 != nil {
		c.u8 = append([]uint8(nil), t.u8...)
	}
	return c
}

// CopyFrom copies src into t, resizing t to src's shape.
func (t *Tensor) CopyFrom(src *Tensor) error {
	if t.dtype.Storage() != src.dtype.Storage() {
		return fmt.Errorf("%w: copy %s into %s", ErrDTypeMismatch, src.dtype, t.dtype)
	}
	t.Resize(src.shape)
	copy(t.f32, src.f32)
	copy(t.i32, src.i32)
	copy(t.i64, src.i64)
	copy(t.u8, src.u8)
	return nil
}

// String returns a short description, e.g. "float32[64 1 28 28]".
func (t *Tensor) String() string {
	return fmt.Sprintf("%s%v", t.dtype, []int(t.shape))
}

func grow[T any](s []T, n int) []T {
	if cap(s) >= n {
		s = s[:n]
		return s
	}
	return make([]T, n)
}
