package tensor

import (
	"errors"
	"fmt"
	"math"
)

// Shape represents the dimensions of a tensor.
type Shape []int

// NumElements returns the total number of elements in the tensor.
func (s Shape) NumElements() int {
	if len(s) == 0 {
		return 1 // Scalar has 1 element
	}
	n := 1
	for _, dim := range s {
		n *= dim
	}
	return n
}

// ErrShapeOverflow is returned when the element count does not fit in an int.
var ErrShapeOverflow = errors.New("shape element count overflows")

// Validate checks that no dimension is negative and that the element
// count is representable.
//
// Zero-sized dimensions are allowed; an empty batch is a valid tensor.
func (s Shape) Validate() error {
	n := 1
	for i, dim := range s {
		if dim < 0 {
			return fmt.Errorf("invalid dimension at index %d: %d (must be >= 0)", i, dim)
		}
		if n != 0 && dim > math.MaxInt/n {
			return fmt.Errorf("%w: %v", ErrShapeOverflow, []int(s))
		}
		n *= dim
	}
	return nil
}

// Equal checks if two shapes are equal.
func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy of the shape.
func (s Shape) Clone() Shape {
	clone := make(Shape, len(s))
	copy(clone, s)
	return clone
}

// SizeFrom returns the product of dimensions from axis to the end.
func (s Shape) SizeFrom(axis int) int {
	n := 1
	for _, dim := range s[axis:] {
		n *= dim
	}
	return n
}

// SizeTo returns the product of dimensions before axis.
func (s Shape) SizeTo(axis int) int {
	n := 1
	for _, dim := range s[:axis] {
		n *= dim
	}
	return n
}

// ShapeFromInt64 converts wire dimensions to a Shape.
func ShapeFromInt64(dims []int64) Shape {
	s := make(Shape, len(dims))
	for i, d := range dims {
		s[i] = int(d)
	}
	return s
}

// Int64 converts the shape to wire dimensions.
func (s Shape) Int64() []int64 {
	dims := make([]int64, len(s))
	for i, d := range s {
		dims[i] = int64(d)
	}
	return dims
}
