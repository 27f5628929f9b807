package tensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNew verifies zero-filled allocation per dtype.
func TestNew(t *testing.T) {
	tests := []struct {
		dtype DataType
		check func(*Tensor) int
	}{
		{Float, func(x *Tensor) int { return len(x.Float32()) }},
		{Int32, func(x *Tensor) int { return len(x.Int32()) }},
		{Int64, func(x *Tensor) int { return len(x.Int64()) }},
		{Uint8, func(x *Tensor) int { return len(x.Uint8()) }},
		{Byte, func(x *Tensor) int { return len(x.Uint8()) }},
	}
	for _, tt := range tests {
		t.Run(tt.dtype.String(), func(t *testing.T) {
			x, err := New(Shape{2, 3}, tt.dtype)
			require.NoError(t, err)
			assert.Equal(t, 6, tt.check(x))
			assert.Equal(t, tt.dtype, x.DType())
		})
	}
}

func TestNewRejectsBadInput(t *testing.T) {
	_, err := New(Shape{2, -1}, Float)
	require.Error(t, err)

	_, err = New(Shape{2}, Undefined)
	require.Error(t, err)

	// 2^32 * 2^32 wraps to zero in int.
	_, err = New(Shape{1 << 32, 1 << 32}, Float)
	require.ErrorIs(t, err, ErrShapeOverflow)
	_, err = FromFloat32(nil, Shape{1 << 32, 1 << 32})
	require.ErrorIs(t, err, ErrShapeOverflow)

	require.NoError(t, Shape{0, 1 << 32, 1 << 32}.Validate(), "a leading zero keeps the count at zero")
}

func TestScalarAndEmpty(t *testing.T) {
	s, err := New(Shape{}, Int64)
	require.NoError(t, err)
	assert.Equal(t, 1, s.NumElements())

	e, err := New(Shape{0, 784}, Float)
	require.NoError(t, err)
	assert.Equal(t, 0, e.NumElements())
}

// TestResizeKeepsBacking checks that shrinking reuses the buffer.
func TestResizeKeepsBacking(t *testing.T) {
	x, err := New(Shape{4, 5}, Float)
	require.NoError(t, err)
	x.Float32()[0] = 7

	x.Resize(Shape{2, 5})
	assert.Equal(t, Shape{2, 5}, x.Shape())
	assert.Len(t, x.Float32(), 10)
	assert.InDelta(t, 7.0, x.Float32()[0], 0)

	x.Resize(Shape{8, 5})
	assert.Len(t, x.Float32(), 40)
}

func TestReshape(t *testing.T) {
	x, err := FromFloat32([]float32{1, 2, 3, 4, 5, 6}, Shape{2, 3})
	require.NoError(t, err)

	require.NoError(t, x.Reshape(Shape{3, 2}))
	assert.Equal(t, Shape{3, 2}, x.Shape())
	require.Error(t, x.Reshape(Shape{4, 2}))
}

func TestFromSliceLengthMismatch(t *testing.T) {
	_, err := FromInt32([]int32{1, 2, 3}, Shape{2, 2})
	require.Error(t, err)
}

func TestCloneIsDeep(t *testing.T) {
	x, err := FromFloat32([]float32{1, 2}, Shape{2})
	require.NoError(t, err)

	c := x.Clone()
	c.Float32()[0] = 99
	assert.InDelta(t, 1.0, x.Float32()[0], 0)
	assert.True(t, c.Matches(Shape{2}, Float))
}

func TestCopyFrom(t *testing.T) {
	src, err := FromUint8([]uint8{1, 2, 3}, Shape{3})
	require.NoError(t, err)

	dst, err := New(Shape{1}, Byte)
	require.NoError(t, err)
	require.NoError(t, dst.CopyFrom(src))
	assert.Equal(t, []uint8{1, 2, 3}, dst.Uint8())

	f, err := New(Shape{3}, Float)
	require.NoError(t, err)
	require.ErrorIs(t, f.CopyFrom(src), ErrDTypeMismatch)
}

func TestShapeHelpers(t *testing.T) {
	s := Shape{64, 50, 4, 4}
	assert.Equal(t, 800, s.SizeFrom(1))
	assert.Equal(t, 64, s.SizeTo(1))
	assert.Equal(t, []int64{64, 50, 4, 4}, s.Int64())
	assert.Equal(t, s, ShapeFromInt64(s.Int64()))
	assert.Equal(t, "float32[64 50 4 4]", (&Tensor{shape: s, dtype: Float}).String())
}
