package cpu

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/born-ml/lenet/internal/parallel"
)

// float32SliceEqual checks two slices are equal within epsilon.
func float32SliceEqual(t *testing.T, want, got []float32) {
	t.Helper()
	assert.Len(t, got, len(want))
	for i := range want {
		assert.InDelta(t, want[i], got[i], 1e-5, "index %d", i)
	}
}

func TestCPUBackend_New(t *testing.T) {
	backend := New()
	assert.Equal(t, "CPU", backend.Name())
	assert.Positive(t, backend.Parallel().NumWorkers)

	seq := NewWithConfig(parallel.Sequential())
	assert.False(t, seq.Parallel().Enabled)
}

func TestGemm(t *testing.T) {
	// a: 2x3, b: 3x2
	a := []float32{1, 2, 3, 4, 5, 6}
	b := []float32{7, 8, 9, 10, 11, 12}

	c := make([]float32, 4)
	gemm(false, false, 2, 2, 3, 1, a, b, 0, c)
	float32SliceEqual(t, []float32{58, 64, 139, 154}, c)

	// beta=1 accumulates, alpha scales the product.
	gemm(false, false, 2, 2, 3, 0.5, a, b, 1, c)
	float32SliceEqual(t, []float32{87, 96, 208.5, 231}, c)

	// a^T (a stored 3x2) times b^T (b stored 2x3).
	at := []float32{1, 4, 2, 5, 3, 6}
	bt := []float32{7, 9, 11, 8, 10, 12}
	c2 := make([]float32, 4)
	gemm(true, true, 2, 2, 3, 1, at, bt, 0, c2)
	float32SliceEqual(t, []float32{58, 64, 139, 154}, c2)

	// beta scales an existing result.
	c3 := []float32{1, 1, 1, 1}
	gemm(false, true, 2, 2, 3, 1, a, bt, 2, c3)
	float32SliceEqual(t, []float32{60, 66, 141, 156}, c3)
}

func TestGemmClearsNaN(t *testing.T) {
	nan := float32(0)
	nan /= nan
	c := []float32{nan, nan}
	gemm(false, false, 1, 2, 1, 1, []float32{2}, []float32{3, 4}, 0, c)
	float32SliceEqual(t, []float32{6, 8}, c)
}
