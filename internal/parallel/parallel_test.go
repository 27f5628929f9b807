package parallel

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFor(t *testing.T) {
	cfg := WithWorkers(4)

	var counter int64
	n := 1000

	For(n, func(_ int) {
		atomic.AddInt64(&counter, 1)
	}, cfg)

	assert.Equal(t, int64(n), counter)
}

func TestForBatch(t *testing.T) {
	cfg := WithWorkers(3)

	batch, channels := 4, 8
	results := make([][]bool, batch)
	for b := range results {
		results[b] = make([]bool, channels)
	}

	ForBatch(batch, channels, func(b, c int) {
		results[b][c] = true
	}, cfg)

	for b := 0; b < batch; b++ {
		for c := 0; c < channels; c++ {
			assert.True(t, results[b][c], "missing result at [%d][%d]", b, c)
		}
	}
}

func TestFor_Sequential(t *testing.T) {
	var counter int64
	For(100, func(_ int) {
		atomic.AddInt64(&counter, 1)
	}, Sequential())

	assert.Equal(t, int64(100), counter)
}

// TestForRange_CoversEveryIndexOnce checks chunk boundaries and indices.
func TestForRange_CoversEveryIndexOnce(t *testing.T) {
	for _, n := range []int{0, 1, 7, 64, 100} {
		cfg := WithWorkers(4)
		size, count := cfg.Chunks(n)

		seen := make([]int32, n)
		var mu sync.Mutex
		chunks := map[int]bool{}
		ForRange(n, func(chunk, start, end int) {
			mu.Lock()
			chunks[chunk] = true
			mu.Unlock()
			for i := start; i < end; i++ {
				atomic.AddInt32(&seen[i], 1)
			}
		}, cfg)

		for i, v := range seen {
			require.Equal(t, int32(1), v, "n=%d index %d", n, i)
		}
		assert.Len(t, chunks, count, "n=%d", n)
		if n > 0 {
			assert.Positive(t, size)
			assert.LessOrEqual(t, count, 4)
		}
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.GreaterOrEqual(t, cfg.NumWorkers, 1)
	assert.Equal(t, cfg.NumWorkers > 1, cfg.Enabled)
}

func BenchmarkFor(b *testing.B) {
	cfg := DefaultConfig()
	n := 10000

	b.Run("parallel", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			var sum int64
			For(n, func(i int) {
				atomic.AddInt64(&sum, int64(i))
			}, cfg)
		}
	})

	b.Run("sequential", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			var sum int64
			For(n, func(i int) {
				atomic.AddInt64(&sum, int64(i))
			}, Sequential())
		}
	})
}
