// Package parallel splits per-sample kernel work across goroutines.
package parallel

import (
	"runtime"
	"sync"

	"github.com/klauspost/cpuid/v2"
)

// Config controls parallel execution behavior.
type Config struct {
	Enabled      bool // Whether parallel execution is enabled.
	NumWorkers   int  // Number of worker goroutines to use.
	MinChunkSize int  // Minimum items per goroutine to avoid overhead.
}

// DefaultConfig sizes the pool by physical cores.
//
// Hyperthreads share FPUs, so the dense kernels gain little from them.
// When cpuid cannot tell, the logical CPU count is used.
func DefaultConfig() Config {
	n := cpuid.CPU.PhysicalCores
	if n <= 0 {
		n = runtime.NumCPU()
	}
	return WithWorkers(n)
}

// WithWorkers returns a config with a fixed worker count.
// Values below 2 disable parallelism.
func WithWorkers(n int) Config {
	return Config{
		Enabled:      n > 1,
		NumWorkers:   max(n, 1),
		MinChunkSize: 1, // Work items are whole images.
	}
}

// Sequential returns a config that never spawns goroutines.
func Sequential() Config {
	return Config{NumWorkers: 1, MinChunkSize: 1}
}

// Chunks returns the chunk size and count For and ForRange use for n items.
func (c Config) Chunks(n int) (size, count int) {
	if n <= 0 {
		return 0, 0
	}
	if !c.Enabled || c.NumWorkers <= 1 || n < 2*max(c.MinChunkSize, 1) {
		return n, 1
	}
	size = max((n+c.NumWorkers-1)/c.NumWorkers, c.MinChunkSize, 1)
	return size, (n + size - 1) / size
}

// For executes f(i) for i in [0, n) with optional parallelism.
// Falls back to sequential execution if parallelism is disabled or n is too small.
func For(n int, f func(i int), cfg Config) {
	ForRange(n, func(_, start, end int) {
		for i := start; i < end; i++ {
			f(i)
		}
	}, cfg)
}

// ForRange calls f once per chunk of [0, n). The chunk index lets callers
// keep per-chunk partial results (e.g., weight gradients) and merge them
// after ForRange returns.
func ForRange(n int, f func(chunk, start, end int), cfg Config) {
	size, count := cfg.Chunks(n)
	if count == 0 {
		return
	}
	if count == 1 {
		f(0, 0, n)
		return
	}

	var wg sync.WaitGroup
	for c := range count {
		start := c * size
		end := min(start+size, n)
		wg.Add(1)
		go func() {
			defer wg.Done()
			f(c, start, end)
		}()
	}
	wg.Wait()
}

// ForBatch optimized for batch*channels iteration pattern.
// Common in CNN operations like Conv2D.
func ForBatch(batch, channels int, f func(b, c int), cfg Config) {
	n := batch * channels
	For(n, func(k int) {
		f(k/channels, k%channels)
	}, cfg)
}
