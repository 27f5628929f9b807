// Package cpu implements the dense float32 kernels behind the LeNet operators.
//
// Kernels work on flat row-major slices in NCHW order. Callers validate
// shapes; kernels assume the slices are large enough for the given params.
// Work is split across images of a batch with the parallel package.
package cpu

import (
	"github.com/born-ml/lenet/internal/parallel"
)

// CPUBackend runs kernels on the host CPU.
type CPUBackend struct {
	par parallel.Config
}

// New creates a CPU backend with the default worker pool.
func New() *CPUBackend {
	return &CPUBackend{par: parallel.DefaultConfig()}
}

// NewWithConfig creates a CPU backend with an explicit worker configuration.
func NewWithConfig(cfg parallel.Config) *CPUBackend {
	return &CPUBackend{par: cfg}
}

// Name returns the backend name.
func (cpu *CPUBackend) Name() string {
	return "CPU"
}

// Parallel returns the worker configuration.
func (cpu *CPUBackend) Parallel() parallel.Config {
	return cpu.par
}
