package cpu

import (
	"fmt"
	"math"

	"github.com/born-ml/lenet/internal/parallel"
)

// PoolParams describes 2D max pooling over an NCHW batch.
// Windows never extend past the input; trailing rows that do not fill a
// window are dropped.
type PoolParams struct {
	N, C, H, W int
	Kernel     int
	Stride     int
}

// OutH returns the output height.
func (p PoolParams) OutH() int { return (p.H-p.Kernel)/p.Stride + 1 }

// OutW returns the output width.
func (p PoolParams) OutW() int { return (p.W-p.Kernel)/p.Stride + 1 }

// Validate checks kernel and stride against the input.
func (p PoolParams) Validate() error {
	if p.Kernel <= 0 {
		return fmt.Errorf("maxpool: invalid kernel size %d", p.Kernel)
	}
	if p.Stride <= 0 {
		return fmt.Errorf("maxpool: invalid stride %d", p.Stride)
	}
	if p.Kernel > p.H || p.Kernel > p.W {
		return fmt.Errorf("maxpool: kernel size %d too large for input %dx%d", p.Kernel, p.H, p.W)
	}
	return nil
}

// MaxPool2D takes the maximum of each window.
//
//	Input: [[1,2,3,4],    Output (2x2, stride 2): [[6,8],
//	        [5,6,7,8],                             [14,16]]
//	        [9,10,11,12],
//	        [13,14,15,16]]
func (cpu *CPUBackend) MaxPool2D(x, y []float32, p PoolParams) {
	outH, outW := p.OutH(), p.OutW()
	parallel.ForBatch(p.N, p.C, func(n, c int) {
		plane := (n*p.C + c)
		in := x[plane*p.H*p.W : (plane+1)*p.H*p.W]
		out := y[plane*outH*outW : (plane+1)*outH*outW]
		for oh := 0; oh < outH; oh++ {
			for ow := 0; ow < outW; ow++ {
				out[oh*outW+ow] = in[argmaxWindow(in, p, oh, ow)]
			}
		}
	}, cpu.par)
}

// argmaxWindow returns the flat index of the first maximum in a window.
func argmaxWindow(plane []float32, p PoolParams, oh, ow int) int {
	best := -1
	bestVal := float32(math.Inf(-1))
	h0, w0 := oh*p.Stride, ow*p.Stride
	for kh := 0; kh < p.Kernel; kh++ {
		row := (h0 + kh) * p.W
		for kw := 0; kw < p.Kernel; kw++ {
			idx := row + w0 + kw
			if best < 0 || plane[idx] > bestVal {
				best, bestVal = idx, plane[idx]
			}
		}
	}
	return best
}
