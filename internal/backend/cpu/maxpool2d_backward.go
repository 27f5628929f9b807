package cpu

import "github.com/born-ml/lenet/internal/parallel"

// MaxPool2DBackward routes each output gradient to the input position that
// produced the window maximum. The argmax is recomputed from x; ties go to
// the first position in row-major order, matching the forward pass.
//
// dx is overwritten.
func (cpu *CPUBackend) MaxPool2DBackward(x, dy, dx []float32, p PoolParams) {
	outH, outW := p.OutH(), p.OutW()
	parallel.ForBatch(p.N, p.C, func(n, c int) {
		plane := (n*p.C + c)
		in := x[plane*p.H*p.W : (plane+1)*p.H*p.W]
		grad := dy[plane*outH*outW : (plane+1)*outH*outW]
		out := dx[plane*p.H*p.W : (plane+1)*p.H*p.W]
		clear(out)
		for oh := 0; oh < outH; oh++ {
			for ow := 0; ow < outW; ow++ {
				out[argmaxWindow(in, p, oh, ow)] += grad[oh*outW+ow]
			}
		}
	}, cpu.par)
}
