package cpu

import (
	"fmt"

	"github.com/born-ml/lenet/internal/parallel"
)

// ConvParams describes a 2D convolution over an NCHW batch.
type ConvParams struct {
	N, C, H, W int // Input batch, channels, height, width
	M          int // Output channels
	KH, KW     int // Kernel size
	Stride     int
	Pad        int // Symmetric zero padding
}

// OutH returns the output height.
func (p ConvParams) OutH() int { return (p.H+2*p.Pad-p.KH)/p.Stride + 1 }

// OutW returns the output width.
func (p ConvParams) OutW() int { return (p.W+2*p.Pad-p.KW)/p.Stride + 1 }

// Validate checks that the params describe a non-empty output.
func (p ConvParams) Validate() error {
	if p.KH <= 0 || p.KW <= 0 {
		return fmt.Errorf("conv: invalid kernel %dx%d", p.KH, p.KW)
	}
	if p.Stride <= 0 {
		return fmt.Errorf("conv: invalid stride %d", p.Stride)
	}
	if p.Pad < 0 {
		return fmt.Errorf("conv: invalid pad %d", p.Pad)
	}
	if p.OutH() <= 0 || p.OutW() <= 0 {
		return fmt.Errorf("conv: kernel %dx%d too large for input %dx%d (pad=%d)",
			p.KH, p.KW, p.H, p.W, p.Pad)
	}
	return nil
}

func (p ConvParams) colRows() int { return p.C * p.KH * p.KW }
func (p ConvParams) colCols() int { return p.OutH() * p.OutW() }

// Conv2D computes Y = W * X + b using im2col per image.
//
// Shapes: x [N,C,H,W], w [M,C,KH,KW], b [M], y [N,M,OutH,OutW].
// The im2col buffer is laid out [C*KH*KW, OutH*OutW] so a single GEMM
// with the [M, C*KH*KW] weight matrix writes NCHW output directly.
func (cpu *CPUBackend) Conv2D(x, w, b, y []float32, p ConvParams) {
	k, cols := p.colRows(), p.colCols()
	inSize, outSize := p.C*p.H*p.W, p.M*cols

	cpu.forImages(p.N, func(start, end int) {
		col := make([]float32, k*cols)
		for n := start; n < end; n++ {
			im2col(col, x[n*inSize:(n+1)*inSize], p)
			yn := y[n*outSize : (n+1)*outSize]
			gemm(false, false, p.M, cols, k, 1, w, col, 0, yn)
			for m := 0; m < p.M; m++ {
				bias := b[m]
				row := yn[m*cols : (m+1)*cols]
				for i := range row {
					row[i] += bias
				}
			}
		}
	})
}

// forImages splits n images into chunks across workers.
func (cpu *CPUBackend) forImages(n int, f func(start, end int)) {
	parallel.ForRange(n, func(_, start, end int) { f(start, end) }, cpu.par)
}

// im2col unrolls one image into col[c*KH*KW + kh*KW + kw][oh*OutW + ow].
func im2col(col, img []float32, p ConvParams) {
	outH, outW := p.OutH(), p.OutW()
	idx := 0
	for c := 0; c < p.C; c++ {
		plane := img[c*p.H*p.W : (c+1)*p.H*p.W]
		for kh := 0; kh < p.KH; kh++ {
			for kw := 0; kw < p.KW; kw++ {
				for oh := 0; oh < outH; oh++ {
					h := oh*p.Stride - p.Pad + kh
					if h < 0 || h >= p.H {
						clear(col[idx : idx+outW])
						idx += outW
						continue
					}
					for ow := 0; ow < outW; ow++ {
						w := ow*p.Stride - p.Pad + kw
						if w >= 0 && w < p.W {
							col[idx] = plane[h*p.W+w]
						} else {
							col[idx] = 0
						}
						idx++
					}
				}
			}
		}
	}
}

// col2im accumulates columns back into one image gradient.
// img must be zeroed by the caller.
func col2im(img, col []float32, p ConvParams) {
	outH, outW := p.OutH(), p.OutW()
	idx := 0
	for c := 0; c < p.C; c++ {
		plane := img[c*p.H*p.W : (c+1)*p.H*p.W]
		for kh := 0; kh < p.KH; kh++ {
			for kw := 0; kw < p.KW; kw++ {
				for oh := 0; oh < outH; oh++ {
					h := oh*p.Stride - p.Pad + kh
					if h < 0 || h >= p.H {
						idx += outW
						continue
					}
					for ow := 0; ow < outW; ow++ {
						w := ow*p.Stride - p.Pad + kw
						if w >= 0 && w < p.W {
							plane[h*p.W+w] += col[idx]
						}
						idx++
					}
				}
			}
		}
	}
}
