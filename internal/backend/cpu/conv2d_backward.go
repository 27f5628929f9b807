package cpu

import "github.com/born-ml/lenet/internal/parallel"

// Conv2DBackward computes convolution gradients.
//
// Shapes: x [N,C,H,W], w [M,C,KH,KW], dy [N,M,OutH,OutW],
// dw [M,C,KH,KW], db [M], dx [N,C,H,W]. dx may be nil when the input
// needs no gradient (e.g., the data blob). dw and db are overwritten.
//
// Each worker accumulates into its own dw/db partials, which are summed
// in chunk order afterwards so results do not depend on scheduling.
func (cpu *CPUBackend) Conv2DBackward(x, w, dy, dw, db, dx []float32, p ConvParams) {
	k, cols := p.colRows(), p.colCols()
	inSize, outSize := p.C*p.H*p.W, p.M*cols

	_, chunks := cpu.par.Chunks(p.N)
	partW := make([][]float32, chunks)
	partB := make([][]float32, chunks)

	parallel.ForRange(p.N, func(chunk, start, end int) {
		col := make([]float32, k*cols)
		var dcol []float32
		if dx != nil {
			dcol = make([]float32, k*cols)
		}
		pw := make([]float32, len(dw))
		pb := make([]float32, len(db))

		for n := start; n < end; n++ {
			dyn := dy[n*outSize : (n+1)*outSize]
			im2col(col, x[n*inSize:(n+1)*inSize], p)

			// dW[M,K] += dY[M,cols] * col[K,cols]^T
			gemm(false, true, p.M, k, cols, 1, dyn, col, 1, pw)
			for m := 0; m < p.M; m++ {
				var sum float32
				for _, v := range dyn[m*cols : (m+1)*cols] {
					sum += v
				}
				pb[m] += sum
			}

			if dx != nil {
				// dcol[K,cols] = W[M,K]^T * dY[M,cols]
				gemm(true, false, k, cols, p.M, 1, w, dyn, 0, dcol)
				dxn := dx[n*inSize : (n+1)*inSize]
				clear(dxn)
				col2im(dxn, dcol, p)
			}
		}
		partW[chunk] = pw
		partB[chunk] = pb
	}, cpu.par)

	clear(dw)
	clear(db)
	for c := range partW {
		for i, v := range partW[c] {
			dw[i] += v
		}
		for i, v := range partB[c] {
			db[i] += v
		}
	}
}
