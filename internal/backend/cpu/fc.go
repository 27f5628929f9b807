package cpu

// FCParams describes a fully connected layer: Y[N,M] = X[N,K] * W[M,K]^T + b[M].
type FCParams struct {
	N, K, M int
}

// FC computes the forward pass.
func (cpu *CPUBackend) FC(x, w, b, y []float32, p FCParams) {
	cpu.forImages(p.N, func(start, end int) {
		rows := end - start
		yc := y[start*p.M : end*p.M]
		gemm(false, true, rows, p.M, p.K, 1, x[start*p.K:end*p.K], w, 0, yc)
		for i := 0; i < rows; i++ {
			row := yc[i*p.M : (i+1)*p.M]
			for j := range row {
				row[j] += b[j]
			}
		}
	})
}

// FCBackward computes dW = dY^T X, db = sum over rows of dY and, when dx is
// non-nil, dX = dY W. dw, db and dx are overwritten.
func (cpu *CPUBackend) FCBackward(x, w, dy, dw, db, dx []float32, p FCParams) {
	gemm(true, false, p.M, p.K, p.N, 1, dy, x, 0, dw)

	clear(db)
	for n := 0; n < p.N; n++ {
		row := dy[n*p.M : (n+1)*p.M]
		for j, v := range row {
			db[j] += v
		}
	}

	if dx != nil {
		cpu.forImages(p.N, func(start, end int) {
			gemm(false, false, end-start, p.K, p.M, 1, dy[start*p.M:end*p.M], w, 0, dx[start*p.K:end*p.K])
		})
	}
}
