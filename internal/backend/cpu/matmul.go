package cpu

// gemm computes C = alpha*op(A)*op(B) + beta*C for row-major matrices,
// where op(A) is [m,k], op(B) is [k,n] and C is [m,n].
//
// Naive loops ordered for sequential access of the innermost operand.
func gemm(transA, transB bool, m, n, k int, alpha float32, a, b []float32, beta float32, c []float32) {
	switch beta {
	case 1:
	case 0:
		clear(c[:m*n])
	default:
		for i := range c[:m*n] {
			c[i] *= beta
		}
	}
	switch {
	case !transA && !transB:
		// A[m,k], B[k,n]
		for i := 0; i < m; i++ {
			ci := c[i*n : i*n+n]
			for p := 0; p < k; p++ {
				av := alpha * a[i*k+p]
				if av == 0 {
					continue
				}
				bp := b[p*n : p*n+n]
				for j := range ci {
					ci[j] += av * bp[j]
				}
			}
		}
	case !transA && transB:
		// A[m,k], B[n,k]
		for i := 0; i < m; i++ {
			ai := a[i*k : i*k+k]
			for j := 0; j < n; j++ {
				bj := b[j*k : j*k+k]
				var sum float32
				for p := range ai {
					sum += ai[p] * bj[p]
				}
				c[i*n+j] += alpha * sum
			}
		}
	case transA && !transB:
		// A[k,m], B[k,n]
		for p := 0; p < k; p++ {
			bp := b[p*n : p*n+n]
			for i := 0; i < m; i++ {
				av := alpha * a[p*m+i]
				if av == 0 {
					continue
				}
				ci := c[i*n : i*n+n]
				for j := range ci {
					ci[j] += av * bp[j]
				}
			}
		}
	default:
		// A[k,m], B[n,k]
		for i := 0; i < m; i++ {
			for j := 0; j < n; j++ {
				var sum float32
				for p := 0; p < k; p++ {
					sum += a[p*m+i] * b[j*k+p]
				}
				c[i*n+j] += alpha * sum
			}
		}
	}
}
