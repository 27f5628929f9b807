package cpu

import (
	"math"
)

// Relu computes y = max(x, 0). x and y may alias.
func (cpu *CPUBackend) Relu(x, y []float32) {
	for i, v := range x {
		if v > 0 {
			y[i] = v
		} else {
			y[i] = 0
		}
	}
}

// ReluBackward computes dx = dy where the forward output was positive.
func (cpu *CPUBackend) ReluBackward(y, dy, dx []float32) {
	for i, v := range y {
		if v > 0 {
			dx[i] = dy[i]
		} else {
			dx[i] = 0
		}
	}
}

// Softmax normalizes each row of x [rows, cols] into y.
// The row maximum is subtracted before exponentiation.
func (cpu *CPUBackend) Softmax(x, y []float32, rows, cols int) {
	for r := 0; r < rows; r++ {
		in := x[r*cols : (r+1)*cols]
		out := y[r*cols : (r+1)*cols]

		maxVal := float32(math.Inf(-1))
		for _, v := range in {
			if v > maxVal {
				maxVal = v
			}
		}
		var sum float32
		for i, v := range in {
			e := float32(math.Exp(float64(v - maxVal)))
			out[i] = e
			sum += e
		}
		inv := 1 / sum
		for i := range out {
			out[i] *= inv
		}
	}
}

// SoftmaxBackward computes dx = y * (dy - sum(dy * y)) per row.
func (cpu *CPUBackend) SoftmaxBackward(y, dy, dx []float32, rows, cols int) {
	for r := 0; r < rows; r++ {
		yr := y[r*cols : (r+1)*cols]
		dyr := dy[r*cols : (r+1)*cols]
		dxr := dx[r*cols : (r+1)*cols]

		var dot float32
		for i := range yr {
			dot += yr[i] * dyr[i]
		}
		for i := range yr {
			dxr[i] = yr[i] * (dyr[i] - dot)
		}
	}
}
