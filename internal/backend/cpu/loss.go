package cpu

import (
	"fmt"
	"math"
)

// ProbFloor keeps log(p) finite for probabilities that underflow to zero.
const ProbFloor = 1e-20

// LabelCrossEntropy computes loss[i] = -log(max(x[i, label[i]], ProbFloor)).
// x is [rows, cols] of probabilities.
func (cpu *CPUBackend) LabelCrossEntropy(x []float32, labels []int32, loss []float32, rows, cols int) error {
	for i := 0; i < rows; i++ {
		l := int(labels[i])
		if l < 0 || l >= cols {
			return fmt.Errorf("label %d at row %d out of range [0, %d)", l, i, cols)
		}
		p := max(x[i*cols+l], ProbFloor)
		loss[i] = -float32(math.Log(float64(p)))
	}
	return nil
}

// LabelCrossEntropyBackward computes dx[i, label[i]] = -dloss[i] / max(p, ProbFloor),
// zero elsewhere.
func (cpu *CPUBackend) LabelCrossEntropyBackward(x []float32, labels []int32, dloss, dx []float32, rows, cols int) error {
	clear(dx[:rows*cols])
	for i := 0; i < rows; i++ {
		l := int(labels[i])
		if l < 0 || l >= cols {
			return fmt.Errorf("label %d at row %d out of range [0, %d)", l, i, cols)
		}
		p := max(x[i*cols+l], ProbFloor)
		dx[i*cols+l] = -dloss[i] / p
	}
	return nil
}

// Accuracy returns the fraction of rows whose arg-max column equals the
// label. Ties resolve to the lowest index.
func (cpu *CPUBackend) Accuracy(x []float32, labels []int32, rows, cols int) float32 {
	if rows == 0 {
		return 0
	}
	correct := 0
	for i := 0; i < rows; i++ {
		if ArgMax(x[i*cols:(i+1)*cols]) == int(labels[i]) {
			correct++
		}
	}
	return float32(correct) / float32(rows)
}

// ArgMax returns the index of the first maximum, or -1 for an empty slice.
func ArgMax(v []float32) int {
	best := -1
	for i, x := range v {
		if best < 0 || x > v[best] {
			best = i
		}
	}
	return best
}
