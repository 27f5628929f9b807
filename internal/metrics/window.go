// Package metrics aggregates per-step training measurements for logging.
package metrics

import "time"

// Window accumulates step stats between log lines.
type Window struct {
	samples  int
	steps    int
	elapsed  time.Duration
	accSum   float64
	lastLoss float64
	lastAcc  float64
}

// Record adds the measurements of steps training steps that together
// processed batchSize*steps samples in elapsed time.
func (w *Window) Record(batchSize, steps int, elapsed time.Duration, loss, accuracy float64) {
	w.samples += batchSize * steps
	w.steps += steps
	w.elapsed += elapsed
	w.accSum += accuracy * float64(steps)
	w.lastLoss = loss
	w.lastAcc = accuracy
}

// Steps returns the number of steps recorded since the last Snapshot.
func (w *Window) Steps() int { return w.steps }

// Snapshot returns aggregated metrics and resets the window.
func (w *Window) Snapshot() Snapshot {
	snap := Snapshot{
		Steps:        w.steps,
		LastLoss:     w.lastLoss,
		LastAccuracy: w.lastAcc,
	}
	if w.elapsed > 0 {
		snap.ImagesPerSec = float64(w.samples) / w.elapsed.Seconds()
	}
	if w.steps > 0 {
		snap.AvgStepMS = (w.elapsed.Seconds() * 1000) / float64(w.steps)
		snap.MeanAccuracy = w.accSum / float64(w.steps)
	}

	*w = Window{}
	return snap
}

// Snapshot represents loggable metrics.
type Snapshot struct {
	Steps        int
	ImagesPerSec float64
	AvgStepMS    float64
	LastLoss     float64
	LastAccuracy float64
	MeanAccuracy float64
}

// Mean returns the arithmetic mean of xs, or 0 for an empty slice.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
