package metrics

import (
	"fmt"
	"strings"
	"time"
)

// Window accumulates per-batch results across one epoch.
type Window struct {
	samples int
	correct int
	lossSum float64
	compute time.Duration
	steps   int
}

// Record adds one batch: its size, how many predictions matched the
// target, the time spent and the mean batch loss.
func (w *Window) Record(batchSize, correct int, computeTime time.Duration, loss float64) {
	w.samples += batchSize
	w.correct += correct
	w.lossSum += loss * float64(batchSize)
	w.compute += computeTime
	w.steps++
}

// Snapshot returns sample-weighted aggregates and resets the window.
func (w *Window) Snapshot() Snapshot {
	snap := Snapshot{Steps: w.steps, Samples: w.samples}
	if w.samples > 0 {
		snap.Loss = w.lossSum / float64(w.samples)
		snap.Accuracy = float64(w.correct) / float64(w.samples)
	}
	if w.compute > 0 {
		snap.ImagesPerSec = float64(w.samples) / w.compute.Seconds()
	}
	if w.steps > 0 {
		snap.AvgComputeMS = (w.compute.Seconds() * 1000) / float64(w.steps)
	}

	*w = Window{}
	return snap
}

// Snapshot represents loggable metrics.
type Snapshot struct {
	Steps        int
	Samples      int
	Loss         float64
	Accuracy     float64
	ImagesPerSec float64
	AvgComputeMS float64
}

// EpochLogs is the record emitted once per completed training epoch.
type EpochLogs struct {
	Loss          float64
	Acc           float64
	ValLoss       float64
	ValAcc        float64
	HasValidation bool
	Duration      time.Duration
	ImagesPerSec  float64
	Steps         int
	ComputeMS     float64
}

// String renders the logs as key=value pairs.
func (l EpochLogs) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "loss=%.4f acc=%.4f", l.Loss, l.Acc)
	if l.HasValidation {
		fmt.Fprintf(&b, " val_loss=%.4f val_acc=%.4f", l.ValLoss, l.ValAcc)
	}
	fmt.Fprintf(&b, " steps=%d compute_ms=%.2f images_per_sec=%.1f elapsed=%s",
		l.Steps, l.ComputeMS, l.ImagesPerSec, l.Duration.Round(time.Millisecond))
	return b.String()
}

// Map returns the metric values keyed by their conventional names.
func (l EpochLogs) Map() map[string]float64 {
	m := map[string]float64{"loss": l.Loss, "acc": l.Acc}
	if l.HasValidation {
		m["val_loss"] = l.ValLoss
		m["val_acc"] = l.ValAcc
	}
	return m
}

// Accuracy returns the fraction of positions where predicted equals target.
func Accuracy(predicted, target []int) float64 {
	if len(predicted) == 0 || len(predicted) != len(target) {
		return 0
	}
	return float64(Correct(predicted, target)) / float64(len(predicted))
}

// Correct counts the positions where predicted equals target.
func Correct(predicted, target []int) int {
	n := 0
	for i := range predicted {
		if i < len(target) && predicted[i] == target[i] {
			n++
		}
	}
	return n
}
