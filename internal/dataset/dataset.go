package dataset

import (
	"errors"
	"fmt"
	"math/rand"
)

// ErrMisaligned indicates the feature and label sequences disagree.
var ErrMisaligned = errors.New("dataset: features and labels are misaligned")

// Sample is one labelled feature vector.
type Sample struct {
	Features []float64
	Label    int
}

// Dataset holds features and labels as parallel sequences; index i of both
// refers to the same image.
type Dataset struct {
	Features [][]float64
	Labels   []int
}

// Len returns the number of samples.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Labels)
}

// Append adds a sample to the end of both sequences.
func (d *Dataset) Append(s Sample) {
	d.Features = append(d.Features, s.Features)
	d.Labels = append(d.Labels, s.Label)
}

// At returns the sample at index i.
func (d *Dataset) At(i int) Sample {
	return Sample{Features: d.Features[i], Label: d.Labels[i]}
}

// Shuffle applies one random permutation to features and labels together.
func (d *Dataset) Shuffle(rng *rand.Rand) {
	rng.Shuffle(len(d.Labels), func(i, j int) {
		d.Features[i], d.Features[j] = d.Features[j], d.Features[i]
		d.Labels[i], d.Labels[j] = d.Labels[j], d.Labels[i]
	})
}

// Validate checks that the sequences are aligned, every feature vector has
// the same width and every label is a known class.
func (d *Dataset) Validate() error {
	if len(d.Features) != len(d.Labels) {
		return fmt.Errorf("%w: %d features, %d labels", ErrMisaligned, len(d.Features), len(d.Labels))
	}
	width := -1
	for i, f := range d.Features {
		if width < 0 {
			width = len(f)
		}
		if len(f) != width {
			return fmt.Errorf("%w: sample %d has %d features, want %d", ErrMisaligned, i, len(f), width)
		}
	}
	for i, label := range d.Labels {
		if label < 0 || label >= NumClasses {
			return fmt.Errorf("dataset: sample %d has label %d outside [0,%d)", i, label, NumClasses)
		}
	}
	return nil
}

// ClassCounts returns the number of samples per class.
func (d *Dataset) ClassCounts() [NumClasses]int {
	var counts [NumClasses]int
	for _, label := range d.Labels {
		if label >= 0 && label < NumClasses {
			counts[label]++
		}
	}
	return counts
}

// Summary renders a one line description suitable for logging.
func (d *Dataset) Summary() string {
	width := 0
	if len(d.Features) > 0 {
		width = len(d.Features[0])
	}
	counts := d.ClassCounts()
	return fmt.Sprintf("samples=%d features=%d not_passport=%d passport=%d",
		d.Len(), width, counts[LabelNotPassport], counts[LabelPassport])
}
