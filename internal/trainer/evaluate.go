package trainer

import (
	"fmt"
	"math/rand"

	"passport-classifier/internal/dataset"
	"passport-classifier/internal/model"
)

// Prediction is the outcome of classifying one sample.
type Prediction struct {
	Index         int
	Probabilities []float64
	Class         int
	Label         string
}

// Evaluate classifies one sample drawn uniformly from the whole in-memory
// dataset. Training samples are eligible, so this is a smoke test rather
// than a held-out score.
func Evaluate(rng *rand.Rand, ds *dataset.Dataset, p model.Predictor) (Prediction, error) {
	if ds.Len() == 0 {
		return Prediction{}, fmt.Errorf("trainer: evaluate: %w", model.ErrEmptyInput)
	}
	idx := rng.Intn(ds.Len())

	raw, err := model.NewTensor1D(ds.At(idx).Features)
	if err != nil {
		return Prediction{}, err
	}
	defer raw.Release()
	input, err := model.Normalize(raw, 0, 1)
	if err != nil {
		return Prediction{}, err
	}
	defer input.Release()

	out, err := p.Predict(input)
	if err != nil {
		return Prediction{}, fmt.Errorf("trainer: predict: %w", err)
	}
	defer out.Release()
	probs, err := out.Row(0)
	if err != nil {
		return Prediction{}, err
	}

	class := model.ArgMax(probs)
	if class < 0 || class >= len(dataset.ClassNames) {
		return Prediction{}, fmt.Errorf("trainer: predicted class %d has no label", class)
	}
	return Prediction{
		Index:         idx,
		Probabilities: probs,
		Class:         class,
		Label:         dataset.ClassNames[class],
	}, nil
}
