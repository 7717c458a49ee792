package model

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Loss scores predictions against targets and produces the gradient
// w.r.t. the predictions.
type Loss interface {
	Forward(predicted, target *mat.Dense) float64
	Backward(predicted, target *mat.Dense) *mat.Dense
}

// CategoricalCrossEntropy is the batch mean of -sum(y * log(p)) with p
// clipped to [Epsilon, 1-Epsilon].
type CategoricalCrossEntropy struct {
	Epsilon float64
}

// NewCategoricalCrossEntropy returns the loss with the default clip bound.
func NewCategoricalCrossEntropy() *CategoricalCrossEntropy {
	return &CategoricalCrossEntropy{Epsilon: 1e-7}
}

func (ce *CategoricalCrossEntropy) clip(p float64) float64 {
	return math.Min(math.Max(p, ce.Epsilon), 1-ce.Epsilon)
}

// Forward returns the mean loss over the rows of predicted.
func (ce *CategoricalCrossEntropy) Forward(predicted, target *mat.Dense) float64 {
	r, c := predicted.Dims()
	if r == 0 {
		return 0
	}
	total := 0.0
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if y := target.At(i, j); y != 0 {
				total -= y * math.Log(ce.clip(predicted.At(i, j)))
			}
		}
	}
	return total / float64(r)
}

// Backward returns dL/dp = -y / (n * clip(p)).
func (ce *CategoricalCrossEntropy) Backward(predicted, target *mat.Dense) *mat.Dense {
	r, c := predicted.Dims()
	grad := mat.NewDense(r, c, nil)
	n := float64(r)
	grad.Apply(func(i, j int, _ float64) float64 {
		y := target.At(i, j)
		if y == 0 {
			return 0
		}
		return -y / (n * ce.clip(predicted.At(i, j)))
	}, grad)
	return grad
}
