package model

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Activation names a layer output function.
type Activation string

const (
	Linear  Activation = "linear"
	ReLU    Activation = "relu"
	Softmax Activation = "softmax"
)

func (a Activation) validate() error {
	switch a {
	case Linear, ReLU, Softmax:
		return nil
	default:
		return fmt.Errorf("model: unknown activation %q", a)
	}
}

// apply returns a new matrix holding a(z).
func (a Activation) apply(z *mat.Dense) *mat.Dense {
	out := mat.DenseCopyOf(z)
	switch a {
	case ReLU:
		out.Apply(func(_, _ int, v float64) float64 { return math.Max(v, 0) }, out)
	case Softmax:
		r, _ := out.Dims()
		for i := 0; i < r; i++ {
			softmaxInPlace(out.RawRowView(i))
		}
	}
	return out
}

// backward converts the gradient w.r.t. the activation output into the
// gradient w.r.t. its input. z is the pre-activation, y = a(z).
func (a Activation) backward(grad, z, y *mat.Dense) *mat.Dense {
	out := mat.DenseCopyOf(grad)
	switch a {
	case ReLU:
		out.Apply(func(i, j int, g float64) float64 {
			if z.At(i, j) > 0 {
				return g
			}
			return 0
		}, out)
	case Softmax:
		r, _ := out.Dims()
		for i := 0; i < r; i++ {
			g := out.RawRowView(i)
			p := y.RawRowView(i)
			dot := 0.0
			for j := range g {
				dot += g[j] * p[j]
			}
			for j := range g {
				g[j] = p[j] * (g[j] - dot)
			}
		}
	}
	return out
}

func softmaxInPlace(logits []float64) {
	maxLogit := logits[0]
	for _, v := range logits {
		if v > maxLogit {
			maxLogit = v
		}
	}
	sum := 0.0
	for i, v := range logits {
		exp := math.Exp(v - maxLogit)
		logits[i] = exp
		sum += exp
	}
	inv := 1.0 / sum
	for i := range logits {
		logits[i] *= inv
	}
}
