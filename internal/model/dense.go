package model

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Dense is a fully connected layer: y = a(x·W + b).
type Dense struct {
	InputSize  int
	Units      int
	Activation Activation

	Weights *mat.Dense // InputSize x Units
	Bias    *mat.VecDense

	gradW *mat.Dense
	gradB *mat.VecDense

	// forward cache for the last training batch
	input  *mat.Dense
	preact *mat.Dense
	output *mat.Dense
}

// newDense builds a layer with Glorot-uniform weights and zero bias.
func newDense(inputSize, units int, act Activation, rng *rand.Rand) *Dense {
	limit := math.Sqrt(6 / float64(inputSize+units))
	weights := make([]float64, inputSize*units)
	for i := range weights {
		weights[i] = (rng.Float64()*2 - 1) * limit
	}
	return &Dense{
		InputSize:  inputSize,
		Units:      units,
		Activation: act,
		Weights:    mat.NewDense(inputSize, units, weights),
		Bias:       mat.NewVecDense(units, nil),
		gradW:      mat.NewDense(inputSize, units, nil),
		gradB:      mat.NewVecDense(units, nil),
	}
}

// Forward computes the layer output for x, one sample per row, and keeps
// what Backward needs.
func (d *Dense) Forward(x *mat.Dense) *mat.Dense {
	z := d.affine(x)
	out := d.Activation.apply(z)
	d.input, d.preact, d.output = x, z, out
	return out
}

// Backward takes the gradient w.r.t. the last Forward output, stores the
// parameter gradients and returns the gradient w.r.t. the layer input.
// The input gradient is skipped (nil) when needInput is false.
func (d *Dense) Backward(grad *mat.Dense, needInput bool) *mat.Dense {
	dz := d.Activation.backward(grad, d.preact, d.output)

	d.gradW.Mul(d.input.T(), dz)
	r, _ := dz.Dims()
	gb := d.gradB.RawVector().Data
	for j := range gb {
		gb[j] = 0
	}
	for i := 0; i < r; i++ {
		for j, v := range dz.RawRowView(i) {
			gb[j] += v
		}
	}

	if !needInput {
		return nil
	}
	dx := mat.NewDense(r, d.InputSize, nil)
	dx.Mul(dz, d.Weights.T())
	return dx
}

// params pairs every trainable slice with its gradient.
func (d *Dense) params() []Param {
	return []Param{
		{Value: d.Weights.RawMatrix().Data, Grad: d.gradW.RawMatrix().Data},
		{Value: d.Bias.RawVector().Data, Grad: d.gradB.RawVector().Data},
	}
}

// infer runs the layer without touching the training cache.
func (d *Dense) infer(x *mat.Dense) *mat.Dense {
	return d.Activation.apply(d.affine(x))
}

func (d *Dense) affine(x *mat.Dense) *mat.Dense {
	r, _ := x.Dims()
	z := mat.NewDense(r, d.Units, nil)
	z.Mul(x, d.Weights)
	bias := d.Bias.RawVector().Data
	for i := 0; i < r; i++ {
		row := z.RawRowView(i)
		for j := range row {
			row[j] += bias[j]
		}
	}
	return z
}

func (d *Dense) clearCache() {
	d.input, d.preact, d.output = nil, nil, nil
}
