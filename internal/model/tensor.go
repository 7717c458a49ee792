package model

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrEmptyInput is returned when a tensor would have no rows or columns.
	ErrEmptyInput = errors.New("model: empty input")

	// ErrShapeMismatch is returned when dimensions do not line up.
	ErrShapeMismatch = errors.New("model: shape mismatch")

	// ErrReleased is returned when a released tensor is used.
	ErrReleased = errors.New("model: tensor already released")
)

// Tensor is a row-major matrix with an explicit lifetime. Callers that
// create a Tensor own it and must Release it once done, typically with
// defer right after construction.
type Tensor struct {
	data *mat.Dense
}

// NewTensor2D copies rows into a new tensor. All rows must share a width.
func NewTensor2D(rows [][]float64) (*Tensor, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, ErrEmptyInput
	}
	cols := len(rows[0])
	data := make([]float64, 0, len(rows)*cols)
	for i, row := range rows {
		if len(row) != cols {
			return nil, fmt.Errorf("%w: row %d has %d values, want %d", ErrShapeMismatch, i, len(row), cols)
		}
		data = append(data, row...)
	}
	return &Tensor{data: mat.NewDense(len(rows), cols, data)}, nil
}

// NewTensor1D copies v into a tensor with a single row.
func NewTensor1D(v []float64) (*Tensor, error) {
	if len(v) == 0 {
		return nil, ErrEmptyInput
	}
	return &Tensor{data: mat.NewDense(1, len(v), append([]float64(nil), v...))}, nil
}

// FromDense wraps m without copying.
func FromDense(m *mat.Dense) *Tensor {
	return &Tensor{data: m}
}

// Dense exposes the underlying matrix.
func (t *Tensor) Dense() (*mat.Dense, error) {
	if t == nil || t.data == nil {
		return nil, ErrReleased
	}
	return t.data, nil
}

// Dims returns the tensor shape, or 0,0 once released.
func (t *Tensor) Dims() (rows, cols int) {
	if t == nil || t.data == nil {
		return 0, 0
	}
	return t.data.Dims()
}

// Row returns a copy of row i.
func (t *Tensor) Row(i int) ([]float64, error) {
	m, err := t.Dense()
	if err != nil {
		return nil, err
	}
	return mat.Row(nil, i, m), nil
}

// Release drops the backing storage. It is safe to call more than once.
func (t *Tensor) Release() {
	if t != nil {
		t.data = nil
	}
}

// Released reports whether Release has been called.
func (t *Tensor) Released() bool {
	return t == nil || t.data == nil
}

// Normalize min-max scales every value: (x - min) / (max - min).
// The result is a new tensor owned by the caller.
func Normalize(t *Tensor, min, max float64) (*Tensor, error) {
	if max == min {
		return nil, fmt.Errorf("model: normalize range is empty (min=max=%g)", min)
	}
	m, err := t.Dense()
	if err != nil {
		return nil, err
	}
	span := max - min
	out := mat.DenseCopyOf(m)
	out.Apply(func(_, _ int, v float64) float64 { return (v - min) / span }, out)
	return &Tensor{data: out}, nil
}

// OneHot encodes labels as rows with a single 1 at the label index.
func OneHot(labels []int, depth int) (*Tensor, error) {
	if len(labels) == 0 || depth <= 0 {
		return nil, ErrEmptyInput
	}
	out := mat.NewDense(len(labels), depth, nil)
	for i, label := range labels {
		if label < 0 || label >= depth {
			return nil, fmt.Errorf("%w: label %d at row %d outside [0,%d)", ErrShapeMismatch, label, i, depth)
		}
		out.Set(i, label, 1)
	}
	return &Tensor{data: out}, nil
}

// ArgMax returns the index of the largest value, preferring the first on
// ties, or -1 for an empty slice.
func ArgMax(v []float64) int {
	if len(v) == 0 {
		return -1
	}
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}

// ArgMaxRows applies ArgMax to every row of m.
func ArgMaxRows(m mat.Matrix) []int {
	r, _ := m.Dims()
	out := make([]int, r)
	for i := 0; i < r; i++ {
		out[i] = ArgMax(mat.Row(nil, i, m))
	}
	return out
}
