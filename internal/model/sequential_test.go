package model

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"passport-classifier/internal/metrics"
)

func compiled(t *testing.T, s *Sequential, lr float64) *Sequential {
	t.Helper()
	require.NoError(t, s.Compile(CompileOptions{
		Optimizer:    "adam",
		Loss:         "categoricalCrossentropy",
		Metrics:      []string{"accuracy"},
		LearningRate: lr,
	}))
	return s
}

// separable returns n rows of width 4 whose label is decided by which half
// of the row is bright.
func separable(n int, seed int64) ([][]float64, []int) {
	rng := rand.New(rand.NewSource(seed))
	rows := make([][]float64, n)
	labels := make([]int, n)
	for i := range rows {
		label := i % 2
		hi, lo := 0.85+rng.Float64()*0.1, 0.05+rng.Float64()*0.1
		if label == 0 {
			rows[i] = []float64{hi, hi, lo, lo}
		} else {
			rows[i] = []float64{lo, lo, hi, hi}
		}
		labels[i] = label
	}
	return rows, labels
}

func TestTrainStepReducesLoss(t *testing.T) {
	s := NewSequential(1)
	require.NoError(t, s.Add(DenseConfig{InputShape: 4, Units: 3, Activation: ReLU}))
	require.NoError(t, s.Add(DenseConfig{Units: 2, Activation: Softmax}))
	compiled(t, s, 0.05)

	batch := Batch{
		Inputs:  mat.NewDense(2, 4, []float64{0.1, 0.2, 0.3, 0.4, 0.4, 0.3, 0.2, 0.1}),
		Targets: mat.NewDense(2, 2, []float64{1, 0, 0, 1}),
	}
	loss1, _ := s.TrainStep(batch)
	loss2, _ := s.TrainStep(batch)
	require.Less(t, loss2, loss1)
}

func TestGradientsMatchFiniteDifferences(t *testing.T) {
	s, err := BuildClassifier(3, 4, 2, 7)
	require.NoError(t, err)
	compiled(t, s, 0)

	x := mat.NewDense(3, 3, []float64{0.2, 0.7, 0.1, 0.9, 0.3, 0.5, 0.4, 0.4, 0.8})
	y := mat.NewDense(3, 2, []float64{1, 0, 0, 1, 0, 1})

	lossAt := func() float64 {
		out := x
		for _, l := range s.layers {
			out = l.infer(out)
		}
		return s.loss.Forward(out, y)
	}

	out := x
	for _, l := range s.layers {
		out = l.Forward(out)
	}
	grad := s.loss.Backward(out, y)
	for i := len(s.layers) - 1; i >= 0; i-- {
		grad = s.layers[i].Backward(grad, i > 0)
	}

	const h = 1e-6
	for li, layer := range s.layers {
		for pi, p := range layer.params() {
			for j := range p.Value {
				orig := p.Value[j]
				p.Value[j] = orig + h
				plus := lossAt()
				p.Value[j] = orig - h
				minus := lossAt()
				p.Value[j] = orig
				numeric := (plus - minus) / (2 * h)
				require.InDeltaf(t, numeric, p.Grad[j], 1e-5, "layer %d param %d index %d", li, pi, j)
			}
		}
	}
}

func TestAdamMinimisesQuadratic(t *testing.T) {
	adam := NewAdam(AdamConfig{LearningRate: 0.1})
	value := []float64{0}
	grad := []float64{0}
	for i := 0; i < 500; i++ {
		grad[0] = 2 * (value[0] - 3)
		adam.Step([]Param{{Value: value, Grad: grad}})
	}
	require.InDelta(t, 3.0, value[0], 1e-2)
	require.Equal(t, 500, adam.steps)
}

func TestCategoricalCrossEntropy(t *testing.T) {
	ce := NewCategoricalCrossEntropy()
	p := mat.NewDense(2, 2, []float64{0.5, 0.5, 1, 0})
	y := mat.NewDense(2, 2, []float64{1, 0, 0, 1})
	want := (math.Log(2) - math.Log(1e-7)) / 2
	require.InDelta(t, want, ce.Forward(p, y), 1e-9)

	grad := ce.Backward(p, y)
	require.InDelta(t, -1.0, grad.At(0, 0), 1e-12)
	require.Zero(t, grad.At(0, 1))
}

// The loss gradient is chained through the softmax Jacobian rather than
// fused into p - y, so a clipped probability passes almost nothing back.
func TestSoftmaxCrossEntropyGradientChain(t *testing.T) {
	ce := NewCategoricalCrossEntropy()
	chain := func(logits, target []float64) *mat.Dense {
		z := mat.NewDense(1, len(logits), logits)
		p := Softmax.apply(z)
		y := mat.NewDense(1, len(target), target)
		return Softmax.backward(ce.Backward(p, y), z, p)
	}

	dz := chain([]float64{1, 0}, []float64{1, 0})
	p0 := math.E / (math.E + 1)
	require.InDelta(t, p0-1, dz.At(0, 0), 1e-12)
	require.InDelta(t, 1-p0, dz.At(0, 1), 1e-12)

	dz = chain([]float64{30, 0}, []float64{0, 1})
	require.Less(t, math.Abs(dz.At(0, 0)), 1e-6)
	require.Greater(t, dz.At(0, 0), 0.0)
	require.InDelta(t, -dz.At(0, 0), dz.At(0, 1), 1e-15)
}

func TestAddAndCompileErrors(t *testing.T) {
	s := NewSequential(1)
	require.Error(t, s.Add(DenseConfig{Units: 3}), "first layer needs an input shape")
	require.Error(t, s.Compile(CompileOptions{Optimizer: "adam"}))

	require.NoError(t, s.Add(DenseConfig{InputShape: 5, Units: 3, Activation: ReLU}))
	require.ErrorIs(t, s.Add(DenseConfig{InputShape: 4, Units: 2}), ErrShapeMismatch)
	require.Error(t, s.Add(DenseConfig{Units: 0}))
	require.Error(t, s.Add(DenseConfig{Units: 2, Activation: "gelu"}))
	require.NoError(t, s.Add(DenseConfig{Units: 2, Activation: Softmax}))

	require.Equal(t, 5, s.InputSize())
	require.Equal(t, 2, s.OutputSize())
	require.Len(t, s.Layers(), 2)

	require.Error(t, s.Compile(CompileOptions{Optimizer: "rmsprop", Loss: "categoricalCrossentropy"}))
	require.Error(t, s.Compile(CompileOptions{Optimizer: "sgd", Loss: "categoricalCrossentropy"}))
	require.Error(t, s.Compile(CompileOptions{Optimizer: "adam", Loss: "meanSquaredError"}))
	require.Error(t, s.Compile(CompileOptions{Optimizer: "adam", Loss: "categoricalCrossentropy", Metrics: []string{"auc"}}))
}

func TestFitRequiresCompile(t *testing.T) {
	s, err := BuildClassifier(4, 3, 2, 1)
	require.NoError(t, err)
	x, _ := NewTensor2D([][]float64{{0, 0, 0, 0}})
	y, _ := OneHot([]int{0}, 2)
	_, err = s.Fit(context.Background(), x, y, FitOptions{Epochs: 1, BatchSize: 1})
	require.ErrorIs(t, err, ErrNotCompiled)
}

func TestFitLearnsSeparableData(t *testing.T) {
	rows, labels := separable(40, 3)
	x, err := NewTensor2D(rows)
	require.NoError(t, err)
	defer x.Release()
	y, err := OneHot(labels, 2)
	require.NoError(t, err)
	defer y.Release()

	s, err := BuildClassifier(4, 8, 2, 11)
	require.NoError(t, err)
	compiled(t, s, 0.05)

	var seen []int
	history, err := s.Fit(context.Background(), x, y, FitOptions{
		Epochs:          60,
		BatchSize:       8,
		ValidationSplit: 0.1,
		Shuffle:         true,
		OnEpochEnd: func(epoch int, logs metrics.EpochLogs) {
			seen = append(seen, epoch)
			require.True(t, logs.HasValidation)
		},
	})
	require.NoError(t, err)
	require.Len(t, history.Epochs, 60)
	require.Len(t, seen, 60)
	// 36 training rows in batches of 8
	require.Equal(t, 5, history.Epochs[0].Steps)
	require.Greater(t, history.Epochs[0].ComputeMS, 0.0)
	for i, epoch := range seen {
		require.Equal(t, i, epoch)
	}

	first := history.Epochs[0]
	last, ok := history.Last()
	require.True(t, ok)
	require.Less(t, last.Loss, first.Loss)
	require.GreaterOrEqual(t, last.Acc, 0.95)
	require.GreaterOrEqual(t, last.ValAcc, 0.75)

	pred, err := s.Predict(x)
	require.NoError(t, err)
	defer pred.Release()
	m, err := pred.Dense()
	require.NoError(t, err)
	r, c := m.Dims()
	require.Equal(t, 40, r)
	require.Equal(t, 2, c)
	for i := 0; i < r; i++ {
		require.InDelta(t, 1.0, m.At(i, 0)+m.At(i, 1), 1e-9)
	}
	require.GreaterOrEqual(t, metrics.Accuracy(ArgMaxRows(m), labels), 0.95)
}

func TestFitValidationSplitEdges(t *testing.T) {
	s, err := BuildClassifier(2, 2, 2, 1)
	require.NoError(t, err)
	compiled(t, s, 0)

	one, _ := NewTensor2D([][]float64{{0, 1}})
	oneY, _ := OneHot([]int{1}, 2)
	_, err = s.Fit(context.Background(), one, oneY, FitOptions{Epochs: 1, BatchSize: 4, ValidationSplit: 0.5})
	require.ErrorIs(t, err, ErrEmptyInput)

	two, _ := NewTensor2D([][]float64{{0, 1}, {1, 0}})
	twoY, _ := OneHot([]int{1, 0}, 2)
	history, err := s.Fit(context.Background(), two, twoY, FitOptions{Epochs: 2, BatchSize: 512, ValidationSplit: 0.1})
	require.NoError(t, err)
	require.Len(t, history.Epochs, 2)
	require.True(t, history.Epochs[0].HasValidation)

	history, err = s.Fit(context.Background(), two, twoY, FitOptions{Epochs: 1, BatchSize: 1})
	require.NoError(t, err)
	require.False(t, history.Epochs[0].HasValidation)
}

func TestFitShapeChecks(t *testing.T) {
	s, err := BuildClassifier(3, 2, 2, 1)
	require.NoError(t, err)
	compiled(t, s, 0)

	x, _ := NewTensor2D([][]float64{{0, 1}})
	y, _ := OneHot([]int{1}, 2)
	_, err = s.Fit(context.Background(), x, y, FitOptions{Epochs: 1, BatchSize: 1})
	require.ErrorIs(t, err, ErrShapeMismatch)

	_, err = s.Predict(x)
	require.ErrorIs(t, err, ErrShapeMismatch)

	x3, _ := NewTensor2D([][]float64{{0, 1, 0}, {1, 0, 0}})
	_, err = s.Fit(context.Background(), x3, y, FitOptions{Epochs: 1, BatchSize: 1})
	require.ErrorIs(t, err, ErrShapeMismatch)

	x.Release()
	_, err = s.Predict(x)
	require.ErrorIs(t, err, ErrReleased)
}

func TestFitStopsOnCancel(t *testing.T) {
	rows, labels := separable(10, 1)
	x, _ := NewTensor2D(rows)
	y, _ := OneHot(labels, 2)
	s, err := BuildClassifier(4, 2, 2, 1)
	require.NoError(t, err)
	compiled(t, s, 0)

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err = s.Fit(ctx, x, y, FitOptions{
		Epochs:    10,
		BatchSize: 2,
		OnEpochEnd: func(int, metrics.EpochLogs) {
			calls++
			cancel()
		},
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, calls)
}
