package model

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"gonum.org/v1/gonum/mat"

	"passport-classifier/internal/metrics"
)

// ErrNotCompiled is returned when training is attempted before Compile.
var ErrNotCompiled = errors.New("model: not compiled")

var _ Model = (*Sequential)(nil)

// DenseConfig describes a layer to append to a Sequential model.
// InputShape is required for the first layer only.
type DenseConfig struct {
	InputShape int
	Units      int
	Activation Activation
}

// CompileOptions selects the optimizer, loss and metrics by name.
type CompileOptions struct {
	Optimizer    string
	Loss         string
	Metrics      []string
	LearningRate float64
}

// FitOptions controls a training run.
type FitOptions struct {
	Epochs          int
	BatchSize       int
	ValidationSplit float64
	Shuffle         bool

	// OnEpochEnd is called synchronously after every completed epoch.
	OnEpochEnd func(epoch int, logs metrics.EpochLogs)
}

// History holds the logs of every completed epoch.
type History struct {
	Epochs []metrics.EpochLogs
}

// Last returns the logs of the final epoch.
func (h *History) Last() (metrics.EpochLogs, bool) {
	if h == nil || len(h.Epochs) == 0 {
		return metrics.EpochLogs{}, false
	}
	return h.Epochs[len(h.Epochs)-1], true
}

// Sequential is a linear stack of dense layers.
type Sequential struct {
	layers    []*Dense
	rng       *rand.Rand
	optimizer Optimizer
	loss      Loss
	accuracy  bool
}

// NewSequential returns an empty model whose weight initialisation and
// epoch shuffling draw from seed.
func NewSequential(seed int64) *Sequential {
	return &Sequential{rng: rand.New(rand.NewSource(seed))}
}

// BuildClassifier returns inputSize -> Dense(hidden, relu) -> Dense(classes, softmax).
func BuildClassifier(inputSize, hidden, classes int, seed int64) (*Sequential, error) {
	s := NewSequential(seed)
	if err := s.Add(DenseConfig{InputShape: inputSize, Units: hidden, Activation: ReLU}); err != nil {
		return nil, err
	}
	if err := s.Add(DenseConfig{Units: classes, Activation: Softmax}); err != nil {
		return nil, err
	}
	return s, nil
}

// Add appends a dense layer.
func (s *Sequential) Add(cfg DenseConfig) error {
	if cfg.Units <= 0 {
		return fmt.Errorf("model: units must be > 0 (got %d)", cfg.Units)
	}
	if cfg.Activation == "" {
		cfg.Activation = Linear
	}
	if err := cfg.Activation.validate(); err != nil {
		return err
	}
	in := cfg.InputShape
	if len(s.layers) > 0 {
		prev := s.layers[len(s.layers)-1].Units
		if in != 0 && in != prev {
			return fmt.Errorf("%w: layer input %d does not match previous units %d", ErrShapeMismatch, in, prev)
		}
		in = prev
	}
	if in <= 0 {
		return fmt.Errorf("model: first layer needs an input shape")
	}
	s.layers = append(s.layers, newDense(in, cfg.Units, cfg.Activation, s.rng))
	return nil
}

// Layers returns the layers in order.
func (s *Sequential) Layers() []*Dense {
	return s.layers
}

// InputSize is the width expected of every input row.
func (s *Sequential) InputSize() int {
	if len(s.layers) == 0 {
		return 0
	}
	return s.layers[0].InputSize
}

// OutputSize is the width of every prediction row.
func (s *Sequential) OutputSize() int {
	if len(s.layers) == 0 {
		return 0
	}
	return s.layers[len(s.layers)-1].Units
}

// Compile resolves the named optimizer, loss and metrics.
func (s *Sequential) Compile(opts CompileOptions) error {
	if len(s.layers) == 0 {
		return errors.New("model: no layers to compile")
	}
	switch opts.Optimizer {
	case "adam":
		cfg := DefaultAdamConfig()
		if opts.LearningRate > 0 {
			cfg.LearningRate = opts.LearningRate
		}
		s.optimizer = NewAdam(cfg)
	default:
		return fmt.Errorf("model: unknown optimizer %q", opts.Optimizer)
	}
	switch opts.Loss {
	case "categoricalCrossentropy", "categorical_crossentropy":
		s.loss = NewCategoricalCrossEntropy()
	default:
		return fmt.Errorf("model: unknown loss %q", opts.Loss)
	}
	s.accuracy = false
	for _, m := range opts.Metrics {
		switch m {
		case "accuracy", "acc":
			s.accuracy = true
		default:
			return fmt.Errorf("model: unknown metric %q", m)
		}
	}
	return nil
}

// Predict runs a forward pass. The returned tensor is owned by the caller.
func (s *Sequential) Predict(x *Tensor) (*Tensor, error) {
	in, err := x.Dense()
	if err != nil {
		return nil, err
	}
	if _, c := in.Dims(); c != s.InputSize() {
		return nil, fmt.Errorf("%w: input width %d, model expects %d", ErrShapeMismatch, c, s.InputSize())
	}
	out := in
	for _, layer := range s.layers {
		out = layer.infer(out)
	}
	return FromDense(out), nil
}

// TrainStep runs forward and backward over one batch, applies one
// optimizer step and returns the batch loss and number of correct
// predictions. The model must be compiled.
func (s *Sequential) TrainStep(batch Batch) (float64, int) {
	out := batch.Inputs
	for _, layer := range s.layers {
		out = layer.Forward(out)
	}
	loss := s.loss.Forward(out, batch.Targets)
	correct := countCorrect(out, batch.Targets)

	grad := s.loss.Backward(out, batch.Targets)
	params := make([]Param, 0, 2*len(s.layers))
	for i := len(s.layers) - 1; i >= 0; i-- {
		grad = s.layers[i].Backward(grad, i > 0)
	}
	for _, layer := range s.layers {
		params = append(params, layer.params()...)
		layer.clearCache()
	}
	s.optimizer.Step(params)
	return loss, correct
}

// Evaluate returns the loss and accuracy over x without updating weights.
func (s *Sequential) Evaluate(x, y *mat.Dense) (float64, float64) {
	out := x
	for _, layer := range s.layers {
		out = layer.infer(out)
	}
	r, _ := out.Dims()
	if r == 0 {
		return 0, 0
	}
	return s.loss.Forward(out, y), float64(countCorrect(out, y)) / float64(r)
}

// Fit trains on x against one-hot targets y. The last
// floor(n*ValidationSplit) rows are held out for validation and never
// trained on; the rest are visited in mini-batches every epoch.
func (s *Sequential) Fit(ctx context.Context, x, y *Tensor, opts FitOptions) (*History, error) {
	if s.optimizer == nil || s.loss == nil {
		return nil, ErrNotCompiled
	}
	xd, err := x.Dense()
	if err != nil {
		return nil, err
	}
	yd, err := y.Dense()
	if err != nil {
		return nil, err
	}
	n, cols := xd.Dims()
	ny, classes := yd.Dims()
	if n != ny {
		return nil, fmt.Errorf("%w: %d inputs, %d targets", ErrShapeMismatch, n, ny)
	}
	if cols != s.InputSize() {
		return nil, fmt.Errorf("%w: input width %d, model expects %d", ErrShapeMismatch, cols, s.InputSize())
	}
	if classes != s.OutputSize() {
		return nil, fmt.Errorf("%w: target width %d, model emits %d", ErrShapeMismatch, classes, s.OutputSize())
	}
	if opts.Epochs <= 0 {
		return nil, fmt.Errorf("model: epochs must be > 0 (got %d)", opts.Epochs)
	}
	if opts.BatchSize <= 0 {
		return nil, fmt.Errorf("model: batch size must be > 0 (got %d)", opts.BatchSize)
	}
	if opts.ValidationSplit < 0 || opts.ValidationSplit >= 1 {
		return nil, fmt.Errorf("model: validation split must be in [0,1) (got %g)", opts.ValidationSplit)
	}

	splitAt := int(math.Floor(float64(n) * (1 - opts.ValidationSplit)))
	if splitAt <= 0 {
		return nil, fmt.Errorf("%w: no training rows left after validation split", ErrEmptyInput)
	}
	var valX, valY *mat.Dense
	if splitAt < n {
		valX = xd.Slice(splitAt, n, 0, cols).(*mat.Dense)
		valY = yd.Slice(splitAt, n, 0, classes).(*mat.Dense)
	}

	order := make([]int, splitAt)
	for i := range order {
		order[i] = i
	}

	history := &History{}
	for epoch := 0; epoch < opts.Epochs; epoch++ {
		start := time.Now()
		if opts.Shuffle {
			s.rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		}

		var window metrics.Window
		for lo := 0; lo < splitAt; lo += opts.BatchSize {
			if err := ctx.Err(); err != nil {
				return history, err
			}
			hi := min(lo+opts.BatchSize, splitAt)
			batch := Batch{
				Inputs:  gatherRows(xd, order[lo:hi]),
				Targets: gatherRows(yd, order[lo:hi]),
			}
			stepStart := time.Now()
			loss, correct := s.TrainStep(batch)
			window.Record(hi-lo, correct, time.Since(stepStart), loss)
		}

		snap := window.Snapshot()
		logs := metrics.EpochLogs{
			Loss:         snap.Loss,
			ImagesPerSec: snap.ImagesPerSec,
			Steps:        snap.Steps,
			ComputeMS:    snap.AvgComputeMS,
		}
		if s.accuracy {
			logs.Acc = snap.Accuracy
		}
		if valX != nil {
			logs.ValLoss, logs.ValAcc = s.Evaluate(valX, valY)
			if !s.accuracy {
				logs.ValAcc = 0
			}
			logs.HasValidation = true
		}
		logs.Duration = time.Since(start)

		history.Epochs = append(history.Epochs, logs)
		if opts.OnEpochEnd != nil {
			opts.OnEpochEnd(epoch, logs)
		}
	}
	return history, nil
}

func gatherRows(m *mat.Dense, rows []int) *mat.Dense {
	_, c := m.Dims()
	out := mat.NewDense(len(rows), c, nil)
	for i, r := range rows {
		copy(out.RawRowView(i), m.RawRowView(r))
	}
	return out
}

func countCorrect(predicted, target mat.Matrix) int {
	return metrics.Correct(ArgMaxRows(predicted), ArgMaxRows(target))
}
