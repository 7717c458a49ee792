package trainer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"os"
	"time"

	"github.com/google/uuid"

	"passport-classifier/internal/checkpoint"
	"passport-classifier/internal/dataset"
	"passport-classifier/internal/metrics"
	"passport-classifier/internal/model"
)

// RunConfig captures the knobs required by the training pipeline.
type RunConfig struct {
	ImageDir        string
	ImageSize       int
	HiddenUnits     int
	Epochs          int
	BatchSize       int
	ValidationSplit float64
	LearningRate    float64
	NumWorkers      int
	Seed            int64
	Checkpoint      string
}

// Result is what a completed run produced.
type Result struct {
	RunID      uuid.UUID
	Dataset    *dataset.Dataset
	History    *model.History
	Prediction Prediction
}

// Run executes load, shuffle, encode, build, train and evaluate in order.
// Any failure stops the pipeline.
func Run(ctx context.Context, cfg RunConfig) (*Result, error) {
	if cfg.Epochs <= 0 {
		return nil, errors.New("trainer: epochs must be > 0")
	}
	if cfg.BatchSize <= 0 {
		return nil, errors.New("trainer: batch size must be > 0")
	}
	if cfg.ImageSize <= 0 {
		return nil, fmt.Errorf("trainer: image size must be > 0 (got %d)", cfg.ImageSize)
	}
	if cfg.HiddenUnits <= 0 {
		return nil, fmt.Errorf("trainer: hidden units must be > 0 (got %d)", cfg.HiddenUnits)
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	runID := uuid.New()
	rng := rand.New(rand.NewSource(cfg.Seed))

	ds, err := loadDataset(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	log.Printf("run=%s source=%s %s", runID, cfg.ImageDir, ds.Summary())
	log.Printf("run=%s labels=%v", runID, ds.Labels)

	ds.Shuffle(rng)

	mdl, history, err := train(ctx, runID, cfg, ds)
	if err != nil {
		return nil, err
	}

	pred, err := Evaluate(rng, ds, mdl)
	if err != nil {
		return nil, err
	}
	log.Printf("run=%s sample=%d probabilities=%v", runID, pred.Index, pred.Probabilities)
	log.Printf("run=%s Predicted: %s", runID, pred.Label)

	if cfg.Checkpoint != "" {
		final, _ := history.Last()
		meta := checkpoint.Meta{
			RunID:     runID,
			CreatedAt: time.Now(),
			ImageSize: cfg.ImageSize,
			Labels:    dataset.ClassNames[:],
			Final:     final,
		}
		if err := checkpoint.Write(cfg.Checkpoint, mdl, meta); err != nil {
			return nil, err
		}
		log.Printf("run=%s checkpoint=%s", runID, cfg.Checkpoint)
	}

	return &Result{RunID: runID, Dataset: ds, History: history, Prediction: pred}, nil
}

func loadDataset(ctx context.Context, cfg RunConfig) (*dataset.Dataset, error) {
	opts := dataset.Options{ImageSize: cfg.ImageSize, NumWorkers: cfg.NumWorkers}
	info, err := os.Stat(cfg.ImageDir)
	if err != nil {
		return nil, fmt.Errorf("trainer: image source: %w", err)
	}
	if info.IsDir() {
		return dataset.Build(ctx, cfg.ImageDir, opts)
	}
	return dataset.BuildArchive(ctx, cfg.ImageDir, opts)
}

// onTensor sees every tensor train allocates. Tests swap it to check
// release on each exit path.
var onTensor = func(*model.Tensor) {}

// train encodes ds into tensors, fits a fresh classifier and releases the
// tensors before returning, whether or not training succeeded.
func train(ctx context.Context, runID uuid.UUID, cfg RunConfig, ds *dataset.Dataset) (*model.Sequential, *model.History, error) {
	raw, err := model.NewTensor2D(ds.Features)
	if err != nil {
		return nil, nil, fmt.Errorf("trainer: build input tensor: %w", err)
	}
	onTensor(raw)
	inputs, err := model.Normalize(raw, 0, 1)
	// the unscaled copy is not needed once normalized
	raw.Release()
	if err != nil {
		return nil, nil, err
	}
	onTensor(inputs)
	defer inputs.Release()
	outputs, err := model.OneHot(ds.Labels, dataset.NumClasses)
	if err != nil {
		return nil, nil, fmt.Errorf("trainer: build output tensor: %w", err)
	}
	onTensor(outputs)
	defer outputs.Release()

	mdl, err := model.BuildClassifier(dataset.FeatureSize(cfg.ImageSize), cfg.HiddenUnits, dataset.NumClasses, cfg.Seed)
	if err != nil {
		return nil, nil, err
	}
	err = mdl.Compile(model.CompileOptions{
		Optimizer:    "adam",
		Loss:         "categoricalCrossentropy",
		Metrics:      []string{"accuracy"},
		LearningRate: cfg.LearningRate,
	})
	if err != nil {
		return nil, nil, err
	}

	history, err := mdl.Fit(ctx, inputs, outputs, model.FitOptions{
		Epochs:          cfg.Epochs,
		BatchSize:       cfg.BatchSize,
		ValidationSplit: cfg.ValidationSplit,
		Shuffle:         true,
		OnEpochEnd: func(epoch int, logs metrics.EpochLogs) {
			log.Printf("run=%s epoch=%d %s", runID, epoch, logs)
		},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("trainer: fit: %w", err)
	}
	return mdl, history, nil
}
