package model

import "gonum.org/v1/gonum/mat"

// Batch represents a minibatch of inputs and one-hot targets, one row per sample.
type Batch struct {
	Inputs  *mat.Dense
	Targets *mat.Dense
}

// Model defines the training functionality required by the trainer.
type Model interface {
	TrainStep(batch Batch) (loss float64, correct int)
	Predictor
}

// Predictor runs inference over a batch of samples.
type Predictor interface {
	Predict(x *Tensor) (*Tensor, error)
}
