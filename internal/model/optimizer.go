package model

import "math"

// Param is one trainable buffer and its gradient, equal in length.
type Param struct {
	Value []float64
	Grad  []float64
}

// Optimizer updates parameters from their gradients.
type Optimizer interface {
	Step(params []Param)
}

// AdamConfig holds configuration for the Adam optimizer.
type AdamConfig struct {
	LearningRate float64
	Beta1        float64
	Beta2        float64
	Epsilon      float64
}

// DefaultAdamConfig returns the default Adam hyperparameters.
func DefaultAdamConfig() AdamConfig {
	return AdamConfig{
		LearningRate: 0.001,
		Beta1:        0.9,
		Beta2:        0.999,
		Epsilon:      1e-7,
	}
}

// Adam implements bias-corrected adaptive moment estimation.
type Adam struct {
	cfg   AdamConfig
	m     [][]float64
	v     [][]float64
	steps int
}

// NewAdam returns an Adam optimizer. Zero fields take their defaults.
func NewAdam(cfg AdamConfig) *Adam {
	def := DefaultAdamConfig()
	if cfg.LearningRate <= 0 {
		cfg.LearningRate = def.LearningRate
	}
	if cfg.Beta1 <= 0 {
		cfg.Beta1 = def.Beta1
	}
	if cfg.Beta2 <= 0 {
		cfg.Beta2 = def.Beta2
	}
	if cfg.Epsilon <= 0 {
		cfg.Epsilon = def.Epsilon
	}
	return &Adam{cfg: cfg}
}

// Step applies one update to every parameter. The moment buffers are
// keyed by position, so params must be passed in the same order each call.
func (a *Adam) Step(params []Param) {
	if a.m == nil {
		a.m = make([][]float64, len(params))
		a.v = make([][]float64, len(params))
		for i, p := range params {
			a.m[i] = make([]float64, len(p.Value))
			a.v[i] = make([]float64, len(p.Value))
		}
	}
	a.steps++
	b1, b2 := a.cfg.Beta1, a.cfg.Beta2
	correction1 := 1 - math.Pow(b1, float64(a.steps))
	correction2 := 1 - math.Pow(b2, float64(a.steps))
	for i, p := range params {
		m, v := a.m[i], a.v[i]
		for j, g := range p.Grad {
			m[j] = b1*m[j] + (1-b1)*g
			v[j] = b2*v[j] + (1-b2)*g*g
			mHat := m[j] / correction1
			vHat := v[j] / correction2
			p.Value[j] -= a.cfg.LearningRate * mHat / (math.Sqrt(vHat) + a.cfg.Epsilon)
		}
	}
}
