package model

import (
	"fmt"
	"math/rand/v2"

	"github.com/absmach/disttrain/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

var (
	_ Model   = (*Linear)(nil)
	_ Tunable = (*Linear)(nil)
)

// Linear is least-squares linear regression. Parameters are the weights
// followed by the bias.
type Linear struct {
	dim          int
	learningRate float64
	params       []float64
}

// NewLinear initializes weights uniformly in [-0.1, 0.1) from seed. Ranks
// started with different seeds disagree until the parameters are
// synchronized.
func NewLinear(dim int, learningRate float64, seed uint64) *Linear {
	rng := rand.New(rand.NewPCG(seed, seed+1))
	params := make([]float64, dim+1)
	for i := range dim {
		params[i] = rng.Float64()*0.2 - 0.1
	}

	return &Linear{
		dim:          dim,
		learningRate: learningRate,
		params:       params,
	}
}

// Compute returns the mean squared error of the batch and its gradient. An
// empty batch yields a zero gradient and zero loss.
func (l *Linear) Compute(batch Batch) ([]float64, float64, error) {
	grad := make([]float64, len(l.params))
	m := batch.Len()
	if m == 0 {
		return grad, 0, nil
	}
	if len(batch.Features) != m {
		return nil, 0, fmt.Errorf("%w: %d samples, %d labels", errors.ErrDimensionMismatch, len(batch.Features), m)
	}

	var loss float64
	for s, x := range batch.Features {
		pred, err := l.Predict(x)
		if err != nil {
			return nil, 0, err
		}
		residual := pred - batch.Labels[s]
		loss += residual * residual

		floats.AddScaled(grad[:l.dim], 2*residual, x)
		grad[l.dim] += 2 * residual
	}
	floats.Scale(1/float64(m), grad)

	return grad, loss / float64(m), nil
}

func (l *Linear) ApplyUpdate(gradient []float64, _ float64) error {
	if len(gradient) != len(l.params) {
		return fmt.Errorf("%w: gradient has %d values, model has %d parameters", errors.ErrDimensionMismatch, len(gradient), len(l.params))
	}
	floats.AddScaled(l.params, -l.learningRate, gradient)

	return nil
}

func (l *Linear) SetLearningRate(rate float64) {
	l.learningRate = rate
}

func (l *Linear) Parameters() []float64 {
	out := make([]float64, len(l.params))
	copy(out, l.params)

	return out
}

func (l *Linear) SetParameters(params []float64) error {
	if len(params) != len(l.params) {
		return fmt.Errorf("%w: got %d parameters, model has %d", errors.ErrDimensionMismatch, len(params), len(l.params))
	}
	copy(l.params, params)

	return nil
}

func (l *Linear) Predict(features []float64) (float64, error) {
	if len(features) != l.dim {
		return 0, fmt.Errorf("%w: got %d features, model expects %d", errors.ErrDimensionMismatch, len(features), l.dim)
	}

	return floats.Dot(l.params[:l.dim], features) + l.params[l.dim], nil
}
