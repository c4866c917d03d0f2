package model

import (
	"fmt"
	"math/rand/v2"

	"github.com/absmach/disttrain/pkg/errors"
)

// Batch is a window of samples handed to Model.Compute.
type Batch struct {
	Features [][]float64
	Labels   []float64
}

func (b Batch) Len() int {
	return len(b.Labels)
}

// Dataset is an ordered, immutable set of labelled samples with a fixed
// feature dimension.
type Dataset struct {
	features [][]float64
	labels   []float64
	dim      int
}

// NewDataset checks that there is one label per sample and that all feature
// rows have the same length.
func NewDataset(features [][]float64, labels []float64) (Dataset, error) {
	if len(features) != len(labels) {
		return Dataset{}, fmt.Errorf("%w: %d samples, %d labels", errors.ErrDimensionMismatch, len(features), len(labels))
	}
	if len(features) == 0 {
		return Dataset{}, errors.ErrEmptyDataset
	}

	dim := len(features[0])
	for i, row := range features {
		if len(row) != dim {
			return Dataset{}, fmt.Errorf("%w: sample %d has %d features, expected %d", errors.ErrDimensionMismatch, i, len(row), dim)
		}
	}

	return Dataset{
		features: features,
		labels:   labels,
		dim:      dim,
	}, nil
}

func (d Dataset) Len() int {
	return len(d.labels)
}

func (d Dataset) Dim() int {
	return d.dim
}

// Window returns samples [start, end) sharing storage with d.
func (d Dataset) Window(start, end int) Batch {
	return Batch{
		Features: d.features[start:end],
		Labels:   d.labels[start:end],
	}
}

// Synthetic generates n samples of y = 0.5*sum((i+1)*x_i) + 1 with a little
// noise. The same seed yields the same dataset on every rank.
func Synthetic(n, dim int, seed uint64) (Dataset, error) {
	if dim < 1 {
		return Dataset{}, fmt.Errorf("%w: dimension %d", errors.ErrDimensionMismatch, dim)
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	features := make([][]float64, n)
	labels := make([]float64, n)
	for s := range n {
		row := make([]float64, dim)
		y := 1.0
		for i := range row {
			row[i] = rng.Float64()*2 - 1
			y += 0.5 * float64(i+1) * row[i]
		}
		features[s] = row
		labels[s] = y + rng.NormFloat64()*0.01
	}

	return NewDataset(features, labels)
}
