// Package aggregate turns per-rank local results into the global values every
// rank applies: an all-reduce sum followed by normalization.
package aggregate

import (
	"context"
	"fmt"

	"github.com/absmach/disttrain/pkg/collective"
	"gonum.org/v1/gonum/floats"
)

type Aggregator struct {
	group  collective.Group
	policy Policy
}

func New(group collective.Group, policy Policy) *Aggregator {
	return &Aggregator{
		group:  group,
		policy: policy,
	}
}

func (a *Aggregator) Policy() Policy {
	return a.policy
}

// AggregateGradient returns the element-wise sum of every rank's local
// gradient divided by the world size.
func (a *Aggregator) AggregateGradient(ctx context.Context, local []float64) ([]float64, error) {
	sum, err := a.group.AllReduceSum(ctx, local)
	if err != nil {
		return nil, err
	}
	divide(sum, float64(a.group.WorldSize()))

	return sum, nil
}

func (a *Aggregator) AggregateLoss(ctx context.Context, local float64) (float64, error) {
	sum, err := a.group.AllReduceSum(ctx, []float64{local})
	if err != nil {
		return 0, err
	}

	return sum[0] / float64(a.group.WorldSize()), nil
}

// Aggregate reduces gradient, loss and sample count in a single collective
// call, laid out as [gradient..., loss, samples].
func (a *Aggregator) Aggregate(ctx context.Context, c Contribution) (Result, error) {
	if c.Samples < 0 {
		return Result{}, fmt.Errorf("%w: %d", ErrNegativeSamples, c.Samples)
	}

	n := len(c.Gradient)
	buf := make([]float64, n+2)
	copy(buf, c.Gradient)
	buf[n] = c.Loss
	buf[n+1] = float64(c.Samples)

	if a.policy == SampleWeighted {
		floats.Scale(float64(c.Samples), buf[:n+1])
	}

	sum, err := a.group.AllReduceSum(ctx, buf)
	if err != nil {
		return Result{}, err
	}

	total := sum[n+1]
	res := Result{
		Gradient: sum[:n:n],
		Samples:  int(total),
	}

	switch a.policy {
	case SampleWeighted:
		if total == 0 {
			for i := range res.Gradient {
				res.Gradient[i] = 0
			}

			return res, nil
		}
		divide(res.Gradient, total)
		res.Loss = sum[n] / total
	default:
		w := float64(a.group.WorldSize())
		divide(res.Gradient, w)
		res.Loss = sum[n] / w
	}

	return res, nil
}

func divide(v []float64, d float64) {
	for i := range v {
		v[i] /= d
	}
}
