package earlystop_test

import (
	"math"
	"testing"

	"github.com/absmach/disttrain/pkg/earlystop"
	"github.com/stretchr/testify/assert"
)

func TestShouldStop(t *testing.T) {
	cases := []struct {
		desc     string
		patience int
		losses   []float64
		want     []bool
	}{
		{
			desc:     "plateau after improvement",
			patience: 3,
			losses:   []float64{5, 4, 3, 3, 3, 3},
			want:     []bool{false, false, false, false, false, true},
		},
		{
			desc:     "strictly decreasing never stops",
			patience: 1,
			losses:   []float64{3, 2, 1, 0.5},
			want:     []bool{false, false, false, false},
		},
		{
			desc:     "improvement resets the counter",
			patience: 2,
			losses:   []float64{1, 1, 0.5, 0.7, 0.6},
			want:     []bool{false, false, false, false, true},
		},
		{
			desc:     "patience of one stops on the first non-improvement",
			patience: 1,
			losses:   []float64{1, 2},
			want:     []bool{false, true},
		},
		{
			desc:     "invalid patience falls back to the default",
			patience: 0,
			losses:   []float64{1, 1, 1, 1},
			want:     []bool{false, false, false, true},
		},
		{
			desc:     "NaN never improves",
			patience: 2,
			losses:   []float64{math.NaN(), math.NaN()},
			want:     []bool{false, true},
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			p := earlystop.New(tc.patience)
			for i, loss := range tc.losses {
				assert.Equal(t, tc.want[i], p.ShouldStop(loss), "loss %d", i)
			}
		})
	}
}

func TestState(t *testing.T) {
	p := earlystop.New(3)
	st := p.State()
	assert.True(t, math.IsInf(st.BestLoss, 1))
	assert.Equal(t, 0, st.NonImproving)
	assert.Equal(t, 3, st.Patience)

	p.ShouldStop(2)
	p.ShouldStop(2.5)
	st = p.State()
	assert.Equal(t, 2.0, st.BestLoss)
	assert.Equal(t, 1, st.NonImproving)

	// Policies do not share state.
	assert.True(t, math.IsInf(earlystop.New(3).State().BestLoss, 1))
}
