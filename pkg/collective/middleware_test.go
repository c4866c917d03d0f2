package collective_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/absmach/disttrain/pkg/collective"
	"github.com/absmach/disttrain/pkg/errors"
	"github.com/go-kit/kit/metrics/generic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddlewarePassThrough(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	local, err := collective.NewLocal(2)
	require.NoError(t, err)

	groups := make([]collective.Group, len(local))
	for r, g := range local {
		g = collective.Metrics(generic.NewCounter("calls"), generic.NewHistogram("latency", 10), g)
		groups[r] = collective.Logging(logger, g)
	}

	results := make([][]float64, len(groups))
	errs := runRanks(t, groups, func(g collective.Group) error {
		out, err := g.AllReduceSum(context.Background(), []float64{1, 2})
		results[g.Rank()] = out

		return err
	})
	for r := range groups {
		require.NoError(t, errs[r])
		assert.Equal(t, []float64{2, 4}, results[r])
		assert.Equal(t, 2, groups[r].WorldSize())
	}
	assert.Contains(t, buf.String(), "All-reduce completed successfully")

	err = groups[0].Broadcast(context.Background(), []float64{1}, 5)
	assert.ErrorIs(t, err, errors.ErrInvalidRank)
	assert.Contains(t, buf.String(), "Broadcast failed")

	require.NoError(t, groups[1].Close())
	assert.Contains(t, buf.String(), "Left group")
}
