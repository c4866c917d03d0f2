package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/absmach/disttrain"
	pkgerrors "github.com/absmach/disttrain/pkg/errors"
	"github.com/absmach/disttrain/pkg/model"
	"github.com/absmach/disttrain/trainer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShares(t *testing.T) {
	shares, err := Shares(10, 3)
	require.NoError(t, err)
	assert.Equal(t, []Share{
		{Rank: 0, Start: 0, End: 4, Size: 4},
		{Rank: 1, Start: 4, End: 7, Size: 3},
		{Rank: 2, Start: 7, End: 10, Size: 3},
	}, shares)

	_, err = Shares(0, 3)
	assert.ErrorIs(t, err, pkgerrors.ErrEmptyDataset)
}

func TestPartitionCmd(t *testing.T) {
	cmd := NewPartitionCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"5", "2"})
	require.NoError(t, cmd.Execute())

	var shares []Share
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(out.String())), &shares))
	assert.Len(t, shares, 2)
	assert.Equal(t, 3, shares[0].Size)

	out.Reset()
	cmd.SetArgs([]string{"5"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "usage")
}

func TestSimulate(t *testing.T) {
	tc := trainer.DefaultConfig()
	tc.Epochs = 5
	tc.BatchSize = 16

	results, err := Simulate(context.Background(), SimulateConfig{
		WorldSize: 3,
		Samples:   90,
		Dim:       2,
		Seed:      7,
		Training:  tc,
		Timeout:   10 * time.Second,
	})
	require.NoError(t, err)
	require.Len(t, results, 3)

	for r, res := range results {
		assert.Equal(t, r, res.Rank)
		assert.True(t, res.Success, res.Error)
		assert.Equal(t, "Completed", res.Status)
		assert.Equal(t, 1, res.Attempts)
		assert.Equal(t, 5, res.EpochsRun)
		assert.Equal(t, math.Float64bits(results[0].GlobalLoss), math.Float64bits(res.GlobalLoss))
		assert.Equal(t, results[0].Parameters, res.Parameters)
	}
}

// brokenModel fails every batch with an error local to its rank.
type brokenModel struct {
	model.Model
}

func (brokenModel) Compute(model.Batch) ([]float64, float64, error) {
	return nil, 0, pkgerrors.ErrDimensionMismatch
}

func TestSimulateFatalRankReleasesPeers(t *testing.T) {
	tc := trainer.DefaultConfig()
	tc.Epochs = 5
	tc.MaxRetries = 3

	start := time.Now()
	results, err := Simulate(context.Background(), SimulateConfig{
		WorldSize: 3,
		Samples:   30,
		Dim:       2,
		Seed:      7,
		Training:  tc,
		Timeout:   30 * time.Second,
		NewModel: func(rank, dim int) model.Model {
			m := model.NewLinear(dim, tc.LearningRate, uint64(rank)+1)
			if rank == 1 {
				return brokenModel{Model: m}
			}

			return m
		},
	})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Less(t, time.Since(start), 5*time.Second)

	for r, res := range results {
		assert.False(t, res.Success, "rank %d", r)
		assert.Equal(t, "Failed", res.Status, "rank %d", r)
		assert.Equal(t, 1, res.Attempts, "rank %d", r)
	}
	assert.Contains(t, results[1].Error, pkgerrors.ErrDimensionMismatch.Error())
	assert.Contains(t, results[0].Error, "rank 1 left the group")
	assert.Contains(t, results[2].Error, "rank 1 left the group")
}

func TestSimulateInvalidWorldSize(t *testing.T) {
	_, err := Simulate(context.Background(), SimulateConfig{WorldSize: 0, Samples: 10, Dim: 1, Training: trainer.DefaultConfig()})
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidWorldSize)
}

func TestLaunchSpec(t *testing.T) {
	cfg := disttrain.DefaultConfig()
	cfg.Job.ID = "job-9"
	cfg.Job.WorldSize = 3
	cfg.Training.BackoffUnit = "3s"

	spec, err := LaunchSpec(cfg)
	require.NoError(t, err)
	assert.Equal(t, "job-9", spec.JobID)
	assert.Equal(t, "disttrain/job-9", spec.BaseTopic)
	assert.Equal(t, 3*time.Second, spec.Training.BackoffUnit)
	assert.Equal(t, 3, spec.WorldSize)

	cfg.Job.ID = ""
	spec, err = LaunchSpec(cfg)
	require.NoError(t, err)
	assert.NotEmpty(t, spec.JobID)

	cfg.Training.BackoffUnit = "later"
	_, err = LaunchSpec(cfg)
	assert.Error(t, err)
}

func TestFormValuesApply(t *testing.T) {
	cfg := disttrain.DefaultConfig()
	v := &formValues{
		worldSize: "6",
		epochs:    "12",
		batchSize: "64",
		patience:  "2",
		retries:   "5",
		samples:   "300",
		dim:       "3",
		lr:        "0.2",
	}
	require.NoError(t, v.apply(&cfg))
	assert.Equal(t, 6, cfg.Job.WorldSize)
	assert.Equal(t, 12, cfg.Training.Epochs)
	assert.Equal(t, 64, cfg.Training.BatchSize)
	assert.Equal(t, 2, cfg.Training.Patience)
	assert.Equal(t, 5, cfg.Training.MaxRetries)
	assert.Equal(t, 300, cfg.Dataset.Samples)
	assert.Equal(t, 3, cfg.Dataset.Dim)
	assert.Equal(t, 0.2, cfg.Training.LearningRate)

	v.epochs = "many"
	assert.Error(t, v.apply(&cfg))
}

func TestValidators(t *testing.T) {
	assert.NoError(t, positiveInt("3"))
	assert.Error(t, positiveInt("0"))
	assert.Error(t, positiveInt("x"))
	assert.NoError(t, learningRate("1"))
	assert.Error(t, learningRate("1.5"))
	assert.NoError(t, duration("250ms"))
	assert.Error(t, duration("soon"))
	assert.Error(t, notEmpty(""))
}
