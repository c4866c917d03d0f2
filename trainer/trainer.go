// Package trainer runs synchronous data-parallel training on one rank: every
// epoch the rank computes gradients on its partition, the group aggregates
// them and all ranks apply the same update.
package trainer

import (
	"context"
	"time"

	"github.com/absmach/disttrain/run"
)

type Service interface {
	// SynchronizeModelParameters overwrites the local parameters with rank
	// 0's. It is a collective call.
	SynchronizeModelParameters(ctx context.Context) error

	// Train starts a new training run of a single attempt. A service left
	// Completed or Failed by an earlier run starts over from NotStarted, and
	// the run always ends in Completed or Failed.
	Train(ctx context.Context) (Report, error)

	// TrainWithRetries repeats Train until it succeeds, a fatal error occurs
	// or maxRetries attempts were made, waiting 2^attempt backoff units after
	// every retryable failure. The status stays InProgress between attempts
	// and becomes Failed only after all retries are exhausted.
	TrainWithRetries(ctx context.Context, maxRetries int) Outcome

	Status() Status

	Info() Info

	// GatherResults collects the model predictions of every rank's partition
	// at rank 0, in rank order. Other ranks receive nil.
	GatherResults(ctx context.Context) ([][]float64, error)

	ListRuns(ctx context.Context, offset, limit uint64) (run.RunPage, error)

	GetRun(ctx context.Context, id string) (run.Run, error)
}

// Report summarizes a successful attempt.
type Report struct {
	EpochsRun    int       `json:"epochs_run"`
	GlobalLoss   float64   `json:"global_loss"`
	BestLoss     float64   `json:"best_loss"`
	EarlyStopped bool      `json:"early_stopped"`
	Parameters   []float64 `json:"parameters"`
}

type Outcome struct {
	Success  bool
	Status   Status
	Attempts int
	Report   Report
	Err      error
}

// Info is the per-rank status document served by the HTTP API.
type Info struct {
	JobID         string    `json:"job_id"`
	Rank          int       `json:"rank"`
	WorldSize     int       `json:"world_size"`
	LocalDataSize int       `json:"local_data_size"`
	TotalDataSize int       `json:"total_data_size"`
	Config        Config    `json:"config"`
	Status        Status    `json:"status"`
	CurrentEpoch  int       `json:"current_epoch"`
	Attempts      int       `json:"attempts"`
	GlobalLoss    float64   `json:"global_loss"`
	LastError     string    `json:"last_error,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}
