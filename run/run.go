package run

import "time"

const (
	ProgressPending   = 0
	ProgressCompleted = 100
)

// Run records one training attempt of one rank.
type Run struct {
	ID           string    `json:"id"`
	JobID        string    `json:"job_id"`
	Name         string    `json:"name"`
	Rank         int       `json:"rank"`
	WorldSize    int       `json:"world_size"`
	Attempt      int       `json:"attempt"`
	Status       string    `json:"status"`
	Progress     int       `json:"progress"`
	EpochsRun    int       `json:"epochs_run"`
	GlobalLoss   float64   `json:"global_loss"`
	BestLoss     float64   `json:"best_loss"`
	EarlyStopped bool      `json:"early_stopped"`
	Error        string    `json:"error,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type RunPage struct {
	Offset uint64 `json:"offset"`
	Limit  uint64 `json:"limit"`
	Total  uint64 `json:"total"`
	Runs   []Run  `json:"runs"`
}
