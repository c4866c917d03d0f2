package testutil

import (
	"time"

	"github.com/absmach/disttrain/run"
	"github.com/google/uuid"
)

// TestRun returns a pending run created at offset from a fixed instant. IDs
// are time-ordered, so runs made one after another sort by creation.
func TestRun(jobID string, offset time.Duration) run.Run {
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).Add(offset)
	id := uuid.Must(uuid.NewV7()).String()

	return run.Run{
		ID:        id,
		JobID:     jobID,
		Name:      "run-" + id[len(id)-8:],
		WorldSize: 2,
		Attempt:   1,
		Status:    "Not Started",
		Progress:  run.ProgressPending,
		CreatedAt: created,
		UpdatedAt: created,
	}
}
