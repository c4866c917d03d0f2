package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/absmach/disttrain/pkg/storage/badger"
	"github.com/absmach/disttrain/run"
)

type RunRepository interface {
	Create(ctx context.Context, r run.Run) (run.Run, error)
	Get(ctx context.Context, id string) (run.Run, error)
	Update(ctx context.Context, r run.Run) error
	// List returns runs ordered by creation time, oldest first.
	List(ctx context.Context, offset, limit uint64) ([]run.Run, uint64, error)
	ListByJobID(ctx context.Context, jobID string) ([]run.Run, error)
	Delete(ctx context.Context, id string) error
}

type Config struct {
	Type       string `env:"TYPE"        envDefault:"memory"`
	BadgerPath string `env:"BADGER_PATH" envDefault:"./data/badger"`
}

type Repositories struct {
	Runs RunRepository
	// Closer closes the underlying persistent storage connection.
	// It is nil for the in-memory backend.
	Closer io.Closer
}

func NewRepositories(cfg Config) (*Repositories, error) {
	switch cfg.Type {
	case "badger":
		db, err := badger.NewDatabase(cfg.BadgerPath)
		if err != nil {
			return nil, err
		}

		return &Repositories{
			Runs:   badger.NewRunRepository(db),
			Closer: db,
		}, nil
	case "memory", "":
		return &Repositories{
			Runs: NewInMemoryRunRepository(),
		}, nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}
