package badger

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/absmach/disttrain/pkg/errors"
	"github.com/absmach/disttrain/run"
)

const runPrefix = "run:"

type RunRepository interface {
	Create(ctx context.Context, r run.Run) (run.Run, error)
	Get(ctx context.Context, id string) (run.Run, error)
	Update(ctx context.Context, r run.Run) error
	List(ctx context.Context, offset, limit uint64) ([]run.Run, uint64, error)
	ListByJobID(ctx context.Context, jobID string) ([]run.Run, error)
	Delete(ctx context.Context, id string) error
}

type runRepo struct {
	db *Database
}

// NewRunRepository stores runs as JSON under "run:<id>". Run IDs are
// time-ordered UUIDs, so key order is creation order.
func NewRunRepository(db *Database) RunRepository {
	return &runRepo{db: db}
}

func (r *runRepo) Create(ctx context.Context, rn run.Run) (run.Run, error) {
	if rn.ID == "" {
		return run.Run{}, errors.ErrEmptyKey
	}
	val, err := json.Marshal(rn)
	if err != nil {
		return run.Run{}, fmt.Errorf("marshal error: %w", err)
	}
	if err := r.db.create([]byte(runPrefix+rn.ID), val); err != nil {
		return run.Run{}, err
	}

	return rn, nil
}

func (r *runRepo) Get(ctx context.Context, id string) (run.Run, error) {
	if id == "" {
		return run.Run{}, errors.ErrEmptyKey
	}
	val, err := r.db.get([]byte(runPrefix + id))
	if err != nil {
		return run.Run{}, err
	}

	return decodeRun(val)
}

func (r *runRepo) Update(ctx context.Context, rn run.Run) error {
	if rn.ID == "" {
		return errors.ErrEmptyKey
	}
	val, err := json.Marshal(rn)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}

	return r.db.replace([]byte(runPrefix+rn.ID), val)
}

func (r *runRepo) List(ctx context.Context, offset, limit uint64) ([]run.Run, uint64, error) {
	prefix := []byte(runPrefix)
	total, err := r.db.countWithPrefix(prefix)
	if err != nil {
		return nil, 0, err
	}
	values, err := r.db.listWithPrefix(prefix, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	runs := make([]run.Run, len(values))
	for i, val := range values {
		if runs[i], err = decodeRun(val); err != nil {
			return nil, 0, err
		}
	}

	return runs, total, nil
}

func (r *runRepo) ListByJobID(ctx context.Context, jobID string) ([]run.Run, error) {
	values, err := r.db.listWithPrefix([]byte(runPrefix), 0, math.MaxUint64)
	if err != nil {
		return nil, err
	}
	runs := []run.Run{}
	for _, val := range values {
		rn, err := decodeRun(val)
		if err != nil {
			return nil, err
		}
		if rn.JobID == jobID {
			runs = append(runs, rn)
		}
	}

	return runs, nil
}

func (r *runRepo) Delete(ctx context.Context, id string) error {
	if id == "" {
		return errors.ErrEmptyKey
	}

	return r.db.delete([]byte(runPrefix + id))
}

func decodeRun(val []byte) (run.Run, error) {
	var rn run.Run
	if err := json.Unmarshal(val, &rn); err != nil {
		return run.Run{}, fmt.Errorf("unmarshal error: %w", err)
	}

	return rn, nil
}
