package storage

import (
	"context"
	"slices"
	"sync"

	"github.com/absmach/disttrain/pkg/errors"
	"github.com/absmach/disttrain/run"
)

var _ RunRepository = (*inMemoryRunRepository)(nil)

type inMemoryRunRepository struct {
	sync.Mutex

	data map[string]run.Run
}

func NewInMemoryRunRepository() RunRepository {
	return &inMemoryRunRepository{
		data: make(map[string]run.Run),
	}
}

func (s *inMemoryRunRepository) Create(_ context.Context, r run.Run) (run.Run, error) {
	if r.ID == "" {
		return run.Run{}, errors.ErrEmptyKey
	}

	s.Lock()
	defer s.Unlock()

	if _, ok := s.data[r.ID]; ok {
		return run.Run{}, errors.ErrEntityExists
	}

	s.data[r.ID] = r

	return r, nil
}

func (s *inMemoryRunRepository) Get(_ context.Context, id string) (run.Run, error) {
	if id == "" {
		return run.Run{}, errors.ErrEmptyKey
	}

	s.Lock()
	defer s.Unlock()

	if r, ok := s.data[id]; ok {
		return r, nil
	}

	return run.Run{}, errors.ErrNotFound
}

func (s *inMemoryRunRepository) Update(_ context.Context, r run.Run) error {
	if r.ID == "" {
		return errors.ErrEmptyKey
	}

	s.Lock()
	defer s.Unlock()

	if _, ok := s.data[r.ID]; !ok {
		return errors.ErrNotFound
	}

	s.data[r.ID] = r

	return nil
}

func (s *inMemoryRunRepository) List(_ context.Context, offset, limit uint64) ([]run.Run, uint64, error) {
	s.Lock()
	defer s.Unlock()

	runs := s.sorted(func(run.Run) bool { return true })

	total := uint64(len(runs))
	if offset >= total {
		return []run.Run{}, total, nil
	}

	end := min(offset+limit, total)

	return runs[offset:end], total, nil
}

func (s *inMemoryRunRepository) ListByJobID(_ context.Context, jobID string) ([]run.Run, error) {
	s.Lock()
	defer s.Unlock()

	return s.sorted(func(r run.Run) bool { return r.JobID == jobID }), nil
}

func (s *inMemoryRunRepository) Delete(_ context.Context, id string) error {
	if id == "" {
		return errors.ErrEmptyKey
	}

	s.Lock()
	defer s.Unlock()

	delete(s.data, id)

	return nil
}

func (s *inMemoryRunRepository) sorted(keep func(run.Run) bool) []run.Run {
	runs := make([]run.Run, 0, len(s.data))
	for _, r := range s.data {
		if keep(r) {
			runs = append(runs, r)
		}
	}
	slices.SortFunc(runs, compareRuns)

	return runs
}

func compareRuns(a, b run.Run) int {
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	if a.ID < b.ID {
		return -1
	}
	if a.ID > b.ID {
		return 1
	}

	return 0
}
