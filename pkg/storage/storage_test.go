package storage_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/absmach/disttrain/pkg/errors"
	"github.com/absmach/disttrain/pkg/storage"
	"github.com/absmach/disttrain/pkg/storage/testutil"
	"github.com/absmach/disttrain/run"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]storage.RunRepository {
	t.Helper()

	repos, err := storage.NewRepositories(storage.Config{
		Type:       "badger",
		BadgerPath: filepath.Join(t.TempDir(), "badger"),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, repos.Closer.Close())
	})

	mem, err := storage.NewRepositories(storage.Config{Type: "memory"})
	require.NoError(t, err)
	assert.Nil(t, mem.Closer)

	return map[string]storage.RunRepository{
		"badger": repos.Runs,
		"memory": mem.Runs,
	}
}

func TestRunRepositoryCreateGet(t *testing.T) {
	for name, repo := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			r := testutil.TestRun("job-1", 0)

			created, err := repo.Create(ctx, r)
			require.NoError(t, err)
			assert.Equal(t, r, created)

			_, err = repo.Create(ctx, r)
			assert.ErrorIs(t, err, errors.ErrEntityExists)

			got, err := repo.Get(ctx, r.ID)
			require.NoError(t, err)
			assert.Equal(t, r, got)

			_, err = repo.Get(ctx, "missing")
			assert.ErrorIs(t, err, errors.ErrNotFound)

			_, err = repo.Get(ctx, "")
			assert.ErrorIs(t, err, errors.ErrEmptyKey)

			_, err = repo.Create(ctx, run.Run{})
			assert.ErrorIs(t, err, errors.ErrEmptyKey)
		})
	}
}

func TestRunRepositoryUpdate(t *testing.T) {
	for name, repo := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			r := testutil.TestRun("job-1", 0)
			_, err := repo.Create(ctx, r)
			require.NoError(t, err)

			r.Status = "Completed"
			r.Progress = run.ProgressCompleted
			r.EpochsRun = 12
			r.GlobalLoss = 0.125
			r.EarlyStopped = true
			require.NoError(t, repo.Update(ctx, r))

			got, err := repo.Get(ctx, r.ID)
			require.NoError(t, err)
			assert.Equal(t, r, got)

			err = repo.Update(ctx, testutil.TestRun("job-1", time.Second))
			assert.ErrorIs(t, err, errors.ErrNotFound)
		})
	}
}

func TestRunRepositoryList(t *testing.T) {
	for name, repo := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			var ids []string
			for i := range 5 {
				jobID := "job-a"
				if i%2 == 1 {
					jobID = "job-b"
				}
				r, err := repo.Create(ctx, testutil.TestRun(jobID, time.Duration(i)*time.Minute))
				require.NoError(t, err)
				ids = append(ids, r.ID)
			}

			cases := []struct {
				desc   string
				offset uint64
				limit  uint64
				want   []string
			}{
				{desc: "first page", offset: 0, limit: 2, want: ids[:2]},
				{desc: "middle page", offset: 2, limit: 2, want: ids[2:4]},
				{desc: "last page is short", offset: 4, limit: 2, want: ids[4:]},
				{desc: "past the end", offset: 10, limit: 2, want: nil},
			}

			for _, tc := range cases {
				t.Run(tc.desc, func(t *testing.T) {
					runs, total, err := repo.List(ctx, tc.offset, tc.limit)
					require.NoError(t, err)
					assert.Equal(t, uint64(5), total)

					var got []string
					for _, r := range runs {
						got = append(got, r.ID)
					}
					assert.Equal(t, tc.want, got)
				})
			}

			byJob, err := repo.ListByJobID(ctx, "job-b")
			require.NoError(t, err)
			require.Len(t, byJob, 2)
			assert.Equal(t, ids[1], byJob[0].ID)
			assert.Equal(t, ids[3], byJob[1].ID)

			none, err := repo.ListByJobID(ctx, "job-c")
			require.NoError(t, err)
			assert.Empty(t, none)
		})
	}
}

func TestRunRepositoryDelete(t *testing.T) {
	for name, repo := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			r, err := repo.Create(ctx, testutil.TestRun("job-1", 0))
			require.NoError(t, err)

			require.NoError(t, repo.Delete(ctx, r.ID))
			_, err = repo.Get(ctx, r.ID)
			assert.ErrorIs(t, err, errors.ErrNotFound)

			assert.ErrorIs(t, repo.Delete(ctx, ""), errors.ErrEmptyKey)
		})
	}
}

func TestNewRepositoriesUnsupported(t *testing.T) {
	_, err := storage.NewRepositories(storage.Config{Type: "postgres"})
	assert.Error(t, err)
}
