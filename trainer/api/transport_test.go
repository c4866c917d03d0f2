package api_test

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/absmach/disttrain/pkg/errors"
	"github.com/absmach/disttrain/run"
	"github.com/absmach/disttrain/trainer"
	"github.com/absmach/disttrain/trainer/api"
	"github.com/absmach/disttrain/trainer/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T) (*httptest.Server, *mocks.MockService) {
	t.Helper()

	svc := new(mocks.MockService)
	ts := httptest.NewServer(api.MakeHandler(svc, slog.New(slog.NewTextHandler(io.Discard, nil)), "test"))
	t.Cleanup(ts.Close)

	return ts, svc
}

func get(t *testing.T, url string) (int, map[string]any) {
	t.Helper()

	res, err := http.Get(url)
	require.NoError(t, err)
	defer res.Body.Close()

	var body map[string]any
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))

	return res.StatusCode, body
}

func TestStatus(t *testing.T) {
	ts, svc := newServer(t)

	svc.On("Info").Return(trainer.Info{
		JobID:        "job-1",
		Rank:         2,
		WorldSize:    4,
		Status:       trainer.InProgress,
		CurrentEpoch: 7,
		Config:       trainer.DefaultConfig(),
	})

	code, body := get(t, ts.URL+"/status")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "job-1", body["job_id"])
	assert.Equal(t, "In Progress", body["status"])
	assert.EqualValues(t, 2, body["rank"])
	assert.EqualValues(t, 7, body["current_epoch"])
	svc.AssertExpectations(t)
}

func TestListRuns(t *testing.T) {
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	page := run.RunPage{
		Offset: 1,
		Limit:  5,
		Total:  2,
		Runs:   []run.Run{{ID: "r2", Status: "Completed", Attempt: 2, CreatedAt: created}},
	}

	cases := []struct {
		desc   string
		query  string
		setup  func(*mocks.MockService)
		status int
	}{
		{
			desc:  "explicit paging",
			query: "?offset=1&limit=5",
			setup: func(svc *mocks.MockService) {
				svc.On("ListRuns", mock.Anything, uint64(1), uint64(5)).Return(page, nil)
			},
			status: http.StatusOK,
		},
		{
			desc:  "default paging",
			query: "",
			setup: func(svc *mocks.MockService) {
				svc.On("ListRuns", mock.Anything, uint64(0), uint64(10)).Return(page, nil)
			},
			status: http.StatusOK,
		},
		{
			desc:   "limit too large",
			query:  "?limit=1000",
			setup:  func(*mocks.MockService) {},
			status: http.StatusBadRequest,
		},
		{
			desc:   "malformed offset",
			query:  "?offset=abc",
			setup:  func(*mocks.MockService) {},
			status: http.StatusBadRequest,
		},
		{
			desc:  "repository failure",
			query: "?limit=5",
			setup: func(svc *mocks.MockService) {
				svc.On("ListRuns", mock.Anything, uint64(0), uint64(5)).Return(run.RunPage{}, fmt.Errorf("disk full"))
			},
			status: http.StatusInternalServerError,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			ts, svc := newServer(t)
			tc.setup(svc)

			code, body := get(t, ts.URL+"/runs"+tc.query)
			assert.Equal(t, tc.status, code)
			if tc.status == http.StatusOK {
				assert.EqualValues(t, 2, body["total"])
				runs, ok := body["runs"].([]any)
				require.True(t, ok)
				assert.Len(t, runs, 1)
			} else {
				assert.NotEmpty(t, body["error"])
			}
			svc.AssertExpectations(t)
		})
	}
}

func TestGetRun(t *testing.T) {
	ts, svc := newServer(t)

	svc.On("GetRun", mock.Anything, "r1").Return(run.Run{ID: "r1", Name: "brave-turing", Status: "Failed", Error: "boom"}, nil)
	svc.On("GetRun", mock.Anything, "missing").Return(run.Run{}, errors.ErrNotFound)

	code, body := get(t, ts.URL+"/runs/r1")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "brave-turing", body["name"])
	assert.Equal(t, "boom", body["error"])

	code, body = get(t, ts.URL+"/runs/missing")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Contains(t, body["error"], "not found")
	svc.AssertExpectations(t)
}

func TestHealth(t *testing.T) {
	ts, _ := newServer(t)

	res, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)

	res, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
}
