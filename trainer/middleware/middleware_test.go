package middleware_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	pkgerrors "github.com/absmach/disttrain/pkg/errors"
	"github.com/absmach/disttrain/run"
	"github.com/absmach/disttrain/trainer"
	"github.com/absmach/disttrain/trainer/middleware"
	"github.com/absmach/disttrain/trainer/mocks"
	"github.com/go-kit/kit/metrics/generic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
)

func wrap(svc trainer.Service, buf *bytes.Buffer) trainer.Service {
	logger := slog.New(slog.NewJSONHandler(buf, nil))

	var s trainer.Service = svc
	s = middleware.Logging(logger, s)
	s = middleware.Tracing(noop.NewTracerProvider().Tracer("test"), s)
	s = middleware.Metrics(generic.NewCounter("calls"), generic.NewHistogram("latency", 10), s)

	return s
}

func TestMiddlewarePassThrough(t *testing.T) {
	var buf bytes.Buffer
	svc := new(mocks.MockService)
	s := wrap(svc, &buf)
	ctx := context.Background()

	report := trainer.Report{EpochsRun: 4, GlobalLoss: 0.5}
	svc.On("Info").Return(trainer.Info{JobID: "job-1", Rank: 1, WorldSize: 2})
	svc.On("Train", mock.Anything).Return(report, nil)
	svc.On("TrainWithRetries", mock.Anything, 3).Return(trainer.Outcome{Status: trainer.Failed, Attempts: 3, Err: pkgerrors.ErrCollective})
	svc.On("SynchronizeModelParameters", mock.Anything).Return(nil)
	svc.On("GatherResults", mock.Anything).Return([][]float64{{1}, {2}}, nil)
	svc.On("ListRuns", mock.Anything, uint64(0), uint64(10)).Return(run.RunPage{Total: 1}, nil)
	svc.On("GetRun", mock.Anything, "missing").Return(run.Run{}, pkgerrors.ErrNotFound)
	svc.On("Status").Return(trainer.InProgress)

	got, err := s.Train(ctx)
	require.NoError(t, err)
	assert.Equal(t, report, got)
	assert.Contains(t, buf.String(), "Train completed successfully")

	out := s.TrainWithRetries(ctx, 3)
	assert.ErrorIs(t, out.Err, pkgerrors.ErrCollective)
	assert.Contains(t, buf.String(), "Train with retries failed")

	require.NoError(t, s.SynchronizeModelParameters(ctx))

	results, err := s.GatherResults(ctx)
	require.NoError(t, err)
	assert.Len(t, results, 2)

	page, err := s.ListRuns(ctx, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), page.Total)

	_, err = s.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, pkgerrors.ErrNotFound)
	assert.Contains(t, buf.String(), "Get run failed")

	assert.Equal(t, trainer.InProgress, s.Status())
	assert.Equal(t, "job-1", s.Info().JobID)

	svc.AssertExpectations(t)
}
