package middleware

import (
	"context"
	"time"

	"github.com/absmach/disttrain/run"
	"github.com/absmach/disttrain/trainer"
	"github.com/go-kit/kit/metrics"
)

var _ trainer.Service = (*metricsMiddleware)(nil)

type metricsMiddleware struct {
	counter metrics.Counter
	latency metrics.Histogram
	svc     trainer.Service
}

func Metrics(counter metrics.Counter, latency metrics.Histogram, svc trainer.Service) trainer.Service {
	return &metricsMiddleware{
		counter: counter,
		latency: latency,
		svc:     svc,
	}
}

func (mm *metricsMiddleware) SynchronizeModelParameters(ctx context.Context) error {
	defer func(begin time.Time) {
		mm.counter.With("method", "synchronize-model-parameters").Add(1)
		mm.latency.With("method", "synchronize-model-parameters").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.SynchronizeModelParameters(ctx)
}

func (mm *metricsMiddleware) Train(ctx context.Context) (trainer.Report, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "train").Add(1)
		mm.latency.With("method", "train").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.Train(ctx)
}

func (mm *metricsMiddleware) TrainWithRetries(ctx context.Context, maxRetries int) trainer.Outcome {
	defer func(begin time.Time) {
		mm.counter.With("method", "train-with-retries").Add(1)
		mm.latency.With("method", "train-with-retries").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.TrainWithRetries(ctx, maxRetries)
}

func (mm *metricsMiddleware) Status() trainer.Status {
	return mm.svc.Status()
}

func (mm *metricsMiddleware) Info() trainer.Info {
	return mm.svc.Info()
}

func (mm *metricsMiddleware) GatherResults(ctx context.Context) ([][]float64, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "gather-results").Add(1)
		mm.latency.With("method", "gather-results").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.GatherResults(ctx)
}

func (mm *metricsMiddleware) ListRuns(ctx context.Context, offset, limit uint64) (run.RunPage, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "list-runs").Add(1)
		mm.latency.With("method", "list-runs").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.ListRuns(ctx, offset, limit)
}

func (mm *metricsMiddleware) GetRun(ctx context.Context, id string) (run.Run, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "get-run").Add(1)
		mm.latency.With("method", "get-run").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.GetRun(ctx, id)
}
