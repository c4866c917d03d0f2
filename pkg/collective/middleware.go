package collective

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-kit/kit/metrics"
)

var (
	_ Group = (*loggingMiddleware)(nil)
	_ Group = (*metricsMiddleware)(nil)
)

type loggingMiddleware struct {
	logger *slog.Logger
	g      Group
}

// Logging logs every collective call at debug level and failures at warn.
func Logging(logger *slog.Logger, g Group) Group {
	return &loggingMiddleware{
		logger: logger,
		g:      g,
	}
}

func (lm *loggingMiddleware) Rank() int {
	return lm.g.Rank()
}

func (lm *loggingMiddleware) WorldSize() int {
	return lm.g.WorldSize()
}

func (lm *loggingMiddleware) Broadcast(ctx context.Context, buf []float64, root int) (err error) {
	defer func(begin time.Time) {
		lm.log(ctx, "Broadcast", begin, err, slog.Int("root", root), slog.Int("len", len(buf)))
	}(time.Now())

	return lm.g.Broadcast(ctx, buf, root)
}

func (lm *loggingMiddleware) AllReduceSum(ctx context.Context, buf []float64) (out []float64, err error) {
	defer func(begin time.Time) {
		lm.log(ctx, "All-reduce", begin, err, slog.Int("len", len(buf)))
	}(time.Now())

	return lm.g.AllReduceSum(ctx, buf)
}

func (lm *loggingMiddleware) Gather(ctx context.Context, buf []float64, root int) (out [][]float64, err error) {
	defer func(begin time.Time) {
		lm.log(ctx, "Gather", begin, err, slog.Int("root", root), slog.Int("len", len(buf)))
	}(time.Now())

	return lm.g.Gather(ctx, buf, root)
}

func (lm *loggingMiddleware) Close() (err error) {
	defer func() {
		args := []any{slog.Int("rank", lm.g.Rank())}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Leave group failed", args...)

			return
		}
		lm.logger.Info("Left group", args...)
	}()

	return lm.g.Close()
}

func (lm *loggingMiddleware) log(ctx context.Context, name string, begin time.Time, err error, attrs ...any) {
	args := []any{
		slog.String("duration", time.Since(begin).String()),
		slog.Group("group",
			slog.Int("rank", lm.g.Rank()),
			slog.Int("world_size", lm.g.WorldSize()),
		),
	}
	args = append(args, attrs...)
	if err != nil {
		args = append(args, slog.Any("error", err))
		lm.logger.WarnContext(ctx, name+" failed", args...)

		return
	}
	lm.logger.DebugContext(ctx, name+" completed successfully", args...)
}

type metricsMiddleware struct {
	counter metrics.Counter
	latency metrics.Histogram
	g       Group
}

func Metrics(counter metrics.Counter, latency metrics.Histogram, g Group) Group {
	return &metricsMiddleware{
		counter: counter,
		latency: latency,
		g:       g,
	}
}

func (mm *metricsMiddleware) Rank() int {
	return mm.g.Rank()
}

func (mm *metricsMiddleware) WorldSize() int {
	return mm.g.WorldSize()
}

func (mm *metricsMiddleware) Broadcast(ctx context.Context, buf []float64, root int) error {
	defer func(begin time.Time) {
		mm.counter.With("method", "broadcast").Add(1)
		mm.latency.With("method", "broadcast").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.g.Broadcast(ctx, buf, root)
}

func (mm *metricsMiddleware) AllReduceSum(ctx context.Context, buf []float64) ([]float64, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "all-reduce").Add(1)
		mm.latency.With("method", "all-reduce").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.g.AllReduceSum(ctx, buf)
}

func (mm *metricsMiddleware) Gather(ctx context.Context, buf []float64, root int) ([][]float64, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "gather").Add(1)
		mm.latency.With("method", "gather").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.g.Gather(ctx, buf, root)
}

func (mm *metricsMiddleware) Close() error {
	return mm.g.Close()
}
