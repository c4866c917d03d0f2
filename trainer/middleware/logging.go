package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/absmach/disttrain/run"
	"github.com/absmach/disttrain/trainer"
)

var _ trainer.Service = (*loggingMiddleware)(nil)

type loggingMiddleware struct {
	logger *slog.Logger
	svc    trainer.Service
}

func Logging(logger *slog.Logger, svc trainer.Service) trainer.Service {
	return &loggingMiddleware{
		logger: logger,
		svc:    svc,
	}
}

func (lm *loggingMiddleware) SynchronizeModelParameters(ctx context.Context) (err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Synchronize model parameters failed", args...)

			return
		}
		lm.logger.Info("Synchronize model parameters completed successfully", args...)
	}(time.Now())

	return lm.svc.SynchronizeModelParameters(ctx)
}

func (lm *loggingMiddleware) Train(ctx context.Context) (resp trainer.Report, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("report",
				slog.Int("epochs_run", resp.EpochsRun),
				slog.Float64("global_loss", resp.GlobalLoss),
				slog.Bool("early_stopped", resp.EarlyStopped),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Train failed", args...)

			return
		}
		lm.logger.Info("Train completed successfully", args...)
	}(time.Now())

	return lm.svc.Train(ctx)
}

func (lm *loggingMiddleware) TrainWithRetries(ctx context.Context, maxRetries int) (out trainer.Outcome) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Int("max_retries", maxRetries),
			slog.Group("outcome",
				slog.String("status", out.Status.String()),
				slog.Int("attempts", out.Attempts),
				slog.Int("epochs_run", out.Report.EpochsRun),
			),
		}
		if !out.Success {
			args = append(args, slog.Any("error", out.Err))
			lm.logger.Warn("Train with retries failed", args...)

			return
		}
		lm.logger.Info("Train with retries completed successfully", args...)
	}(time.Now())

	return lm.svc.TrainWithRetries(ctx, maxRetries)
}

func (lm *loggingMiddleware) Status() trainer.Status {
	return lm.svc.Status()
}

func (lm *loggingMiddleware) Info() trainer.Info {
	return lm.svc.Info()
}

func (lm *loggingMiddleware) GatherResults(ctx context.Context) (resp [][]float64, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Int("partitions", len(resp)),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Gather results failed", args...)

			return
		}
		lm.logger.Info("Gather results completed successfully", args...)
	}(time.Now())

	return lm.svc.GatherResults(ctx)
}

func (lm *loggingMiddleware) ListRuns(ctx context.Context, offset, limit uint64) (resp run.RunPage, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Uint64("offset", offset),
			slog.Uint64("limit", limit),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("List runs failed", args...)

			return
		}
		lm.logger.Info("List runs completed successfully", args...)
	}(time.Now())

	return lm.svc.ListRuns(ctx, offset, limit)
}

func (lm *loggingMiddleware) GetRun(ctx context.Context, id string) (resp run.Run, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("run",
				slog.String("id", id),
				slog.String("name", resp.Name),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Get run failed", args...)

			return
		}
		lm.logger.Info("Get run completed successfully", args...)
	}(time.Now())

	return lm.svc.GetRun(ctx, id)
}
