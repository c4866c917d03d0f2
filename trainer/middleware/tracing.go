package middleware

import (
	"context"

	"github.com/absmach/disttrain/run"
	"github.com/absmach/disttrain/trainer"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var _ trainer.Service = (*tracing)(nil)

type tracing struct {
	tracer trace.Tracer
	svc    trainer.Service
}

func Tracing(tracer trace.Tracer, svc trainer.Service) trainer.Service {
	return &tracing{tracer, svc}
}

func (tm *tracing) SynchronizeModelParameters(ctx context.Context) error {
	ctx, span := tm.tracer.Start(ctx, "synchronize-model-parameters")
	defer span.End()

	return tm.svc.SynchronizeModelParameters(ctx)
}

func (tm *tracing) Train(ctx context.Context) (resp trainer.Report, err error) {
	info := tm.svc.Info()
	ctx, span := tm.tracer.Start(ctx, "train", trace.WithAttributes(
		attribute.String("job_id", info.JobID),
		attribute.Int("rank", info.Rank),
		attribute.Int("world_size", info.WorldSize),
	))
	defer span.End()

	resp, err = tm.svc.Train(ctx)
	span.SetAttributes(attribute.Int("epochs_run", resp.EpochsRun))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "training failed")
	}

	return resp, err
}

func (tm *tracing) TrainWithRetries(ctx context.Context, maxRetries int) trainer.Outcome {
	ctx, span := tm.tracer.Start(ctx, "train-with-retries", trace.WithAttributes(
		attribute.Int("max_retries", maxRetries),
	))
	defer span.End()

	out := tm.svc.TrainWithRetries(ctx, maxRetries)
	span.SetAttributes(
		attribute.Int("attempts", out.Attempts),
		attribute.String("status", out.Status.String()),
	)
	if out.Err != nil {
		span.RecordError(out.Err)
		span.SetStatus(codes.Error, "training failed")
	}

	return out
}

func (tm *tracing) Status() trainer.Status {
	return tm.svc.Status()
}

func (tm *tracing) Info() trainer.Info {
	return tm.svc.Info()
}

func (tm *tracing) GatherResults(ctx context.Context) ([][]float64, error) {
	ctx, span := tm.tracer.Start(ctx, "gather-results")
	defer span.End()

	return tm.svc.GatherResults(ctx)
}

func (tm *tracing) ListRuns(ctx context.Context, offset, limit uint64) (resp run.RunPage, err error) {
	ctx, span := tm.tracer.Start(ctx, "list-runs", trace.WithAttributes(
		attribute.Int64("offset", int64(offset)),
		attribute.Int64("limit", int64(limit)),
	))
	defer span.End()

	return tm.svc.ListRuns(ctx, offset, limit)
}

func (tm *tracing) GetRun(ctx context.Context, id string) (resp run.Run, err error) {
	ctx, span := tm.tracer.Start(ctx, "get-run", trace.WithAttributes(
		attribute.String("id", id),
	))
	defer span.End()

	return tm.svc.GetRun(ctx, id)
}
