package trainer

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/0x6flab/namegenerator"
	"github.com/absmach/disttrain/pkg/aggregate"
	"github.com/absmach/disttrain/pkg/collective"
	"github.com/absmach/disttrain/pkg/earlystop"
	"github.com/absmach/disttrain/pkg/errors"
	"github.com/absmach/disttrain/pkg/metrics"
	"github.com/absmach/disttrain/pkg/model"
	"github.com/absmach/disttrain/pkg/partition"
	"github.com/absmach/disttrain/pkg/storage"
	"github.com/absmach/disttrain/run"
	"github.com/google/uuid"
	"gonum.org/v1/gonum/floats"
)

const rootRank = 0

var namegen = namegenerator.NewGenerator()

type service struct {
	group   collective.Group
	model   model.Model
	dataset model.Dataset
	cfg     Config
	agg     *aggregate.Aggregator
	jobID   string
	logger  *slog.Logger
	sink    metrics.Sink
	runs    storage.RunRepository
	sleep   func(ctx context.Context, d time.Duration) error
	now     func() time.Time

	mu           sync.Mutex
	status       Status
	currentEpoch int
	attempts     int
	globalLoss   float64
	lastErr      error
	updatedAt    time.Time
	current      run.Run
}

type Option func(*service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		s.logger = logger
	}
}

func WithSink(sink metrics.Sink) Option {
	return func(s *service) {
		s.sink = sink
	}
}

func WithRunRepository(repo storage.RunRepository) Option {
	return func(s *service) {
		s.runs = repo
	}
}

func WithJobID(id string) Option {
	return func(s *service) {
		s.jobID = id
	}
}

// WithSleep replaces the wait between retries.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(s *service) {
		s.sleep = sleep
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *service) {
		s.now = now
	}
}

// NewService prepares training of m on this rank's share of dataset. Invalid
// configuration values are clamped, see Config.Normalize. A model.Tunable
// model is set to the clamped learning rate.
func NewService(group collective.Group, m model.Model, dataset model.Dataset, cfg Config, opts ...Option) Service {
	svc := &service{
		group:   group,
		model:   m,
		dataset: dataset,
		jobID:   uuid.NewString(),
		logger:  slog.Default(),
		runs:    storage.NewInMemoryRunRepository(),
		sleep:   sleep,
		now:     time.Now,
		status:  NotStarted,
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.sink == nil {
		svc.sink = metrics.NewLogSink(svc.logger)
	}

	svc.cfg = cfg.Normalize(svc.logger)
	if t, ok := m.(model.Tunable); ok {
		t.SetLearningRate(svc.cfg.LearningRate)
	}
	svc.agg = aggregate.New(group, svc.cfg.policy())
	svc.updatedAt = svc.now()

	return svc
}

func (svc *service) SynchronizeModelParameters(ctx context.Context) error {
	params := svc.model.Parameters()
	if err := svc.group.Broadcast(ctx, params, rootRank); err != nil {
		return err
	}

	return svc.model.SetParameters(params)
}

func (svc *service) Train(ctx context.Context) (Report, error) {
	svc.enter()

	report, err := svc.attempt(ctx)

	svc.finish(err)

	return report, err
}

// attempt runs one attempt and records it as a run. The service status is
// left to the caller.
func (svc *service) attempt(ctx context.Context) (Report, error) {
	svc.begin(ctx)

	report, err := svc.train(ctx)

	svc.end(ctx, report, err)

	return report, err
}

func (svc *service) train(ctx context.Context) (Report, error) {
	rank := svc.group.Rank()

	start, end, err := partition.Range(svc.dataset.Len(), svc.group.WorldSize(), rank)
	if err != nil {
		return Report{}, fmt.Errorf("rank %d: %w", rank, errors.Wrap(errors.Fatal, err))
	}
	policy := earlystop.New(svc.cfg.Patience)

	if err := svc.SynchronizeModelParameters(ctx); err != nil {
		return Report{}, fmt.Errorf("rank %d: synchronize parameters: %w", rank, err)
	}

	batches := partition.Batches(end-start, svc.cfg.BatchSize)
	weighted := svc.agg.Policy() == aggregate.SampleWeighted

	var report Report
	for epoch := range svc.cfg.Epochs {
		n := len(svc.model.Parameters())
		gradSum := make([]float64, n)
		var lossSum float64

		for _, b := range batches {
			grad, loss, err := svc.model.Compute(svc.dataset.Window(start+b.Start, start+b.End))
			if err != nil {
				return report, fmt.Errorf("rank %d epoch %d: %w", rank, epoch, err)
			}
			if len(grad) != n {
				return report, fmt.Errorf("rank %d epoch %d: %w: gradient has %d values, model has %d parameters", rank, epoch, errors.ErrDimensionMismatch, len(grad), n)
			}
			if weighted {
				floats.AddScaled(gradSum, float64(b.Len()), grad)
				lossSum += float64(b.Len()) * loss

				continue
			}
			floats.Add(gradSum, grad)
			lossSum += loss
		}

		// Weighted contributions are per-sample means of the partition.
		if weighted && end > start {
			floats.Scale(1/float64(end-start), gradSum)
			lossSum /= float64(end - start)
		}

		res, err := svc.agg.Aggregate(ctx, aggregate.Contribution{
			Gradient: gradSum,
			Loss:     lossSum,
			Samples:  end - start,
		})
		if err != nil {
			return report, fmt.Errorf("rank %d epoch %d: %w", rank, epoch, err)
		}
		if math.IsNaN(res.Loss) || math.IsInf(res.Loss, 0) {
			return report, fmt.Errorf("rank %d epoch %d: %w", rank, epoch, errors.Wrap(errors.Fatal, errors.ErrNonFiniteLoss))
		}

		if err := svc.model.ApplyUpdate(res.Gradient, res.Loss); err != nil {
			return report, fmt.Errorf("rank %d epoch %d: %w", rank, epoch, err)
		}

		e := metrics.Epoch{
			JobID:        svc.jobID,
			Rank:         rank,
			Epoch:        epoch,
			GlobalLoss:   res.Loss,
			GradientNorm: floats.Norm(res.Gradient, 2),
			Timestamp:    svc.now(),
		}
		if err := svc.sink.Record(ctx, e); err != nil {
			svc.logger.Warn("failed to record epoch metrics", slog.Int("epoch", epoch), slog.Any("error", err))
		}

		stop := policy.ShouldStop(res.Loss)

		report.EpochsRun = epoch + 1
		report.GlobalLoss = res.Loss
		report.BestLoss = policy.State().BestLoss
		svc.progress(ctx, report)

		if stop {
			report.EarlyStopped = true
			svc.logger.Info("early stopping", slog.Int("rank", rank), slog.Int("epoch", epoch), slog.Float64("best_loss", report.BestLoss))

			break
		}
	}
	report.Parameters = svc.model.Parameters()

	return report, nil
}

func (svc *service) Status() Status {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	return svc.status
}

func (svc *service) Info() Info {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	local := 0
	if start, end, err := partition.Range(svc.dataset.Len(), svc.group.WorldSize(), svc.group.Rank()); err == nil {
		local = end - start
	}
	info := Info{
		JobID:         svc.jobID,
		Rank:          svc.group.Rank(),
		WorldSize:     svc.group.WorldSize(),
		LocalDataSize: local,
		TotalDataSize: svc.dataset.Len(),
		Config:        svc.cfg,
		Status:        svc.status,
		CurrentEpoch:  svc.currentEpoch,
		Attempts:      svc.attempts,
		GlobalLoss:    svc.globalLoss,
		UpdatedAt:     svc.updatedAt,
	}
	if svc.lastErr != nil {
		info.LastError = svc.lastErr.Error()
	}

	return info
}

func (svc *service) GatherResults(ctx context.Context) ([][]float64, error) {
	rank := svc.group.Rank()

	var predictions []float64
	if start, end, err := partition.Range(svc.dataset.Len(), svc.group.WorldSize(), rank); err == nil {
		window := svc.dataset.Window(start, end)
		predictions = make([]float64, 0, window.Len())
		for _, x := range window.Features {
			y, err := svc.model.Predict(x)
			if err != nil {
				return nil, fmt.Errorf("rank %d: %w", rank, err)
			}
			predictions = append(predictions, y)
		}
	}

	return svc.group.Gather(ctx, predictions, rootRank)
}

func (svc *service) ListRuns(ctx context.Context, offset, limit uint64) (run.RunPage, error) {
	runs, total, err := svc.runs.List(ctx, offset, limit)
	if err != nil {
		return run.RunPage{}, err
	}

	return run.RunPage{
		Offset: offset,
		Limit:  limit,
		Total:  total,
		Runs:   runs,
	}, nil
}

func (svc *service) GetRun(ctx context.Context, id string) (run.Run, error) {
	return svc.runs.Get(ctx, id)
}

// enter starts a new training run. A service left Completed or Failed by an
// earlier run is reset to NotStarted first.
func (svc *service) enter() {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	if svc.status.Terminal() {
		svc.status = NotStarted
	}
	svc.transition(InProgress)
	svc.lastErr = nil
	svc.updatedAt = svc.now()
}

// finish moves the run to its terminal status.
func (svc *service) finish(err error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	if err != nil {
		svc.transition(Failed)
		svc.lastErr = err
	} else {
		svc.transition(Completed)
	}
	svc.updatedAt = svc.now()
}

// transition must be called with mu held.
func (svc *service) transition(to Status) {
	if !svc.status.CanTransition(to) {
		svc.logger.Error("invalid status transition", slog.String("from", svc.status.String()), slog.String("to", to.String()))

		return
	}
	svc.status = to
}

// begin registers the run of a fresh attempt.
func (svc *service) begin(ctx context.Context) {
	now := svc.now()

	svc.mu.Lock()
	svc.attempts++
	svc.currentEpoch = 0
	svc.globalLoss = 0
	svc.updatedAt = now
	svc.current = run.Run{
		ID:        uuid.Must(uuid.NewV7()).String(),
		JobID:     svc.jobID,
		Name:      namegen.Generate(),
		Rank:      svc.group.Rank(),
		WorldSize: svc.group.WorldSize(),
		Attempt:   svc.attempts,
		Status:    InProgress.String(),
		Progress:  run.ProgressPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r := svc.current
	svc.mu.Unlock()

	if _, err := svc.runs.Create(ctx, r); err != nil {
		svc.logger.Warn("failed to register run", slog.String("run_id", r.ID), slog.Any("error", err))
	}
}

func (svc *service) progress(ctx context.Context, report Report) {
	now := svc.now()

	svc.mu.Lock()
	svc.currentEpoch = report.EpochsRun
	svc.globalLoss = report.GlobalLoss
	svc.updatedAt = now
	svc.current.EpochsRun = report.EpochsRun
	svc.current.Progress = 100 * report.EpochsRun / svc.cfg.Epochs
	svc.current.GlobalLoss = finite(report.GlobalLoss)
	svc.current.BestLoss = finite(report.BestLoss)
	svc.current.UpdatedAt = now
	r := svc.current
	svc.mu.Unlock()

	svc.saveRun(ctx, r)
}

// end records the outcome of an attempt on its run.
func (svc *service) end(ctx context.Context, report Report, err error) {
	now := svc.now()

	svc.mu.Lock()
	svc.updatedAt = now
	svc.current.UpdatedAt = now
	if err != nil {
		svc.lastErr = err
		svc.current.Status = Failed.String()
		svc.current.Error = err.Error()
	} else {
		svc.current.Status = Completed.String()
		svc.current.Progress = run.ProgressCompleted
		svc.current.EarlyStopped = report.EarlyStopped
	}
	r := svc.current
	svc.mu.Unlock()

	svc.saveRun(ctx, r)
}

func (svc *service) saveRun(ctx context.Context, r run.Run) {
	if err := svc.runs.Update(context.WithoutCancel(ctx), r); err != nil {
		svc.logger.Warn("failed to update run", slog.String("run_id", r.ID), slog.Any("error", err))
	}
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}

	return v
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
