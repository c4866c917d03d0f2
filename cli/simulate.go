package cli

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/absmach/disttrain"
	"github.com/absmach/disttrain/pkg/collective"
	"github.com/absmach/disttrain/pkg/model"
	"github.com/absmach/disttrain/trainer"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// SimulateConfig describes an in-process job: every rank is a goroutine
// sharing a local collective group.
type SimulateConfig struct {
	WorldSize int
	Samples   int
	Dim       int
	Seed      uint64
	Training  trainer.Config
	Timeout   time.Duration
	Logger    *slog.Logger
	// NewModel builds the model of a rank. Nil selects a linear model
	// seeded with Seed+rank+1.
	NewModel func(rank, dim int) model.Model
}

type RankResult struct {
	Rank         int       `json:"rank"`
	Success      bool      `json:"success"`
	Status       string    `json:"status"`
	Attempts     int       `json:"attempts"`
	EpochsRun    int       `json:"epochs_run"`
	GlobalLoss   float64   `json:"global_loss"`
	EarlyStopped bool      `json:"early_stopped"`
	Parameters   []float64 `json:"parameters,omitempty"`
	Error        string    `json:"error,omitempty"`
}

func Simulate(ctx context.Context, cfg SimulateConfig) ([]RankResult, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	dataset, err := model.Synthetic(cfg.Samples, cfg.Dim, cfg.Seed)
	if err != nil {
		return nil, err
	}

	opts := []collective.LocalOption{}
	if cfg.Timeout > 0 {
		opts = append(opts, collective.WithTimeout(cfg.Timeout))
	}
	groups, err := collective.NewLocal(cfg.WorldSize, opts...)
	if err != nil {
		return nil, err
	}

	newModel := cfg.NewModel
	if newModel == nil {
		newModel = func(rank, dim int) model.Model {
			return model.NewLinear(dim, cfg.Training.LearningRate, cfg.Seed+uint64(rank)+1)
		}
	}

	jobID := uuid.NewString()
	results := make([]RankResult, len(groups))

	var wg sync.WaitGroup
	for r, g := range groups {
		svc := trainer.NewService(g, newModel(r, dataset.Dim()), dataset, cfg.Training,
			trainer.WithJobID(jobID),
			trainer.WithLogger(logger.With(slog.Int("rank", r))),
		)

		wg.Add(1)
		go func() {
			defer wg.Done()

			out := svc.TrainWithRetries(ctx, cfg.Training.MaxRetries)
			if !out.Success {
				// Peers still in a collective call fail now instead of
				// waiting for this rank until the timeout.
				g.Close()
			}
			res := RankResult{
				Rank:         r,
				Success:      out.Success,
				Status:       out.Status.String(),
				Attempts:     out.Attempts,
				EpochsRun:    out.Report.EpochsRun,
				GlobalLoss:   out.Report.GlobalLoss,
				EarlyStopped: out.Report.EarlyStopped,
				Parameters:   out.Report.Parameters,
			}
			if out.Err != nil {
				res.Error = out.Err.Error()
			}
			results[r] = res
		}()
	}
	wg.Wait()

	for _, g := range groups {
		g.Close()
	}

	return results, nil
}

func NewSimulateCmd() *cobra.Command {
	def := disttrain.DefaultConfig()
	var (
		configPath string
		worldSize  = def.Job.WorldSize
		samples    = def.Dataset.Samples
		dim        = def.Dataset.Dim
		seed       = def.Dataset.Seed
		epochs     = def.Training.Epochs
		batchSize  = def.Training.BatchSize
		lr         = def.Training.LearningRate
		patience   = def.Training.Patience
		retries    = def.Training.MaxRetries
		weighting  = def.Training.Weighting
		timeout    = 30 * time.Second
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Simulate a training job",
		Long: `Run every rank of a training job in this process on synthetic data.

Examples:
  # Four ranks, sample weighted aggregation
  disttrain-cli simulate --world-size 4 --weighting weighted

  # Take the job from a file, flags still override it
  disttrain-cli simulate --config job.toml --epochs 10`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 0 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			job := def
			if configPath != "" {
				c, err := disttrain.LoadConfig(configPath)
				if err != nil {
					logErrorCmd(*cmd, err)

					return
				}
				job = *c
			}
			// Flags override the job file only when given explicitly.
			flags := cmd.Flags()
			set := func(name string) bool {
				return configPath == "" || flags.Changed(name)
			}
			if set("world-size") {
				job.Job.WorldSize = worldSize
			}
			if set("samples") {
				job.Dataset.Samples = samples
			}
			if set("dim") {
				job.Dataset.Dim = dim
			}
			if set("seed") {
				job.Dataset.Seed = seed
			}
			if set("epochs") {
				job.Training.Epochs = epochs
			}
			if set("batch-size") {
				job.Training.BatchSize = batchSize
			}
			if set("learning-rate") {
				job.Training.LearningRate = lr
			}
			if set("patience") {
				job.Training.Patience = patience
			}
			if set("retries") {
				job.Training.MaxRetries = retries
			}
			if set("weighting") {
				job.Training.Weighting = weighting
			}

			tc, err := job.Training.Trainer()
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}

			var logger *slog.Logger
			if verbose {
				logger = slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), nil))
			}

			results, err := Simulate(cmd.Context(), SimulateConfig{
				WorldSize: job.Job.WorldSize,
				Samples:   job.Dataset.Samples,
				Dim:       job.Dataset.Dim,
				Seed:      job.Dataset.Seed,
				Training:  tc,
				Timeout:   timeout,
				Logger:    logger,
			})
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, results)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&configPath, "config", "c", "", "Job file")
	flags.IntVarP(&worldSize, "world-size", "w", worldSize, "Number of ranks")
	flags.IntVar(&samples, "samples", samples, "Number of synthetic samples")
	flags.IntVar(&dim, "dim", dim, "Feature dimension")
	flags.Uint64Var(&seed, "seed", seed, "Dataset seed")
	flags.IntVarP(&epochs, "epochs", "e", epochs, "Maximum number of epochs")
	flags.IntVarP(&batchSize, "batch-size", "b", batchSize, "Batch size")
	flags.Float64Var(&lr, "learning-rate", lr, "Learning rate")
	flags.IntVar(&patience, "patience", patience, "Epochs without improvement before stopping")
	flags.IntVar(&retries, "retries", retries, "Maximum number of attempts")
	flags.StringVar(&weighting, "weighting", weighting, "Aggregation weighting: uniform or weighted")
	flags.DurationVar(&timeout, "timeout", timeout, "Collective call timeout")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Log training progress to stderr")

	return cmd
}
