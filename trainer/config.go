package trainer

import (
	"log/slog"
	"math"
	"time"

	"github.com/absmach/disttrain/pkg/aggregate"
	"github.com/absmach/disttrain/pkg/earlystop"
)

const (
	DefaultLearningRate = 0.01
	DefaultEpochs       = 100
	DefaultBatchSize    = 32
	DefaultMaxRetries   = 3
	DefaultBackoffUnit  = time.Second
)

type Config struct {
	LearningRate float64       `env:"LEARNING_RATE" envDefault:"0.01" json:"learning_rate" toml:"learning_rate"`
	Epochs       int           `env:"EPOCHS"        envDefault:"100"  json:"epochs"        toml:"epochs"`
	BatchSize    int           `env:"BATCH_SIZE"    envDefault:"32"   json:"batch_size"    toml:"batch_size"`
	Patience     int           `env:"PATIENCE"      envDefault:"3"    json:"patience"      toml:"patience"`
	MaxRetries   int           `env:"MAX_RETRIES"   envDefault:"3"    json:"max_retries"   toml:"max_retries"`
	BackoffUnit  time.Duration `env:"BACKOFF_UNIT"  envDefault:"1s"   json:"backoff_unit"  toml:"backoff_unit"`
	Weighting    string        `env:"WEIGHTING"     envDefault:"uniform" json:"weighting"  toml:"weighting"`
}

func DefaultConfig() Config {
	return Config{
		LearningRate: DefaultLearningRate,
		Epochs:       DefaultEpochs,
		BatchSize:    DefaultBatchSize,
		Patience:     earlystop.DefaultPatience,
		MaxRetries:   DefaultMaxRetries,
		BackoffUnit:  DefaultBackoffUnit,
		Weighting:    aggregate.Uniform.String(),
	}
}

// Normalize replaces invalid values with safe ones instead of rejecting the
// configuration. Every replacement is logged.
func (c Config) Normalize(logger *slog.Logger) Config {
	if math.IsNaN(c.LearningRate) || c.LearningRate <= 0 || c.LearningRate > 1 {
		logger.Warn("learning rate out of (0, 1], using default", slog.Float64("given", c.LearningRate), slog.Float64("used", DefaultLearningRate))
		c.LearningRate = DefaultLearningRate
	}
	if c.Epochs < 1 {
		logger.Warn("epochs below 1, using 1", slog.Int("given", c.Epochs))
		c.Epochs = 1
	}
	if c.BatchSize < 1 {
		logger.Warn("batch size below 1, using 1", slog.Int("given", c.BatchSize))
		c.BatchSize = 1
	}
	if c.Patience < 1 {
		logger.Warn("patience below 1, using default", slog.Int("given", c.Patience), slog.Int("used", earlystop.DefaultPatience))
		c.Patience = earlystop.DefaultPatience
	}
	if c.MaxRetries < 1 {
		logger.Warn("max retries below 1, using default", slog.Int("given", c.MaxRetries), slog.Int("used", DefaultMaxRetries))
		c.MaxRetries = DefaultMaxRetries
	}
	if c.BackoffUnit <= 0 {
		logger.Warn("backoff unit not positive, using default", slog.Duration("given", c.BackoffUnit), slog.Duration("used", DefaultBackoffUnit))
		c.BackoffUnit = DefaultBackoffUnit
	}
	if p, err := aggregate.ParsePolicy(c.Weighting); err != nil {
		logger.Warn("unknown weighting, using uniform", slog.String("given", c.Weighting))
		c.Weighting = aggregate.Uniform.String()
	} else {
		c.Weighting = p.String()
	}

	return c
}

func (c Config) policy() aggregate.Policy {
	p, err := aggregate.ParsePolicy(c.Weighting)
	if err != nil {
		return aggregate.Uniform
	}

	return p
}
