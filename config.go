package disttrain

import (
	"fmt"
	"os"
	"time"

	"github.com/absmach/disttrain/trainer"
	"github.com/pelletier/go-toml"
)

// Config is a training job file shared by the CLI commands.
type Config struct {
	Job        JobConfig        `toml:"job"`
	Training   TrainingConfig   `toml:"training"`
	Dataset    DatasetConfig    `toml:"dataset"`
	MQTT       MQTTConfig       `toml:"mqtt"`
	Kubernetes KubernetesConfig `toml:"kubernetes"`
}

type JobConfig struct {
	Name      string `toml:"name"`
	ID        string `toml:"id"`
	WorldSize int    `toml:"world_size"`
}

type TrainingConfig struct {
	LearningRate float64 `toml:"learning_rate"`
	Epochs       int     `toml:"epochs"`
	BatchSize    int     `toml:"batch_size"`
	Patience     int     `toml:"patience"`
	MaxRetries   int     `toml:"max_retries"`
	BackoffUnit  string  `toml:"backoff_unit"`
	Weighting    string  `toml:"weighting"`
}

type DatasetConfig struct {
	Samples int    `toml:"samples"`
	Dim     int    `toml:"dim"`
	Seed    uint64 `toml:"seed"`
}

type MQTTConfig struct {
	Address   string `toml:"address"`
	BaseTopic string `toml:"base_topic"`
}

type KubernetesConfig struct {
	Namespace string `toml:"namespace"`
	Image     string `toml:"image"`
}

func DefaultConfig() Config {
	tc := trainer.DefaultConfig()

	return Config{
		Job: JobConfig{
			Name:      "disttrain",
			WorldSize: 2,
		},
		Training: TrainingConfig{
			LearningRate: tc.LearningRate,
			Epochs:       tc.Epochs,
			BatchSize:    tc.BatchSize,
			Patience:     tc.Patience,
			MaxRetries:   tc.MaxRetries,
			BackoffUnit:  tc.BackoffUnit.String(),
			Weighting:    tc.Weighting,
		},
		Dataset: DatasetConfig{
			Samples: 1000,
			Dim:     4,
			Seed:    42,
		},
		MQTT: MQTTConfig{
			Address:   "tcp://localhost:1883",
			BaseTopic: "disttrain",
		},
		Kubernetes: KubernetesConfig{
			Namespace: "default",
			Image:     "ghcr.io/absmach/disttrain:latest",
		},
	}
}

// Trainer converts the file's training section. An empty backoff unit
// selects the default.
func (c TrainingConfig) Trainer() (trainer.Config, error) {
	cfg := trainer.Config{
		LearningRate: c.LearningRate,
		Epochs:       c.Epochs,
		BatchSize:    c.BatchSize,
		Patience:     c.Patience,
		MaxRetries:   c.MaxRetries,
		BackoffUnit:  trainer.DefaultBackoffUnit,
		Weighting:    c.Weighting,
	}
	if c.BackoffUnit != "" {
		d, err := time.ParseDuration(c.BackoffUnit)
		if err != nil {
			return trainer.Config{}, fmt.Errorf("invalid backoff unit %q: %w", c.BackoffUnit, err)
		}
		cfg.BackoffUnit = d
	}

	return cfg, nil
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	tree, err := toml.Load(string(data))
	if err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := tree.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &cfg, nil
}

func SaveConfig(path string, cfg Config) error {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}
