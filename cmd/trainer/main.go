package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/url"
	"os"
	"time"

	"github.com/absmach/disttrain/pkg/collective"
	"github.com/absmach/disttrain/pkg/metrics"
	"github.com/absmach/disttrain/pkg/model"
	"github.com/absmach/disttrain/pkg/mqtt"
	"github.com/absmach/disttrain/pkg/storage"
	"github.com/absmach/disttrain/trainer"
	"github.com/absmach/disttrain/trainer/api"
	"github.com/absmach/disttrain/trainer/middleware"
	"github.com/absmach/supermq/pkg/jaeger"
	"github.com/absmach/supermq/pkg/prometheus"
	"github.com/absmach/supermq/pkg/server"
	httpserver "github.com/absmach/supermq/pkg/server/http"
	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	promclient "github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"
)

const (
	svcName     = "trainer"
	defHTTPPort = "9090"
	envPrefix   = "DISTTRAIN_"
	pathEnv     = ".env"
)

type envConfig struct {
	LogLevel   string  `env:"DISTTRAIN_LOG_LEVEL"   envDefault:"info"`
	InstanceID string  `env:"DISTTRAIN_INSTANCE_ID"`
	JobID      string  `env:"DISTTRAIN_JOB_ID"`
	Rank       int     `env:"DISTTRAIN_RANK"        envDefault:"0"`
	WorldSize  int     `env:"DISTTRAIN_WORLD_SIZE"  envDefault:"1"`
	KeepAlive  bool    `env:"DISTTRAIN_KEEP_ALIVE"  envDefault:"false"`
	OTELURL    url.URL `env:"DISTTRAIN_OTEL_URL"`
	TraceRatio float64 `env:"DISTTRAIN_TRACE_RATIO" envDefault:"0"`
}

type datasetConfig struct {
	Samples int    `env:"SAMPLES" envDefault:"1000"`
	Dim     int    `env:"DIM"     envDefault:"4"`
	Seed    uint64 `env:"SEED"    envDefault:"42"`
}

func main() {
	exitCode := 0
	defer func() {
		os.Exit(exitCode)
	}()

	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)

	if _, err := os.Stat(pathEnv); err == nil {
		_ = godotenv.Load(pathEnv)
	}

	cfg := envConfig{}
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("failed to load configuration : %s", err.Error())
	}
	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()
	}
	if cfg.JobID == "" {
		cfg.JobID = uuid.NewString()
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		log.Fatalf("failed to parse log level: %s", err.Error())
	}
	logHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})
	logger := slog.New(logHandler).With(slog.String("job_id", cfg.JobID), slog.Int("rank", cfg.Rank))
	slog.SetDefault(logger)

	trainCfg := trainer.Config{}
	if err := env.ParseWithOptions(&trainCfg, env.Options{Prefix: envPrefix + "TRAIN_"}); err != nil {
		logger.Error("failed to load training configuration", slog.Any("error", err))

		return
	}
	dsCfg := datasetConfig{}
	if err := env.ParseWithOptions(&dsCfg, env.Options{Prefix: envPrefix + "DATASET_"}); err != nil {
		logger.Error("failed to load dataset configuration", slog.Any("error", err))

		return
	}
	groupCfg := collective.MQTTConfig{}
	if err := env.ParseWithOptions(&groupCfg, env.Options{Prefix: envPrefix + "COLLECTIVE_"}); err != nil {
		logger.Error("failed to load collective configuration", slog.Any("error", err))

		return
	}
	groupCfg.Rank = cfg.Rank
	groupCfg.WorldSize = cfg.WorldSize

	mqttCfg := mqtt.Config{}
	if err := env.ParseWithOptions(&mqttCfg, env.Options{Prefix: envPrefix + "MQTT_"}); err != nil {
		logger.Error("failed to load mqtt configuration", slog.Any("error", err))

		return
	}
	if mqttCfg.ClientID == "" {
		mqttCfg.ClientID = fmt.Sprintf("%s-%s-%d", svcName, cfg.JobID, cfg.Rank)
	}
	mqttCfg.WillTopic = collective.StatusTopic(groupCfg.BaseTopic, cfg.Rank)
	mqttCfg.WillPayload = collective.OfflineNotice(cfg.Rank)

	storageCfg := storage.Config{}
	if err := env.ParseWithOptions(&storageCfg, env.Options{Prefix: envPrefix + "STORAGE_"}); err != nil {
		logger.Error("failed to load storage configuration", slog.Any("error", err))

		return
	}

	var tp trace.TracerProvider
	switch {
	case cfg.OTELURL == (url.URL{}):
		tp = noop.NewTracerProvider()
	default:
		sdktp, err := jaeger.NewProvider(ctx, svcName, cfg.OTELURL, cfg.InstanceID, cfg.TraceRatio)
		if err != nil {
			logger.Error("failed to initialize opentelemetry", slog.String("error", err.Error()))

			return
		}
		defer func() {
			if err := sdktp.Shutdown(context.WithoutCancel(ctx)); err != nil {
				logger.Error("error shutting down tracer provider", slog.Any("error", err))
			}
		}()
		tp = sdktp
	}
	tracer := tp.Tracer(svcName)

	dataset, err := model.Synthetic(dsCfg.Samples, dsCfg.Dim, dsCfg.Seed)
	if err != nil {
		logger.Error("failed to build dataset", slog.Any("error", err))

		return
	}

	repos, err := storage.NewRepositories(storageCfg)
	if err != nil {
		logger.Error("failed to initialize storage", slog.Any("error", err))

		return
	}
	if repos.Closer != nil {
		defer repos.Closer.Close()
	}

	pubsub, err := mqtt.NewPubSub(mqttCfg, logger)
	if err != nil {
		logger.Error("failed to initialize mqtt pubsub", slog.String("error", err.Error()))

		return
	}
	defer func() {
		if err := pubsub.Disconnect(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("failed to disconnect from mqtt broker", slog.Any("error", err))
		}
	}()

	group, err := collective.NewMQTT(ctx, pubsub, groupCfg, logger)
	if err != nil {
		logger.Error("failed to form collective group", slog.Any("error", err))

		return
	}
	group = collective.Logging(logger, group)
	groupCounter, groupLatency := prometheus.MakeMetrics("collective", "group")
	group = collective.Metrics(groupCounter, groupLatency, group)
	defer group.Close()

	promSink, err := metrics.NewPrometheusSink(promclient.DefaultRegisterer)
	if err != nil {
		logger.Error("failed to register epoch metrics", slog.Any("error", err))

		return
	}
	sink := metrics.Fanout(
		metrics.NewLogSink(logger),
		promSink,
		metrics.NewMQTTSink(pubsub, fmt.Sprintf("%s/metrics/%d", groupCfg.BaseTopic, cfg.Rank)),
	)

	m := model.NewLinear(dataset.Dim(), trainCfg.LearningRate, uint64(cfg.Rank)+1)

	var svc trainer.Service
	svc = trainer.NewService(group, m, dataset, trainCfg,
		trainer.WithLogger(logger),
		trainer.WithSink(sink),
		trainer.WithRunRepository(repos.Runs),
		trainer.WithJobID(cfg.JobID),
	)
	svc = middleware.Logging(logger, svc)
	svc = middleware.Tracing(tracer, svc)
	counter, latency := prometheus.MakeMetrics(svcName, "api")
	svc = middleware.Metrics(counter, latency, svc)

	httpServerConfig := server.Config{Port: defHTTPPort}
	if err := env.ParseWithOptions(&httpServerConfig, env.Options{Prefix: envPrefix + "HTTP_"}); err != nil {
		logger.Error(fmt.Sprintf("failed to load %s HTTP server configuration : %s", svcName, err.Error()))

		return
	}

	hs := httpserver.NewServer(ctx, cancel, svcName, httpServerConfig, api.MakeHandler(svc, logger, cfg.InstanceID), logger)

	g.Go(func() error {
		return hs.Start()
	})

	g.Go(func() error {
		return server.StopSignalHandler(ctx, cancel, logger, svcName, hs)
	})

	g.Go(func() error {
		return train(ctx, cancel, svc, trainCfg.MaxRetries, cfg.KeepAlive, logger)
	})

	if err := g.Wait(); err != nil {
		logger.Error(fmt.Sprintf("%s service exited with error: %s", svcName, err))
		exitCode = 1
	}
}

// train runs the job, gathers predictions at rank 0 and, unless keepAlive is
// set, stops the process once training is over.
func train(ctx context.Context, cancel context.CancelFunc, svc trainer.Service, maxRetries int, keepAlive bool, logger *slog.Logger) error {
	if !keepAlive {
		defer cancel()
	}

	start := time.Now()
	out := svc.TrainWithRetries(ctx, maxRetries)
	if !out.Success {
		return fmt.Errorf("training failed after %d attempts: %w", out.Attempts, out.Err)
	}

	results, err := svc.GatherResults(ctx)
	if err != nil {
		return fmt.Errorf("failed to gather results: %w", err)
	}
	if results != nil {
		predictions := 0
		for _, part := range results {
			predictions += len(part)
		}
		logger.Info("training finished",
			slog.String("duration", time.Since(start).String()),
			slog.Int("epochs_run", out.Report.EpochsRun),
			slog.Float64("global_loss", out.Report.GlobalLoss),
			slog.Int("predictions", predictions),
		)
	}

	return nil
}
