// Package metrics publishes per-epoch training figures. Sinks are called from
// the training loop, so they must not block for long.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/absmach/disttrain/pkg/mqtt"
	"github.com/prometheus/client_golang/prometheus"
)

// Epoch is what a rank reports after every aggregated update.
type Epoch struct {
	JobID        string    `json:"job_id"`
	Rank         int       `json:"rank"`
	Epoch        int       `json:"epoch"`
	GlobalLoss   float64   `json:"global_loss"`
	GradientNorm float64   `json:"gradient_norm"`
	Timestamp    time.Time `json:"timestamp"`
}

type Sink interface {
	Record(ctx context.Context, e Epoch) error
}

type logSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) Sink {
	return &logSink{logger: logger}
}

func (s *logSink) Record(ctx context.Context, e Epoch) error {
	s.logger.InfoContext(ctx, "epoch completed",
		slog.String("job_id", e.JobID),
		slog.Int("rank", e.Rank),
		slog.Int("epoch", e.Epoch),
		slog.Float64("global_loss", e.GlobalLoss),
		slog.Float64("gradient_norm", e.GradientNorm),
	)

	return nil
}

type prometheusSink struct {
	loss   *prometheus.GaugeVec
	norm   *prometheus.GaugeVec
	epochs *prometheus.CounterVec
}

// NewPrometheusSink registers the training gauges with reg.
func NewPrometheusSink(reg prometheus.Registerer) (Sink, error) {
	labels := []string{"job_id", "rank"}
	s := &prometheusSink{
		loss: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "disttrain_global_loss",
			Help: "Global loss after the latest aggregated update.",
		}, labels),
		norm: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "disttrain_gradient_norm",
			Help: "Euclidean norm of the latest aggregated gradient.",
		}, labels),
		epochs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "disttrain_epochs_total",
			Help: "Number of completed epochs.",
		}, labels),
	}

	for _, c := range []prometheus.Collector{s.loss, s.norm, s.epochs} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return s, nil
}

func (s *prometheusSink) Record(_ context.Context, e Epoch) error {
	rank := strconv.Itoa(e.Rank)
	s.loss.WithLabelValues(e.JobID, rank).Set(e.GlobalLoss)
	s.norm.WithLabelValues(e.JobID, rank).Set(e.GradientNorm)
	s.epochs.WithLabelValues(e.JobID, rank).Inc()

	return nil
}

type mqttSink struct {
	pubsub mqtt.PubSub
	topic  string
}

// NewMQTTSink publishes every epoch as JSON to topic.
func NewMQTTSink(pubsub mqtt.PubSub, topic string) Sink {
	return &mqttSink{
		pubsub: pubsub,
		topic:  topic,
	}
}

func (s *mqttSink) Record(ctx context.Context, e Epoch) error {
	return s.pubsub.Publish(ctx, s.topic, e)
}

type fanout []Sink

// Fanout records to every sink and joins their errors.
func Fanout(sinks ...Sink) Sink {
	return fanout(sinks)
}

func (f fanout) Record(ctx context.Context, e Epoch) error {
	var errs []error
	for _, s := range f {
		if err := s.Record(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
