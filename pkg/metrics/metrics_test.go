package metrics_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/absmach/disttrain/pkg/metrics"
	"github.com/absmach/disttrain/pkg/mqtt/mocks"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var epoch = metrics.Epoch{
	JobID:        "job-1",
	Rank:         2,
	Epoch:        5,
	GlobalLoss:   0.25,
	GradientNorm: 1.5,
	Timestamp:    time.Unix(1700000000, 0),
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	sink := metrics.NewLogSink(slog.New(slog.NewJSONHandler(&buf, nil)))

	require.NoError(t, sink.Record(context.Background(), epoch))
	assert.Contains(t, buf.String(), `"global_loss":0.25`)
	assert.Contains(t, buf.String(), `"rank":2`)
}

func TestPrometheusSink(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := metrics.NewPrometheusSink(reg)
	require.NoError(t, err)

	require.NoError(t, sink.Record(context.Background(), epoch))
	require.NoError(t, sink.Record(context.Background(), epoch))

	n, err := testutil.GatherAndCount(reg, "disttrain_global_loss", "disttrain_gradient_norm", "disttrain_epochs_total")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = metrics.NewPrometheusSink(reg)
	assert.Error(t, err, "registering twice must fail")
}

func TestMQTTSink(t *testing.T) {
	ps := new(mocks.MockPubSub)
	ps.On("Publish", mock.Anything, "jobs/job-1/metrics", epoch).Return(nil).Once()

	sink := metrics.NewMQTTSink(ps, "jobs/job-1/metrics")
	require.NoError(t, sink.Record(context.Background(), epoch))
	ps.AssertExpectations(t)
}

type failingSink struct {
	err   error
	calls int
}

func (s *failingSink) Record(context.Context, metrics.Epoch) error {
	s.calls++

	return s.err
}

func TestFanout(t *testing.T) {
	errA := errors.New("a")
	a := &failingSink{err: errA}
	b := &failingSink{}

	err := metrics.Fanout(a, b).Record(context.Background(), epoch)
	assert.ErrorIs(t, err, errA)
	assert.Equal(t, 1, a.calls)
	assert.Equal(t, 1, b.calls)

	assert.NoError(t, metrics.Fanout().Record(context.Background(), epoch))
}
