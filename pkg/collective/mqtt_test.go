package collective_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/absmach/disttrain/pkg/collective"
	"github.com/absmach/disttrain/pkg/errors"
	"github.com/absmach/disttrain/pkg/mqtt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const baseTopic = "jobs/test"

type subscription struct {
	client  *fakeClient
	pattern string
	handler mqtt.Handler
}

// broker delivers every publish synchronously to all matching subscribers,
// round-tripping the payload through JSON like the paho wrapper does.
type broker struct {
	mu   sync.Mutex
	subs []subscription
}

type fakeClient struct {
	broker *broker
}

var _ mqtt.PubSub = (*fakeClient)(nil)

func (b *broker) client() *fakeClient {
	return &fakeClient{broker: b}
}

func (c *fakeClient) Publish(_ context.Context, topic string, msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	c.broker.mu.Lock()
	subs := slices.Clone(c.broker.subs)
	c.broker.mu.Unlock()

	for _, s := range subs {
		if !matchTopic(s.pattern, topic) {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal(data, &m); err != nil {
			return err
		}
		_ = s.handler(topic, m)
	}

	return nil
}

func (c *fakeClient) Subscribe(_ context.Context, topic string, handler mqtt.Handler) error {
	c.broker.mu.Lock()
	defer c.broker.mu.Unlock()

	c.broker.subs = append(c.broker.subs, subscription{client: c, pattern: topic, handler: handler})

	return nil
}

func (c *fakeClient) Unsubscribe(_ context.Context, topic string) error {
	c.broker.mu.Lock()
	defer c.broker.mu.Unlock()

	c.broker.subs = slices.DeleteFunc(c.broker.subs, func(s subscription) bool {
		return s.client == c && s.pattern == topic
	})

	return nil
}

func (c *fakeClient) Disconnect(context.Context) error {
	return nil
}

func matchTopic(pattern, topic string) bool {
	pp := strings.Split(pattern, "/")
	tp := strings.Split(topic, "/")
	for i, p := range pp {
		if p == "#" {
			return true
		}
		if i >= len(tp) || (p != "+" && p != tp[i]) {
			return false
		}
	}

	return len(pp) == len(tp)
}

func newMQTTGroups(t *testing.T, b *broker, worldSize int, timeout time.Duration) []collective.Group {
	t.Helper()

	groups := make([]collective.Group, worldSize)
	errs := make([]error, worldSize)
	var wg sync.WaitGroup
	for r := range worldSize {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cfg := collective.MQTTConfig{BaseTopic: baseTopic, Rank: r, WorldSize: worldSize, Timeout: timeout}
			groups[r], errs[r] = collective.NewMQTT(context.Background(), b.client(), cfg, slog.Default())
		}()
	}
	wg.Wait()

	for r := range worldSize {
		require.NoError(t, errs[r], "rank %d", r)
	}

	return groups
}

func TestNewMQTTValidation(t *testing.T) {
	b := &broker{}

	_, err := collective.NewMQTT(context.Background(), b.client(), collective.MQTTConfig{BaseTopic: baseTopic, Rank: 2, WorldSize: 2}, slog.Default())
	assert.ErrorIs(t, err, errors.ErrInvalidRank)

	_, err = collective.NewMQTT(context.Background(), b.client(), collective.MQTTConfig{BaseTopic: baseTopic, WorldSize: 0}, slog.Default())
	assert.ErrorIs(t, err, errors.ErrInvalidWorldSize)

	_, err = collective.NewMQTT(context.Background(), b.client(), collective.MQTTConfig{Rank: 0, WorldSize: 1}, slog.Default())
	assert.ErrorIs(t, err, errors.ErrCollective)
}

func TestNewMQTTFormationTimeout(t *testing.T) {
	b := &broker{}

	cfg := collective.MQTTConfig{BaseTopic: baseTopic, Rank: 0, WorldSize: 3, Timeout: 20 * time.Millisecond}
	_, err := collective.NewMQTT(context.Background(), b.client(), cfg, slog.Default())
	assert.ErrorIs(t, err, errors.ErrCollective)
}

func TestMQTTAllReduceMatchesLocal(t *testing.T) {
	const worldSize = 4

	inputs := [][]float64{
		{0.1, 1e16, -3.5, math.SmallestNonzeroFloat64},
		{0.2, 1, 2.25, 0},
		{0.3, -1e16, 1e-300, 7},
		{0.4, 3, math.MaxFloat64 / 8, -7},
	}

	local, err := collective.NewLocal(worldSize)
	require.NoError(t, err)
	want := make([][]float64, worldSize)
	errs := runRanks(t, local, func(g collective.Group) error {
		out, err := g.AllReduceSum(context.Background(), inputs[g.Rank()])
		want[g.Rank()] = out

		return err
	})
	for r := range errs {
		require.NoError(t, errs[r])
	}

	remote := newMQTTGroups(t, &broker{}, worldSize, time.Second)
	got := make([][]float64, worldSize)
	errs = runRanks(t, remote, func(g collective.Group) error {
		out, err := g.AllReduceSum(context.Background(), inputs[g.Rank()])
		got[g.Rank()] = out

		return err
	})

	for r := range remote {
		require.NoError(t, errs[r])
		for i := range got[r] {
			assert.Equal(t, math.Float64bits(want[0][i]), math.Float64bits(got[r][i]), "rank %d element %d", r, i)
		}
	}
}

func TestMQTTBroadcastAndGather(t *testing.T) {
	groups := newMQTTGroups(t, &broker{}, 3, time.Second)

	params := [][]float64{{math.Pi, -0.5}, {0, 0}, {1, 1}}
	parts := [][]float64{{1}, {}, {2, 3}}
	gathered := make([][][]float64, 3)

	errs := runRanks(t, groups, func(g collective.Group) error {
		if err := g.Broadcast(context.Background(), params[g.Rank()], 0); err != nil {
			return err
		}
		out, err := g.Gather(context.Background(), parts[g.Rank()], 0)
		gathered[g.Rank()] = out

		return err
	})

	for r := range groups {
		require.NoError(t, errs[r])
		assert.Equal(t, []float64{math.Pi, -0.5}, params[r])
	}
	assert.Equal(t, [][]float64{{1}, {}, {2, 3}}, gathered[0])
	assert.Nil(t, gathered[1])
	assert.Nil(t, gathered[2])
}

func TestMQTTLengthMismatch(t *testing.T) {
	groups := newMQTTGroups(t, &broker{}, 2, time.Second)

	inputs := [][]float64{{1}, {1, 2}}
	errs := runRanks(t, groups, func(g collective.Group) error {
		_, err := g.AllReduceSum(context.Background(), inputs[g.Rank()])

		return err
	})

	for r, err := range errs {
		assert.ErrorIs(t, err, errors.ErrCollective, "rank %d", r)
	}
}

func TestMQTTTimeoutPropagates(t *testing.T) {
	groups := newMQTTGroups(t, &broker{}, 2, 20*time.Millisecond)

	_, err := groups[0].AllReduceSum(context.Background(), []float64{1})
	require.ErrorIs(t, err, errors.ErrCollective)

	_, err = groups[1].AllReduceSum(context.Background(), []float64{1})
	require.ErrorIs(t, err, errors.ErrCollective)

	results := make([][]float64, 2)
	errs := runRanks(t, groups, func(g collective.Group) error {
		out, err := g.AllReduceSum(context.Background(), []float64{float64(g.Rank() + 1)})
		results[g.Rank()] = out

		return err
	})
	for r := range groups {
		require.NoError(t, errs[r])
		assert.Equal(t, []float64{3}, results[r])
	}
}

func TestMQTTPeerOffline(t *testing.T) {
	b := &broker{}
	groups := newMQTTGroups(t, b, 3, 5*time.Second)

	done := make(chan error, 1)
	go func() {
		_, err := groups[0].AllReduceSum(context.Background(), []float64{1})
		done <- err
	}()

	// The broker publishes the last will of a rank that dropped.
	require.NoError(t, b.client().Publish(context.Background(), collective.StatusTopic(baseTopic, 2), collective.OfflineNotice(2)))

	select {
	case err := <-done:
		assert.ErrorIs(t, err, errors.ErrCollective)
	case <-time.After(time.Second):
		t.Fatal("pending call did not fail after a peer went offline")
	}

	_, err := groups[1].AllReduceSum(context.Background(), []float64{1})
	assert.ErrorIs(t, err, errors.ErrCollective)
}

func TestMQTTCloseNotifiesPeers(t *testing.T) {
	groups := newMQTTGroups(t, &broker{}, 2, 5*time.Second)

	require.NoError(t, groups[1].Close())
	require.NoError(t, groups[1].Close())

	err := groups[0].Broadcast(context.Background(), []float64{1}, 0)
	assert.ErrorIs(t, err, errors.ErrCollective)
}
