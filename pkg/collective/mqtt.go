package collective

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/absmach/disttrain/pkg/errors"
	"github.com/absmach/disttrain/pkg/mqtt"
)

const (
	statusOnline  = "online"
	statusOffline = "offline"
)

var _ Group = (*mqttGroup)(nil)

type MQTTConfig struct {
	BaseTopic string        `env:"BASE_TOPIC" envDefault:"disttrain"`
	Rank      int           `env:"RANK"       envDefault:"0"`
	WorldSize int           `env:"WORLD_SIZE" envDefault:"1"`
	Timeout   time.Duration `env:"TIMEOUT"    envDefault:"1m"`
}

// CollectiveTopic is where rank publishes its contribution to call seq.
func CollectiveTopic(base string, seq uint64, rank int) string {
	return fmt.Sprintf("%s/collective/%d/%d", base, seq, rank)
}

func StatusTopic(base string, rank int) string {
	return fmt.Sprintf("%s/ranks/%d/status", base, rank)
}

// OfflineNotice is the status payload a rank leaves behind as its MQTT last
// will, so peers learn about a crash from the broker.
func OfflineNotice(rank int) map[string]any {
	return map[string]any{"rank": rank, "status": statusOffline}
}

type slot struct {
	op     op
	root   int
	opSet  bool
	bufs   [][]float64
	have   []bool
	count  int
	ready  chan struct{}
	closed bool
	result []float64
	err    error
}

type mqttGroup struct {
	pubsub mqtt.PubSub
	cfg    MQTTConfig
	logger *slog.Logger

	mu      sync.Mutex
	next    uint64
	floor   uint64
	slots   map[uint64]*slot
	peers   []bool
	joined  int
	formed  chan struct{}
	down    chan struct{}
	downErr error
	closed  atomic.Bool
}

// NewMQTT joins the group described by cfg over an MQTT broker. It returns
// once every rank has announced itself or fails with ErrCollective when that
// does not happen within cfg.Timeout.
func NewMQTT(ctx context.Context, pubsub mqtt.PubSub, cfg MQTTConfig, logger *slog.Logger) (Group, error) {
	if err := ValidateMembership(cfg.Rank, cfg.WorldSize); err != nil {
		return nil, err
	}
	if cfg.BaseTopic == "" {
		return nil, fmt.Errorf("%w: empty base topic", errors.ErrCollective)
	}

	g := &mqttGroup{
		pubsub: pubsub,
		cfg:    cfg,
		logger: logger,
		slots:  make(map[uint64]*slot),
		peers:  make([]bool, cfg.WorldSize),
		formed: make(chan struct{}),
		down:   make(chan struct{}),
	}

	if err := pubsub.Subscribe(ctx, cfg.BaseTopic+"/ranks/+/status", g.handleStatus); err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrCollective, err)
	}
	if err := pubsub.Subscribe(ctx, cfg.BaseTopic+"/collective/+/+", g.handleContribution); err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrCollective, err)
	}

	g.markJoined(cfg.Rank)
	if err := g.announce(ctx); err != nil {
		return nil, err
	}

	var timeout <-chan time.Time
	if cfg.Timeout > 0 {
		timer := time.NewTimer(cfg.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-g.formed:
		logger.Info("joined collective group", slog.Int("rank", cfg.Rank), slog.Int("world_size", cfg.WorldSize))

		return g, nil
	case <-g.down:
		return nil, g.downErr
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: forming group: %w", errors.ErrCollective, ctx.Err())
	case <-timeout:
		return nil, fmt.Errorf("%w: %d of %d ranks joined within %s", errors.ErrCollective, g.joinedCount(), cfg.WorldSize, cfg.Timeout)
	}
}

func (g *mqttGroup) Rank() int {
	return g.cfg.Rank
}

func (g *mqttGroup) WorldSize() int {
	return g.cfg.WorldSize
}

func (g *mqttGroup) Broadcast(ctx context.Context, buf []float64, root int) error {
	if err := checkRoot(root, g.cfg.WorldSize); err != nil {
		return err
	}
	s, err := g.exchange(ctx, opBroadcast, root, buf)
	if err != nil {
		return err
	}
	copy(buf, s.result)

	return nil
}

func (g *mqttGroup) AllReduceSum(ctx context.Context, buf []float64) ([]float64, error) {
	s, err := g.exchange(ctx, opAllReduce, 0, buf)
	if err != nil {
		return nil, err
	}

	return clone(s.result), nil
}

func (g *mqttGroup) Gather(ctx context.Context, buf []float64, root int) ([][]float64, error) {
	if err := checkRoot(root, g.cfg.WorldSize); err != nil {
		return nil, err
	}
	s, err := g.exchange(ctx, opGather, root, buf)
	if err != nil {
		return nil, err
	}
	if g.cfg.Rank != root {
		return nil, nil
	}

	return cloneAll(s.bufs), nil
}

func (g *mqttGroup) Close() error {
	if g.closed.Swap(true) {
		return nil
	}

	ctx := context.Background()
	var errs []error
	if err := g.pubsub.Publish(ctx, StatusTopic(g.cfg.BaseTopic, g.cfg.Rank), OfflineNotice(g.cfg.Rank)); err != nil {
		errs = append(errs, err)
	}
	if err := g.pubsub.Unsubscribe(ctx, g.cfg.BaseTopic+"/collective/+/+"); err != nil {
		errs = append(errs, err)
	}
	if err := g.pubsub.Unsubscribe(ctx, g.cfg.BaseTopic+"/ranks/+/status"); err != nil {
		errs = append(errs, err)
	}
	g.fail(fmt.Errorf("%w: rank %d left the group", errors.ErrCollective, g.cfg.Rank))

	return stderrors.Join(errs...)
}

func (g *mqttGroup) exchange(ctx context.Context, o op, root int, buf []float64) (*slot, error) {
	if g.closed.Load() {
		return nil, fmt.Errorf("%w: rank %d already left the group", errors.ErrCollective, g.cfg.Rank)
	}

	g.mu.Lock()
	if g.downErr != nil {
		g.mu.Unlock()

		return nil, g.downErr
	}
	seq := g.next
	g.next++
	s := g.slot(seq)
	g.contribute(seq, s, g.cfg.Rank, o, root, clone(buf))
	g.mu.Unlock()

	data, err := encodeBuffer(buf)
	if err != nil {
		return nil, g.abort(ctx, seq, fmt.Errorf("%w: rank %d %s call %d: %w", errors.ErrCollective, g.cfg.Rank, o, seq, err))
	}
	msg := map[string]any{
		"rank": g.cfg.Rank,
		"seq":  seq,
		"op":   o.String(),
		"root": root,
		"data": data,
	}
	if err := g.pubsub.Publish(ctx, CollectiveTopic(g.cfg.BaseTopic, seq, g.cfg.Rank), msg); err != nil {
		return nil, g.abort(ctx, seq, fmt.Errorf("%w: rank %d %s call %d: %w", errors.ErrCollective, g.cfg.Rank, o, seq, err))
	}

	var timeout <-chan time.Time
	if g.cfg.Timeout > 0 {
		timer := time.NewTimer(g.cfg.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-s.ready:
		g.finish(seq)

		return s, s.err
	case <-g.down:
		g.finish(seq)

		return nil, g.downErr
	case <-ctx.Done():
		return nil, g.abort(ctx, seq, fmt.Errorf("%w: rank %d %s call %d: %w", errors.ErrCollective, g.cfg.Rank, o, seq, ctx.Err()))
	case <-timeout:
		return nil, g.abort(ctx, seq, fmt.Errorf("%w: rank %d %s call %d: peers did not arrive within %s", errors.ErrCollective, g.cfg.Rank, o, seq, g.cfg.Timeout))
	}
}

// slot returns the state of call seq, creating it for contributions that
// arrive before this rank reached the call. Callers hold g.mu.
func (g *mqttGroup) slot(seq uint64) *slot {
	s, ok := g.slots[seq]
	if !ok {
		s = &slot{
			bufs:  make([][]float64, g.cfg.WorldSize),
			have:  make([]bool, g.cfg.WorldSize),
			ready: make(chan struct{}),
		}
		g.slots[seq] = s
	}

	return s
}

// contribute records rank's buffer for call seq. Callers hold g.mu.
func (g *mqttGroup) contribute(seq uint64, s *slot, rank int, o op, root int, buf []float64) {
	if s.closed || s.have[rank] {
		return
	}
	if !s.opSet {
		s.op, s.root, s.opSet = o, root, true
	}
	if s.err == nil && (s.op != o || s.root != root) {
		s.err = fmt.Errorf("%w: call %d: rank %d issued %s(root %d), peers issued %s(root %d)", errors.ErrCollective, seq, rank, o, root, s.op, s.root)
	}
	s.bufs[rank] = buf
	s.have[rank] = true
	s.count++

	if s.count == g.cfg.WorldSize {
		if s.err == nil {
			s.result, s.err = reduce(s.op, s.root, s.bufs)
		}
		s.closed = true
		close(s.ready)
	}
}

func (g *mqttGroup) finish(seq uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.slots, seq)
	if seq >= g.floor {
		g.floor = seq + 1
	}
}

// abort fails call seq locally and tells the peers, so that a rank reaching the
// call later fails on it as well.
func (g *mqttGroup) abort(ctx context.Context, seq uint64, err error) error {
	g.mu.Lock()
	if s, ok := g.slots[seq]; ok && !s.closed {
		s.err = err
		s.closed = true
		close(s.ready)
	}
	g.mu.Unlock()
	g.finish(seq)

	msg := map[string]any{
		"rank":  g.cfg.Rank,
		"seq":   seq,
		"error": err.Error(),
	}
	if perr := g.pubsub.Publish(context.WithoutCancel(ctx), CollectiveTopic(g.cfg.BaseTopic, seq, g.cfg.Rank), msg); perr != nil {
		g.logger.Warn("failed to propagate collective failure", slog.Uint64("seq", seq), slog.Any("error", perr))
	}

	return err
}

func (g *mqttGroup) fail(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.downErr != nil {
		return
	}
	g.downErr = err
	close(g.down)
}

func (g *mqttGroup) handleContribution(topic string, msg map[string]any) error {
	rank, ok := intField(msg, "rank")
	if !ok || rank < 0 || rank >= g.cfg.WorldSize {
		return fmt.Errorf("%w: bad rank on %s", errors.ErrInvalidData, topic)
	}
	if rank == g.cfg.Rank {
		return nil
	}
	seqf, ok := msg["seq"].(float64)
	if !ok || seqf < 0 {
		return fmt.Errorf("%w: bad seq on %s", errors.ErrInvalidData, topic)
	}
	seq := uint64(seqf)

	if reason, ok := msg["error"].(string); ok {
		g.mu.Lock()
		defer g.mu.Unlock()
		if seq < g.floor {
			return nil
		}
		s := g.slot(seq)
		if !s.closed {
			s.err = fmt.Errorf("%w: call %d failed on rank %d: %s", errors.ErrCollective, seq, rank, reason)
			s.closed = true
			close(s.ready)
		}

		return nil
	}

	opName, _ := msg["op"].(string)
	o := parseOp(opName)
	if o == 0 {
		return fmt.Errorf("%w: unknown operation %q on %s", errors.ErrInvalidData, opName, topic)
	}
	root, ok := intField(msg, "root")
	if !ok {
		return fmt.Errorf("%w: bad root on %s", errors.ErrInvalidData, topic)
	}
	buf, err := decodeField(msg["data"])
	if err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if seq < g.floor {
		// Late contribution to a call this rank already finished or abandoned.
		return nil
	}
	g.contribute(seq, g.slot(seq), rank, o, root, buf)

	return nil
}

func (g *mqttGroup) handleStatus(topic string, msg map[string]any) error {
	rank, ok := intField(msg, "rank")
	if !ok || rank < 0 || rank >= g.cfg.WorldSize {
		return fmt.Errorf("%w: bad rank on %s", errors.ErrInvalidData, topic)
	}
	if rank == g.cfg.Rank {
		return nil
	}

	status, _ := msg["status"].(string)
	switch status {
	case statusOffline:
		g.logger.Warn("rank went offline", slog.Int("rank", rank))
		g.fail(fmt.Errorf("%w: rank %d went offline", errors.ErrCollective, rank))
	case statusOnline:
		// Answer every newcomer once so ranks that subscribed late still see
		// the ones that announced before them.
		if g.markJoined(rank) {
			return g.announce(context.Background())
		}
	}

	return nil
}

func (g *mqttGroup) announce(ctx context.Context) error {
	msg := map[string]any{"rank": g.cfg.Rank, "status": statusOnline}
	if err := g.pubsub.Publish(ctx, StatusTopic(g.cfg.BaseTopic, g.cfg.Rank), msg); err != nil {
		return fmt.Errorf("%w: %w", errors.ErrCollective, err)
	}

	return nil
}

func (g *mqttGroup) markJoined(rank int) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.peers[rank] {
		return false
	}
	g.peers[rank] = true
	g.joined++
	if g.joined == g.cfg.WorldSize {
		close(g.formed)
	}

	return true
}

func (g *mqttGroup) joinedCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.joined
}

func intField(msg map[string]any, key string) (int, bool) {
	v, ok := msg[key].(float64)
	if !ok || v != float64(int(v)) {
		return 0, false
	}

	return int(v), true
}
