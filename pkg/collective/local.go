package collective

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/absmach/disttrain/pkg/errors"
)

var _ Group = (*localGroup)(nil)

type LocalOption func(*hub)

// WithTimeout bounds how long a rank waits for its peers at a barrier.
// Zero waits until the context is done.
func WithTimeout(d time.Duration) LocalOption {
	return func(h *hub) {
		h.timeout = d
	}
}

// call is one matched collective invocation. It stays in the hub until every
// rank has seen it so that a rank arriving after a failure fails too instead
// of waiting for peers that already moved on.
type call struct {
	op      op
	root    int
	bufs    [][]float64
	arrived int
	seen    int
	done    chan struct{}
	closed  bool
	result  []float64
	err     error
}

type hub struct {
	mu        sync.Mutex
	worldSize int
	timeout   time.Duration
	calls     map[uint64]*call
	down      chan struct{}
	downErr   error
}

type localGroup struct {
	hub    *hub
	rank   int
	seq    atomic.Uint64
	closed atomic.Bool
}

// NewLocal forms an in-process group of worldSize ranks sharing one hub. The
// returned slice is indexed by rank; each Group is meant to be driven by its
// own goroutine.
func NewLocal(worldSize int, opts ...LocalOption) ([]Group, error) {
	if err := ValidateMembership(0, worldSize); err != nil {
		return nil, err
	}

	h := &hub{
		worldSize: worldSize,
		calls:     make(map[uint64]*call),
		down:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}

	groups := make([]Group, worldSize)
	for r := range groups {
		groups[r] = &localGroup{hub: h, rank: r}
	}

	return groups, nil
}

func (g *localGroup) Rank() int {
	return g.rank
}

func (g *localGroup) WorldSize() int {
	return g.hub.worldSize
}

func (g *localGroup) Broadcast(ctx context.Context, buf []float64, root int) error {
	if err := checkRoot(root, g.hub.worldSize); err != nil {
		return err
	}
	c, err := g.exchange(ctx, opBroadcast, root, buf)
	if err != nil {
		return err
	}
	copy(buf, c.result)

	return nil
}

func (g *localGroup) AllReduceSum(ctx context.Context, buf []float64) ([]float64, error) {
	c, err := g.exchange(ctx, opAllReduce, 0, buf)
	if err != nil {
		return nil, err
	}

	return clone(c.result), nil
}

func (g *localGroup) Gather(ctx context.Context, buf []float64, root int) ([][]float64, error) {
	if err := checkRoot(root, g.hub.worldSize); err != nil {
		return nil, err
	}
	c, err := g.exchange(ctx, opGather, root, buf)
	if err != nil {
		return nil, err
	}
	if g.rank != root {
		return nil, nil
	}

	return cloneAll(c.bufs), nil
}

// Close removes the rank from the hub. The hub cannot be re-formed, so the
// failure it leaves for the peers is fatal.
func (g *localGroup) Close() error {
	if g.closed.Swap(true) {
		return nil
	}
	g.hub.fail(errors.Wrap(errors.Fatal, fmt.Errorf("%w: rank %d left the group", errors.ErrCollective, g.rank)))

	return nil
}

func (g *localGroup) exchange(ctx context.Context, o op, root int, buf []float64) (*call, error) {
	if g.closed.Load() {
		return nil, errors.Wrap(errors.Fatal, fmt.Errorf("%w: rank %d already left the group", errors.ErrCollective, g.rank))
	}
	seq := g.seq.Add(1) - 1

	c, err := g.hub.arrive(seq, g.rank, o, root, buf)
	if err != nil {
		return nil, err
	}

	var timeout <-chan time.Time
	if g.hub.timeout > 0 {
		timer := time.NewTimer(g.hub.timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-c.done:
		g.hub.leave(seq, c)

		return c, c.err
	case <-g.hub.down:
		return nil, g.hub.downErr
	case <-ctx.Done():
		err := fmt.Errorf("%w: rank %d %s call %d: %w", errors.ErrCollective, g.rank, o, seq, ctx.Err())
		g.hub.abort(seq, c, err)

		return nil, err
	case <-timeout:
		err := fmt.Errorf("%w: rank %d %s call %d: peers did not arrive within %s", errors.ErrCollective, g.rank, o, seq, g.hub.timeout)
		g.hub.abort(seq, c, err)

		return nil, err
	}
}

func (h *hub) arrive(seq uint64, rank int, o op, root int, buf []float64) (*call, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.downErr != nil {
		return nil, h.downErr
	}

	c, ok := h.calls[seq]
	if !ok {
		c = &call{
			op:   o,
			root: root,
			bufs: make([][]float64, h.worldSize),
			done: make(chan struct{}),
		}
		h.calls[seq] = c
	}
	if c.closed {
		// The call already failed for the peers.
		c.seen++
		h.forget(seq, c)

		return nil, c.err
	}

	if c.err == nil && (c.op != o || c.root != root) {
		c.err = fmt.Errorf("%w: call %d: rank %d issued %s(root %d), peers issued %s(root %d)", errors.ErrCollective, seq, rank, o, root, c.op, c.root)
	}
	c.bufs[rank] = clone(buf)
	c.arrived++

	if c.arrived == h.worldSize {
		if c.err == nil {
			c.result, c.err = reduce(c.op, c.root, c.bufs)
		}
		c.closed = true
		close(c.done)
	}

	return c, nil
}

func (h *hub) leave(seq uint64, c *call) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c.seen++
	h.forget(seq, c)
}

func (h *hub) abort(seq uint64, c *call, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !c.closed {
		c.err = err
		c.closed = true
		close(c.done)
	}
	c.seen++
	h.forget(seq, c)
}

func (h *hub) forget(seq uint64, c *call) {
	if c.seen >= h.worldSize {
		delete(h.calls, seq)
	}
}

func (h *hub) fail(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.downErr != nil {
		return
	}
	h.downErr = err
	close(h.down)
}
