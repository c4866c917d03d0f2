// Package collective provides the synchronizing communication primitives
// used by data-parallel training: broadcast, all-reduce (sum) and gather over
// float64 buffers.
//
// Every primitive is a barrier. Ranks number their collective calls and the
// i-th call on one rank is matched with the i-th call on every other rank, so
// all ranks must issue the same calls in the same order. Primitives never
// retry; failures surface as errors wrapping errors.ErrCollective.
package collective

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/absmach/disttrain/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

type Group interface {
	// Rank is this process' identity in [0, WorldSize).
	Rank() int

	WorldSize() int

	// Broadcast overwrites buf on every rank with root's buf.
	Broadcast(ctx context.Context, buf []float64, root int) error

	// AllReduceSum returns the element-wise sum of every rank's buf. All ranks
	// receive bit-identical results.
	AllReduceSum(ctx context.Context, buf []float64) ([]float64, error)

	// Gather delivers every rank's buf, in rank order, to root. Other ranks
	// receive nil. Buffers may have different lengths.
	Gather(ctx context.Context, buf []float64, root int) ([][]float64, error)

	// Close leaves the group. Pending and future calls of the peers fail.
	Close() error
}

type op uint8

const (
	opBroadcast op = iota + 1
	opAllReduce
	opGather
)

func (o op) String() string {
	switch o {
	case opBroadcast:
		return "broadcast"
	case opAllReduce:
		return "all-reduce"
	case opGather:
		return "gather"
	default:
		return "unknown"
	}
}

func parseOp(s string) op {
	switch s {
	case "broadcast":
		return opBroadcast
	case "all-reduce":
		return opAllReduce
	case "gather":
		return opGather
	default:
		return 0
	}
}

// ValidateMembership checks a rank / world size pair at group formation.
func ValidateMembership(rank, worldSize int) error {
	if worldSize < 1 {
		return fmt.Errorf("%w: %d", errors.ErrInvalidWorldSize, worldSize)
	}
	if rank < 0 || rank >= worldSize {
		return fmt.Errorf("%w: %d not in [0, %d)", errors.ErrInvalidRank, rank, worldSize)
	}

	return nil
}

// ValidateAddresses requires every worker address to be a non-empty host:port.
func ValidateAddresses(addrs []string) error {
	for i, addr := range addrs {
		host, port, err := net.SplitHostPort(addr)
		if err != nil || host == "" || port == "" {
			return fmt.Errorf("%w: worker %d: %q", errors.ErrInvalidWorkerAddress, i, addr)
		}
		if _, err := strconv.ParseUint(port, 10, 16); err != nil {
			return fmt.Errorf("%w: worker %d: %q", errors.ErrInvalidWorkerAddress, i, addr)
		}
	}

	return nil
}

func checkRoot(root, worldSize int) error {
	if root < 0 || root >= worldSize {
		return fmt.Errorf("%w: root %d not in [0, %d)", errors.ErrInvalidRank, root, worldSize)
	}

	return nil
}

// reduce computes the result of one matched call from every rank's
// contribution. Contributions are visited in rank order so the floating point
// summation order is the same wherever reduce runs.
func reduce(o op, root int, bufs [][]float64) ([]float64, error) {
	switch o {
	case opAllReduce:
		n := len(bufs[0])
		sum := make([]float64, n)
		for r, b := range bufs {
			if len(b) != n {
				return nil, fmt.Errorf("%w: all-reduce length mismatch: rank 0 has %d, rank %d has %d", errors.ErrCollective, n, r, len(b))
			}
			floats.Add(sum, b)
		}

		return sum, nil
	case opBroadcast:
		src := bufs[root]
		for r, b := range bufs {
			if len(b) != len(src) {
				return nil, fmt.Errorf("%w: broadcast length mismatch: root %d has %d, rank %d has %d", errors.ErrCollective, root, len(src), r, len(b))
			}
		}

		return clone(src), nil
	default:
		return nil, nil
	}
}

func clone(buf []float64) []float64 {
	if buf == nil {
		return []float64{}
	}
	out := make([]float64, len(buf))
	copy(out, buf)

	return out
}

func cloneAll(bufs [][]float64) [][]float64 {
	out := make([][]float64, len(bufs))
	for i, b := range bufs {
		out[i] = clone(b)
	}

	return out
}
