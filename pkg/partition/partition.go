// Package partition splits an ordered dataset into contiguous, non-overlapping
// per-rank ranges. Nothing is shuffled: concatenating the ranges of ranks
// 0..worldSize-1 yields the dataset order exactly once.
package partition

import (
	"fmt"

	"github.com/absmach/disttrain/pkg/errors"
)

// Range returns the half-open interval [start, end) of items owned by rank.
// The first n%worldSize ranks receive one extra item. When worldSize > n the
// highest ranks get empty ranges, which is not an error.
func Range(n, worldSize, rank int) (start, end int, err error) {
	if n <= 0 {
		return 0, 0, errors.ErrEmptyDataset
	}
	if worldSize < 1 {
		return 0, 0, fmt.Errorf("%w: %d", errors.ErrInvalidWorldSize, worldSize)
	}
	if rank < 0 || rank >= worldSize {
		return 0, 0, fmt.Errorf("%w: %d not in [0, %d)", errors.ErrInvalidRank, rank, worldSize)
	}

	per := n / worldSize
	rem := n % worldSize

	start = rank*per + min(rank, rem)
	end = start + per
	if rank < rem {
		end++
	}

	return start, end, nil
}

// Slice returns the sub-slice of items owned by rank. The result shares the
// backing array with items.
func Slice[T any](items []T, worldSize, rank int) ([]T, error) {
	start, end, err := Range(len(items), worldSize, rank)
	if err != nil {
		return nil, err
	}

	return items[start:end], nil
}

// Batch is a half-open [Start, End) window into a partition.
type Batch struct {
	Start int
	End   int
}

func (b Batch) Len() int {
	return b.End - b.Start
}

// Batches cuts n items into windows of size; the last one may be shorter.
// size < 1 is treated as 1.
func Batches(n, size int) []Batch {
	if n <= 0 {
		return nil
	}
	if size < 1 {
		size = 1
	}

	batches := make([]Batch, 0, (n+size-1)/size)
	for start := 0; start < n; start += size {
		batches = append(batches, Batch{Start: start, End: min(start+size, n)})
	}

	return batches
}
