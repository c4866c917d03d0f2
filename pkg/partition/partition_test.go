package partition_test

import (
	"testing"

	"github.com/absmach/disttrain/pkg/errors"
	"github.com/absmach/disttrain/pkg/partition"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRange(t *testing.T) {
	cases := []struct {
		desc      string
		n         int
		worldSize int
		starts    []int
		sizes     []int
	}{
		{
			desc:      "ten items over three ranks",
			n:         10,
			worldSize: 3,
			starts:    []int{0, 4, 7},
			sizes:     []int{4, 3, 3},
		},
		{
			desc:      "even split",
			n:         8,
			worldSize: 4,
			starts:    []int{0, 2, 4, 6},
			sizes:     []int{2, 2, 2, 2},
		},
		{
			desc:      "more ranks than items",
			n:         2,
			worldSize: 5,
			starts:    []int{0, 1, 2, 2, 2},
			sizes:     []int{1, 1, 0, 0, 0},
		},
		{
			desc:      "single rank owns everything",
			n:         7,
			worldSize: 1,
			starts:    []int{0},
			sizes:     []int{7},
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			for rank := 0; rank < tc.worldSize; rank++ {
				start, end, err := partition.Range(tc.n, tc.worldSize, rank)
				require.NoError(t, err)
				assert.Equal(t, tc.starts[rank], start, "start of rank %d", rank)
				assert.Equal(t, tc.sizes[rank], end-start, "size of rank %d", rank)
			}
		})
	}
}

func TestRangeCompleteness(t *testing.T) {
	for n := 1; n <= 40; n++ {
		for w := 1; w <= 12; w++ {
			var got []int
			prevEnd := 0
			for r := 0; r < w; r++ {
				start, end, err := partition.Range(n, w, r)
				require.NoError(t, err)
				require.Equal(t, prevEnd, start, "n=%d w=%d r=%d not contiguous", n, w, r)
				require.LessOrEqual(t, start, end)
				for i := start; i < end; i++ {
					got = append(got, i)
				}
				prevEnd = end
			}
			require.Len(t, got, n, "n=%d w=%d", n, w)
			for i, v := range got {
				require.Equal(t, i, v)
			}
		}
	}
}

func TestRangeErrors(t *testing.T) {
	cases := []struct {
		desc      string
		n         int
		worldSize int
		rank      int
		err       error
	}{
		{desc: "empty dataset", n: 0, worldSize: 3, rank: 0, err: errors.ErrEmptyDataset},
		{desc: "zero world size", n: 5, worldSize: 0, rank: 0, err: errors.ErrInvalidWorldSize},
		{desc: "negative rank", n: 5, worldSize: 2, rank: -1, err: errors.ErrInvalidRank},
		{desc: "rank equal to world size", n: 5, worldSize: 2, rank: 2, err: errors.ErrInvalidRank},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			_, _, err := partition.Range(tc.n, tc.worldSize, tc.rank)
			assert.ErrorIs(t, err, tc.err)
		})
	}
}

func TestSlice(t *testing.T) {
	items := []string{"a", "b", "c", "d", "e"}

	var joined []string
	for r := 0; r < 3; r++ {
		part, err := partition.Slice(items, 3, r)
		require.NoError(t, err)
		joined = append(joined, part...)
	}
	assert.Equal(t, items, joined)

	_, err := partition.Slice([]string{}, 3, 0)
	assert.ErrorIs(t, err, errors.ErrEmptyDataset)
}

func TestBatches(t *testing.T) {
	cases := []struct {
		desc    string
		n, size int
		want    []partition.Batch
	}{
		{desc: "last batch shorter", n: 7, size: 3, want: []partition.Batch{{Start: 0, End: 3}, {Start: 3, End: 6}, {Start: 6, End: 7}}},
		{desc: "exact", n: 4, size: 2, want: []partition.Batch{{Start: 0, End: 2}, {Start: 2, End: 4}}},
		{desc: "batch larger than data", n: 2, size: 32, want: []partition.Batch{{Start: 0, End: 2}}},
		{desc: "empty partition", n: 0, size: 4, want: nil},
		{desc: "non-positive size", n: 2, size: 0, want: []partition.Batch{{Start: 0, End: 1}, {Start: 1, End: 2}}},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			assert.Equal(t, tc.want, partition.Batches(tc.n, tc.size))
		})
	}
}
