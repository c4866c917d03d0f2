package cli

import (
	"fmt"
	"strconv"

	"github.com/absmach/disttrain/pkg/partition"
	"github.com/spf13/cobra"
)

type Share struct {
	Rank  int `json:"rank"`
	Start int `json:"start"`
	End   int `json:"end"`
	Size  int `json:"size"`
}

// Shares lists the range of every rank for a dataset of n samples.
func Shares(n, worldSize int) ([]Share, error) {
	shares := make([]Share, 0, worldSize)
	for rank := range worldSize {
		start, end, err := partition.Range(n, worldSize, rank)
		if err != nil {
			return nil, err
		}
		shares = append(shares, Share{Rank: rank, Start: start, End: end, Size: end - start})
	}

	return shares, nil
}

func NewPartitionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "partition <samples> <world-size>",
		Short: "Show dataset partitions",
		Long:  `Show the contiguous range of samples every rank trains on.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 2 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			n, err := strconv.Atoi(args[0])
			if err != nil {
				logErrorCmd(*cmd, fmt.Errorf("invalid sample count %q: %w", args[0], err))

				return
			}
			w, err := strconv.Atoi(args[1])
			if err != nil {
				logErrorCmd(*cmd, fmt.Errorf("invalid world size %q: %w", args[1], err))

				return
			}

			shares, err := Shares(n, w)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, shares)
		},
	}
}
