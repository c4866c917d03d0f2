package cli

import (
	"github.com/absmach/disttrain/pkg/sdk"
	"github.com/spf13/cobra"
)

var (
	DefTLSVerification        = false
	DefTrainerURL             = "http://localhost:9090"
	defOffset          uint64 = 0
	defLimit           uint64 = 10
)

var tsdk sdk.SDK

func SetSDK(s sdk.SDK) {
	tsdk = s
}

func NewStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show trainer status",
		Long:  `Show the status of one trainer rank: epoch, attempts, global loss and configuration.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 0 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			s, err := tsdk.Status()
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, s)
		},
	}
}

func NewRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs [list|view]",
		Short: "Training runs",
		Long:  `List and view the training attempts recorded by a trainer rank.`,
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List runs",
		Long:  `List runs in the order they started.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 0 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			page, err := tsdk.ListRuns(defOffset, defLimit)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, page)
		},
	}

	viewCmd := &cobra.Command{
		Use:   "view <id>",
		Short: "View run",
		Long:  `View run.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			r, err := tsdk.GetRun(args[0])
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, r)
		},
	}

	cmd.AddCommand(listCmd)
	cmd.AddCommand(viewCmd)

	cmd.PersistentFlags().Uint64VarP(
		&defOffset,
		"offset",
		"o",
		defOffset,
		"Offset",
	)

	cmd.PersistentFlags().Uint64VarP(
		&defLimit,
		"limit",
		"l",
		defLimit,
		"Limit",
	)

	return cmd
}
