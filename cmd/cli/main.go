package main

import (
	"log"

	"github.com/absmach/disttrain/cli"
	"github.com/absmach/disttrain/pkg/sdk"
	"github.com/spf13/cobra"
)

func main() {
	var (
		trainerURL = cli.DefTrainerURL
		tlsVerify  = cli.DefTLSVerification
	)

	rootCmd := &cobra.Command{
		Use:   "disttrain-cli",
		Short: "Distributed training CLI",
		Long:  `disttrain-cli simulates, launches and inspects synchronous data-parallel training jobs.`,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			sdkConf := sdk.Config{
				TrainerURL:      trainerURL,
				TLSVerification: tlsVerify,
			}
			cli.SetSDK(sdk.NewSDK(sdkConf))
		},
	}

	rootCmd.PersistentFlags().StringVarP(&trainerURL, "trainer-url", "t", trainerURL, "Trainer rank HTTP API URL")
	rootCmd.PersistentFlags().BoolVar(&tlsVerify, "tls-verify", tlsVerify, "Verify the trainer TLS certificate")

	rootCmd.AddCommand(cli.NewSimulateCmd())
	rootCmd.AddCommand(cli.NewPartitionCmd())
	rootCmd.AddCommand(cli.NewStatusCmd())
	rootCmd.AddCommand(cli.NewRunsCmd())
	rootCmd.AddCommand(cli.NewLaunchCmd())
	rootCmd.AddCommand(cli.NewConfigCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
