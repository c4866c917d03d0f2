package cli

import (
	"github.com/absmach/disttrain"
	"github.com/absmach/disttrain/pkg/launcher"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/config"
)

// LaunchSpec maps a job file onto the Kubernetes launcher. A job without an
// ID gets a fresh one.
func LaunchSpec(cfg disttrain.Config) (launcher.Spec, error) {
	tc, err := cfg.Training.Trainer()
	if err != nil {
		return launcher.Spec{}, err
	}

	jobID := cfg.Job.ID
	if jobID == "" {
		jobID = uuid.NewString()
	}
	baseTopic := cfg.MQTT.BaseTopic
	if baseTopic == "" {
		baseTopic = "disttrain"
	}

	return launcher.Spec{
		Name:        cfg.Job.Name,
		Namespace:   cfg.Kubernetes.Namespace,
		Image:       cfg.Kubernetes.Image,
		JobID:       jobID,
		WorldSize:   cfg.Job.WorldSize,
		MQTTAddress: cfg.MQTT.Address,
		BaseTopic:   baseTopic + "/" + jobID,
		Training:    tc,
		Samples:     cfg.Dataset.Samples,
		Dim:         cfg.Dataset.Dim,
		Seed:        cfg.Dataset.Seed,
	}, nil
}

func NewLaunchCmd() *cobra.Command {
	var (
		configPath string
		apply      bool
	)

	cmd := &cobra.Command{
		Use:   "launch",
		Short: "Launch a job on Kubernetes",
		Long: `Render the Indexed Job running one trainer pod per rank.

Examples:
  # Print the job manifest
  disttrain-cli launch --config job.toml

  # Create the job in the current kubeconfig context
  disttrain-cli launch --config job.toml --apply`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 0 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			job := disttrain.DefaultConfig()
			if configPath != "" {
				c, err := disttrain.LoadConfig(configPath)
				if err != nil {
					logErrorCmd(*cmd, err)

					return
				}
				job = *c
			}

			spec, err := LaunchSpec(job)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}

			if !apply {
				manifest, err := launcher.BuildJob(spec)
				if err != nil {
					logErrorCmd(*cmd, err)

					return
				}
				logJSONCmd(*cmd, manifest)

				return
			}

			restCfg, err := config.GetConfig()
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			c, err := client.New(restCfg, client.Options{})
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			created, err := launcher.Submit(cmd.Context(), c, spec)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logSuccessCmd(*cmd, "Created job "+created.Namespace+"/"+created.Name+" ("+spec.JobID+")")
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Job file")
	cmd.Flags().BoolVar(&apply, "apply", false, "Create the job instead of printing it")

	return cmd
}
