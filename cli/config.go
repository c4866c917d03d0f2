package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/absmach/disttrain"
	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
)

const defConfigPath = "job.toml"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config [init|view]",
		Short: "Job files",
		Long:  `Create and inspect training job files.`,
	}

	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Create a job file",
		Long:  `Interactively create a job file, job.toml unless a path is given.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) > 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}
			path := defConfigPath
			if len(args) == 1 {
				path = args[0]
			}

			cfg := disttrain.DefaultConfig()
			form, values := configForm(&cfg)
			if err := form.Run(); err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			if err := values.apply(&cfg); err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			if err := disttrain.SaveConfig(path, cfg); err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logSuccessCmd(*cmd, "Saved job file "+path)
		},
	}

	viewCmd := &cobra.Command{
		Use:   "view [path]",
		Short: "View a job file",
		Long:  `View a job file, job.toml unless a path is given.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) > 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}
			path := defConfigPath
			if len(args) == 1 {
				path = args[0]
			}

			cfg, err := disttrain.LoadConfig(path)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, cfg)
		},
	}

	cmd.AddCommand(initCmd)
	cmd.AddCommand(viewCmd)

	return cmd
}

// formValues holds the form's text inputs until they are parsed into cfg.
type formValues struct {
	worldSize, epochs, batchSize, patience, retries, samples, dim, lr string
}

func configForm(cfg *disttrain.Config) (*huh.Form, *formValues) {
	v := &formValues{
		worldSize: strconv.Itoa(cfg.Job.WorldSize),
		epochs:    strconv.Itoa(cfg.Training.Epochs),
		batchSize: strconv.Itoa(cfg.Training.BatchSize),
		patience:  strconv.Itoa(cfg.Training.Patience),
		retries:   strconv.Itoa(cfg.Training.MaxRetries),
		samples:   strconv.Itoa(cfg.Dataset.Samples),
		dim:       strconv.Itoa(cfg.Dataset.Dim),
		lr:        strconv.FormatFloat(cfg.Training.LearningRate, 'g', -1, 64),
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Job name").Value(&cfg.Job.Name).Validate(notEmpty),
			huh.NewInput().Title("World size").Value(&v.worldSize).Validate(positiveInt),
			huh.NewInput().Title("Samples").Value(&v.samples).Validate(positiveInt),
			huh.NewInput().Title("Feature dimension").Value(&v.dim).Validate(positiveInt),
		).Title("Job"),
		huh.NewGroup(
			huh.NewInput().Title("Learning rate").Value(&v.lr).Validate(learningRate),
			huh.NewInput().Title("Epochs").Value(&v.epochs).Validate(positiveInt),
			huh.NewInput().Title("Batch size").Value(&v.batchSize).Validate(positiveInt),
			huh.NewInput().Title("Patience").Value(&v.patience).Validate(positiveInt),
			huh.NewInput().Title("Max retries").Value(&v.retries).Validate(positiveInt),
			huh.NewInput().Title("Backoff unit").Value(&cfg.Training.BackoffUnit).Validate(duration),
			huh.NewSelect[string]().
				Title("Weighting").
				Options(huh.NewOptions("uniform", "weighted")...).
				Value(&cfg.Training.Weighting),
		).Title("Training"),
		huh.NewGroup(
			huh.NewInput().Title("MQTT address").Value(&cfg.MQTT.Address).Validate(notEmpty),
			huh.NewInput().Title("Kubernetes namespace").Value(&cfg.Kubernetes.Namespace),
			huh.NewInput().Title("Image").Value(&cfg.Kubernetes.Image),
		).Title("Deployment"),
	)

	return form.WithShowHelp(true), v
}

// apply parses the numeric inputs into cfg.
func (v *formValues) apply(cfg *disttrain.Config) error {
	ints := []struct {
		in  string
		out *int
	}{
		{v.worldSize, &cfg.Job.WorldSize},
		{v.epochs, &cfg.Training.Epochs},
		{v.batchSize, &cfg.Training.BatchSize},
		{v.patience, &cfg.Training.Patience},
		{v.retries, &cfg.Training.MaxRetries},
		{v.samples, &cfg.Dataset.Samples},
		{v.dim, &cfg.Dataset.Dim},
	}
	for _, i := range ints {
		n, err := strconv.Atoi(i.in)
		if err != nil {
			return err
		}
		*i.out = n
	}

	lr, err := strconv.ParseFloat(v.lr, 64)
	if err != nil {
		return err
	}
	cfg.Training.LearningRate = lr

	return nil
}

func notEmpty(s string) error {
	if s == "" {
		return fmt.Errorf("value is required")
	}

	return nil
}

func positiveInt(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("%q is not a number", s)
	}
	if n < 1 {
		return fmt.Errorf("must be at least 1")
	}

	return nil
}

func learningRate(s string) error {
	lr, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("%q is not a number", s)
	}
	if lr <= 0 || lr > 1 {
		return fmt.Errorf("must be in (0, 1]")
	}

	return nil
}

func duration(s string) error {
	if _, err := time.ParseDuration(s); err != nil {
		return fmt.Errorf("%q is not a duration, try 500ms or 2s", s)
	}

	return nil
}
