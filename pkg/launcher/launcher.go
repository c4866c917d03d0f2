// Package launcher runs a training job on Kubernetes as an Indexed Job with
// one pod per rank. The completion index becomes the pod's rank.
package launcher

import (
	"context"
	"fmt"
	"strconv"

	pkgerrors "github.com/absmach/disttrain/pkg/errors"
	"github.com/absmach/disttrain/trainer"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

const (
	EnvPrefix = "DISTTRAIN_"

	completionIndexAnnotation = "batch.kubernetes.io/job-completion-index"
	containerName             = "trainer"
	jobIDLabel                = "disttrain.absmach.eu/job-id"
	httpPort                  = 9090
)

type Spec struct {
	Name        string
	Namespace   string
	Image       string
	JobID       string
	WorldSize   int
	MQTTAddress string
	BaseTopic   string
	Training    trainer.Config
	Samples     int
	Dim         int
	Seed        uint64
}

func (s Spec) validate() error {
	if s.Name == "" {
		return fmt.Errorf("%w: job name", pkgerrors.ErrEmptyKey)
	}
	if s.Image == "" {
		return fmt.Errorf("%w: image", pkgerrors.ErrEmptyKey)
	}
	if s.WorldSize < 1 {
		return fmt.Errorf("%w: %d", pkgerrors.ErrInvalidWorldSize, s.WorldSize)
	}

	return nil
}

// BuildJob renders the Job without contacting the cluster.
func BuildJob(s Spec) (*batchv1.Job, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}

	ranks := int32(s.WorldSize)
	mode := batchv1.IndexedCompletion
	backoffLimit := int32(0)
	labels := map[string]string{
		"app.kubernetes.io/name":       "disttrain",
		"app.kubernetes.io/managed-by": "disttrain-cli",
		jobIDLabel:                     s.JobID,
	}

	return &batchv1.Job{
		TypeMeta: metav1.TypeMeta{
			APIVersion: "batch/v1",
			Kind:       "Job",
		},
		ObjectMeta: metav1.ObjectMeta{
			Name:      s.Name,
			Namespace: s.Namespace,
			Labels:    labels,
		},
		Spec: batchv1.JobSpec{
			CompletionMode: &mode,
			Completions:    &ranks,
			Parallelism:    &ranks,
			BackoffLimit:   &backoffLimit,
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{
					Labels: labels,
				},
				Spec: corev1.PodSpec{
					RestartPolicy: corev1.RestartPolicyNever,
					Containers: []corev1.Container{
						{
							Name:  containerName,
							Image: s.Image,
							Env:   env(s),
							Ports: []corev1.ContainerPort{
								{
									Name:          "http",
									ContainerPort: httpPort,
									Protocol:      corev1.ProtocolTCP,
								},
							},
						},
					},
				},
			},
		},
	}, nil
}

func env(s Spec) []corev1.EnvVar {
	value := func(name, v string) corev1.EnvVar {
		return corev1.EnvVar{Name: EnvPrefix + name, Value: v}
	}
	field := func(name, path string) corev1.EnvVar {
		return corev1.EnvVar{
			Name: EnvPrefix + name,
			ValueFrom: &corev1.EnvVarSource{
				FieldRef: &corev1.ObjectFieldSelector{FieldPath: path},
			},
		}
	}
	tc := s.Training

	return []corev1.EnvVar{
		field("RANK", "metadata.annotations['"+completionIndexAnnotation+"']"),
		field("MQTT_CLIENT_ID", "metadata.name"),
		value("WORLD_SIZE", strconv.Itoa(s.WorldSize)),
		value("JOB_ID", s.JobID),
		value("MQTT_ADDRESS", s.MQTTAddress),
		value("COLLECTIVE_BASE_TOPIC", s.BaseTopic),
		value("HTTP_PORT", strconv.Itoa(httpPort)),
		value("TRAIN_LEARNING_RATE", strconv.FormatFloat(tc.LearningRate, 'g', -1, 64)),
		value("TRAIN_EPOCHS", strconv.Itoa(tc.Epochs)),
		value("TRAIN_BATCH_SIZE", strconv.Itoa(tc.BatchSize)),
		value("TRAIN_PATIENCE", strconv.Itoa(tc.Patience)),
		value("TRAIN_MAX_RETRIES", strconv.Itoa(tc.MaxRetries)),
		value("TRAIN_BACKOFF_UNIT", tc.BackoffUnit.String()),
		value("TRAIN_WEIGHTING", tc.Weighting),
		value("DATASET_SAMPLES", strconv.Itoa(s.Samples)),
		value("DATASET_DIM", strconv.Itoa(s.Dim)),
		value("DATASET_SEED", strconv.FormatUint(s.Seed, 10)),
	}
}

// Submit creates the Job in the cluster.
func Submit(ctx context.Context, c client.Client, s Spec) (*batchv1.Job, error) {
	job, err := BuildJob(s)
	if err != nil {
		return nil, err
	}

	if err := c.Create(ctx, job); err != nil {
		if apierrors.IsAlreadyExists(err) {
			return nil, fmt.Errorf("%w: job %s/%s", pkgerrors.ErrEntityExists, s.Namespace, s.Name)
		}

		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	return job, nil
}
