// Package model holds the local computation contract the trainer drives and a
// linear-regression stand-in used by the daemon, the simulator and tests.
package model

// Model is the per-rank local trainer. A Model is driven by one goroutine.
type Model interface {
	// Compute returns the gradient and loss of one batch. The gradient has
	// the length of Parameters.
	Compute(batch Batch) ([]float64, float64, error)

	// ApplyUpdate applies an aggregated gradient. Every rank applies the same
	// gradient to the same parameters.
	ApplyUpdate(gradient []float64, loss float64) error

	Parameters() []float64

	SetParameters(params []float64) error

	Predict(features []float64) (float64, error)
}

// Tunable is implemented by models whose step size is set by the trainer
// configuration.
type Tunable interface {
	SetLearningRate(rate float64)
}
