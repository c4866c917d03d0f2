// Package earlystop implements patience-based early stopping on the global
// loss. A Policy belongs to a single training run.
package earlystop

import "math"

const DefaultPatience = 3

type State struct {
	BestLoss     float64 `json:"best_loss"`
	NonImproving int     `json:"non_improving"`
	Patience     int     `json:"patience"`
}

type Policy struct {
	state State
}

// New returns a fresh policy. patience < 1 falls back to DefaultPatience.
func New(patience int) *Policy {
	if patience < 1 {
		patience = DefaultPatience
	}

	return &Policy{
		state: State{
			BestLoss: math.Inf(1),
			Patience: patience,
		},
	}
}

// ShouldStop records loss and reports whether training should end. Only a
// strict improvement resets the counter; NaN never improves.
func (p *Policy) ShouldStop(loss float64) bool {
	if loss < p.state.BestLoss {
		p.state.BestLoss = loss
		p.state.NonImproving = 0

		return false
	}
	p.state.NonImproving++

	return p.state.NonImproving >= p.state.Patience
}

func (p *Policy) State() State {
	return p.state
}
