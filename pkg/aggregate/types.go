package aggregate

import (
	"fmt"
	"strings"
)

// Policy decides how the summed contributions of all ranks are normalized.
type Policy uint8

const (
	// Uniform divides the sum by the world size.
	Uniform Policy = iota
	// SampleWeighted scales every contribution by the rank's sample count and
	// divides by the global sample count (FedAvg).
	SampleWeighted
)

func (p Policy) String() string {
	switch p {
	case Uniform:
		return "uniform"
	case SampleWeighted:
		return "weighted"
	default:
		return fmt.Sprintf("policy(%d)", uint8(p))
	}
}

func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "uniform":
		return Uniform, nil
	case "weighted", "sample-weighted":
		return SampleWeighted, nil
	default:
		return Uniform, fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
	}
}

// Contribution is one rank's local result for an epoch.
type Contribution struct {
	Gradient []float64
	Loss     float64
	Samples  int
}

// Result is identical on every rank after aggregation. Samples is the global
// sample count.
type Result struct {
	Gradient []float64
	Loss     float64
	Samples  int
}
