package aggregate

import "errors"

var (
	ErrUnknownPolicy   = errors.New("unknown aggregation policy")
	ErrNegativeSamples = errors.New("negative sample count")
)
