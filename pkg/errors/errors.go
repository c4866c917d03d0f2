package errors

import (
	"context"
	"errors"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrEmptyKey     = errors.New("empty key")
	ErrInvalidData  = errors.New("invalid data type")
	ErrEntityExists = errors.New("entity already exists")

	ErrEmptyDataset         = errors.New("training dataset is empty")
	ErrDimensionMismatch    = errors.New("dimension mismatch")
	ErrInvalidWorkerAddress = errors.New("invalid worker address")
	ErrInvalidRank          = errors.New("invalid rank")
	ErrInvalidWorldSize     = errors.New("invalid world size")
	ErrCollective           = errors.New("collective operation failed")
	ErrNonFiniteLoss        = errors.New("global loss is not finite")
)

// Kind tells the retry wrapper whether a failed training attempt may be restarted.
type Kind uint8

const (
	Fatal Kind = iota
	Retryable
)

func (k Kind) String() string {
	switch k {
	case Fatal:
		return "fatal"
	case Retryable:
		return "retryable"
	default:
		return "unknown"
	}
}

type kindError struct {
	kind Kind
	err  error
}

func (e *kindError) Error() string {
	return e.err.Error()
}

func (e *kindError) Unwrap() error {
	return e.err
}

// Wrap tags err with the given kind. A nil error stays nil.
func Wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}

	return &kindError{kind: kind, err: err}
}

// KindOf returns the outermost explicit tag of err. Untagged collective failures
// and deadline expiries are retryable, anything else is fatal.
func KindOf(err error) Kind {
	var ke *kindError
	if errors.As(err, &ke) {
		return ke.kind
	}

	switch {
	case errors.Is(err, ErrCollective), errors.Is(err, context.DeadlineExceeded):
		return Retryable
	default:
		return Fatal
	}
}

func IsRetryable(err error) bool {
	return err != nil && KindOf(err) == Retryable
}
