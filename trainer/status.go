package trainer

import (
	"encoding/json"
	"fmt"
)

type Status uint8

const (
	NotStarted Status = iota
	InProgress
	Completed
	Failed
)

func (s Status) String() string {
	switch s {
	case NotStarted:
		return "Not Started"
	case InProgress:
		return "In Progress"
	case Completed:
		return "Completed"
	case Failed:
		return "Failed"
	default:
		return fmt.Sprintf("Status(%d)", uint8(s))
	}
}

// Terminal reports whether s ends a training run.
func (s Status) Terminal() bool {
	return s == Completed || s == Failed
}

// CanTransition reports whether a run may move from s to next. Runs enter
// InProgress from NotStarted only and leave it for Completed or Failed.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case NotStarted:
		return next == InProgress
	case InProgress:
		return next == Completed || next == Failed
	default:
		return false
	}
}

func ParseStatus(s string) (Status, error) {
	for _, st := range []Status{NotStarted, InProgress, Completed, Failed} {
		if st.String() == s {
			return st, nil
		}
	}

	return NotStarted, fmt.Errorf("unknown status %q", s)
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	st, err := ParseStatus(str)
	if err != nil {
		return err
	}
	*s = st

	return nil
}
