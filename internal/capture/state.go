package capture

import (
	"errors"
	"fmt"
)

type State int

const (
	Idle State = iota
	Recording
	Paused
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Paused:
		return "paused"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ErrSessionActive is returned by Start while another session is live.
var ErrSessionActive = errors.New("capture: a recording session is already active")

// TransitionError reports an operation that is not valid in the current state.
type TransitionError struct {
	Op   string
	From State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("capture: cannot %s while %s", e.Op, e.From)
}
