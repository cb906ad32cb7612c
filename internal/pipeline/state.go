// Package pipeline coordinates capture, location, detection, annotation
// and sharing into a single user-facing state machine.
//
//	Live --capture--> Capturing --detections--> FrozenResult
//	                            --empty/error--> FrozenNoResult
//	any  --reset-->   Live
package pipeline

import "fmt"

// State is the controller state.
type State int

const (
	Live State = iota
	Capturing
	FrozenNoResult
	FrozenResult
)

var stateNames = map[State]string{
	Live:           "live",
	Capturing:      "capturing",
	FrozenNoResult: "frozen_no_result",
	FrozenResult:   "frozen_result",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Frozen reports whether a captured frame is displayed.
func (s State) Frozen() bool {
	return s != Live
}
