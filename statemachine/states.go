package statemachine

import (
	"fmt"
	"github.com/pkg/errors"
)

// State is a pod lifecycle state. The numeric value is the wire code.
type State uint8

const (
	Idle State = iota
	Calibrate
	Precharge
	ReadyForLevitation
	BeginLevitation
	Levitating
	Ready
	Accelerate
	LimBrake
	EmergencyBrake
	FrictionBrake
	StopLevitation
	Stopped
	Safe
	Shutdown
)

var ErrUnknownState = errors.New("statemachine: unknown state")

var stateNames = [...]string{
	Idle:               "idle",
	Calibrate:          "calibrate",
	Precharge:          "precharge",
	ReadyForLevitation: "ready_for_levitation",
	BeginLevitation:    "begin_levitation",
	Levitating:         "levitating",
	Ready:              "ready",
	Accelerate:         "accelerate",
	LimBrake:           "lim_brake",
	EmergencyBrake:     "emergency_brake",
	FrictionBrake:      "friction_brake",
	StopLevitation:     "stop_levitation",
	Stopped:            "stopped",
	Safe:               "safe",
	Shutdown:           "shutdown",
}

// States lists every state in lifecycle order.
func States() []State {
	states := make([]State, len(stateNames))
	for i := range stateNames {
		states[i] = State(i)
	}
	return states
}

func (s State) Valid() bool {
	return int(s) < len(stateNames)
}

func (s State) String() string {
	if s.Valid() {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// FromCode maps a wire state code.
func FromCode(code uint8) (State, error) {
	s := State(code)
	if !s.Valid() {
		return 0, errors.Wrapf(ErrUnknownState, "code %d", code)
	}
	return s, nil
}

// ParseState maps a snake_case state name.
func ParseState(name string) (State, error) {
	for i, n := range stateNames {
		if n == name {
			return State(i), nil
		}
	}
	return 0, errors.Wrapf(ErrUnknownState, "name %q", name)
}

func (s State) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, errors.Wrapf(ErrUnknownState, "code %d", uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	v, err := ParseState(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
