package device

import (
	"errors"
	"fmt"
)

// ErrInvalidSwitchState is returned by ParseSwitchState for anything other
// than "ON" or "OFF".
var ErrInvalidSwitchState = errors.New("device: invalid switch state")

// SwitchState is the position of a SwitchActuator.
type SwitchState bool

const (
	SwitchOff SwitchState = false
	SwitchOn  SwitchState = true
)

// String returns "ON" or "OFF", the values used on the wire.
func (s SwitchState) String() string {
	if s {
		return "ON"
	}
	return "OFF"
}

// ParseSwitchState parses "ON" or "OFF". Matching is exact.
func ParseSwitchState(s string) (SwitchState, error) {
	switch s {
	case "ON":
		return SwitchOn, nil
	case "OFF":
		return SwitchOff, nil
	default:
		return SwitchOff, fmt.Errorf("%w: %q", ErrInvalidSwitchState, s)
	}
}

// SwitchActuator is a binary switch. It starts ON.
type SwitchActuator struct {
	state SwitchState
}

// NewSwitchActuator returns a switch in the ON position.
func NewSwitchActuator() *SwitchActuator {
	return &SwitchActuator{state: SwitchOn}
}

// SetState assigns the state unconditionally.
func (a *SwitchActuator) SetState(s SwitchState) {
	a.state = s
}

// Toggle flips the state and returns the new one.
func (a *SwitchActuator) Toggle() SwitchState {
	a.state = !a.state
	return a.state
}

// State returns the current position.
func (a *SwitchActuator) State() SwitchState {
	return a.state
}

// IsOn reports whether the switch is ON.
func (a *SwitchActuator) IsOn() bool {
	return a.state == SwitchOn
}
