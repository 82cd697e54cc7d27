package descriptor

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

// Telemetry types.
const (
	TypeTemperatureSensor = "TEMPERATURE_SENSOR"
	TypeSwitch            = "SWITCH"
)

// Event types.
const (
	EventOverHeating = "OVER_HEATING"
)

// Action types and values.
const (
	ActionSwitch = "SWITCH"
	ValueOn      = "ON"
	ValueOff     = "OFF"
)

// DeviceDescriptor announces a device's identity. It is published once per
// session on the retained info topic.
type DeviceDescriptor struct {
	DeviceID        string `json:"deviceId"`
	Producer        string `json:"producer"`
	SoftwareVersion string `json:"softwareVersion"`
}

// MessageDescriptor is one telemetry sample.
type MessageDescriptor struct {
	Timestamp int64  `json:"timestamp"`
	Type      string `json:"type"`
	Value     Value  `json:"value"`
}

// EventDescriptor reports a condition detected on the device.
type EventDescriptor struct {
	Timestamp  int64  `json:"timestamp"`
	EventType  string `json:"eventType"`
	EventValue Value  `json:"eventValue"`
}

// ActionDescriptor is a command sent to a device actuator.
type ActionDescriptor struct {
	ActionType  string `json:"actionType"`
	ActionValue string `json:"actionValue"`
}

// SwitchAction builds a SWITCH command for the given value.
func SwitchAction(value string) ActionDescriptor {
	return ActionDescriptor{ActionType: ActionSwitch, ActionValue: value}
}

// Encode returns the JSON form of the descriptor.
func (d DeviceDescriptor) Encode() ([]byte, error) {
	if d.DeviceID == "" {
		return nil, fmt.Errorf("%w: deviceId is required", ErrInvalidDescriptor)
	}
	if err := validText(d.DeviceID, d.Producer, d.SoftwareVersion); err != nil {
		return nil, err
	}
	return json.Marshal(d)
}

// Encode returns the JSON form of the descriptor.
func (m MessageDescriptor) Encode() ([]byte, error) {
	if m.Type == "" {
		return nil, fmt.Errorf("%w: type is required", ErrInvalidDescriptor)
	}
	if m.Value.IsZero() {
		return nil, fmt.Errorf("%w: value is required", ErrInvalidDescriptor)
	}
	if err := validText(m.Type, m.Value.str); err != nil {
		return nil, err
	}
	return json.Marshal(m)
}

// Encode returns the JSON form of the descriptor.
func (e EventDescriptor) Encode() ([]byte, error) {
	if e.EventType == "" {
		return nil, fmt.Errorf("%w: eventType is required", ErrInvalidDescriptor)
	}
	if e.EventValue.IsZero() {
		return nil, fmt.Errorf("%w: eventValue is required", ErrInvalidDescriptor)
	}
	if err := validText(e.EventType, e.EventValue.str); err != nil {
		return nil, err
	}
	return json.Marshal(e)
}

// Encode returns the JSON form of the descriptor.
func (a ActionDescriptor) Encode() ([]byte, error) {
	if a.ActionType == "" || a.ActionValue == "" {
		return nil, fmt.Errorf("%w: actionType and actionValue are required", ErrInvalidDescriptor)
	}
	if err := validText(a.ActionType, a.ActionValue); err != nil {
		return nil, err
	}
	return json.Marshal(a)
}

// validText rejects strings that json.Marshal would rewrite with U+FFFD.
func validText(fields ...string) error {
	for _, f := range fields {
		if !utf8.ValidString(f) {
			return fmt.Errorf("%w: invalid UTF-8 in %q", ErrInvalidDescriptor, f)
		}
	}
	return nil
}
