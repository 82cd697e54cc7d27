package descriptor

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
)

// Wire shapes with pointer fields so a missing key is distinguishable from a
// zero value.
type (
	deviceWire struct {
		DeviceID        *string `json:"deviceId"`
		Producer        *string `json:"producer"`
		SoftwareVersion *string `json:"softwareVersion"`
	}
	messageWire struct {
		Timestamp *int64  `json:"timestamp"`
		Type      *string `json:"type"`
		Value     *Value  `json:"value"`
	}
	eventWire struct {
		Timestamp  *int64  `json:"timestamp"`
		EventType  *string `json:"eventType"`
		EventValue *Value  `json:"eventValue"`
	}
	actionWire struct {
		ActionType  *string `json:"actionType"`
		ActionValue *string `json:"actionValue"`
	}
)

// DecodeDevice parses a DeviceDescriptor.
func DecodeDevice(data []byte) (DeviceDescriptor, error) {
	var w deviceWire
	if err := strictUnmarshal(data, &w, "deviceId", "producer", "softwareVersion"); err != nil {
		return DeviceDescriptor{}, err
	}
	if err := required(
		field{"deviceId", w.DeviceID != nil && *w.DeviceID != ""},
		field{"producer", w.Producer != nil},
		field{"softwareVersion", w.SoftwareVersion != nil},
	); err != nil {
		return DeviceDescriptor{}, err
	}
	return DeviceDescriptor{
		DeviceID:        *w.DeviceID,
		Producer:        *w.Producer,
		SoftwareVersion: *w.SoftwareVersion,
	}, nil
}

// DecodeMessage parses a MessageDescriptor.
func DecodeMessage(data []byte) (MessageDescriptor, error) {
	var w messageWire
	if err := strictUnmarshal(data, &w, "timestamp", "type", "value"); err != nil {
		return MessageDescriptor{}, err
	}
	if err := required(
		field{"timestamp", w.Timestamp != nil},
		field{"type", w.Type != nil && *w.Type != ""},
		field{"value", w.Value != nil},
	); err != nil {
		return MessageDescriptor{}, err
	}
	return MessageDescriptor{
		Timestamp: *w.Timestamp,
		Type:      *w.Type,
		Value:     *w.Value,
	}, nil
}

// DecodeEvent parses an EventDescriptor.
func DecodeEvent(data []byte) (EventDescriptor, error) {
	var w eventWire
	if err := strictUnmarshal(data, &w, "timestamp", "eventType", "eventValue"); err != nil {
		return EventDescriptor{}, err
	}
	if err := required(
		field{"timestamp", w.Timestamp != nil},
		field{"eventType", w.EventType != nil && *w.EventType != ""},
		field{"eventValue", w.EventValue != nil},
	); err != nil {
		return EventDescriptor{}, err
	}
	return EventDescriptor{
		Timestamp:  *w.Timestamp,
		EventType:  *w.EventType,
		EventValue: *w.EventValue,
	}, nil
}

// DecodeAction parses an ActionDescriptor. It does not check that the action
// is one the receiver manages; that is the receiver's decision.
func DecodeAction(data []byte) (ActionDescriptor, error) {
	var w actionWire
	if err := strictUnmarshal(data, &w, "actionType", "actionValue"); err != nil {
		return ActionDescriptor{}, err
	}
	if err := required(
		field{"actionType", w.ActionType != nil && *w.ActionType != ""},
		field{"actionValue", w.ActionValue != nil && *w.ActionValue != ""},
	); err != nil {
		return ActionDescriptor{}, err
	}
	return ActionDescriptor{
		ActionType:  *w.ActionType,
		ActionValue: *w.ActionValue,
	}, nil
}

// strictUnmarshal decodes a single JSON object into v. Keys must match one of
// keys exactly and appear at most once.
func strictUnmarshal(data []byte, v any, keys ...string) error {
	if err := checkKeys(data, keys); err != nil {
		return err
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		if errors.Is(err, ErrDecode) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrDecode, err)
	}

	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: trailing data after object", ErrDecode)
	}
	return nil
}

// checkKeys walks the top-level object and rejects unknown or repeated keys.
func checkKeys(data []byte, keys []string) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("%w: expected JSON object", ErrDecode)
	}

	seen := make(map[string]bool, len(keys))
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("%w: %w", ErrDecode, err)
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("%w: expected object key", ErrDecode)
		}
		if !slices.Contains(keys, key) {
			return fmt.Errorf("%w: unknown field %q", ErrDecode, key)
		}
		if seen[key] {
			return fmt.Errorf("%w: duplicate field %q", ErrDecode, key)
		}
		seen[key] = true

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("%w: %w", ErrDecode, err)
		}
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return nil
}

type field struct {
	name    string
	present bool
}

// required reports the first missing field.
func required(fields ...field) error {
	for _, f := range fields {
		if !f.present {
			return fmt.Errorf("%w: missing field %q", ErrDecode, f.name)
		}
	}
	return nil
}
