package descriptor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// ValueKind tags the payload carried by a Value.
type ValueKind uint8

const (
	// KindNone is the zero Value. It never appears on the wire.
	KindNone ValueKind = iota
	KindNumber
	KindString
)

// Value is a telemetry or event payload that is either a number or a string.
// It is comparable, so descriptors holding it can be compared with ==.
type Value struct {
	kind ValueKind
	num  float64
	str  string
}

// Number returns a numeric Value.
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

// String returns a string Value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Kind reports which payload the Value carries.
func (v Value) Kind() ValueKind { return v.kind }

// IsZero reports whether v carries no payload.
func (v Value) IsZero() bool { return v.kind == KindNone }

// Float returns the numeric payload. ok is false for string or empty values.
func (v Value) Float() (f float64, ok bool) {
	return v.num, v.kind == KindNumber
}

// Text returns the string payload. ok is false for numeric or empty values.
func (v Value) Text() (s string, ok bool) {
	return v.str, v.kind == KindString
}

// String renders the payload for logs.
func (v Value) String() string {
	switch v.kind {
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindString:
		return v.str
	default:
		return "<none>"
	}
}

// MarshalJSON encodes the payload as a bare JSON number or string.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNumber:
		return json.Marshal(v.num)
	case KindString:
		return json.Marshal(v.str)
	default:
		return nil, fmt.Errorf("%w: empty value", ErrInvalidDescriptor)
	}
}

// UnmarshalJSON accepts a JSON number or string. Anything else is an error.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("%w: empty value", ErrDecode)
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("%w: %w", ErrDecode, err)
		}
		*v = String(s)
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		var f float64
		if err := json.Unmarshal(data, &f); err != nil {
			return fmt.Errorf("%w: %w", ErrDecode, err)
		}
		*v = Number(f)
	default:
		return fmt.Errorf("%w: value must be a number or a string, got %s", ErrDecode, data)
	}
	return nil
}
