package observer

import "errors"

var (
	// ErrUnmanagedTopic is returned by HandleMessage for topics other than a
	// device's info or telemetry.
	ErrUnmanagedTopic = errors.New("observer: unmanaged topic")

	// ErrDeviceMismatch is returned when an info payload names a device other
	// than the one in its topic.
	ErrDeviceMismatch = errors.New("observer: descriptor device does not match topic")

	// ErrInvalidOptions is returned by New when a required option is missing.
	ErrInvalidOptions = errors.New("observer: invalid options")
)
