package controller

import "errors"

var (
	// ErrUnmanagedTopic is returned by HandleMessage for topics outside the
	// monitor's info, telemetry and event filters.
	ErrUnmanagedTopic = errors.New("controller: unmanaged topic")

	// ErrDeviceMismatch is returned when an info payload names a device other
	// than the monitored one.
	ErrDeviceMismatch = errors.New("controller: descriptor device does not match topic")

	// ErrSchedulingFault wraps any failure to deliver a scheduled re-arm.
	ErrSchedulingFault = errors.New("controller: scheduling fault")

	// ErrSchedulerStopped is returned by Schedule after Stop.
	ErrSchedulerStopped = errors.New("controller: scheduler stopped")

	// ErrInvalidOptions is returned by New when a required option is missing.
	ErrInvalidOptions = errors.New("controller: invalid options")
)
