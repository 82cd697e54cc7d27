package agent

import "errors"

var (
	// ErrUnmanagedTopic is returned by HandleMessage for topics outside the
	// agent's action filter.
	ErrUnmanagedTopic = errors.New("agent: unmanaged topic")

	// ErrUnmanagedAction is returned for well-formed actions the agent does
	// not implement (unknown actionType or actionValue).
	ErrUnmanagedAction = errors.New("agent: unmanaged action")

	// ErrInvalidOptions is returned by New when a required option is missing.
	ErrInvalidOptions = errors.New("agent: invalid options")
)
