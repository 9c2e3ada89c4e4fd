package engine

import "errors"

var (
	// ErrNotStarted is returned when a command is sent before Start.
	ErrNotStarted = errors.New("engine: client not started")

	// ErrTimeout is returned when the engine does not answer in time.
	ErrTimeout = errors.New("engine: request timed out")

	// ErrRejected is returned when the engine answers with ok=false.
	ErrRejected = errors.New("engine: request rejected")

	// ErrNoFocusedInput is returned by Insert when no editable control has focus.
	ErrNoFocusedInput = errors.New("engine: no focused input")
)
