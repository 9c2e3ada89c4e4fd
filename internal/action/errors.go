package action

import "errors"

var (
	// ErrUnknownAction is returned by Parse for values outside the Action set.
	ErrUnknownAction = errors.New("action: unknown action")

	// ErrInvalidCombo is returned when a hotkey combination cannot be parsed.
	ErrInvalidCombo = errors.New("action: invalid key combination")

	// ErrHotkeyQueueFull is returned when a hotkey arrives while the
	// dispatch queue is full. The delivery is dropped.
	ErrHotkeyQueueFull = errors.New("action: hotkey queue full")
)
