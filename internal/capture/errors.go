package capture

import "errors"

var (
	// ErrNoTextAvailable is returned when every source is blank.
	// It is a user-facing notice, not a fault.
	ErrNoTextAvailable = errors.New("capture: no text available")

	// ErrUnavailable is returned by a Provider that cannot read a source
	// on this platform or in this context.
	ErrUnavailable = errors.New("capture: source unavailable")
)
