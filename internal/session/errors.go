package session

import (
	"errors"
	"fmt"
)

// Domain errors for the session package.
//
//	if errors.Is(err, session.ErrValidation) {
//	    // surface to the user, nothing was started
//	}
var (
	// ErrValidation is the parent of every Start rejection caused by bad input.
	ErrValidation = errors.New("session: validation failed")

	// ErrEmptyText is returned when Start is given blank text.
	ErrEmptyText = fmt.Errorf("%w: text is empty", ErrValidation)

	// ErrTextTooLong is returned when the text exceeds maxTextChars.
	ErrTextTooLong = fmt.Errorf("%w: text too long", ErrValidation)

	// ErrInvalidProfile is returned for unknown profiles or out-of-range WPM.
	ErrInvalidProfile = fmt.Errorf("%w: invalid speed profile", ErrValidation)

	// ErrSessionActive is returned when Start targets a target that already
	// has a non-terminal session.
	ErrSessionActive = errors.New("session: a session is already active for this target")

	// ErrStoppedSince is returned by StartAtEpoch when the target has been
	// stopped since the caller read its stop epoch.
	ErrStoppedSince = errors.New("session: target stopped since the request was made")

	// ErrEngine wraps failures reported by the entry engine.
	ErrEngine = errors.New("session: entry engine failed")

	// ErrNotRunning is returned when the machine's actor loop has exited.
	ErrNotRunning = errors.New("session: machine not running")

	// ErrNotFound is returned by repository lookups.
	ErrNotFound = errors.New("session: not found")
)
