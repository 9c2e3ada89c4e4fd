package observer

import (
	"errors"
	"fmt"

	"github.com/nerrad567/typepilot/internal/orchestrator"
)

// Domain-specific errors for the observer client.
var (
	// ErrUnauthorized is returned when the core rejects the surface token.
	// It is not retried.
	ErrUnauthorized = errors.New("observer: unauthorized")

	// ErrNotConnected is returned by Command while no connection is up.
	ErrNotConnected = errors.New("observer: not connected")

	// ErrInvalidConfig is returned by New for an unusable Config.
	ErrInvalidConfig = errors.New("observer: invalid config")
)

// CommandError is an error reply from the core to a command.
type CommandError struct {
	Message string
	Kind    orchestrator.Kind
}

func (e *CommandError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("observer: command failed: %s", e.Message)
	}
	return fmt.Sprintf("observer: command failed (%s): %s", e.Kind, e.Message)
}
