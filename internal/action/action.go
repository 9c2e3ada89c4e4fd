package action

import (
	"fmt"
	"strings"
)

// Action is a normalized trigger produced by a hotkey or a UI control.
type Action string

const (
	Start         Action = "start"
	Stop          Action = "stop"
	Pause         Action = "pause"
	Generate      Action = "generate"
	ToggleOverlay Action = "toggle-overlay"
)

// All returns every Action in a stable order.
func All() []Action {
	return []Action{Start, Stop, Pause, Generate, ToggleOverlay}
}

// Valid reports whether a is one of the known actions.
func (a Action) Valid() bool {
	switch a {
	case Start, Stop, Pause, Generate, ToggleOverlay:
		return true
	}
	return false
}

// NeedsText reports whether dispatching a requires captured text.
func (a Action) NeedsText() bool {
	return a == Start || a == Generate
}

func (a Action) String() string {
	return string(a)
}

// Parse normalizes s into an Action. It accepts any case and the
// underscore spelling "toggle_overlay".
func Parse(s string) (Action, error) {
	a := Action(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-"))
	if !a.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownAction, s)
	}
	return a, nil
}
