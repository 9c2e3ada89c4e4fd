package session

import "time"

// Status is the lifecycle state of a typing session.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusCountdown Status = "countdown"
	StatusTyping    Status = "typing"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusStopped   Status = "stopped"
	StatusFailed    Status = "failed" // engine refused to start or reported an error
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusStopped || s == StatusFailed
}

// Session is the authoritative record of one run of the entry engine.
// Values handed out by the Machine are copies.
type Session struct {
	ID       string `json:"id"`
	EngineID string `json:"engine_id,omitempty"`
	Target   string `json:"target"`

	Text    string       `json:"text"`
	Profile SpeedProfile `json:"profile"`

	Status     Status  `json:"status"`
	Progress   int     `json:"progress"` // 0-100
	CharsTyped int     `json:"chars_typed"`
	TotalChars int     `json:"total_chars"`
	CurrentWPM float64 `json:"current_wpm"`

	// Revision increases with every published change to this session.
	Revision uint64 `json:"revision"`

	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	CountdownEndsAt *time.Time `json:"countdown_ends_at,omitempty"`
	StartedTypingAt *time.Time `json:"started_typing_at,omitempty"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`

	LastError string `json:"last_error,omitempty"`
}

// TypingDuration is the time spent between the first keystroke and the end
// (or now, while still running).
func (s Session) TypingDuration(now time.Time) time.Duration {
	if s.StartedTypingAt == nil {
		return 0
	}
	end := now
	if s.EndedAt != nil {
		end = *s.EndedAt
	}
	return end.Sub(*s.StartedTypingAt)
}

// ProgressEvent is one telemetry update from the entry engine.
// SessionID is the engine's identifier, not Session.ID.
type ProgressEvent struct {
	SessionID  string  `json:"session_id"`
	Progress   int     `json:"progress"`
	CharsTyped int     `json:"chars_typed"`
	TotalChars int     `json:"total_chars"`
	CurrentWPM float64 `json:"current_wpm"`
	Status     string  `json:"status"`
	Error      string  `json:"error,omitempty"`
}

// Engine-reported statuses with special handling.
const (
	EngineStatusCompleted = "completed"
	EngineStatusStopped   = "stopped"
	EngineStatusError     = "error"
)

// PauseEffect reports what a pause-family command did.
type PauseEffect string

const (
	EffectPaused  PauseEffect = "paused"
	EffectResumed PauseEffect = "resumed"
	EffectIgnored PauseEffect = "ignored"
)

// Result is the outcome of a control command. Commands against unknown or
// terminal sessions are not errors: they return Stale=true and change nothing.
type Result struct {
	SessionID string      `json:"session_id,omitempty"`
	Status    Status      `json:"status,omitempty"`
	Effect    PauseEffect `json:"effect,omitempty"`
	Stale     bool        `json:"stale"`
	Reason    string      `json:"reason,omitempty"`
}

// StopResult is the outcome of a panic stop.
type StopResult struct {
	Target  string   `json:"target"`
	Stopped []string `json:"stopped"`
	// Epoch is the target's stop counter after this stop.
	Epoch uint64 `json:"epoch"`
}
