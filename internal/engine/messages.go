package engine

import (
	"time"

	"github.com/nerrad567/typepilot/internal/session"
)

// Command verbs understood by the entry engine.
const (
	VerbStart   = "start"
	VerbPause   = "pause"
	VerbResume  = "resume"
	VerbStopAll = "stop_all"
	VerbInsert  = "insert"
)

// codeNoFocus is the response code for Insert with nothing focused.
const codeNoFocus = "no_focus"

// Command is published to typepilot/engine/command/{verb}.
type Command struct {
	RequestID string    `json:"request_id"`
	SessionID string    `json:"session_id,omitempty"`
	Text      string    `json:"text,omitempty"`
	Profile   string    `json:"profile,omitempty"`
	WPM       int       `json:"wpm,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Response is the engine's reply to a Command.
type Response struct {
	RequestID string `json:"request_id"`
	OK        bool   `json:"ok"`
	SessionID string `json:"session_id,omitempty"`
	Code      string `json:"code,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Progress is the wire form of a telemetry update.
type Progress struct {
	SessionID  string  `json:"session_id"`
	Progress   int     `json:"progress"`
	CharsTyped int     `json:"chars_typed"`
	TotalChars int     `json:"total_chars"`
	CurrentWPM float64 `json:"current_wpm"`
	Status     string  `json:"status"`
	Error      string  `json:"error,omitempty"`
}

func (p Progress) toEvent() session.ProgressEvent {
	return session.ProgressEvent{
		SessionID:  p.SessionID,
		Progress:   p.Progress,
		CharsTyped: p.CharsTyped,
		TotalChars: p.TotalChars,
		CurrentWPM: p.CurrentWPM,
		Status:     p.Status,
		Error:      p.Error,
	}
}

// statusMessage is the engine's retained status payload.
type statusMessage struct {
	Status string `json:"status"`
}
