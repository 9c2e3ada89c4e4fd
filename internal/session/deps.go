package session

import (
	"context"
	"time"
)

// Engine is the entry engine that emits keystrokes.
// Implementations must be safe for concurrent use.
type Engine interface {
	// StartSession begins typing text and returns the engine's session id.
	StartSession(ctx context.Context, text string, profile SpeedProfile) (string, error)
	Pause(ctx context.Context, engineSessionID string) error
	Resume(ctx context.Context, engineSessionID string) error
	// StopAll halts every engine session. It must be idempotent.
	StopAll(ctx context.Context) error
}

// Publisher receives every session change. Called on the actor goroutine,
// so implementations must not block.
type Publisher interface {
	SessionUpdated(s Session)
}

// Repository persists terminal session records.
type Repository interface {
	Save(ctx context.Context, s Session) error
	History(ctx context.Context, target string, limit int) ([]Session, error)
}

// MetricsWriter records session telemetry. Satisfied by *influxdb.Client.
type MetricsWriter interface {
	WriteSessionProgress(target, sessionID string, progress, charsTyped int, wpm float64)
	WriteSessionOutcome(target, status string, totalChars, charsTyped int, typing time.Duration)
}

// Logger is the logging interface used by the machine.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
