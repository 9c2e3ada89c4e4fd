package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	measurementSessionProgress = "session_progress"
	measurementSessionOutcome  = "session_outcome"
	measurementGeneration      = "generation"
)

// WriteSessionProgress records one progress sample of a typing session.
// Session IDs are fields, not tags, to keep series cardinality bounded.
func (c *Client) WriteSessionProgress(target, sessionID string, progress, charsTyped int, wpm float64) {
	c.writePoint(measurementSessionProgress,
		map[string]string{"target": target},
		map[string]any{
			"session_id":  sessionID,
			"progress":    progress,
			"chars_typed": charsTyped,
			"wpm":         wpm,
		},
		time.Now(),
	)
}

// WriteSessionOutcome records how a session ended (completed, stopped or failed).
func (c *Client) WriteSessionOutcome(target, status string, totalChars, charsTyped int, typing time.Duration) {
	c.writePoint(measurementSessionOutcome,
		map[string]string{"target": target, "status": status},
		map[string]any{
			"total_chars":    totalChars,
			"chars_typed":    charsTyped,
			"typing_seconds": typing.Seconds(),
		},
		time.Now(),
	)
}

// WriteGeneration records one generation pipeline run. outcome is "ok" or
// the error kind that ended it.
func (c *Client) WriteGeneration(target, outcome string, latency time.Duration, humanized bool, chars int) {
	c.writePoint(measurementGeneration,
		map[string]string{"target": target, "outcome": outcome},
		map[string]any{
			"latency_ms": latency.Milliseconds(),
			"humanized":  humanized,
			"chars":      chars,
		},
		time.Now(),
	)
}

// WritePoint writes a custom point timestamped now.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	c.writePoint(measurement, tags, fields, time.Now())
}

func (c *Client) writePoint(measurement string, tags map[string]string, fields map[string]any, ts time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, ts))
}
