// Package influxdb writes TypePilot telemetry to InfluxDB v2.
//
// Three measurements are recorded:
//   - session_progress: progress samples while a session is typing
//   - session_outcome: one point per session that reached a terminal state
//   - generation: latency and outcome of each generation pipeline run
//
// Telemetry is optional. When influxdb.enabled is false Connect returns
// ErrDisabled and the core runs without it.
//
// Usage:
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteSessionProgress("desktop", sessionID, 42, 120, 61.5)
//
// Writes are batched per influxdb.batch_size and influxdb.flush_interval.
// Generated text is never written.
package influxdb
