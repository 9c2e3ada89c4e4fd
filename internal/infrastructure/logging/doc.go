// Package logging provides structured logging for TypePilot.
//
// It wraps log/slog so every component logs with the same shape:
//
//   - JSON output by default, text for local development
//   - service and version attributes on every record
//   - level filtering (debug, info, warn, error)
//
// Configuration lives in the logging section of config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Component("session").Info("session started", "session_id", id)
//
// Never log generated text, API keys or tokens. Log lengths and IDs instead.
package logging
