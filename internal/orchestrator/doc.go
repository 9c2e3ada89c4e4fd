// Package orchestrator turns a discrete trigger into the sequence of calls
// that carries it out.
//
// A Dispatcher receives Actions from every trigger source (MQTT hotkeys, the
// HTTP API, observer surfaces) and runs them for one target:
//
//	stop           → session StopAll (never debounced, never rejected)
//	pause          → session TogglePause
//	start          → capture text → settings snapshot → session Start
//	generate       → capture text → settings snapshot → generation pipeline
//	                 (background) → delivery Router
//	toggle-overlay → overlay visibility broadcast
//
// # Errors
//
// Classify maps any error onto a Kind. User-visible kinds are published as
// notices; stale commands are logged and swallowed.
//
// # Late Results
//
// The target's stop epoch is captured when a generation is dispatched. Stop
// does not interrupt the generation call; a result that completes after a
// Stop on the same target is discarded rather than delivered. The epoch
// travels with the result into the delivery Router, and a typing session is
// only started if the session machine still sees the same epoch.
package orchestrator
