// Package session owns the authoritative state of every typing session.
//
// A session walks through
//
//	idle → countdown → typing ⇄ paused → completed
//	             └────────┴───────┴──→ stopped | failed
//
// and every transition happens on a single actor goroutine (Machine.Run).
// Control commands (start, pause, resume, stop) are queued ahead of engine
// telemetry, so a Stop is never delayed behind a burst of progress events.
//
// # Key Types
//
//   - Machine: the actor; exposes blocking command methods and lock-free
//     read views (Snapshot, Get, Active, StopEpoch); StartAtEpoch for
//     deferred starts that must not survive a panic stop
//   - Engine: the keystroke-emitting entry engine boundary
//   - Publisher: receives a copy of every changed session (Sync Channel)
//   - SQLiteRepository: terminal session history
//
// # Stale Commands
//
// Commands naming an unknown or finished session are not errors. They
// return Result{Stale: true}, are logged, and leave every session untouched.
//
// # Thread Safety
//
// Machine methods are safe for concurrent use. Sessions handed out are copies.
package session
