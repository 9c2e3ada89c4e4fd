// Package settings reads the user-editable preferences that shape each
// trigger: generation settings, the selected speed profile and hotkey
// bindings.
//
// The file is re-read on every Snapshot, so edits apply to the next trigger
// without a restart. A Snapshot is a value; callers pass it down explicitly
// and never observe a later edit mid-flight.
package settings
