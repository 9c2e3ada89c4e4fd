// Package action defines the closed set of trigger actions and the
// hotkey plumbing that produces them.
//
// Every trigger, whether a global hotkey, a UI button or an HTTP call,
// is normalized into one Action before it reaches the orchestrator.
package action
