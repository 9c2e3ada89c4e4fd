// Package delivery decides how a completed generation reaches the user.
//
// Precedence:
//
//	review mode on            → review gate; nothing is delivered until Confirm
//	review off, paste mode on → clipboard write plus direct insertion
//	both off                  → a new typing session at the selected profile
//
// Review mode always wins over paste mode. Confirming a review re-evaluates
// paste mode against the settings in force at confirmation time.
//
// # Review Gate
//
// Pending reviews live in memory only and expire after a TTL. A review can be
// confirmed (optionally with edited text) or rejected exactly once; a failed
// delivery leaves it pending so the user can retry.
package delivery
