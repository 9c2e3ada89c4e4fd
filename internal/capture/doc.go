// Package capture resolves the text an action operates on.
//
// Sources are tried in a fixed order and the first non-blank value wins:
//
//  1. the triggering surface's own focused input
//  2. the current selection
//  3. the clipboard
//
// Selection and clipboard are read through a Provider. The native provider
// talks to the OS clipboard; the supplied provider carries values the
// triggering surface already read (an embedded UI that cannot reach the OS
// clipboard from the core's process). Chain combines them, falling through
// when a provider reports a capability unavailable.
//
// Values are copied once at resolve time. A clipboard that changes between
// capture and use does not affect the captured text.
package capture
