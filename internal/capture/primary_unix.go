//go:build freebsd || linux || netbsd || openbsd || solaris || dragonfly

package capture

import "github.com/atotto/clipboard"

// readPrimary must be called with clipboardMu held.
func readPrimary() (string, error) {
	clipboard.Primary = true
	defer func() { clipboard.Primary = false }()
	return clipboard.ReadAll()
}
