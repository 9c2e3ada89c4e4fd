//go:build !(freebsd || linux || netbsd || openbsd || solaris || dragonfly)

package capture

func readPrimary() (string, error) {
	return "", ErrUnavailable
}
