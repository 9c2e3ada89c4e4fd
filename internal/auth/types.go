package auth

import (
	"errors"
	"fmt"
	"regexp"
)

// surfaceNamePattern defines the valid format for surface names:
// alphanumeric, dots, hyphens, underscores, 1-64 characters.
var surfaceNamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,64}$`)

// IsValidSurfaceName checks if a surface name meets format requirements.
func IsValidSurfaceName(name string) bool {
	return surfaceNamePattern.MatchString(name)
}

// Role represents an authorisation tier.
type Role string

const (
	// RoleObserver can watch sessions, reviews and notices but change nothing.
	RoleObserver Role = "observer"

	// RoleController can trigger actions, pause, resume and stop sessions,
	// and confirm or reject pending reviews.
	RoleController Role = "controller"

	// RoleAdmin has everything a controller has plus the learning log.
	RoleAdmin Role = "admin"
)

// ValidRoles lists the roles in ascending order of privilege.
var ValidRoles = []Role{RoleObserver, RoleController, RoleAdmin}

// IsValidRole returns true if r is a known role.
func IsValidRole(r Role) bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// ParseRole converts a config or flag value into a Role.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !IsValidRole(r) {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
	return r, nil
}

// Surface is an authenticated client of the core.
type Surface struct {
	Name string `json:"name"`
	Role Role   `json:"role"`
}

// Validate checks the surface identity before a token is minted for it.
func (s Surface) Validate() error {
	if !IsValidSurfaceName(s.Name) {
		return fmt.Errorf("%w: %q", ErrInvalidSurface, s.Name)
	}
	if !IsValidRole(s.Role) {
		return fmt.Errorf("%w: %q", ErrUnknownRole, s.Role)
	}
	return nil
}

// Sentinel errors for auth operations.
var (
	ErrTokenInvalid   = errors.New("invalid token")
	ErrInvalidSurface = errors.New("invalid surface name")
	ErrUnknownRole    = errors.New("unknown role")
	ErrForbidden      = errors.New("insufficient permissions")
	ErrNoSecret       = errors.New("jwt secret is not configured")
)
