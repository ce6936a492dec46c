package auth

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("auth: not found")
	ErrInvalidInput     = errors.New("auth: invalid input")
	ErrPermissionDenied = errors.New("auth: permission denied")
	ErrInvalidToken     = errors.New("auth: invalid token")

	// ErrDegraded marks roster data served from a fallback after a read failure.
	ErrDegraded = errors.New("auth: roster degraded")
)

// PermissionDeniedError is returned by RequirePermission. It matches ErrPermissionDenied.
type PermissionDeniedError struct {
	Permission Permission
	Identity   string
	Action     string
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("auth: permission %s denied for %q", e.Permission, e.Identity)
}

func (e *PermissionDeniedError) Unwrap() error { return ErrPermissionDenied }

// Message is the user-facing text. It never includes internal details.
func (e *PermissionDeniedError) Message() string {
	if e.Action != "" {
		return fmt.Sprintf("Du har ikke tilgang til å %s.", e.Action)
	}
	return "Du har ikke tilgang til denne funksjonen."
}
