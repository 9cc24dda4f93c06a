package errors

import (
	"errors"
	"fmt"
)

// Common error types for the session broker
var (
	// Login handoff errors
	ErrLoginNotFound = errors.New("invalid or expired login")

	// Token errors
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrKeyNotFound     = errors.New("public key not found")
	ErrRefreshFailed   = errors.New("token refresh failed")

	// Session errors
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
	ErrSessionClosed   = errors.New("session already closed")

	// Storage errors
	ErrStorageConflict = errors.New("storage conflict")

	// General errors
	ErrNotFound = errors.New("not found")
	ErrInternal = errors.New("internal error")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
