package storage

import (
	"errors"
	"fmt"
)

// Closed error taxonomy. Adapters translate provider-specific failures
// into exactly one of these at the adapter boundary, so callers never
// inspect provider error shapes.
var (
	// ErrNotFound signals an absent object. Often expected; callers
	// check for it explicitly before treating a failure as fatal.
	ErrNotFound = errors.New("object not found")

	// ErrAuthFailure signals rejected credentials. Retryable after a
	// config fix, fatal for the current attempt.
	ErrAuthFailure = errors.New("authentication failed")

	// ErrTransportFailure signals an unreachable backend or a failed
	// round-trip. Retryable.
	ErrTransportFailure = errors.New("transport failure")

	// ErrInvalidConfig signals missing or malformed backend
	// configuration. Fatal for that backend until fixed.
	ErrInvalidConfig = errors.New("invalid backend configuration")

	// ErrPathSecurity signals a path traversal, absolute path or null
	// byte. Always fatal, never silently corrected.
	ErrPathSecurity = errors.New("unsafe path rejected")

	// ErrVerificationMismatch signals a failed post-write existence or
	// size check. The file stays on its source of truth.
	ErrVerificationMismatch = errors.New("verification mismatch")

	// ErrMissingPath signals a record with neither backend_path nor uri.
	// A data integrity problem, not auto-healable.
	ErrMissingPath = errors.New("record has no locatable path")
)

// NotFoundf wraps ErrNotFound with context.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrNotFound)...)
}

// InvalidConfigf wraps ErrInvalidConfig with context.
func InvalidConfigf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrInvalidConfig)...)
}

// PathSecurityf wraps ErrPathSecurity with context.
func PathSecurityf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrPathSecurity)...)
}

// IsNotFound reports whether err is, or wraps, ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
