package types

import "errors"

// Sentinel errors shared by engine components.
var (
	// ErrInvalidRole indicates an unknown session role in configuration.
	ErrInvalidRole = errors.New("invalid session role")

	// ErrInvalidIdentity indicates a session identity with blank components.
	ErrInvalidIdentity = errors.New("invalid session identity")
)
