// Package types provides identifiers, limits and sentinel errors shared across
// the engine's packages.
//
// Zero-dependency design: types.go and errors.go import only the standard
// library so the codecs can use them without pulling in storage or transport
// deps. ID utilities in ids.go import uuid.
package types

import (
	"fmt"
	"strings"
)

// Role selects which side of the logon handshake a session plays.
type Role int

const (
	RoleInitiator Role = iota
	RoleAcceptor
)

// String returns the configuration spelling of the role.
func (r Role) String() string {
	switch r {
	case RoleInitiator:
		return "initiator"
	case RoleAcceptor:
		return "acceptor"
	default:
		return "invalid"
	}
}

// ParseRole converts a configuration value to a Role.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "initiator", "":
		return RoleInitiator, nil
	case "acceptor":
		return RoleAcceptor, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
}

// SessionIdentity names one side of a FIX conversation. It is immutable for
// the lifetime of a session and doubles as the persistence key.
type SessionIdentity struct {
	BeginString  string
	SenderCompID string
	TargetCompID string
}

// String renders the identity as "FIX.4.4:SENDER->TARGET".
func (id SessionIdentity) String() string {
	return fmt.Sprintf("%s:%s->%s", id.BeginString, id.SenderCompID, id.TargetCompID)
}

// Reversed returns the identity as seen by the counterparty.
func (id SessionIdentity) Reversed() SessionIdentity {
	return SessionIdentity{
		BeginString:  id.BeginString,
		SenderCompID: id.TargetCompID,
		TargetCompID: id.SenderCompID,
	}
}

// Validate rejects identities with blank components.
func (id SessionIdentity) Validate() error {
	if strings.TrimSpace(id.BeginString) == "" {
		return fmt.Errorf("%w: missing begin string", ErrInvalidIdentity)
	}
	if strings.TrimSpace(id.SenderCompID) == "" {
		return fmt.Errorf("%w: missing sender comp id", ErrInvalidIdentity)
	}
	if strings.TrimSpace(id.TargetCompID) == "" {
		return fmt.Errorf("%w: missing target comp id", ErrInvalidIdentity)
	}
	return nil
}

// Resource limits enforced by the codecs.
const (
	// DefaultMaxMessageSize bounds a single tag-value message.
	DefaultMaxMessageSize = 64 * 1024

	// MaxGroupDepth bounds nesting of repeating groups during decode.
	MaxGroupDepth = 8

	// MaxGroupEntries bounds the declared NumInGroup value of any group.
	MaxGroupEntries = 4096

	// DefaultMaxJournal bounds the outbound messages kept for resend.
	DefaultMaxJournal = 10000
)
