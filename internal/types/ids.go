package types

import (
	"time"

	"github.com/google/uuid"
)

// ConnectionID identifies one transport connection of a session. A session
// outlives many connections; log lines and metrics carry both.
type ConnectionID string

// NewConnectionID generates a UUIDv7 connection identifier.
// Panics on clock regression (uuid.Must); acceptable for ID generation.
func NewConnectionID() ConnectionID {
	return ConnectionID(uuid.Must(uuid.NewV7()).String())
}

// ParseConnectionID validates and converts a string to ConnectionID.
func ParseConnectionID(s string) (ConnectionID, error) {
	if _, err := uuid.Parse(s); err != nil {
		return "", err
	}
	return ConnectionID(s), nil
}

// ConnectionIDTime extracts the timestamp embedded in a UUIDv7 ID.
// Returns zero time for invalid UUIDs; caller should check IsZero().
func ConnectionIDTime(id ConnectionID) time.Time {
	u, err := uuid.Parse(string(id))
	if err != nil {
		return time.Time{}
	}
	sec, nsec := u.Time().UnixTime()
	return time.Unix(sec, nsec)
}
