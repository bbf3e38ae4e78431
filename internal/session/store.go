package session

import (
	"context"
	"time"

	"github.com/solatis/fixengine/internal/types"
)

// Snapshot is the persisted part of a session: enough to resume sequencing
// after a restart.
type Snapshot struct {
	NextOutbound int       `json:"next_outbound"`
	NextInbound  int       `json:"next_inbound"`
	Phase        Phase     `json:"phase"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// InitialSnapshot is the state of a session that never connected.
func InitialSnapshot() Snapshot {
	return Snapshot{NextOutbound: 1, NextInbound: 1}
}

// Store persists snapshots keyed by session identity.
type Store interface {
	// Load returns the last saved snapshot. ok is false when none exists.
	Load(ctx context.Context, id types.SessionIdentity) (snap Snapshot, ok bool, err error)
	// Save replaces the snapshot for id.
	Save(ctx context.Context, id types.SessionIdentity, snap Snapshot) error
}
