package store

import (
	"context"
	"sync"

	"github.com/solatis/fixengine/internal/session"
	"github.com/solatis/fixengine/internal/types"
)

// MemoryStore keeps snapshots for the lifetime of the process.
type MemoryStore struct {
	mu    sync.RWMutex
	snaps map[types.SessionIdentity]session.Snapshot
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snaps: make(map[types.SessionIdentity]session.Snapshot)}
}

func (s *MemoryStore) Load(_ context.Context, id types.SessionIdentity) (session.Snapshot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snaps[id]
	return snap, ok, nil
}

func (s *MemoryStore) Save(_ context.Context, id types.SessionIdentity, snap session.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps[id] = snap
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
