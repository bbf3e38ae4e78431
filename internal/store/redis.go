package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/solatis/fixengine/internal/session"
	"github.com/solatis/fixengine/internal/types"
)

// DefaultRedisPrefix namespaces snapshot keys.
const DefaultRedisPrefix = "fixengine:session:"

// RedisStore keeps snapshots as JSON strings in Redis.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore uses client; keys are prefix followed by the identity.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(id types.SessionIdentity) string {
	return s.prefix + id.String()
}

func (s *RedisStore) Load(ctx context.Context, id types.SessionIdentity) (session.Snapshot, bool, error) {
	raw, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return session.Snapshot{}, false, nil
	}
	if err != nil {
		return session.Snapshot{}, false, fmt.Errorf("load session %s: %w", id, err)
	}
	snap, err := decodeSnapshot(raw)
	if err != nil {
		return session.Snapshot{}, false, err
	}
	return snap, true, nil
}

func (s *RedisStore) Save(ctx context.Context, id types.SessionIdentity, snap session.Snapshot) error {
	raw, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key(id), raw, 0).Err(); err != nil {
		return fmt.Errorf("save session %s: %w", id, err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
