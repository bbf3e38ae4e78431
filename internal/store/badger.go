package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v3"

	"github.com/solatis/fixengine/internal/session"
	"github.com/solatis/fixengine/internal/types"
)

const badgerKeyPrefix = "session/"

// BadgerStore keeps snapshots in an embedded Badger database.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadgerStore opens the database in dir. An empty dir keeps everything
// in memory.
func OpenBadgerStore(dir string, logger *slog.Logger) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(badgerLogger{logger})
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger store: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func badgerKey(id types.SessionIdentity) []byte {
	return []byte(badgerKeyPrefix + id.String())
}

func (s *BadgerStore) Load(_ context.Context, id types.SessionIdentity) (session.Snapshot, bool, error) {
	var raw []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerKey(id))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
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

func (s *BadgerStore) Save(_ context.Context, id types.SessionIdentity, snap session.Snapshot) error {
	raw, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(badgerKey(id), raw)
	})
	if err != nil {
		return fmt.Errorf("save session %s: %w", id, err)
	}
	return nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// badgerLogger routes Badger's printf-style logging into slog. Badger is
// chatty at info level, so info goes to debug.
type badgerLogger struct {
	l *slog.Logger
}

func (b badgerLogger) logger() *slog.Logger {
	if b.l == nil {
		return slog.Default()
	}
	return b.l
}

func (b badgerLogger) Errorf(format string, args ...any) {
	b.logger().Error(fmt.Sprintf(format, args...), "component", "badger")
}

func (b badgerLogger) Warningf(format string, args ...any) {
	b.logger().Warn(fmt.Sprintf(format, args...), "component", "badger")
}

func (b badgerLogger) Infof(format string, args ...any) {
	b.logger().Debug(fmt.Sprintf(format, args...), "component", "badger")
}

func (b badgerLogger) Debugf(format string, args ...any) {
	b.logger().Debug(fmt.Sprintf(format, args...), "component", "badger")
}
