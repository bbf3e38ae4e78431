package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/solatis/fixengine/internal/core/db"
	"github.com/solatis/fixengine/internal/session"
	"github.com/solatis/fixengine/internal/types"
)

// SQLStore keeps snapshots in the session_state table.
type SQLStore struct {
	queries *db.Queries
}

type sessionRow struct {
	SessionID    string `db:"session_id"`
	BeginString  string `db:"begin_string"`
	SenderCompID string `db:"sender_comp_id"`
	TargetCompID string `db:"target_comp_id"`
	NextOutbound int    `db:"next_outbound"`
	NextInbound  int    `db:"next_inbound"`
	Phase        string `db:"phase"`
	UpdatedAt    string `db:"updated_at"`
}

// NewSQLStore uses conn, which must already be migrated.
func NewSQLStore(conn *sqlx.DB) (*SQLStore, error) {
	q, err := db.LoadQueries(conn)
	if err != nil {
		return nil, err
	}
	return &SQLStore{queries: q}, nil
}

func (s *SQLStore) Load(ctx context.Context, id types.SessionIdentity) (session.Snapshot, bool, error) {
	var row sessionRow
	err := s.queries.Get(ctx, "get-session-state", &row, id.String())
	if errors.Is(err, sql.ErrNoRows) {
		return session.Snapshot{}, false, nil
	}
	if err != nil {
		return session.Snapshot{}, false, fmt.Errorf("load session %s: %w", id, err)
	}

	snap := session.Snapshot{NextOutbound: row.NextOutbound, NextInbound: row.NextInbound}
	if p, ok := session.ParsePhase(row.Phase); ok {
		snap.Phase = p
	}
	if t, err := time.Parse(time.RFC3339Nano, row.UpdatedAt); err == nil {
		snap.UpdatedAt = t
	}
	return snap, true, nil
}

func (s *SQLStore) Save(ctx context.Context, id types.SessionIdentity, snap session.Snapshot) error {
	_, err := s.queries.Exec(ctx, "upsert-session-state",
		id.String(), id.BeginString, id.SenderCompID, id.TargetCompID,
		snap.NextOutbound, snap.NextInbound, snap.Phase.String(),
		snap.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save session %s: %w", id, err)
	}
	return nil
}

func (s *SQLStore) Close() error {
	return s.queries.DB().Close()
}
