// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package handled

import (
	"context"
	"fmt"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/walletsync/lib/ref"
	"github.com/bureau-foundation/walletsync/lib/sqlitepool"
)

// Schema creates the handled_event table. Pass it in
// sqlitepool.Config.Schemas for any pool backing a SQLiteStore.
const Schema = `
CREATE TABLE IF NOT EXISTS handled_event (
	room_id  TEXT NOT NULL,
	event_id TEXT NOT NULL,
	PRIMARY KEY (room_id, event_id)
) WITHOUT ROWID;`

// SQLiteStore is a durable Store on a shared pool.
type SQLiteStore struct {
	pool *sqlitepool.Pool
}

// NewSQLiteStore wraps a pool whose connections carry [Schema].
func NewSQLiteStore(pool *sqlitepool.Pool) *SQLiteStore {
	return &SQLiteStore{pool: pool}
}

func (s *SQLiteStore) Has(ctx context.Context, roomID ref.RoomID, eventID ref.EventID) (bool, error) {
	var found bool
	err := s.pool.With(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			"SELECT 1 FROM handled_event WHERE room_id = ? AND event_id = ?",
			&sqlitex.ExecOptions{
				Args: []any{roomID.String(), eventID.String()},
				ResultFunc: func(*sqlite.Stmt) error {
					found = true
					return nil
				},
			})
	})
	if err != nil {
		return false, fmt.Errorf("handled: checking %s in %s: %w", eventID, roomID, err)
	}
	return found, nil
}

func (s *SQLiteStore) MarkHandled(ctx context.Context, roomID ref.RoomID, eventID ref.EventID) error {
	err := s.pool.With(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			"INSERT OR IGNORE INTO handled_event (room_id, event_id) VALUES (?, ?)",
			&sqlitex.ExecOptions{Args: []any{roomID.String(), eventID.String()}})
	})
	if err != nil {
		return fmt.Errorf("handled: marking %s in %s: %w", eventID, roomID, err)
	}
	return nil
}

func (s *SQLiteStore) Prune(ctx context.Context, roomID ref.RoomID) error {
	err := s.pool.With(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			"DELETE FROM handled_event WHERE room_id = ?",
			&sqlitex.ExecOptions{Args: []any{roomID.String()}})
	})
	if err != nil {
		return fmt.Errorf("handled: pruning %s: %w", roomID, err)
	}
	return nil
}

func (s *SQLiteStore) Count(ctx context.Context, roomID ref.RoomID) (int, error) {
	var count int
	err := s.pool.With(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			"SELECT COUNT(*) FROM handled_event WHERE room_id = ?",
			&sqlitex.ExecOptions{
				Args: []any{roomID.String()},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					count = stmt.ColumnInt(0)
					return nil
				},
			})
	})
	if err != nil {
		return 0, fmt.Errorf("handled: counting %s: %w", roomID, err)
	}
	return count, nil
}
