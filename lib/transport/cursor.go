// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"fmt"
	"sync"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/walletsync/lib/ref"
	"github.com/bureau-foundation/walletsync/lib/sqlitepool"
)

// CursorStore persists the backfill position per room. A cursor is
// saved only after every event before it has been applied.
type CursorStore interface {
	// Load returns the saved cursor, or the zero Cursor when none.
	Load(ctx context.Context, roomID ref.RoomID) (Cursor, error)
	Save(ctx context.Context, roomID ref.RoomID, cursor Cursor) error
	Delete(ctx context.Context, roomID ref.RoomID) error
}

// CursorSchema creates the room_cursor table.
const CursorSchema = `
CREATE TABLE IF NOT EXISTS room_cursor (
	room_id TEXT PRIMARY KEY,
	cursor  TEXT NOT NULL
) WITHOUT ROWID;`

// SQLiteCursors is a CursorStore on a pool carrying [CursorSchema].
type SQLiteCursors struct {
	pool *sqlitepool.Pool
}

func NewSQLiteCursors(pool *sqlitepool.Pool) *SQLiteCursors {
	return &SQLiteCursors{pool: pool}
}

func (s *SQLiteCursors) Load(ctx context.Context, roomID ref.RoomID) (Cursor, error) {
	var cursor Cursor
	err := s.pool.With(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			"SELECT cursor FROM room_cursor WHERE room_id = ?",
			&sqlitex.ExecOptions{
				Args: []any{roomID.String()},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					cursor = Cursor(stmt.ColumnText(0))
					return nil
				},
			})
	})
	if err != nil {
		return "", fmt.Errorf("transport: loading cursor for %s: %w", roomID, err)
	}
	return cursor, nil
}

func (s *SQLiteCursors) Save(ctx context.Context, roomID ref.RoomID, cursor Cursor) error {
	err := s.pool.With(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`INSERT INTO room_cursor (room_id, cursor) VALUES (?, ?)
			 ON CONFLICT (room_id) DO UPDATE SET cursor = excluded.cursor`,
			&sqlitex.ExecOptions{Args: []any{roomID.String(), string(cursor)}})
	})
	if err != nil {
		return fmt.Errorf("transport: saving cursor for %s: %w", roomID, err)
	}
	return nil
}

func (s *SQLiteCursors) Delete(ctx context.Context, roomID ref.RoomID) error {
	err := s.pool.With(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			"DELETE FROM room_cursor WHERE room_id = ?",
			&sqlitex.ExecOptions{Args: []any{roomID.String()}})
	})
	if err != nil {
		return fmt.Errorf("transport: deleting cursor for %s: %w", roomID, err)
	}
	return nil
}

// MemoryCursors is a CursorStore that forgets on restart.
type MemoryCursors struct {
	mu      sync.Mutex
	cursors map[ref.RoomID]Cursor
}

func NewMemoryCursors() *MemoryCursors {
	return &MemoryCursors{cursors: make(map[ref.RoomID]Cursor)}
}

func (s *MemoryCursors) Load(_ context.Context, roomID ref.RoomID) (Cursor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursors[roomID], nil
}

func (s *MemoryCursors) Save(_ context.Context, roomID ref.RoomID, cursor Cursor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursors[roomID] = cursor
	return nil
}

func (s *MemoryCursors) Delete(_ context.Context, roomID ref.RoomID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cursors, roomID)
	return nil
}
