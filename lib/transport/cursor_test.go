// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport_test

import (
	"context"
	"testing"

	"github.com/bureau-foundation/walletsync/lib/sqlitepool"
	"github.com/bureau-foundation/walletsync/lib/testutil"
	"github.com/bureau-foundation/walletsync/lib/transport"
)

func cursorStores(t *testing.T, body func(t *testing.T, store transport.CursorStore)) {
	t.Run("memory", func(t *testing.T) {
		body(t, transport.NewMemoryCursors())
	})
	t.Run("sqlite", func(t *testing.T) {
		pool, err := sqlitepool.Open(sqlitepool.Config{
			Path:     testutil.DatabasePath(t),
			PoolSize: 2,
			Schemas:  []string{transport.CursorSchema},
		})
		if err != nil {
			t.Fatalf("opening pool: %v", err)
		}
		t.Cleanup(func() { pool.Close() })
		body(t, transport.NewSQLiteCursors(pool))
	})
}

func TestCursorStore(t *testing.T) {
	cursorStores(t, func(t *testing.T, store transport.CursorStore) {
		ctx := context.Background()
		room := testutil.RoomID("wallet")

		if cursor, err := store.Load(ctx, room); err != nil || cursor != "" {
			t.Fatalf("Load before Save = %q, %v; want empty", cursor, err)
		}
		if err := store.Save(ctx, room, "t1"); err != nil {
			t.Fatalf("Save: %v", err)
		}
		if err := store.Save(ctx, room, "t2"); err != nil {
			t.Fatalf("Save overwrite: %v", err)
		}
		if cursor, _ := store.Load(ctx, room); cursor != "t2" {
			t.Errorf("Load = %q, want t2", cursor)
		}
		if err := store.Delete(ctx, room); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if cursor, _ := store.Load(ctx, room); cursor != "" {
			t.Errorf("Load after Delete = %q, want empty", cursor)
		}
	})
}

func TestSQLiteCursorsSurviveReopen(t *testing.T) {
	path := testutil.DatabasePath(t)
	room := testutil.RoomID("wallet")
	open := func() *sqlitepool.Pool {
		pool, err := sqlitepool.Open(sqlitepool.Config{Path: path, PoolSize: 1, Schemas: []string{transport.CursorSchema}})
		if err != nil {
			t.Fatalf("opening pool: %v", err)
		}
		return pool
	}

	first := open()
	if err := transport.NewSQLiteCursors(first).Save(context.Background(), room, "t9"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	first.Close()

	second := open()
	defer second.Close()
	if cursor, _ := transport.NewSQLiteCursors(second).Load(context.Background(), room); cursor != "t9" {
		t.Errorf("Load after reopen = %q, want t9", cursor)
	}
}
