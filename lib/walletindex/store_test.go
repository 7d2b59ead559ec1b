// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package walletindex

import (
	"testing"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/walletsync/lib/sealed"
	"github.com/bureau-foundation/walletsync/lib/sqlitepool"
	"github.com/bureau-foundation/walletsync/lib/testutil"
)

func TestSealedStoreRoundTrip(t *testing.T) {
	path := testutil.DatabasePath(t)
	key, err := sealed.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	other, err := sealed.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{Path: path, PoolSize: 2, Schemas: []string{Schema}})
	if err != nil {
		t.Fatalf("opening pool: %v", err)
	}
	defer pool.Close()

	index := New(Config{Store: NewSealedSQLiteStore(pool, key)})
	createWallet(t, index, roomR1)
	applyTx(t, index, roomR1, txState(initEventE1, map[string]bool{"A": true}), time.Second)

	states, unreadable, err := NewSealedSQLiteStore(pool, key).LoadAll(testCtx)
	if err != nil {
		t.Fatalf("LoadAll with the sealing key: %v", err)
	}
	if len(states) != 1 || len(unreadable) != 0 || !states[0].PendingTransactions[initEventE1].Signers["A"] {
		t.Errorf("LoadAll = %+v, unreadable %+v", states, unreadable)
	}

	for _, tc := range []struct {
		name  string
		store *SQLiteStore
	}{
		{"different key", NewSealedSQLiteStore(pool, other)},
		{"no sealer", NewSQLiteStore(pool)},
	} {
		t.Run(tc.name, func(t *testing.T) {
			states, unreadable, err := tc.store.LoadAll(testCtx)
			if err != nil {
				t.Fatalf("LoadAll: %v", err)
			}
			if len(states) != 0 {
				t.Errorf("LoadAll decoded %d sealed snapshots", len(states))
			}
			if len(unreadable) != 1 || unreadable[0].RoomID != roomR1 || unreadable[0].Err == nil {
				t.Errorf("unreadable = %+v, want R1", unreadable)
			}
		})
	}
}

func TestLoadAllSkipsCorruptRow(t *testing.T) {
	pool, err := sqlitepool.Open(sqlitepool.Config{Path: testutil.DatabasePath(t), PoolSize: 2, Schemas: []string{Schema}})
	if err != nil {
		t.Fatalf("opening pool: %v", err)
	}
	defer pool.Close()
	store := NewSQLiteStore(pool)
	roomR2 := testutil.RoomID("r2")

	index := New(Config{Store: store})
	createWallet(t, index, roomR1)
	createWallet(t, index, roomR2)
	err = pool.With(testCtx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, "UPDATE room_wallet_state SET snapshot = ? WHERE room_id = ?",
			&sqlitex.ExecOptions{Args: []any{[]byte("not a snapshot"), roomR1.String()}})
	})
	if err != nil {
		t.Fatalf("corrupting R1: %v", err)
	}

	restored := New(Config{Store: store})
	loaded, err := restored.Rehydrate(testCtx)
	if err != nil {
		t.Fatalf("Rehydrate: %v", err)
	}
	if loaded != 1 {
		t.Fatalf("Rehydrate loaded %d rooms, want 1", loaded)
	}
	if _, ok := restored.Get(roomR1); ok {
		t.Error("corrupt R1 snapshot was restored")
	}
	if _, ok := restored.Get(roomR2); !ok {
		t.Error("R2 was not restored alongside the corrupt row")
	}
}
