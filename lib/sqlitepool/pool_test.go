// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitepool_test

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/walletsync/lib/sqlitepool"
)

const cursorSchema = `
CREATE TABLE IF NOT EXISTS room_cursor (
	room_id TEXT PRIMARY KEY,
	cursor  TEXT NOT NULL
);`

func TestPragmasApplied(t *testing.T) {
	pool := openTestPool(t)

	err := pool.With(context.Background(), func(conn *sqlite.Conn) error {
		var journalMode string
		err := sqlitex.Execute(conn, "PRAGMA journal_mode", &sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				journalMode = stmt.ColumnText(0)
				return nil
			},
		})
		if err != nil {
			return err
		}
		if journalMode != "wal" {
			t.Errorf("journal_mode = %q, want wal", journalMode)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("With: %v", err)
	}
}

func TestSchemasApplied(t *testing.T) {
	pool := openTestPool(t, cursorSchema)

	err := pool.With(context.Background(), func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, "INSERT INTO room_cursor (room_id, cursor) VALUES (?, ?)", &sqlitex.ExecOptions{
			Args: []any{"!r1:x", "t42"},
		})
	})
	if err != nil {
		t.Fatalf("insert into schema table: %v", err)
	}
}

func TestConcurrentReaders(t *testing.T) {
	pool := openTestPool(t, cursorSchema)
	err := pool.With(context.Background(), func(conn *sqlite.Conn) error {
		return sqlitex.ExecuteScript(conn, `
			INSERT INTO room_cursor (room_id, cursor) VALUES ('!a:x', '1'), ('!b:x', '2'), ('!c:x', '3');
		`, nil)
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	const readers = 8
	var waitGroup sync.WaitGroup
	failures := make(chan error, readers)
	for range readers {
		waitGroup.Add(1)
		go func() {
			defer waitGroup.Done()
			err := pool.With(context.Background(), func(conn *sqlite.Conn) error {
				count := 0
				err := sqlitex.Execute(conn, "SELECT room_id FROM room_cursor", &sqlitex.ExecOptions{
					ResultFunc: func(*sqlite.Stmt) error {
						count++
						return nil
					},
				})
				if err != nil {
					return err
				}
				if count != 3 {
					return fmt.Errorf("count = %d, want 3", count)
				}
				return nil
			})
			if err != nil {
				failures <- err
			}
		}()
	}
	waitGroup.Wait()
	close(failures)
	for err := range failures {
		t.Error(err)
	}
}

func TestEmptyPathRejected(t *testing.T) {
	if _, err := sqlitepool.Open(sqlitepool.Config{}); err == nil {
		t.Fatal("expected error for empty Path")
	}
}

func TestBadSchemaFailsTake(t *testing.T) {
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     filepath.Join(t.TempDir(), "bad.db"),
		PoolSize: 1,
		Schemas:  []string{"CREATE TABLE ("},
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer pool.Close()

	conn, err := pool.Take(context.Background())
	if err == nil {
		pool.Put(conn)
		t.Fatal("Take should fail when the schema script is invalid")
	}
}

func TestTakeCancelled(t *testing.T) {
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     filepath.Join(t.TempDir(), "cancel.db"),
		PoolSize: 1,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer pool.Close()

	conn, err := pool.Take(context.Background())
	if err != nil {
		t.Fatalf("Take: %v", err)
	}
	defer pool.Put(conn)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := pool.Take(ctx); err == nil {
		t.Fatal("expected error from cancelled context")
	}
}

func openTestPool(t *testing.T, schemas ...string) *sqlitepool.Pool {
	t.Helper()
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     filepath.Join(t.TempDir(), "test.db"),
		PoolSize: 4,
		Schemas:  schemas,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if err := pool.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return pool
}
