// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package walletindex

import (
	"context"
	"fmt"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/walletsync/lib/codec"
	"github.com/bureau-foundation/walletsync/lib/ref"
	"github.com/bureau-foundation/walletsync/lib/schema"
	"github.com/bureau-foundation/walletsync/lib/sqlitepool"
)

// SnapshotStore persists room wallet state across sessions.
//
// LoadAll returns every snapshot it can read. A snapshot that cannot be
// opened or decoded is reported in unreadable and does not stop the
// others from loading; err is reserved for failures of the store
// itself.
type SnapshotStore interface {
	Save(ctx context.Context, state RoomWalletState) error
	Delete(ctx context.Context, roomID ref.RoomID) error
	LoadAll(ctx context.Context) (states []RoomWalletState, unreadable []UnreadableSnapshot, err error)
}

// UnreadableSnapshot is a stored snapshot that could not be restored.
// RoomID is zero when the row's room id itself was unreadable.
type UnreadableSnapshot struct {
	RoomID ref.RoomID
	Err    error
}

// Schema creates the room_wallet_state table.
const Schema = `
CREATE TABLE IF NOT EXISTS room_wallet_state (
	room_id    TEXT PRIMARY KEY,
	wallet_id  TEXT NOT NULL,
	snapshot   BLOB NOT NULL,
	updated_at INTEGER NOT NULL
);`

// Sealer encrypts snapshot blobs at rest.
type Sealer interface {
	Seal(plaintext []byte) ([]byte, error)
	Open(ciphertext []byte) ([]byte, error)
}

// SQLiteStore stores snapshots as zstd-compressed CBOR blobs,
// optionally sealed.
type SQLiteStore struct {
	pool   *sqlitepool.Pool
	sealer Sealer
}

// NewSQLiteStore wraps a pool whose connections carry [Schema].
func NewSQLiteStore(pool *sqlitepool.Pool) *SQLiteStore {
	return &SQLiteStore{pool: pool}
}

// NewSealedSQLiteStore is NewSQLiteStore with every blob passed through
// sealer. A database written by one sealer is unreadable by any other.
func NewSealedSQLiteStore(pool *sqlitepool.Pool, sealer Sealer) *SQLiteStore {
	return &SQLiteStore{pool: pool, sealer: sealer}
}

// snapshotRecord is the persisted form. CBOR map keys must be plain
// strings, so transactions are stored as a list.
type snapshotRecord struct {
	RoomID              ref.RoomID          `cbor:"room_id"`
	WalletID            string              `cbor:"wallet_id"`
	WalletName          string              `cbor:"wallet_name,omitempty"`
	Descriptor          string              `cbor:"descriptor"`
	DescriptorThreshold int                 `cbor:"descriptor_threshold"`
	LastAppliedEventID  ref.EventID         `cbor:"last_applied_event_id"`
	LastAppliedAt       int64               `cbor:"last_applied_at"`
	Transactions        []transactionRecord `cbor:"transactions"`
}

type transactionRecord struct {
	TxID        string                   `cbor:"tx_id,omitempty"`
	InitEventID ref.EventID              `cbor:"init_event_id"`
	Signers     map[string]bool          `cbor:"signers"`
	Status      schema.TransactionStatus `cbor:"status"`
	UpdatedAt   int64                    `cbor:"updated_at"`
}

func toRecord(state RoomWalletState) snapshotRecord {
	record := snapshotRecord{
		RoomID:              state.RoomID,
		WalletID:            state.WalletID,
		WalletName:          state.WalletName,
		Descriptor:          state.Descriptor,
		DescriptorThreshold: state.DescriptorThreshold,
		LastAppliedEventID:  state.LastAppliedEventID,
		LastAppliedAt:       unixNano(state.LastAppliedAt),
		Transactions:        make([]transactionRecord, 0, len(state.PendingTransactions)),
	}
	for _, snapshot := range state.PendingTransactions {
		record.Transactions = append(record.Transactions, transactionRecord{
			TxID:        snapshot.TxID,
			InitEventID: snapshot.InitEventID,
			Signers:     snapshot.Signers,
			Status:      snapshot.Status,
			UpdatedAt:   unixNano(snapshot.UpdatedAt),
		})
	}
	return record
}

func (r snapshotRecord) state() RoomWalletState {
	state := RoomWalletState{
		RoomID:              r.RoomID,
		WalletID:            r.WalletID,
		WalletName:          r.WalletName,
		Descriptor:          r.Descriptor,
		DescriptorThreshold: r.DescriptorThreshold,
		LastAppliedEventID:  r.LastAppliedEventID,
		LastAppliedAt:       fromUnixNano(r.LastAppliedAt),
		PendingTransactions: make(map[ref.EventID]TransactionSnapshot, len(r.Transactions)),
	}
	for _, transaction := range r.Transactions {
		state.PendingTransactions[transaction.InitEventID] = TransactionSnapshot{
			TxID:        transaction.TxID,
			InitEventID: transaction.InitEventID,
			Signers:     transaction.Signers,
			Status:      transaction.Status,
			UpdatedAt:   fromUnixNano(transaction.UpdatedAt),
		}.clone()
	}
	return state
}

func (s *SQLiteStore) Save(ctx context.Context, state RoomWalletState) error {
	blob, err := codec.MarshalCompressed(toRecord(state))
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	if s.sealer != nil {
		if blob, err = s.sealer.Seal(blob); err != nil {
			return fmt.Errorf("sealing snapshot: %w", err)
		}
	}
	return s.pool.With(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `
			INSERT INTO room_wallet_state (room_id, wallet_id, snapshot, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (room_id) DO UPDATE SET
				wallet_id = excluded.wallet_id,
				snapshot = excluded.snapshot,
				updated_at = excluded.updated_at`,
			&sqlitex.ExecOptions{
				Args: []any{state.RoomID.String(), state.WalletID, blob, unixNano(state.LastAppliedAt)},
			})
	})
}

func (s *SQLiteStore) Delete(ctx context.Context, roomID ref.RoomID) error {
	return s.pool.With(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, "DELETE FROM room_wallet_state WHERE room_id = ?",
			&sqlitex.ExecOptions{Args: []any{roomID.String()}})
	})
}

func (s *SQLiteStore) LoadAll(ctx context.Context) ([]RoomWalletState, []UnreadableSnapshot, error) {
	var (
		states     []RoomWalletState
		unreadable []UnreadableSnapshot
	)
	err := s.pool.With(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, "SELECT room_id, snapshot FROM room_wallet_state ORDER BY room_id",
			&sqlitex.ExecOptions{
				ResultFunc: func(stmt *sqlite.Stmt) error {
					roomText := stmt.ColumnText(0)
					blob := make([]byte, stmt.ColumnLen(1))
					stmt.ColumnBytes(1, blob)
					roomID, err := ref.ParseRoomID(roomText)
					if err != nil {
						unreadable = append(unreadable, UnreadableSnapshot{Err: fmt.Errorf("invalid room id %q: %w", roomText, err)})
						return nil
					}
					state, err := s.decode(blob)
					if err != nil {
						unreadable = append(unreadable, UnreadableSnapshot{RoomID: roomID, Err: err})
						return nil
					}
					states = append(states, state)
					return nil
				},
			})
	})
	if err != nil {
		return nil, nil, err
	}
	return states, unreadable, nil
}

func (s *SQLiteStore) decode(blob []byte) (RoomWalletState, error) {
	if s.sealer != nil {
		opened, err := s.sealer.Open(blob)
		if err != nil {
			return RoomWalletState{}, fmt.Errorf("opening snapshot: %w", err)
		}
		blob = opened
	}
	var record snapshotRecord
	if err := codec.UnmarshalCompressed(blob, &record); err != nil {
		return RoomWalletState{}, fmt.Errorf("decoding snapshot: %w", err)
	}
	return record.state(), nil
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(nanos int64) time.Time {
	if nanos == 0 {
		return time.Time{}
	}
	return time.Unix(0, nanos).UTC()
}
