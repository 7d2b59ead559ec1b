// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import "github.com/bureau-foundation/walletsync/lib/ref"

// TransactionStatus is the lifecycle status of a room transaction.
type TransactionStatus string

const (
	TransactionPending          TransactionStatus = "pending"
	TransactionReadyToBroadcast TransactionStatus = "ready_to_broadcast"
	TransactionBroadcast        TransactionStatus = "broadcast"
	TransactionRejected         TransactionStatus = "rejected"
)

// Valid reports whether s is one of the known statuses. The empty
// status is valid on the wire and means "derive from signatures".
func (s TransactionStatus) Valid() bool {
	switch s {
	case "", TransactionPending, TransactionReadyToBroadcast, TransactionBroadcast, TransactionRejected:
		return true
	}
	return false
}

// WalletContent is the content of an io.nunchuk.wallet event.
type WalletContent struct {
	MsgType string     `json:"msgtype"`
	Body    WalletBody `json:"body"`
}

// WalletBody describes a collaborative wallet.
type WalletBody struct {
	WalletID string `json:"wallet_id"`
	Name     string `json:"name,omitempty"`

	// Descriptor is the output descriptor of the wallet's signing
	// policy, e.g. "wsh(sortedmulti(2,[fp1]xpub...,[fp2]xpub...))".
	Descriptor string `json:"descriptor"`
}

// TransactionContent is the content of an io.nunchuk.transaction event.
type TransactionContent struct {
	MsgType string          `json:"msgtype"`
	Body    TransactionBody `json:"body"`
}

// TransactionBody reports the signing state of one transaction as seen
// by the sending participant.
type TransactionBody struct {
	WalletID string `json:"wallet_id"`
	TxID     string `json:"tx_id"`

	// InitEventID is the event that opened the transaction. All state
	// events for the same transaction share it.
	InitEventID ref.EventID `json:"init_event_id"`

	// Status is the sender's view of the status. Only "rejected" and
	// "broadcast" are authoritative; readiness is recomputed from
	// signatures by every receiver.
	Status TransactionStatus `json:"status,omitempty"`

	// Signers maps signer fingerprints to whether they have signed.
	Signers map[string]bool `json:"signers"`
}

// SyncContent is the content of an io.nunchuk.sync event.
type SyncContent struct {
	MsgType string   `json:"msgtype"`
	Body    SyncBody `json:"body"`
}

// Sync marker scopes.
const (
	SyncScopeWallet           = "wallet"
	SyncScopeDescriptorBackup = "descriptor_backup"
)

// SyncBody acknowledges a published piece of local state by digest.
type SyncBody struct {
	Scope    string `json:"scope"`
	WalletID string `json:"wallet_id"`

	// Digest is the hex blake3 digest of the acknowledged payload.
	Digest string `json:"digest"`

	// Sequence orders markers for the same wallet and scope.
	Sequence int64 `json:"sequence"`
}

// ErrorContent is the content of an io.nunchuk.error event.
type ErrorContent struct {
	MsgType string    `json:"msgtype"`
	Body    ErrorBody `json:"body"`
}

// ErrorBody describes an error reported by another participant.
type ErrorBody struct {
	Code           string      `json:"code"`
	Message        string      `json:"message"`
	RelatedEventID ref.EventID `json:"related_event_id,omitzero"`
}

// MessageContent is the content of an m.room.message event. Contact
// lifecycle messages set MsgType to one of the MsgTypeContact* values
// and Target to the peer they address.
type MessageContent struct {
	MsgType string `json:"msgtype"`
	Body    string `json:"body"`
	Target  string `json:"target,omitempty"`
}

// RoomNameContent is the content of an m.room.name state event.
type RoomNameContent struct {
	Name string `json:"name"`
}

// RoomMemberContent is the content of an m.room.member state event.
type RoomMemberContent struct {
	Membership  string `json:"membership"`
	DisplayName string `json:"displayname,omitempty"`
}

// RoomCreateContent is the content of an m.room.create state event.
type RoomCreateContent struct {
	Creator     string `json:"creator,omitempty"`
	RoomVersion string `json:"room_version,omitempty"`
}

// TagContent is the content of an m.tag room account-data event.
type TagContent struct {
	Tags map[string]TagInfo `json:"tags"`
}

// TagInfo holds the optional ordering of a room tag.
type TagInfo struct {
	Order *float64 `json:"order,omitempty"`
}
