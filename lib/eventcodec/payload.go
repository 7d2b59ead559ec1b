// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package eventcodec

import (
	"github.com/bureau-foundation/walletsync/lib/ref"
	"github.com/bureau-foundation/walletsync/lib/schema"
)

// Payload is a decoded domain event. The interface is sealed; see the
// concrete types below.
type Payload interface {
	Kind() Kind
	payload()
}

// WalletCreated announces a collaborative wallet.
type WalletCreated struct {
	WalletID   string
	Name       string
	Descriptor string
}

// TransactionState reports one participant's view of a transaction.
type TransactionState struct {
	WalletID    string
	TxID        string
	InitEventID ref.EventID
	Status      schema.TransactionStatus
	Signers     map[string]bool
}

// SyncMarker acknowledges a published piece of local state.
type SyncMarker struct {
	Scope    string
	WalletID string
	Digest   string
	Sequence int64
}

// ErrorReport relays an error another participant hit.
type ErrorReport struct {
	Code           string
	Message        string
	RelatedEventID ref.EventID
}

// ContactMessage is one contact lifecycle step. Subtype is one of the
// four contact kinds. Target is the peer the sender addressed; it may
// be zero on inbound events from older clients, in which case the
// sender identifies the peer.
type ContactMessage struct {
	Subtype Kind
	Target  ref.UserID
	Body    string
}

// TextMessage is an ordinary chat message.
type TextMessage struct {
	MsgType string
	Body    string
}

// Encrypted is an event the transport could not decrypt. Content is
// kept verbatim.
type Encrypted struct {
	Content map[string]any
}

// RoomMemberChanged is an m.room.member state change.
type RoomMemberChanged struct {
	Membership  string
	DisplayName string
}

// RoomCreated is the m.room.create state event.
type RoomCreated struct {
	Creator     string
	RoomVersion string
}

// RoomNameChanged is an m.room.name state change.
type RoomNameChanged struct {
	Name string
}

func (WalletCreated) Kind() Kind     { return KindWalletCreated }
func (TransactionState) Kind() Kind  { return KindTransactionState }
func (SyncMarker) Kind() Kind        { return KindSyncMarker }
func (ErrorReport) Kind() Kind       { return KindErrorReport }
func (m ContactMessage) Kind() Kind  { return m.Subtype }
func (TextMessage) Kind() Kind       { return KindTextMessage }
func (Encrypted) Kind() Kind         { return KindEncrypted }
func (RoomMemberChanged) Kind() Kind { return KindRoomMemberChanged }
func (RoomCreated) Kind() Kind       { return KindRoomCreated }
func (RoomNameChanged) Kind() Kind   { return KindRoomNameChanged }

func (WalletCreated) payload()     {}
func (TransactionState) payload()  {}
func (SyncMarker) payload()        {}
func (ErrorReport) payload()       {}
func (ContactMessage) payload()    {}
func (TextMessage) payload()       {}
func (Encrypted) payload()         {}
func (RoomMemberChanged) payload() {}
func (RoomCreated) payload()       {}
func (RoomNameChanged) payload()   {}
