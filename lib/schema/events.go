// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import "github.com/bureau-foundation/walletsync/lib/ref"

// Wallet protocol event types. Naming follows the Matrix reverse-DNS
// convention used by the wallet engine.
const (
	// EventTypeWallet announces a collaborative wallet in the room it
	// lives in. The first one observed in a room creates that room's
	// wallet state.
	EventTypeWallet ref.EventType = "io.nunchuk.wallet"

	// EventTypeTransaction carries the signing state of one transaction,
	// identified by the event ID of the event that initiated it.
	EventTypeTransaction ref.EventType = "io.nunchuk.transaction"

	// EventTypeSync acknowledges that a participant has consumed a
	// published piece of local state (wallet draft, descriptor backup).
	// Sync markers live in the account's sync room.
	EventTypeSync ref.EventType = "io.nunchuk.sync"

	// EventTypeError reports a failure another participant's engine hit
	// while processing room events.
	EventTypeError ref.EventType = "io.nunchuk.error"
)

// Standard Matrix event types recognized by the bridge. None of them
// mutates wallet or contact state except m.room.message, which also
// carries the contact lifecycle subtypes.
const (
	MatrixEventTypeMessage    ref.EventType = "m.room.message"
	MatrixEventTypeEncrypted  ref.EventType = "m.room.encrypted"
	MatrixEventTypeRoomMember ref.EventType = "m.room.member"
	MatrixEventTypeRoomCreate ref.EventType = "m.room.create"
	MatrixEventTypeRoomName   ref.EventType = "m.room.name"

	// MatrixEventTypeTag is the room account-data event holding a
	// user's tags for a room.
	MatrixEventTypeTag ref.EventType = "m.tag"
)

// Content subtypes carried in the "msgtype" field.
const (
	MsgTypeWalletCreate     = "io.nunchuk.wallet.create"
	MsgTypeTransactionState = "io.nunchuk.transaction.state"
	MsgTypeSyncMarker       = "io.nunchuk.sync.marker"
	MsgTypeError            = "io.nunchuk.error"

	MsgTypeContactRequest            = "io.nunchuk.custom.contact_request"
	MsgTypeContactRequestAccepted    = "io.nunchuk.custom.contact_request_accepted"
	MsgTypeContactInvitationAccepted = "io.nunchuk.custom.invitation_accepted"
	MsgTypeContactWithdrawInvitation = "io.nunchuk.custom.withdraw_invitation"

	MsgTypeText = "m.text"
)

// TagSync is both the room tag and the display name of an account's
// sync room. A room with this display name and no tags is an abandoned
// draft of a sync room.
const TagSync = "io.nunchuk.sync"
