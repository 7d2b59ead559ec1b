// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package eventcodec

// Kind is the domain tag of a decoded event.
type Kind int

const (
	// KindUnrecognized marks events whose type or subtype this version
	// does not know. Not an error.
	KindUnrecognized Kind = iota

	KindWalletCreated
	KindTransactionState
	KindSyncMarker
	KindErrorReport
	KindContactRequest
	KindContactRequestAccepted
	KindContactInvitationAccepted
	KindContactWithdrawInvitation

	// Transport-native kinds. Recognized, never applied to state.
	KindTextMessage
	KindEncrypted
	KindRoomMemberChanged
	KindRoomCreated
	KindRoomNameChanged
)

var kindNames = [...]string{
	KindUnrecognized:              "unrecognized",
	KindWalletCreated:             "wallet_created",
	KindTransactionState:          "transaction_state",
	KindSyncMarker:                "sync_marker",
	KindErrorReport:               "error_report",
	KindContactRequest:            "contact_request",
	KindContactRequestAccepted:    "contact_request_accepted",
	KindContactInvitationAccepted: "contact_invitation_accepted",
	KindContactWithdrawInvitation: "contact_withdraw_invitation",
	KindTextMessage:               "text_message",
	KindEncrypted:                 "encrypted",
	KindRoomMemberChanged:         "room_member_changed",
	KindRoomCreated:               "room_created",
	KindRoomNameChanged:           "room_name_changed",
}

// String returns the snake_case name used in logs and metric labels.
func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// IsContact reports whether k is one of the contact lifecycle kinds.
func (k Kind) IsContact() bool {
	switch k {
	case KindContactRequest, KindContactRequestAccepted, KindContactInvitationAccepted, KindContactWithdrawInvitation:
		return true
	}
	return false
}
