// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package contact

import "github.com/bureau-foundation/walletsync/lib/eventcodec"

// State is the relationship status with one peer.
type State int

const (
	None State = iota
	RequestSent
	RequestReceived
	Accepted
	Withdrawn
)

func (s State) String() string {
	switch s {
	case None:
		return "none"
	case RequestSent:
		return "request_sent"
	case RequestReceived:
		return "request_received"
	case Accepted:
		return "accepted"
	case Withdrawn:
		return "withdrawn"
	default:
		return "unknown"
	}
}

// Direction says whether the local account sent the event.
type Direction int

const (
	Inbound Direction = iota
	Outbound
)

func (d Direction) String() string {
	if d == Outbound {
		return "outbound"
	}
	return "inbound"
}

func requested(direction Direction) State {
	if direction == Outbound {
		return RequestSent
	}
	return RequestReceived
}

// Transition returns the state after applying a contact event of the
// given kind. Non-contact kinds leave the state unchanged.
func Transition(current State, kind eventcodec.Kind, direction Direction) State {
	switch kind {
	case eventcodec.KindContactRequest:
		if current == None || current == Withdrawn {
			return requested(direction)
		}
	case eventcodec.KindContactRequestAccepted, eventcodec.KindContactInvitationAccepted:
		if current == RequestSent || current == RequestReceived {
			return Accepted
		}
	case eventcodec.KindContactWithdrawInvitation:
		if current == Accepted || (current == RequestSent && direction == Outbound) {
			return Withdrawn
		}
	}
	return current
}

func isAcceptance(kind eventcodec.Kind) bool {
	return kind == eventcodec.KindContactRequestAccepted || kind == eventcodec.KindContactInvitationAccepted
}
