// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package eventcodec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"

	"github.com/bureau-foundation/walletsync/lib/ref"
	"github.com/bureau-foundation/walletsync/lib/schema"
	"github.com/bureau-foundation/walletsync/lib/syncerr"
)

// Envelope is the transport-level form of a payload: the clear event
// type and its JSON content.
type Envelope struct {
	Type    ref.EventType
	Content map[string]any
}

// Decoded is the result of [Decode]. Payload is nil when Kind is
// [KindUnrecognized].
type Decoded struct {
	Kind    Kind
	Payload Payload
}

var contactMsgTypes = map[Kind]string{
	KindContactRequest:            schema.MsgTypeContactRequest,
	KindContactRequestAccepted:    schema.MsgTypeContactRequestAccepted,
	KindContactInvitationAccepted: schema.MsgTypeContactInvitationAccepted,
	KindContactWithdrawInvitation: schema.MsgTypeContactWithdrawInvitation,
}

var contactKinds = map[string]Kind{
	schema.MsgTypeContactRequest:            KindContactRequest,
	schema.MsgTypeContactRequestAccepted:    KindContactRequestAccepted,
	schema.MsgTypeContactInvitationAccepted: KindContactInvitationAccepted,
	schema.MsgTypeContactWithdrawInvitation: KindContactWithdrawInvitation,
}

// ContactMsgType returns the msgtype carried by the given contact kind.
func ContactMsgType(kind Kind) (string, bool) {
	msgType, ok := contactMsgTypes[kind]
	return msgType, ok
}

// Encode converts a payload into its envelope.
func Encode(payload Payload) (Envelope, error) {
	switch p := payload.(type) {
	case WalletCreated:
		return encodeContent(schema.EventTypeWallet, schema.WalletContent{
			MsgType: schema.MsgTypeWalletCreate,
			Body: schema.WalletBody{
				WalletID:   p.WalletID,
				Name:       p.Name,
				Descriptor: p.Descriptor,
			},
		})
	case TransactionState:
		return encodeContent(schema.EventTypeTransaction, schema.TransactionContent{
			MsgType: schema.MsgTypeTransactionState,
			Body: schema.TransactionBody{
				WalletID:    p.WalletID,
				TxID:        p.TxID,
				InitEventID: p.InitEventID,
				Status:      p.Status,
				Signers:     p.Signers,
			},
		})
	case SyncMarker:
		return encodeContent(schema.EventTypeSync, schema.SyncContent{
			MsgType: schema.MsgTypeSyncMarker,
			Body: schema.SyncBody{
				Scope:    p.Scope,
				WalletID: p.WalletID,
				Digest:   p.Digest,
				Sequence: p.Sequence,
			},
		})
	case ErrorReport:
		return encodeContent(schema.EventTypeError, schema.ErrorContent{
			MsgType: schema.MsgTypeError,
			Body: schema.ErrorBody{
				Code:           p.Code,
				Message:        p.Message,
				RelatedEventID: p.RelatedEventID,
			},
		})
	case ContactMessage:
		msgType, ok := contactMsgTypes[p.Subtype]
		if !ok {
			return Envelope{}, fmt.Errorf("eventcodec: %s is not a contact kind", p.Subtype)
		}
		return encodeContent(schema.MatrixEventTypeMessage, schema.MessageContent{
			MsgType: msgType,
			Body:    p.Body,
			Target:  p.Target.String(),
		})
	case TextMessage:
		if _, isContact := contactKinds[p.MsgType]; isContact {
			return Envelope{}, fmt.Errorf("eventcodec: text message cannot use contact msgtype %q", p.MsgType)
		}
		return encodeContent(schema.MatrixEventTypeMessage, schema.MessageContent{
			MsgType: p.MsgType,
			Body:    p.Body,
		})
	case Encrypted:
		return Envelope{Type: schema.MatrixEventTypeEncrypted, Content: maps.Clone(p.Content)}, nil
	case RoomMemberChanged:
		return encodeContent(schema.MatrixEventTypeRoomMember, schema.RoomMemberContent{
			Membership:  p.Membership,
			DisplayName: p.DisplayName,
		})
	case RoomCreated:
		return encodeContent(schema.MatrixEventTypeRoomCreate, schema.RoomCreateContent{
			Creator:     p.Creator,
			RoomVersion: p.RoomVersion,
		})
	case RoomNameChanged:
		return encodeContent(schema.MatrixEventTypeRoomName, schema.RoomNameContent{Name: p.Name})
	case nil:
		return Envelope{}, errors.New("eventcodec: nil payload")
	default:
		return Envelope{}, fmt.Errorf("eventcodec: unsupported payload %T", payload)
	}
}

// Decode classifies a room event and decodes its payload.
//
// Unknown event types, and known envelope types carrying an unknown
// msgtype, return KindUnrecognized with a nil error. A recognized kind
// whose content does not match its schema returns a *syncerr.DecodeError.
func Decode(event schema.RoomEvent) (Decoded, error) {
	msgType := event.MsgType()
	switch event.Type {
	case schema.EventTypeWallet:
		if msgType != schema.MsgTypeWalletCreate {
			return Decoded{}, nil
		}
		var content schema.WalletContent
		if err := decodeContent(event, &content); err != nil {
			return Decoded{}, err
		}
		if content.Body.WalletID == "" {
			return Decoded{}, decodeError(event, errors.New("missing wallet_id"))
		}
		return decoded(WalletCreated{
			WalletID:   content.Body.WalletID,
			Name:       content.Body.Name,
			Descriptor: content.Body.Descriptor,
		}), nil

	case schema.EventTypeTransaction:
		if msgType != schema.MsgTypeTransactionState {
			return Decoded{}, nil
		}
		var content schema.TransactionContent
		if err := decodeContent(event, &content); err != nil {
			return Decoded{}, err
		}
		body := content.Body
		if body.InitEventID.IsZero() {
			return Decoded{}, decodeError(event, errors.New("missing init_event_id"))
		}
		if !body.Status.Valid() {
			return Decoded{}, decodeError(event, fmt.Errorf("unknown transaction status %q", body.Status))
		}
		return decoded(TransactionState{
			WalletID:    body.WalletID,
			TxID:        body.TxID,
			InitEventID: body.InitEventID,
			Status:      body.Status,
			Signers:     body.Signers,
		}), nil

	case schema.EventTypeSync:
		if msgType != schema.MsgTypeSyncMarker {
			return Decoded{}, nil
		}
		var content schema.SyncContent
		if err := decodeContent(event, &content); err != nil {
			return Decoded{}, err
		}
		if content.Body.Scope == "" {
			return Decoded{}, decodeError(event, errors.New("missing scope"))
		}
		return decoded(SyncMarker{
			Scope:    content.Body.Scope,
			WalletID: content.Body.WalletID,
			Digest:   content.Body.Digest,
			Sequence: content.Body.Sequence,
		}), nil

	case schema.EventTypeError:
		if msgType != schema.MsgTypeError {
			return Decoded{}, nil
		}
		var content schema.ErrorContent
		if err := decodeContent(event, &content); err != nil {
			return Decoded{}, err
		}
		return decoded(ErrorReport{
			Code:           content.Body.Code,
			Message:        content.Body.Message,
			RelatedEventID: content.Body.RelatedEventID,
		}), nil

	case schema.MatrixEventTypeMessage:
		var content schema.MessageContent
		if err := decodeContent(event, &content); err != nil {
			return Decoded{}, err
		}
		kind, isContact := contactKinds[content.MsgType]
		if !isContact {
			return decoded(TextMessage{MsgType: content.MsgType, Body: content.Body}), nil
		}
		var target ref.UserID
		if content.Target != "" {
			parsed, err := ref.ParseUserID(content.Target)
			if err != nil {
				return Decoded{}, decodeError(event, fmt.Errorf("target: %w", err))
			}
			target = parsed
		}
		return decoded(ContactMessage{Subtype: kind, Target: target, Body: content.Body}), nil

	case schema.MatrixEventTypeEncrypted:
		return decoded(Encrypted{Content: maps.Clone(event.Content)}), nil

	case schema.MatrixEventTypeRoomMember:
		var content schema.RoomMemberContent
		if err := decodeContent(event, &content); err != nil {
			return Decoded{}, err
		}
		return decoded(RoomMemberChanged{Membership: content.Membership, DisplayName: content.DisplayName}), nil

	case schema.MatrixEventTypeRoomCreate:
		var content schema.RoomCreateContent
		if err := decodeContent(event, &content); err != nil {
			return Decoded{}, err
		}
		return decoded(RoomCreated{Creator: content.Creator, RoomVersion: content.RoomVersion}), nil

	case schema.MatrixEventTypeRoomName:
		var content schema.RoomNameContent
		if err := decodeContent(event, &content); err != nil {
			return Decoded{}, err
		}
		return decoded(RoomNameChanged{Name: content.Name}), nil
	}
	return Decoded{}, nil
}

func decoded(payload Payload) Decoded {
	return Decoded{Kind: payload.Kind(), Payload: payload}
}

func decodeError(event schema.RoomEvent, err error) error {
	return &syncerr.DecodeError{
		EventType: event.Type,
		MsgType:   event.MsgType(),
		EventID:   event.EventID,
		Err:       err,
	}
}

// decodeContent re-marshals the generic content map into a typed
// schema struct. Content arrives as map[string]any from the transport,
// so this is the one place type mismatches surface.
func decodeContent(event schema.RoomEvent, target any) error {
	data, err := json.Marshal(event.Content)
	if err != nil {
		return decodeError(event, err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return decodeError(event, err)
	}
	return nil
}

// encodeContent converts a schema struct into the content map form.
// Numbers are kept as json.Number so int64 fields survive without
// float64 rounding.
func encodeContent(eventType ref.EventType, content any) (Envelope, error) {
	data, err := json.Marshal(content)
	if err != nil {
		return Envelope{}, fmt.Errorf("eventcodec: marshaling %s content: %w", eventType, err)
	}
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	var contentMap map[string]any
	if err := decoder.Decode(&contentMap); err != nil {
		return Envelope{}, fmt.Errorf("eventcodec: converting %s content: %w", eventType, err)
	}
	return Envelope{Type: eventType, Content: contentMap}, nil
}
