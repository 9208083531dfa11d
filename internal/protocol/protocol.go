// Package protocol defines the JSON messages exchanged between the host and
// its peers. Every frame is an Envelope whose Payload shape is determined by
// Type.
package protocol

import (
	"encoding/json"
	"fmt"

	"lootroom/internal/core/domain"
)

type MessageType string

// Client to host.
const (
	TypeAddItem           MessageType = "add_item"
	TypeSetQuantity       MessageType = "set_quantity"
	TypeSetOwner          MessageType = "set_owner"
	TypeRemoveItem        MessageType = "remove_item"
	TypeRequestFullSync   MessageType = "request_full_sync"
	TypeSetUserPermission MessageType = "set_user_permission"
)

// Host to client.
const (
	TypeChangeNotice    MessageType = "change_notice"
	TypeFullSync        MessageType = "full_sync"
	TypeParticipantList MessageType = "participant_list"
	TypeMessage         MessageType = "message"
)

type Envelope struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func NewEnvelope(t MessageType, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	return Envelope{Type: t, Payload: raw}, nil
}

// MustEnvelope is for host-built payloads whose types are known to marshal.
func MustEnvelope(t MessageType, payload any) Envelope {
	env, err := NewEnvelope(t, payload)
	if err != nil {
		panic(err)
	}
	return env
}

type AddItemRequest struct {
	Entry domain.Entry `json:"entry"`
}

type SetQuantityRequest struct {
	EntryID  string `json:"entry_id"`
	Quantity int    `json:"quantity"`
}

type SetOwnerRequest struct {
	EntryID string `json:"entry_id"`
	Owner   string `json:"owner"`
}

type RemoveItemRequest struct {
	EntryID string `json:"entry_id"`
}

type SetUserPermissionRequest struct {
	TargetID   string            `json:"target_id"`
	Permission domain.Permission `json:"permission"`
}

type FullSync struct {
	Meta    domain.GroupMeta `json:"meta"`
	Entries []domain.Entry   `json:"entries"`
}

type ParticipantList struct {
	Version      uint64               `json:"version"`
	Participants []domain.Participant `json:"participants"`
}

// Message is a human-readable notice delivered to a single peer, e.g. a
// permission denial. It never accompanies a state change.
type Message struct {
	Text string `json:"text"`
}
