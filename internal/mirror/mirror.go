// Package mirror holds a peer's read-only copy of the host's inventory. The
// copy is replaced wholesale on every full sync, never merged, so it can
// only ever reflect host truth or lag behind it.
package mirror

import (
	"encoding/json"
	"fmt"
	"sync"

	"lootroom/internal/core/domain"
	"lootroom/internal/protocol"
)

const channelDepth = 16

// Mirror consumes host frames and exposes three change channels to the
// presentation layer. Channel sends drop the oldest pending value when the
// consumer lags, so a stalled UI can never wedge the read loop.
type Mirror struct {
	mu           sync.Mutex
	meta         domain.GroupMeta
	entries      []domain.Entry
	participants []domain.Participant

	inventoryCh    chan []domain.Entry
	participantsCh chan []domain.Participant
	messageCh      chan string

	requestSync func()
}

// New builds a mirror. requestSync is invoked whenever a change notice shows
// the host is ahead of the local copy; it should issue a full-sync request
// over the transport.
func New(requestSync func()) *Mirror {
	return &Mirror{
		inventoryCh:    make(chan []domain.Entry, channelDepth),
		participantsCh: make(chan []domain.Participant, channelDepth),
		messageCh:      make(chan string, channelDepth),
		requestSync:    requestSync,
	}
}

func (m *Mirror) Inventory() <-chan []domain.Entry {
	return m.inventoryCh
}

func (m *Mirror) Participants() <-chan []domain.Participant {
	return m.participantsCh
}

func (m *Mirror) Messages() <-chan string {
	return m.messageCh
}

// Handle processes one host frame.
func (m *Mirror) Handle(env protocol.Envelope) error {
	switch env.Type {
	case protocol.TypeFullSync:
		var payload protocol.FullSync
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return fmt.Errorf("decode full_sync: %w", err)
		}
		m.mu.Lock()
		m.meta = payload.Meta
		m.entries = payload.Entries
		m.mu.Unlock()
		pushLatest(m.inventoryCh, domain.CloneEntries(payload.Entries))

	case protocol.TypeChangeNotice:
		var notice domain.ChangeNotice
		if err := json.Unmarshal(env.Payload, &notice); err != nil {
			return fmt.Errorf("decode change_notice: %w", err)
		}
		m.mu.Lock()
		stale := notice.Version > m.meta.Version
		m.mu.Unlock()
		pushLatest(m.messageCh, describeNotice(notice))
		if stale && m.requestSync != nil {
			m.requestSync()
		}

	case protocol.TypeParticipantList:
		var payload protocol.ParticipantList
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return fmt.Errorf("decode participant_list: %w", err)
		}
		m.mu.Lock()
		m.participants = payload.Participants
		m.mu.Unlock()
		pushLatest(m.participantsCh, domain.CloneParticipants(payload.Participants))

	case protocol.TypeMessage:
		var msg protocol.Message
		if err := json.Unmarshal(env.Payload, &msg); err != nil {
			return fmt.Errorf("decode message: %w", err)
		}
		pushLatest(m.messageCh, msg.Text)

	default:
		return fmt.Errorf("unexpected frame type %q", env.Type)
	}
	return nil
}

// Entries returns a copy of the current local collection.
func (m *Mirror) Entries() []domain.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return domain.CloneEntries(m.entries)
}

func (m *Mirror) ParticipantsNow() []domain.Participant {
	m.mu.Lock()
	defer m.mu.Unlock()
	return domain.CloneParticipants(m.participants)
}

func (m *Mirror) Version() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.meta.Version
}

func (m *Mirror) GroupName() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.meta.GroupName
}

func describeNotice(n domain.ChangeNotice) string {
	switch n.Action {
	case domain.ActionAdded:
		return fmt.Sprintf("%s added an item (x%d)", n.Actor, n.Amount)
	case domain.ActionRemoved:
		return fmt.Sprintf("%s removed an item", n.Actor)
	case domain.ActionQuantityChanged:
		return fmt.Sprintf("%s changed a quantity to %d", n.Actor, n.Amount)
	case domain.ActionOwnerChanged:
		return fmt.Sprintf("%s assigned an item to %s", n.Actor, n.Detail)
	}
	return fmt.Sprintf("%s changed the inventory", n.Actor)
}

// pushLatest delivers v without ever blocking: when the buffer is full the
// oldest queued value is discarded first.
func pushLatest[T any](ch chan T, v T) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
