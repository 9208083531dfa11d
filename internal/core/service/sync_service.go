package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"lootroom/internal/core/domain"
	"lootroom/internal/core/registry"
	"lootroom/internal/core/store"
	"lootroom/internal/port"
	"lootroom/internal/protocol"
)

var ErrUnknownRequest = errors.New("unknown request type")

// requiredPermission maps every remote request type to the level it demands.
// Requests absent from the table are open to any connected peer.
var requiredPermission = map[protocol.MessageType]domain.Permission{
	protocol.TypeAddItem:           domain.PermissionEditor,
	protocol.TypeSetQuantity:       domain.PermissionEditor,
	protocol.TypeSetOwner:          domain.PermissionEditor,
	protocol.TypeRemoveItem:        domain.PermissionEditor,
	protocol.TypeRequestFullSync:   domain.PermissionViewer,
	protocol.TypeSetUserPermission: domain.PermissionAdmin,
}

type Config struct {
	GroupID        string
	GroupName      string
	MaxEntries     int
	DefaultPerm    domain.Permission
	BootstrapAdmin bool
	ActivityLog    bool
}

// SyncService is the authority: it owns the store, the registry and the
// version clock, and serializes every mutation behind one mutex so two
// requests can never interleave mid-change. Outbound traffic goes through
// the Broadcaster port, which is non-blocking by contract.
type SyncService struct {
	mu       sync.Mutex
	store    *store.Store
	registry *registry.Registry
	meta     domain.GroupMeta

	out    port.Broadcaster
	cfg    Config
	logger *slog.Logger
}

func NewSyncService(cfg Config, out port.Broadcaster, logger *slog.Logger) *SyncService {
	return &SyncService{
		store:    store.New(cfg.MaxEntries),
		registry: registry.New(cfg.DefaultPerm),
		meta: domain.GroupMeta{
			GroupID:   cfg.GroupID,
			GroupName: cfg.GroupName,
		},
		out:    out,
		cfg:    cfg,
		logger: logger,
	}
}

// Dispatch routes one inbound envelope from the transport. Authorization
// happens inside each handler, under the same lock as the state change, so
// authorize, apply and version bump form one critical section.
func (s *SyncService) Dispatch(connectionID string, env protocol.Envelope) error {
	if _, known := requiredPermission[env.Type]; !known {
		return fmt.Errorf("%w: %q", ErrUnknownRequest, env.Type)
	}
	switch env.Type {
	case protocol.TypeAddItem:
		var req protocol.AddItemRequest
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			return fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return s.AddItem(connectionID, req.Entry)
	case protocol.TypeSetQuantity:
		var req protocol.SetQuantityRequest
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			return fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return s.SetQuantity(connectionID, req.EntryID, req.Quantity)
	case protocol.TypeSetOwner:
		var req protocol.SetOwnerRequest
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			return fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return s.SetOwner(connectionID, req.EntryID, req.Owner)
	case protocol.TypeRemoveItem:
		var req protocol.RemoveItemRequest
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			return fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return s.RemoveItem(connectionID, req.EntryID)
	case protocol.TypeRequestFullSync:
		return s.FullSync(connectionID)
	case protocol.TypeSetUserPermission:
		var req protocol.SetUserPermissionRequest
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			return fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return s.SetUserPermission(connectionID, req.TargetID, req.Permission)
	}
	return fmt.Errorf("%w: %q", ErrUnknownRequest, env.Type)
}

// Connect registers (or revives) the participant and broadcasts the updated
// participant list. Lifecycle events do not advance the version clock.
func (s *SyncService) Connect(connectionID, displayName string) domain.Participant {
	s.mu.Lock()
	p := s.registry.Register(connectionID, displayName, s.cfg.BootstrapAdmin)
	list := s.participantList()
	s.mu.Unlock()

	s.activity("connected", "participant", p.DisplayName, "connection", connectionID, "permission", p.Permission.String())
	s.out.Broadcast(list)
	return p
}

func (s *SyncService) Disconnect(connectionID string) {
	s.mu.Lock()
	p, known := s.registry.Get(connectionID)
	s.registry.SetOffline(connectionID)
	list := s.participantList()
	s.mu.Unlock()

	if known {
		s.activity("disconnected", "participant", p.DisplayName, "connection", connectionID)
	}
	s.out.Broadcast(list)
}

func (s *SyncService) AddItem(connectionID string, candidate domain.Entry) error {
	if candidate.ID == "" {
		candidate.ID = uuid.NewString()
	}
	s.mu.Lock()
	if err := s.authorize(connectionID, protocol.TypeAddItem); err != nil {
		s.mu.Unlock()
		s.reply(connectionID, "permission denied: adding items requires editor")
		return err
	}
	actor := s.actorName(connectionID)
	res, err := s.store.AddOrMerge(candidate)
	if err != nil {
		s.mu.Unlock()
		s.rejectStore(connectionID, err)
		return err
	}
	s.meta.Version++
	notice := domain.ChangeNotice{
		Action:  domain.ActionAdded,
		EntryID: res.EntryID,
		Actor:   actor,
		Amount:  res.Entry.Quantity,
		Version: s.meta.Version,
	}
	if res.Outcome == store.OutcomeMerged {
		notice.Action = domain.ActionQuantityChanged
	}
	s.mu.Unlock()

	s.activity("add_item", "actor", actor, "entry", res.EntryID, "name", res.Entry.Name, "quantity", res.Entry.Quantity)
	s.out.Broadcast(protocol.MustEnvelope(protocol.TypeChangeNotice, notice))
	return nil
}

func (s *SyncService) SetQuantity(connectionID, entryID string, quantity int) error {
	s.mu.Lock()
	if err := s.authorize(connectionID, protocol.TypeSetQuantity); err != nil {
		s.mu.Unlock()
		s.reply(connectionID, "permission denied: changing quantities requires editor")
		return err
	}
	actor := s.actorName(connectionID)
	res, err := s.store.SetQuantity(entryID, quantity)
	if err != nil {
		s.mu.Unlock()
		s.rejectStore(connectionID, err)
		return err
	}
	s.meta.Version++
	notice := domain.ChangeNotice{
		Action:  domain.ActionQuantityChanged,
		EntryID: entryID,
		Actor:   actor,
		Amount:  quantity,
		Version: s.meta.Version,
	}
	if res.Outcome == store.OutcomeRemoved {
		notice.Action = domain.ActionRemoved
		notice.Amount = 0
	}
	s.mu.Unlock()

	s.activity("set_quantity", "actor", actor, "entry", entryID, "quantity", quantity)
	s.out.Broadcast(protocol.MustEnvelope(protocol.TypeChangeNotice, notice))
	return nil
}

func (s *SyncService) SetOwner(connectionID, entryID, owner string) error {
	s.mu.Lock()
	if err := s.authorize(connectionID, protocol.TypeSetOwner); err != nil {
		s.mu.Unlock()
		s.reply(connectionID, "permission denied: assigning owners requires editor")
		return err
	}
	actor := s.actorName(connectionID)
	_, err := s.store.SetOwner(entryID, owner)
	if err != nil {
		s.mu.Unlock()
		s.rejectStore(connectionID, err)
		return err
	}
	s.meta.Version++
	notice := domain.ChangeNotice{
		Action:  domain.ActionOwnerChanged,
		EntryID: entryID,
		Actor:   actor,
		Detail:  owner,
		Version: s.meta.Version,
	}
	s.mu.Unlock()

	s.activity("set_owner", "actor", actor, "entry", entryID, "owner", owner)
	s.out.Broadcast(protocol.MustEnvelope(protocol.TypeChangeNotice, notice))
	return nil
}

func (s *SyncService) RemoveItem(connectionID, entryID string) error {
	s.mu.Lock()
	if err := s.authorize(connectionID, protocol.TypeRemoveItem); err != nil {
		s.mu.Unlock()
		s.reply(connectionID, "permission denied: removing items requires editor")
		return err
	}
	actor := s.actorName(connectionID)
	_, err := s.store.Remove(entryID)
	if err != nil {
		s.mu.Unlock()
		s.rejectStore(connectionID, err)
		return err
	}
	s.meta.Version++
	notice := domain.ChangeNotice{
		Action:  domain.ActionRemoved,
		EntryID: entryID,
		Actor:   actor,
		Version: s.meta.Version,
	}
	s.mu.Unlock()

	s.activity("remove_item", "actor", actor, "entry", entryID)
	s.out.Broadcast(protocol.MustEnvelope(protocol.TypeChangeNotice, notice))
	return nil
}

// FullSync replies to the requester only, with the entire current entry
// collection and group metadata.
func (s *SyncService) FullSync(connectionID string) error {
	s.mu.Lock()
	payload := protocol.FullSync{
		Meta:    s.meta,
		Entries: s.store.List(),
	}
	s.mu.Unlock()

	s.out.Send(connectionID, protocol.MustEnvelope(protocol.TypeFullSync, payload))
	return nil
}

// SetUserPermission broadcasts the updated participant list instead of a
// change notice; peers do not resync entries for it.
func (s *SyncService) SetUserPermission(connectionID, targetID string, level domain.Permission) error {
	s.mu.Lock()
	actor := s.actorName(connectionID)
	target, err := s.registry.SetPermission(connectionID, targetID, level)
	if err != nil {
		s.mu.Unlock()
		switch {
		case errors.Is(err, registry.ErrPermissionDenied):
			s.reply(connectionID, "permission denied: changing permissions requires admin")
		case errors.Is(err, registry.ErrNotFound):
			s.reply(connectionID, "participant not found")
		}
		return err
	}
	s.meta.Version++
	list := s.participantList()
	s.mu.Unlock()

	s.activity("set_permission", "actor", actor, "target", target.DisplayName, "permission", level.String())
	s.out.Broadcast(list)
	return nil
}

// SnapshotCopy takes an atomic point-in-time copy suitable for asynchronous
// persistence; the copy shares nothing with live state.
func (s *SyncService) SnapshotCopy() *domain.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &domain.Snapshot{
		Meta:         s.meta,
		Entries:      s.store.List(),
		Participants: s.registry.List(),
		SavedAt:      time.Now(),
	}
}

// Restore replaces live state from a loaded snapshot. All restored
// participants start offline. The group identity from configuration wins
// over whatever the snapshot recorded.
func (s *SyncService) Restore(snap *domain.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store.Replace(snap.Entries)
	s.registry.Replace(snap.Participants)
	s.meta.Version = snap.Meta.Version
	if s.meta.GroupName == "" {
		s.meta.GroupName = snap.Meta.GroupName
	}
}

func (s *SyncService) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meta.Version
}

// authorize checks the dispatch table's required level for the request;
// callers hold the mutex. Fail-closed through the registry.
func (s *SyncService) authorize(connectionID string, t protocol.MessageType) error {
	required := requiredPermission[t]
	if required > domain.PermissionViewer && !s.registry.HasPermission(connectionID, required) {
		return registry.ErrPermissionDenied
	}
	return nil
}

// participantList builds the broadcast payload; callers hold the mutex.
func (s *SyncService) participantList() protocol.Envelope {
	return protocol.MustEnvelope(protocol.TypeParticipantList, protocol.ParticipantList{
		Version:      s.meta.Version,
		Participants: s.registry.List(),
	})
}

// actorName resolves a connection id to a display name for notices; callers
// hold the mutex.
func (s *SyncService) actorName(connectionID string) string {
	if p, ok := s.registry.Get(connectionID); ok && p.DisplayName != "" {
		return p.DisplayName
	}
	return connectionID
}

func (s *SyncService) rejectStore(connectionID string, err error) {
	switch {
	case errors.Is(err, store.ErrCapacityExceeded):
		s.reply(connectionID, "inventory is full")
	case errors.Is(err, store.ErrNotFound):
		s.reply(connectionID, "entry not found")
	case errors.Is(err, store.ErrDuplicateID):
		s.reply(connectionID, "an entry with that id already exists")
	case errors.Is(err, store.ErrInvalidQuantity):
		s.reply(connectionID, "quantity must be a positive number")
	}
}

func (s *SyncService) reply(connectionID, text string) {
	s.out.Send(connectionID, protocol.MustEnvelope(protocol.TypeMessage, protocol.Message{Text: text}))
}

func (s *SyncService) activity(event string, args ...any) {
	if !s.cfg.ActivityLog || s.logger == nil {
		return
	}
	s.logger.Info(event, args...)
}
