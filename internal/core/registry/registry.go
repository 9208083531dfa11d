package registry

import (
	"errors"
	"sort"
	"time"

	"lootroom/internal/core/domain"
)

var (
	ErrPermissionDenied = errors.New("permission denied")
	ErrNotFound         = errors.New("participant not found")
)

// Registry tracks every participant that has ever connected this session.
// Disconnects only flip Online; the record and its permission survive so a
// peer re-mapped to the same connection id picks up where it left off.
// Not safe for concurrent use; the sync service serializes access.
type Registry struct {
	defaultPermission domain.Permission
	participants      map[string]*domain.Participant
}

func New(defaultPermission domain.Permission) *Registry {
	return &Registry{
		defaultPermission: defaultPermission,
		participants:      make(map[string]*domain.Participant),
	}
}

// Register creates or revives a participant. A brand-new participant gets
// Admin when bootstrapAdmin is set and the registry is empty, otherwise the
// configured default. A known connection id keeps its stored permission.
func (r *Registry) Register(connectionID, displayName string, bootstrapAdmin bool) domain.Participant {
	if p, ok := r.participants[connectionID]; ok {
		p.Online = true
		if displayName != "" {
			p.DisplayName = displayName
		}
		return *p
	}
	perm := r.defaultPermission
	if bootstrapAdmin && len(r.participants) == 0 {
		perm = domain.PermissionAdmin
	}
	p := &domain.Participant{
		ConnectionID: connectionID,
		DisplayName:  displayName,
		Permission:   perm,
		ConnectedAt:  time.Now(),
		Online:       true,
	}
	r.participants[connectionID] = p
	return *p
}

// HasPermission is fail-closed: an unknown connection id never qualifies.
func (r *Registry) HasPermission(connectionID string, required domain.Permission) bool {
	p, ok := r.participants[connectionID]
	if !ok {
		return false
	}
	return p.Permission >= required
}

func (r *Registry) Get(connectionID string) (domain.Participant, bool) {
	p, ok := r.participants[connectionID]
	if !ok {
		return domain.Participant{}, false
	}
	return *p, true
}

func (r *Registry) SetOnline(connectionID string) {
	if p, ok := r.participants[connectionID]; ok {
		p.Online = true
	}
}

func (r *Registry) SetOffline(connectionID string) {
	if p, ok := r.participants[connectionID]; ok {
		p.Online = false
	}
}

// SetPermission changes target's level. The requester must hold Admin; the
// check is fail-closed like HasPermission.
func (r *Registry) SetPermission(requesterID, targetID string, level domain.Permission) (domain.Participant, error) {
	if !r.HasPermission(requesterID, domain.PermissionAdmin) {
		return domain.Participant{}, ErrPermissionDenied
	}
	target, ok := r.participants[targetID]
	if !ok {
		return domain.Participant{}, ErrNotFound
	}
	target.Permission = level
	return *target, nil
}

// List returns all participants ordered by connect time, connection id as a
// tiebreak, so broadcast participant lists are stable across calls.
func (r *Registry) List() []domain.Participant {
	out := make([]domain.Participant, 0, len(r.participants))
	for _, p := range r.participants {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ConnectedAt.Equal(out[j].ConnectedAt) {
			return out[i].ConnectionID < out[j].ConnectionID
		}
		return out[i].ConnectedAt.Before(out[j].ConnectedAt)
	})
	return out
}

func (r *Registry) Len() int {
	return len(r.participants)
}

// Replace reloads the registry from a snapshot. Restored participants are
// always offline until their transport session reconnects.
func (r *Registry) Replace(participants []domain.Participant) {
	r.participants = make(map[string]*domain.Participant, len(participants))
	for _, p := range participants {
		copied := p
		copied.Online = false
		r.participants[copied.ConnectionID] = &copied
	}
}
