package domain

import (
	"fmt"
	"strings"
	"time"
)

// Permission levels are ordered: a participant holding a level may perform
// any operation requiring that level or below.
type Permission int

const (
	PermissionViewer Permission = iota
	PermissionEditor
	PermissionAdmin
)

func (p Permission) String() string {
	switch p {
	case PermissionViewer:
		return "viewer"
	case PermissionEditor:
		return "editor"
	case PermissionAdmin:
		return "admin"
	}
	return fmt.Sprintf("permission(%d)", int(p))
}

func ParsePermission(s string) (Permission, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "viewer":
		return PermissionViewer, nil
	case "editor":
		return PermissionEditor, nil
	case "admin":
		return PermissionAdmin, nil
	}
	return PermissionViewer, fmt.Errorf("unknown permission %q", s)
}

func (p Permission) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Permission) UnmarshalText(b []byte) error {
	parsed, err := ParsePermission(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Participant is one connected (or previously connected) peer. Disconnected
// participants stay registered with Online=false so a reconnect under the
// same connection id keeps its permission.
type Participant struct {
	ConnectionID string     `json:"connection_id"`
	DisplayName  string     `json:"display_name"`
	Permission   Permission `json:"permission"`
	ConnectedAt  time.Time  `json:"connected_at"`
	Online       bool       `json:"online"`
}

func CloneParticipants(participants []Participant) []Participant {
	out := make([]Participant, len(participants))
	copy(out, participants)
	return out
}
