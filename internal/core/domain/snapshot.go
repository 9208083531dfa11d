package domain

import "time"

type GroupMeta struct {
	GroupID   string `json:"group_id"`
	GroupName string `json:"group_name"`
	Version   uint64 `json:"version"`
}

// Snapshot is the unit of persistence: group metadata plus the full entry
// collection and participant registry at one point in time.
type Snapshot struct {
	Meta         GroupMeta     `json:"meta"`
	Entries      []Entry       `json:"entries"`
	Participants []Participant `json:"participants"`
	SavedAt      time.Time     `json:"saved_at"`
}

func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	return &Snapshot{
		Meta:         s.Meta,
		Entries:      CloneEntries(s.Entries),
		Participants: CloneParticipants(s.Participants),
		SavedAt:      s.SavedAt,
	}
}
