package store

import (
	"errors"
	"time"

	"lootroom/internal/core/domain"
)

var (
	ErrCapacityExceeded = errors.New("inventory capacity exceeded")
	ErrNotFound         = errors.New("entry not found")
	ErrDuplicateID      = errors.New("duplicate entry id")
	ErrInvalidQuantity  = errors.New("quantity must be positive")
)

type Outcome int

const (
	OutcomeAdded Outcome = iota
	OutcomeMerged
	OutcomeUpdated
	OutcomeRemoved
)

// Result describes what a mutation did. Entry is the post-mutation value,
// except for OutcomeRemoved where only EntryID is meaningful.
type Result struct {
	Outcome Outcome
	Entry   domain.Entry
	EntryID string
}

// Store is the canonical ordered entry collection plus an id index kept in
// exact sync with it. It is not safe for concurrent use; the sync service
// serializes all access.
type Store struct {
	maxEntries int
	entries    []*domain.Entry
	byID       map[string]*domain.Entry
}

func New(maxEntries int) *Store {
	return &Store{
		maxEntries: maxEntries,
		byID:       make(map[string]*domain.Entry),
	}
}

// AddOrMerge inserts candidate, or merges its quantity into an existing entry
// with the same name and category. The quantity must be positive: the store
// never holds a zero-quantity entry, and a merge can therefore never drive an
// existing entry to zero or below. The capacity check runs before the merge
// scan, so a merge that would not grow the collection is still rejected at
// capacity.
func (s *Store) AddOrMerge(candidate domain.Entry) (Result, error) {
	if candidate.Quantity <= 0 {
		return Result{}, ErrInvalidQuantity
	}
	if s.maxEntries > 0 && len(s.entries) >= s.maxEntries {
		return Result{}, ErrCapacityExceeded
	}
	for _, e := range s.entries {
		if e.Name == candidate.Name && e.Category == candidate.Category {
			e.Quantity += candidate.Quantity
			e.LastModified = time.Now()
			return Result{Outcome: OutcomeMerged, Entry: *e, EntryID: e.ID}, nil
		}
	}
	if _, exists := s.byID[candidate.ID]; exists {
		return Result{}, ErrDuplicateID
	}
	inserted := candidate
	inserted.LastModified = time.Now()
	s.entries = append(s.entries, &inserted)
	s.byID[inserted.ID] = &inserted
	return Result{Outcome: OutcomeAdded, Entry: inserted, EntryID: inserted.ID}, nil
}

// SetQuantity updates an entry's quantity; a value of zero or below removes
// the entry entirely.
func (s *Store) SetQuantity(id string, quantity int) (Result, error) {
	e, ok := s.byID[id]
	if !ok {
		return Result{}, ErrNotFound
	}
	if quantity <= 0 {
		s.remove(id)
		return Result{Outcome: OutcomeRemoved, EntryID: id}, nil
	}
	e.Quantity = quantity
	e.LastModified = time.Now()
	return Result{Outcome: OutcomeUpdated, Entry: *e, EntryID: id}, nil
}

func (s *Store) SetOwner(id, owner string) (Result, error) {
	e, ok := s.byID[id]
	if !ok {
		return Result{}, ErrNotFound
	}
	e.Owner = owner
	e.LastModified = time.Now()
	return Result{Outcome: OutcomeUpdated, Entry: *e, EntryID: id}, nil
}

func (s *Store) Remove(id string) (Result, error) {
	if _, ok := s.byID[id]; !ok {
		return Result{}, ErrNotFound
	}
	s.remove(id)
	return Result{Outcome: OutcomeRemoved, EntryID: id}, nil
}

// remove deletes from both structures; callers have already checked presence.
func (s *Store) remove(id string) {
	delete(s.byID, id)
	for i, e := range s.entries {
		if e.ID == id {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			return
		}
	}
}

func (s *Store) Get(id string) (domain.Entry, bool) {
	e, ok := s.byID[id]
	if !ok {
		return domain.Entry{}, false
	}
	return *e, true
}

// List returns a copy of the collection in insertion order.
func (s *Store) List() []domain.Entry {
	out := make([]domain.Entry, len(s.entries))
	for i, e := range s.entries {
		out[i] = *e
	}
	return out
}

func (s *Store) Len() int {
	return len(s.entries)
}

// Replace discards the current collection and loads entries wholesale, as
// when restoring from a snapshot. Zero-quantity entries are dropped and a
// duplicate id keeps only its first occurrence.
func (s *Store) Replace(entries []domain.Entry) {
	s.entries = s.entries[:0]
	s.byID = make(map[string]*domain.Entry, len(entries))
	for _, e := range entries {
		if e.Quantity <= 0 {
			continue
		}
		if _, dup := s.byID[e.ID]; dup {
			continue
		}
		copied := e
		s.entries = append(s.entries, &copied)
		s.byID[copied.ID] = &copied
	}
}
