package domain

import (
	"fmt"
	"strings"
	"time"
)

type Category string

const (
	CategoryWeapon     Category = "weapon"
	CategoryArmor      Category = "armor"
	CategoryConsumable Category = "consumable"
	CategoryCurrency   Category = "currency"
	CategoryTool       Category = "tool"
	CategoryQuest      Category = "quest"
	CategoryMisc       Category = "misc"
)

var categories = map[Category]bool{
	CategoryWeapon:     true,
	CategoryArmor:      true,
	CategoryConsumable: true,
	CategoryCurrency:   true,
	CategoryTool:       true,
	CategoryQuest:      true,
	CategoryMisc:       true,
}

func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if !categories[c] {
		return "", fmt.Errorf("unknown category %q", s)
	}
	return c, nil
}

// Entry is a single stack in the shared group inventory. ID is assigned at
// creation and never changes; Quantity is always > 0 for a stored entry,
// reaching zero removes the entry from the store.
type Entry struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Category     Category  `json:"category"`
	Description  string    `json:"description,omitempty"`
	Weight       float64   `json:"weight"`
	Value        int       `json:"value"`
	Quantity     int       `json:"quantity"`
	Owner        string    `json:"owner,omitempty"`
	LastModified time.Time `json:"last_modified"`
}

func CloneEntries(entries []Entry) []Entry {
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out
}
