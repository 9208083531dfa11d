package port

import (
	"context"

	"lootroom/internal/core/domain"
)

type SnapshotRepository interface {
	// Load returns the stored snapshot for the group, or nil when none exists
	Load(ctx context.Context, groupID string) (*domain.Snapshot, error)

	// Save persists the snapshot, replacing any previous one for its group
	Save(ctx context.Context, snap *domain.Snapshot) error

	// Backup writes an additional labeled copy that Save never overwrites
	Backup(ctx context.Context, snap *domain.Snapshot, label string) error

	// DescribeStorage reports a human-readable summary of what is stored
	DescribeStorage(ctx context.Context, groupID string) (string, error)
}
