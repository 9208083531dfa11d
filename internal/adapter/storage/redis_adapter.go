package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"lootroom/internal/core/domain"
)

const (
	snapshotKeyPrefix = "lootroom:snapshot:"
	backupKeyPrefix   = "lootroom:backup:"
)

// RedisAdapter persists snapshots as JSON blobs, one key per group. Backups
// live under their own label-suffixed keys and are never overwritten by Save.
type RedisAdapter struct {
	client *redis.Client
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

func (r *RedisAdapter) Save(ctx context.Context, snap *domain.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	return r.client.Set(ctx, snapshotKeyPrefix+snap.Meta.GroupID, payload, 0).Err()
}

func (r *RedisAdapter) Load(ctx context.Context, groupID string) (*domain.Snapshot, error) {
	raw, err := r.client.Get(ctx, snapshotKeyPrefix+groupID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	var snap domain.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

func (r *RedisAdapter) Backup(ctx context.Context, snap *domain.Snapshot, label string) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal backup: %w", err)
	}
	return r.client.Set(ctx, backupKeyPrefix+label, payload, 0).Err()
}

func (r *RedisAdapter) DescribeStorage(ctx context.Context, groupID string) (string, error) {
	snap, err := r.Load(ctx, groupID)
	if err != nil {
		return "", err
	}
	if snap == nil {
		return fmt.Sprintf("redis: no snapshot for group %s", groupID), nil
	}
	backups, err := r.client.Keys(ctx, backupKeyPrefix+groupID+"-*").Result()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("redis: group %s at version %d, %d entries, %d participants, %d backups, saved %s",
		groupID, snap.Meta.Version, len(snap.Entries), len(snap.Participants), len(backups),
		snap.SavedAt.Format(time.RFC3339)), nil
}
