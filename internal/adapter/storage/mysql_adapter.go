package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"lootroom/internal/core/domain"
)

// MySQLAdapter persists snapshots in MySQL for deployments where the host
// machine is disposable and the database is not.
type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

// Migrate creates the snapshot tables if they do not exist yet.
func (m *MySQLAdapter) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS loot_groups (
			id VARCHAR(64) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			version BIGINT UNSIGNED NOT NULL,
			saved_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS loot_entries (
			group_id VARCHAR(64) NOT NULL,
			id VARCHAR(64) NOT NULL,
			name VARCHAR(255) NOT NULL,
			category VARCHAR(32) NOT NULL,
			description TEXT,
			weight DOUBLE NOT NULL,
			value INT NOT NULL,
			quantity INT NOT NULL,
			owner VARCHAR(255) NOT NULL DEFAULT '',
			last_modified DATETIME NOT NULL,
			position INT NOT NULL,
			PRIMARY KEY (group_id, id)
		)`,
		`CREATE TABLE IF NOT EXISTS loot_participants (
			group_id VARCHAR(64) NOT NULL,
			connection_id VARCHAR(64) NOT NULL,
			display_name VARCHAR(255) NOT NULL,
			permission VARCHAR(16) NOT NULL,
			connected_at DATETIME NOT NULL,
			PRIMARY KEY (group_id, connection_id)
		)`,
		`CREATE TABLE IF NOT EXISTS loot_backups (
			label VARCHAR(128) PRIMARY KEY,
			group_id VARCHAR(64) NOT NULL,
			payload_json LONGTEXT NOT NULL,
			created_at DATETIME NOT NULL
		)`,
	}
	for _, s := range stmts {
		if _, err := m.db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (m *MySQLAdapter) Save(ctx context.Context, snap *domain.Snapshot) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO loot_groups (id, name, version, saved_at)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE name = VALUES(name), version = VALUES(version), saved_at = VALUES(saved_at)`,
		snap.Meta.GroupID, snap.Meta.GroupName, snap.Meta.Version, snap.SavedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert group: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM loot_entries WHERE group_id = ?`, snap.Meta.GroupID); err != nil {
		return fmt.Errorf("clear entries: %w", err)
	}
	for i, e := range snap.Entries {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO loot_entries (group_id, id, name, category, description, weight, value, quantity, owner, last_modified, position)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			snap.Meta.GroupID, e.ID, e.Name, string(e.Category), e.Description,
			e.Weight, e.Value, e.Quantity, e.Owner, e.LastModified, i,
		)
		if err != nil {
			return fmt.Errorf("insert entry %s: %w", e.ID, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM loot_participants WHERE group_id = ?`, snap.Meta.GroupID); err != nil {
		return fmt.Errorf("clear participants: %w", err)
	}
	for _, p := range snap.Participants {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO loot_participants (group_id, connection_id, display_name, permission, connected_at)
			VALUES (?, ?, ?, ?, ?)`,
			snap.Meta.GroupID, p.ConnectionID, p.DisplayName, p.Permission.String(), p.ConnectedAt,
		)
		if err != nil {
			return fmt.Errorf("insert participant %s: %w", p.ConnectionID, err)
		}
	}

	return tx.Commit()
}

func (m *MySQLAdapter) Load(ctx context.Context, groupID string) (*domain.Snapshot, error) {
	var snap domain.Snapshot
	err := m.db.QueryRowContext(ctx, `
		SELECT id, name, version, saved_at
		FROM loot_groups WHERE id = ?`, groupID,
	).Scan(&snap.Meta.GroupID, &snap.Meta.GroupName, &snap.Meta.Version, &snap.SavedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query group: %w", err)
	}

	rows, err := m.db.QueryContext(ctx, `
		SELECT id, name, category, description, weight, value, quantity, owner, last_modified
		FROM loot_entries WHERE group_id = ? ORDER BY position`, groupID)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var e domain.Entry
		var cat string
		if err := rows.Scan(&e.ID, &e.Name, &cat, &e.Description, &e.Weight, &e.Value, &e.Quantity, &e.Owner, &e.LastModified); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.Category = domain.Category(cat)
		snap.Entries = append(snap.Entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	prows, err := m.db.QueryContext(ctx, `
		SELECT connection_id, display_name, permission, connected_at
		FROM loot_participants WHERE group_id = ? ORDER BY connected_at, connection_id`, groupID)
	if err != nil {
		return nil, fmt.Errorf("query participants: %w", err)
	}
	defer prows.Close()
	for prows.Next() {
		var p domain.Participant
		var perm string
		if err := prows.Scan(&p.ConnectionID, &p.DisplayName, &perm, &p.ConnectedAt); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		if p.Permission, err = domain.ParsePermission(perm); err != nil {
			return nil, err
		}
		snap.Participants = append(snap.Participants, p)
	}
	if err := prows.Err(); err != nil {
		return nil, err
	}

	return &snap, nil
}

func (m *MySQLAdapter) Backup(ctx context.Context, snap *domain.Snapshot, label string) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal backup: %w", err)
	}
	_, err = m.db.ExecContext(ctx, `
		INSERT INTO loot_backups (label, group_id, payload_json, created_at)
		VALUES (?, ?, ?, NOW())
		ON DUPLICATE KEY UPDATE payload_json = VALUES(payload_json), created_at = NOW()`,
		label, snap.Meta.GroupID, string(payload),
	)
	return err
}

func (m *MySQLAdapter) DescribeStorage(ctx context.Context, groupID string) (string, error) {
	var version uint64
	var savedAt time.Time
	err := m.db.QueryRowContext(ctx,
		`SELECT version, saved_at FROM loot_groups WHERE id = ?`, groupID,
	).Scan(&version, &savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Sprintf("mysql: no snapshot for group %s", groupID), nil
	}
	if err != nil {
		return "", err
	}
	var entries, participants int
	if err := m.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM loot_entries WHERE group_id = ?`, groupID).Scan(&entries); err != nil {
		return "", err
	}
	if err := m.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM loot_participants WHERE group_id = ?`, groupID).Scan(&participants); err != nil {
		return "", err
	}
	return fmt.Sprintf("mysql: group %s at version %d, %d entries, %d participants, saved %s",
		groupID, version, entries, participants, savedAt.Format(time.RFC3339)), nil
}
