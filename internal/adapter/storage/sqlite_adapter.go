package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"lootroom/internal/core/domain"
)

// SQLiteAdapter persists snapshots in a local sqlite file. It is the default
// backend: zero external services, good enough for a single host.
type SQLiteAdapter struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLiteAdapter, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		return nil, err
	}
	a := &SQLiteAdapter{db: db}
	if err := a.migrate(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *SQLiteAdapter) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS groups (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			version INTEGER NOT NULL,
			saved_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS entries (
			group_id TEXT NOT NULL,
			id TEXT NOT NULL,
			name TEXT NOT NULL,
			category TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			weight REAL NOT NULL,
			value INTEGER NOT NULL,
			quantity INTEGER NOT NULL,
			owner TEXT NOT NULL DEFAULT '',
			last_modified INTEGER NOT NULL,
			position INTEGER NOT NULL,
			PRIMARY KEY (group_id, id)
		);`,
		`CREATE TABLE IF NOT EXISTS participants (
			group_id TEXT NOT NULL,
			connection_id TEXT NOT NULL,
			display_name TEXT NOT NULL,
			permission TEXT NOT NULL,
			connected_at INTEGER NOT NULL,
			PRIMARY KEY (group_id, connection_id)
		);`,
		`CREATE TABLE IF NOT EXISTS backups (
			label TEXT PRIMARY KEY,
			group_id TEXT NOT NULL,
			payload_json TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := a.db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (a *SQLiteAdapter) Save(ctx context.Context, snap *domain.Snapshot) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO groups (id, name, version, saved_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name=excluded.name, version=excluded.version, saved_at=excluded.saved_at`,
		snap.Meta.GroupID, snap.Meta.GroupName, snap.Meta.Version, snap.SavedAt.Unix(),
	); err != nil {
		return fmt.Errorf("upsert group: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE group_id = ?`, snap.Meta.GroupID); err != nil {
		return fmt.Errorf("clear entries: %w", err)
	}
	for i, e := range snap.Entries {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO entries (group_id, id, name, category, description, weight, value, quantity, owner, last_modified, position)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			snap.Meta.GroupID, e.ID, e.Name, string(e.Category), e.Description,
			e.Weight, e.Value, e.Quantity, e.Owner, e.LastModified.Unix(), i,
		); err != nil {
			return fmt.Errorf("insert entry %s: %w", e.ID, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM participants WHERE group_id = ?`, snap.Meta.GroupID); err != nil {
		return fmt.Errorf("clear participants: %w", err)
	}
	for _, p := range snap.Participants {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO participants (group_id, connection_id, display_name, permission, connected_at)
			 VALUES (?, ?, ?, ?, ?)`,
			snap.Meta.GroupID, p.ConnectionID, p.DisplayName, p.Permission.String(), p.ConnectedAt.Unix(),
		); err != nil {
			return fmt.Errorf("insert participant %s: %w", p.ConnectionID, err)
		}
	}

	return tx.Commit()
}

func (a *SQLiteAdapter) Load(ctx context.Context, groupID string) (*domain.Snapshot, error) {
	var snap domain.Snapshot
	var savedAt int64
	err := a.db.QueryRowContext(ctx,
		`SELECT id, name, version, saved_at FROM groups WHERE id = ?`, groupID,
	).Scan(&snap.Meta.GroupID, &snap.Meta.GroupName, &snap.Meta.Version, &savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query group: %w", err)
	}
	snap.SavedAt = time.Unix(savedAt, 0)

	rows, err := a.db.QueryContext(ctx,
		`SELECT id, name, category, description, weight, value, quantity, owner, last_modified
		 FROM entries WHERE group_id = ? ORDER BY position`, groupID)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var e domain.Entry
		var cat string
		var modified int64
		if err := rows.Scan(&e.ID, &e.Name, &cat, &e.Description, &e.Weight, &e.Value, &e.Quantity, &e.Owner, &modified); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.Category = domain.Category(cat)
		e.LastModified = time.Unix(modified, 0)
		snap.Entries = append(snap.Entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	prows, err := a.db.QueryContext(ctx,
		`SELECT connection_id, display_name, permission, connected_at
		 FROM participants WHERE group_id = ? ORDER BY connected_at, connection_id`, groupID)
	if err != nil {
		return nil, fmt.Errorf("query participants: %w", err)
	}
	defer prows.Close()
	for prows.Next() {
		var p domain.Participant
		var perm string
		var connected int64
		if err := prows.Scan(&p.ConnectionID, &p.DisplayName, &perm, &connected); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		if p.Permission, err = domain.ParsePermission(perm); err != nil {
			return nil, err
		}
		p.ConnectedAt = time.Unix(connected, 0)
		snap.Participants = append(snap.Participants, p)
	}
	if err := prows.Err(); err != nil {
		return nil, err
	}

	return &snap, nil
}

func (a *SQLiteAdapter) Backup(ctx context.Context, snap *domain.Snapshot, label string) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal backup: %w", err)
	}
	_, err = a.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO backups (label, group_id, payload_json, created_at) VALUES (?, ?, ?, ?)`,
		label, snap.Meta.GroupID, string(payload), time.Now().Unix(),
	)
	return err
}

func (a *SQLiteAdapter) DescribeStorage(ctx context.Context, groupID string) (string, error) {
	var entries, participants, backups int
	var version uint64
	var savedAt int64
	err := a.db.QueryRowContext(ctx, `SELECT version, saved_at FROM groups WHERE id = ?`, groupID).Scan(&version, &savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Sprintf("sqlite: no snapshot for group %s", groupID), nil
	}
	if err != nil {
		return "", err
	}
	if err := a.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries WHERE group_id = ?`, groupID).Scan(&entries); err != nil {
		return "", err
	}
	if err := a.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM participants WHERE group_id = ?`, groupID).Scan(&participants); err != nil {
		return "", err
	}
	if err := a.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM backups WHERE group_id = ?`, groupID).Scan(&backups); err != nil {
		return "", err
	}
	return fmt.Sprintf("sqlite: group %s at version %d, %d entries, %d participants, %d backups, saved %s",
		groupID, version, entries, participants, backups, time.Unix(savedAt, 0).Format(time.RFC3339)), nil
}

func (a *SQLiteAdapter) Close() error {
	return a.db.Close()
}
