package storage

import (
	"context"
	"database/sql"
	"os"
	"testing"

	_ "github.com/go-sql-driver/mysql"
)

func getMySQLAdapter(t *testing.T) *MySQLAdapter {
	t.Helper()
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		dsn = "root:root@tcp(localhost:3306)/lootroom?parseTime=true"
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		t.Skipf("MySQL not available: %v", err)
	}
	if err := db.Ping(); err != nil {
		t.Skipf("MySQL not available: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	a := NewMySQLAdapter(db)
	if err := a.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return a
}

func cleanMySQLGroup(t *testing.T, a *MySQLAdapter, groupID string) {
	t.Helper()
	ctx := context.Background()
	for _, stmt := range []string{
		`DELETE FROM loot_entries WHERE group_id = ?`,
		`DELETE FROM loot_participants WHERE group_id = ?`,
		`DELETE FROM loot_backups WHERE group_id = ?`,
		`DELETE FROM loot_groups WHERE id = ?`,
	} {
		if _, err := a.db.ExecContext(ctx, stmt, groupID); err != nil {
			t.Fatalf("cleanup: %v", err)
		}
	}
}

func TestMySQL_SaveLoadRoundTrip(t *testing.T) {
	a := getMySQLAdapter(t)
	cleanMySQLGroup(t, a, "g1")
	ctx := context.Background()

	snap := testSnapshot()
	if err := a.Save(ctx, snap); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := a.Load(ctx, "g1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	assertRoundTrip(t, snap, loaded)
}

func TestMySQL_LoadAbsentGroup(t *testing.T) {
	a := getMySQLAdapter(t)
	loaded, err := a.Load(context.Background(), "never-saved")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded != nil {
		t.Fatalf("expected nil for an absent group, got %+v", loaded)
	}
}

func TestMySQL_SaveReplacesPrevious(t *testing.T) {
	a := getMySQLAdapter(t)
	cleanMySQLGroup(t, a, "g1")
	ctx := context.Background()

	snap := testSnapshot()
	if err := a.Save(ctx, snap); err != nil {
		t.Fatalf("save: %v", err)
	}
	snap.Meta.Version = 8
	snap.Entries = snap.Entries[:1]
	if err := a.Save(ctx, snap); err != nil {
		t.Fatalf("second save: %v", err)
	}

	loaded, err := a.Load(ctx, "g1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Meta.Version != 8 || len(loaded.Entries) != 1 {
		t.Errorf("save must replace: version %d, %d entries", loaded.Meta.Version, len(loaded.Entries))
	}
}
