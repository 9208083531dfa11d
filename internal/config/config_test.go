package config

import (
	"testing"
	"time"

	"lootroom/internal/core/domain"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Errorf("unexpected listen addr %q", cfg.ListenAddr)
	}
	if cfg.MaxEntries != 100 {
		t.Errorf("unexpected max entries %d", cfg.MaxEntries)
	}
	if cfg.DefaultPerm != domain.PermissionEditor {
		t.Errorf("unexpected default permission %s", cfg.DefaultPerm)
	}
	if !cfg.AutoPromoteFirst || !cfg.PersistenceEnabled || !cfg.ActivityLogging {
		t.Error("boolean defaults should be true")
	}
	if cfg.AutoSaveInterval != 5*time.Minute {
		t.Errorf("unexpected autosave interval %s", cfg.AutoSaveInterval)
	}
	if cfg.StorageBackend != BackendSQLite {
		t.Errorf("unexpected backend %q", cfg.StorageBackend)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("LOOTROOM_MAX_ENTRIES", "7")
	t.Setenv("LOOTROOM_DEFAULT_PERMISSION", "viewer")
	t.Setenv("LOOTROOM_AUTO_PROMOTE_FIRST", "false")
	t.Setenv("LOOTROOM_STORAGE_BACKEND", "redis")
	t.Setenv("LOOTROOM_AUTOSAVE_INTERVAL_SECONDS", "30")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MaxEntries != 7 {
		t.Errorf("expected 7, got %d", cfg.MaxEntries)
	}
	if cfg.DefaultPerm != domain.PermissionViewer {
		t.Errorf("expected viewer, got %s", cfg.DefaultPerm)
	}
	if cfg.AutoPromoteFirst {
		t.Error("expected auto promote disabled")
	}
	if cfg.StorageBackend != BackendRedis {
		t.Errorf("expected redis, got %q", cfg.StorageBackend)
	}
	if cfg.AutoSaveInterval != 30*time.Second {
		t.Errorf("expected 30s, got %s", cfg.AutoSaveInterval)
	}
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("LOOTROOM_MAX_ENTRIES", "not-a-number")
	t.Setenv("LOOTROOM_DEFAULT_PERMISSION", "emperor")
	t.Setenv("LOOTROOM_PERSISTENCE_ENABLED", "maybe")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MaxEntries != 100 {
		t.Errorf("expected fallback 100, got %d", cfg.MaxEntries)
	}
	if cfg.DefaultPerm != domain.PermissionEditor {
		t.Errorf("expected fallback editor, got %s", cfg.DefaultPerm)
	}
	if !cfg.PersistenceEnabled {
		t.Error("expected fallback true")
	}
}

func TestLoad_UnknownBackend(t *testing.T) {
	t.Setenv("LOOTROOM_STORAGE_BACKEND", "clay-tablets")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}
