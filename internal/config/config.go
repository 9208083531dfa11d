package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"lootroom/internal/core/domain"
)

type Backend string

const (
	BackendSQLite Backend = "sqlite"
	BackendMySQL  Backend = "mysql"
	BackendRedis  Backend = "redis"
)

// Config is everything the host reads from the environment. Loaded once in
// main and passed down; nothing else touches os.Getenv.
type Config struct {
	ListenAddr string
	GroupID    string
	GroupName  string

	MaxEntries       int
	DefaultPerm      domain.Permission
	AutoPromoteFirst bool

	PersistenceEnabled bool
	AutoSaveInterval   time.Duration
	ActivityLogging    bool

	StorageBackend Backend
	SQLitePath     string
	MySQLDSN       string
	RedisAddr      string
}

// Load reads an optional .env file, then the environment. Unset or invalid
// values fall back to defaults; only an unknown storage backend is an error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ListenAddr:         getString("LOOTROOM_LISTEN_ADDR", ":8080"),
		GroupID:            getString("LOOTROOM_GROUP_ID", "default"),
		GroupName:          getString("LOOTROOM_GROUP_NAME", "Shared Stash"),
		MaxEntries:         getInt("LOOTROOM_MAX_ENTRIES", 100),
		DefaultPerm:        getPermission("LOOTROOM_DEFAULT_PERMISSION", domain.PermissionEditor),
		AutoPromoteFirst:   getBool("LOOTROOM_AUTO_PROMOTE_FIRST", true),
		PersistenceEnabled: getBool("LOOTROOM_PERSISTENCE_ENABLED", true),
		AutoSaveInterval:   time.Duration(getInt("LOOTROOM_AUTOSAVE_INTERVAL_SECONDS", 300)) * time.Second,
		ActivityLogging:    getBool("LOOTROOM_ACTIVITY_LOGGING", true),
		StorageBackend:     Backend(getString("LOOTROOM_STORAGE_BACKEND", string(BackendSQLite))),
		SQLitePath:         getString("LOOTROOM_SQLITE_PATH", "lootroom.sqlite3"),
		MySQLDSN:           getString("LOOTROOM_MYSQL_DSN", "root:root@tcp(localhost:3306)/lootroom?parseTime=true"),
		RedisAddr:          getString("LOOTROOM_REDIS_ADDR", "localhost:6379"),
	}

	switch cfg.StorageBackend {
	case BackendSQLite, BackendMySQL, BackendRedis:
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
	return cfg, nil
}

func getString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getPermission(key string, fallback domain.Permission) domain.Permission {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	p, err := domain.ParsePermission(v)
	if err != nil {
		return fallback
	}
	return p
}
