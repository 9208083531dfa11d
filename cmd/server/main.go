package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"

	"lootroom/internal/adapter/handler"
	"lootroom/internal/adapter/storage"
	"lootroom/internal/config"
	"lootroom/internal/core/service"
	"lootroom/internal/port"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	if err := run(logger); err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo, closeRepo, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeRepo()

	hub := handler.NewHub(logger)
	svc := service.NewSyncService(service.Config{
		GroupID:        cfg.GroupID,
		GroupName:      cfg.GroupName,
		MaxEntries:     cfg.MaxEntries,
		DefaultPerm:    cfg.DefaultPerm,
		BootstrapAdmin: cfg.AutoPromoteFirst,
		ActivityLog:    cfg.ActivityLogging,
	}, hub, logger)
	hub.Bind(svc)

	persister := service.NewPersister(svc, repo, cfg.AutoSaveInterval, logger)

	var wg sync.WaitGroup
	if cfg.PersistenceEnabled {
		if err := persister.Bootstrap(ctx); err != nil {
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			persister.Run(ctx)
		}()
	} else {
		logger.Info("persistence disabled")
	}

	httpHandler := handler.NewHTTPHandler(svc, repo, cfg.GroupID)
	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: handler.Router(hub, httpHandler, logger),
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("listening", "addr", cfg.ListenAddr, "group", cfg.GroupID)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "err", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Info("shutting down", "signal", sig.String())
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)

	wg.Wait()

	if cfg.PersistenceEnabled {
		persister.Shutdown()
	}
	logger.Info("stopped", "version", svc.Version())
	return nil
}

// openStorage builds the configured snapshot backend and a cleanup func.
func openStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (port.SnapshotRepository, func(), error) {
	switch cfg.StorageBackend {
	case config.BackendSQLite:
		a, err := storage.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("storage ready", "backend", "sqlite", "path", cfg.SQLitePath)
		return a, func() { _ = a.Close() }, nil

	case config.BackendMySQL:
		db, err := sql.Open("mysql", cfg.MySQLDSN)
		if err != nil {
			return nil, nil, err
		}
		db.SetMaxOpenConns(10)
		db.SetConnMaxLifetime(5 * time.Minute)
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		a := storage.NewMySQLAdapter(db)
		if err := a.Migrate(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		logger.Info("storage ready", "backend", "mysql")
		return a, func() { _ = db.Close() }, nil

	case config.BackendRedis:
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, nil, err
		}
		logger.Info("storage ready", "backend", "redis", "addr", cfg.RedisAddr)
		return storage.NewRedisAdapter(rdb), func() { _ = rdb.Close() }, nil
	}
	return nil, nil, errors.New("unreachable: backend validated in config")
}
