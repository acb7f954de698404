package storage

import (
	"context"
	"fmt"
	"log"
	"time"

	"bingewatch/config"
	"bingewatch/internal/storage/filestore"
	"bingewatch/internal/storage/memstore"
	"bingewatch/internal/storage/remotestore"
	"bingewatch/internal/storage/sqlstore"
	"bingewatch/services/progress"
)

// Open builds the history backend selected by cfg.Backend.
func Open(ctx context.Context, cfg config.StorageSettings) (progress.Store, error) {
	switch cfg.Backend {
	case config.BackendFile, "":
		log.Printf("[store] using file backend in %s", cfg.DataDir)
		return filestore.New(cfg.DataDir)
	case config.BackendSQLite:
		log.Printf("[store] using sqlite backend at %s", cfg.SQLitePath)
		return sqlstore.Open(ctx, sqlstore.DriverSQLite, cfg.SQLitePath, sqlstore.PoolOptions{})
	case config.BackendPostgres:
		log.Printf("[store] using postgres backend")
		return sqlstore.Open(ctx, sqlstore.DriverPostgres, cfg.DatabaseURL, poolOptions(cfg))
	case config.BackendRemote:
		log.Printf("[store] using remote backend at %s", cfg.RemoteURL)
		return remotestore.New(cfg.RemoteURL, remotestore.WithToken(cfg.RemoteToken))
	case config.BackendMemory:
		log.Printf("[store] using in-memory backend, history is lost on restart")
		return memstore.New(), nil
	}
	return nil, fmt.Errorf("%w: %q", config.ErrUnknownBackend, cfg.Backend)
}

func poolOptions(cfg config.StorageSettings) sqlstore.PoolOptions {
	return sqlstore.PoolOptions{
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute,
		ConnMaxIdleTime: time.Duration(cfg.ConnMaxIdleTimeMinutes) * time.Minute,
	}
}
