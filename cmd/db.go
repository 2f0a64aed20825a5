package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/frahmantamala/backoffice/internal"
	"github.com/frahmantamala/backoffice/internal/kvstore"
	"github.com/frahmantamala/backoffice/internal/kvstore/memory"
	kvPostgres "github.com/frahmantamala/backoffice/internal/kvstore/postgres"
)

const (
	sessionTable = "kv_sessions"
	cacheTable   = "kv_permission_cache"
)

// initDB initializes the database connection
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return dbConn, nil
}

// initGorm puts gorm on top of the sqlx pool so both share connections.
func initGorm(db *sqlx.DB) (*gorm.DB, error) {
	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: db.DB}), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open gorm: %w", err)
	}
	return gdb, nil
}

// newKVStore builds the backend named by the config. Sessions and the
// permission cache always get separate instances so a cache sweep can never
// touch a session key.
func newKVStore(backend string, gdb *gorm.DB, table string, maxEntries int, maxTTL time.Duration) kvstore.Store {
	if backend == internal.BackendDatabase {
		return kvPostgres.NewStore(gdb, table)
	}
	return memory.New(maxEntries, maxTTL)
}

type expiringStore interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// purgeExpired periodically removes dead rows from database-backed stores;
// reads already ignore them.
func purgeExpired(ctx context.Context, logger *slog.Logger, interval time.Duration, stores ...kvstore.Store) {
	var targets []expiringStore
	for _, s := range stores {
		if es, ok := s.(expiringStore); ok {
			targets = append(targets, es)
		}
	}
	if len(targets) == 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, t := range targets {
				n, err := t.PurgeExpired(ctx)
				if err != nil {
					logger.Warn("failed to purge expired entries", "error", err)
					continue
				}
				if n > 0 {
					logger.Debug("purged expired entries", "count", n)
				}
			}
		}
	}
}
