// Package store picks the storage backend named in configuration.
package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/eventio/backend/config"
	"github.com/eventio/backend/internal/bookings"
	"github.com/eventio/backend/internal/events"
	"github.com/eventio/backend/internal/store/memory"
	"github.com/eventio/backend/internal/store/postgres"
	"github.com/eventio/backend/internal/store/sqlite"
	"github.com/eventio/backend/pkg/database"
)

// Backend stores both events and bookings.
type Backend interface {
	bookings.Store
	events.Store
}

// Open connects to the configured backend and applies migrations. The
// returned func releases the connection.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (Backend, func(), error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Driver {
	case config.DriverPostgres:
		pool, err := database.NewPostgresPool(ctx, cfg.DSN(), int32(cfg.MaxConns), logger)
		if err != nil {
			return nil, nil, err
		}
		if err := database.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		return postgres.New(pool), pool.Close, nil

	case config.DriverSQLite:
		db, err := database.NewSQLite(ctx, cfg.SQLitePath, logger)
		if err != nil {
			return nil, nil, err
		}
		if err := database.MigrateSQLite(ctx, db); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		return sqlite.New(db), func() { _ = db.Close() }, nil

	case config.DriverMemory:
		logger.Warn("using in-memory store; data is lost on restart")
		return memory.New(), func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
}
