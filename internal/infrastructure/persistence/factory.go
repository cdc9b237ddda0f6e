// Package persistence selects and builds the configured shield store.
package persistence

import (
	"context"
	"fmt"
	"io"
	"time"

	"gorm.io/gorm"

	"github.com/turtacn/apishield/internal/domain/service"
	"github.com/turtacn/apishield/internal/infrastructure/persistence/memory"
	"github.com/turtacn/apishield/internal/infrastructure/persistence/postgres"
	"github.com/turtacn/apishield/internal/infrastructure/persistence/redis"
	"github.com/turtacn/apishield/pkg/constants"
	"github.com/turtacn/apishield/pkg/logger"
)

// Config selects a driver and carries its settings.
type Config struct {
	Driver   constants.StorageDriver `mapstructure:"driver"`
	Memory   MemoryConfig            `mapstructure:"memory"`
	Redis    redis.Config            `mapstructure:"redis"`
	Database postgres.DatabaseConfig `mapstructure:"database"`
}

// MemoryConfig configures the in-process store.
type MemoryConfig struct {
	Expiration      time.Duration `mapstructure:"expiration"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// Handle is an opened store together with whatever must be closed on shutdown.
// DB is set for the SQL drivers so other components can share the pool.
type Handle struct {
	Store  service.Storage
	DB     *gorm.DB
	closer io.Closer
}

// Close releases the backend connection, if any.
func (h *Handle) Close() error {
	if h.closer == nil {
		return nil
	}
	return h.closer.Close()
}

// Open builds the store for cfg.Driver.
func Open(ctx context.Context, cfg Config, log logger.Logger) (*Handle, error) {
	switch cfg.Driver {
	case "", constants.StorageDriverMemory:
		return &Handle{Store: memory.NewStore(cfg.Memory.Expiration, cfg.Memory.CleanupInterval)}, nil

	case constants.StorageDriverRedis:
		rcfg := cfg.Redis
		conn := redis.NewRedisConnection(&rcfg, log)
		if err := conn.Connect(ctx); err != nil {
			return nil, err
		}
		return &Handle{Store: redis.NewStore(conn, rcfg.Namespace, log), closer: conn}, nil

	case constants.StorageDriverPostgres, constants.StorageDriverSQLite:
		dcfg := cfg.Database
		conn, err := postgres.NewDBConnection(ctx, cfg.Driver, &dcfg, log)
		if err != nil {
			return nil, err
		}
		return &Handle{Store: postgres.NewStore(conn), DB: conn.DB(), closer: conn}, nil

	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
