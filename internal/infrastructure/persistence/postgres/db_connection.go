// Package postgres provides the SQL-backed shield store built on gorm.
// PostgreSQL is the production target; SQLite serves embedded deployments and tests.
package postgres

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/turtacn/apishield/pkg/constants"
	"github.com/turtacn/apishield/pkg/logger"
)

// DatabaseConfig holds connection and pool settings.
type DatabaseConfig struct {
	// DSN is a PostgreSQL connection string or a SQLite file path / URI.
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DBConnection manages the gorm handle lifecycle.
type DBConnection struct {
	db     *gorm.DB
	driver constants.StorageDriver
	logger logger.Logger
}

// NewDBConnection opens the database for driver and verifies it with a ping.
//
// Parameters:
//   - ctx: Context for the initial ping
//   - driver: constants.StorageDriverPostgres or constants.StorageDriverSQLite
//   - cfg: Database configuration
//   - log: Logger instance
//
// Returns:
//   - *DBConnection: Ready connection
//   - error: Open or ping error
func NewDBConnection(ctx context.Context, driver constants.StorageDriver, cfg *DatabaseConfig, log logger.Logger) (*DBConnection, error) {
	var dialector gorm.Dialector
	switch driver {
	case constants.StorageDriverPostgres:
		dialector = postgres.Open(cfg.DSN)
	case constants.StorageDriverSQLite:
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported SQL driver: %s", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	return NewDBConnectionFromGorm(ctx, db, driver, cfg, log)
}

// NewDBConnectionFromGorm wraps an already opened gorm handle.
func NewDBConnectionFromGorm(ctx context.Context, db *gorm.DB, driver constants.StorageDriver, cfg *DatabaseConfig, log logger.Logger) (*DBConnection, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if cfg != nil {
		if cfg.MaxOpenConns > 0 {
			sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		}
		if cfg.ConnMaxLifetime > 0 {
			sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
		}
	}

	conn := &DBConnection{db: db, driver: driver, logger: log.WithComponent("database")}
	if err := conn.Ping(ctx); err != nil {
		return nil, err
	}
	if cfg == nil || cfg.AutoMigrate {
		if err := db.WithContext(ctx).AutoMigrate(&ShieldEntry{}); err != nil {
			return nil, fmt.Errorf("migrate shield_entries: %w", err)
		}
	}

	conn.logger.Info(ctx, "Database connection established", logger.String("driver", string(driver)))
	return conn, nil
}

// DB returns the gorm handle.
func (c *DBConnection) DB() *gorm.DB {
	return c.db
}

// Driver returns the configured driver.
func (c *DBConnection) Driver() constants.StorageDriver {
	return c.driver
}

// Ping verifies database connectivity.
func (c *DBConnection) Ping(ctx context.Context) error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	start := time.Now()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		c.logger.Error(ctx, "Database ping failed", err)
		return fmt.Errorf("database ping: %w", err)
	}
	if latency := time.Since(start); latency > 100*time.Millisecond {
		c.logger.Warn(ctx, "High database latency detected", logger.Int64("latency_ms", latency.Milliseconds()))
	}
	return nil
}

// Close closes the underlying pool.
func (c *DBConnection) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	c.logger.Info(context.Background(), "Closing database connection")
	return sqlDB.Close()
}
