// Package redis provides the Redis connection manager and the Redis-backed shield store.
// It supports standalone, cluster, and sentinel deployment modes with connection pooling.
package redis

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/turtacn/apishield/pkg/logger"
)

// ConnectionMode defines Redis deployment mode
type ConnectionMode string

const (
	// ModeStandalone represents single Redis instance
	ModeStandalone ConnectionMode = "standalone"
	// ModeCluster represents Redis cluster mode
	ModeCluster ConnectionMode = "cluster"
	// ModeSentinel represents Redis sentinel mode for high availability
	ModeSentinel ConnectionMode = "sentinel"
)

// Config holds Redis connection configuration parameters.
type Config struct {
	Mode ConnectionMode `mapstructure:"mode"`

	// Standalone
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`

	// Cluster
	ClusterAddrs []string `mapstructure:"cluster_addrs"`

	// Sentinel
	SentinelAddrs  []string `mapstructure:"sentinel_addrs"`
	SentinelMaster string   `mapstructure:"sentinel_master"`

	// Namespace is prepended to every shield key so several deployments can share one database.
	Namespace string `mapstructure:"namespace"`

	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	MaxRetries   int           `mapstructure:"max_retries"`

	EnableTLS     bool   `mapstructure:"enable_tls"`
	TLSSkipVerify bool   `mapstructure:"tls_skip_verify"`
	TLSCACertFile string `mapstructure:"tls_ca_cert_file"`
}

// RedisConnection manages Redis client lifecycle and health monitoring.
type RedisConnection struct {
	config *Config
	client redis.UniversalClient
	logger logger.Logger
}

// NewRedisConnection creates a new Redis connection manager instance.
//
// Parameters:
//   - config: Redis configuration
//   - log: Logger instance
//
// Returns:
//   - *RedisConnection: Connection manager, not yet connected
func NewRedisConnection(config *Config, log logger.Logger) *RedisConnection {
	return &RedisConnection{
		config: config,
		logger: log.WithComponent("redis"),
	}
}

// NewRedisConnectionFromClient wraps an existing client, e.g. one pointed at miniredis.
func NewRedisConnectionFromClient(client redis.UniversalClient, log logger.Logger) *RedisConnection {
	return &RedisConnection{
		config: &Config{Mode: ModeStandalone},
		client: client,
		logger: log.WithComponent("redis"),
	}
}

// Connect establishes Redis connection based on configured mode and verifies it with a ping.
func (rc *RedisConnection) Connect(ctx context.Context) error {
	if rc.client != nil {
		rc.logger.Warn(ctx, "Redis connection already initialized")
		return nil
	}
	rc.setDefaults()

	tlsConfig, err := rc.buildTLSConfig()
	if err != nil {
		return fmt.Errorf("failed to build TLS config: %w", err)
	}

	var client redis.UniversalClient
	switch rc.config.Mode {
	case ModeStandalone:
		client = redis.NewClient(&redis.Options{
			Addr:         rc.config.Addr,
			Password:     rc.config.Password,
			DB:           rc.config.DB,
			PoolSize:     rc.config.PoolSize,
			MinIdleConns: rc.config.MinIdleConns,
			DialTimeout:  rc.config.DialTimeout,
			ReadTimeout:  rc.config.ReadTimeout,
			WriteTimeout: rc.config.WriteTimeout,
			MaxRetries:   rc.config.MaxRetries,
			TLSConfig:    tlsConfig,
		})
	case ModeCluster:
		if len(rc.config.ClusterAddrs) == 0 {
			return fmt.Errorf("cluster addresses not configured")
		}
		client = redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:        rc.config.ClusterAddrs,
			Password:     rc.config.Password,
			PoolSize:     rc.config.PoolSize,
			MinIdleConns: rc.config.MinIdleConns,
			DialTimeout:  rc.config.DialTimeout,
			ReadTimeout:  rc.config.ReadTimeout,
			WriteTimeout: rc.config.WriteTimeout,
			MaxRetries:   rc.config.MaxRetries,
			TLSConfig:    tlsConfig,
		})
	case ModeSentinel:
		if len(rc.config.SentinelAddrs) == 0 || rc.config.SentinelMaster == "" {
			return fmt.Errorf("sentinel addresses and master name are required")
		}
		client = redis.NewFailoverClient(&redis.FailoverOptions{
			MasterName:    rc.config.SentinelMaster,
			SentinelAddrs: rc.config.SentinelAddrs,
			Password:      rc.config.Password,
			DB:            rc.config.DB,
			PoolSize:      rc.config.PoolSize,
			MinIdleConns:  rc.config.MinIdleConns,
			DialTimeout:   rc.config.DialTimeout,
			ReadTimeout:   rc.config.ReadTimeout,
			WriteTimeout:  rc.config.WriteTimeout,
			MaxRetries:    rc.config.MaxRetries,
			TLSConfig:     tlsConfig,
		})
	default:
		return fmt.Errorf("unsupported Redis mode: %s", rc.config.Mode)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		rc.logger.Error(ctx, "Redis ping failed", err, logger.String("mode", string(rc.config.Mode)))
		_ = client.Close()
		return fmt.Errorf("redis ping failed: %w", err)
	}

	rc.client = client
	rc.logger.Info(ctx, "Redis connection established successfully",
		logger.String("mode", string(rc.config.Mode)),
		logger.Int("pool_size", rc.config.PoolSize),
	)
	return nil
}

func (rc *RedisConnection) buildTLSConfig() (*tls.Config, error) {
	if !rc.config.EnableTLS {
		return nil, nil
	}
	tlsConfig := &tls.Config{
		InsecureSkipVerify: rc.config.TLSSkipVerify, //nolint:gosec // operator opt-in
		MinVersion:         tls.VersionTLS12,
	}
	if rc.config.TLSCACertFile != "" {
		pem, err := os.ReadFile(rc.config.TLSCACertFile)
		if err != nil {
			return nil, err
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", rc.config.TLSCACertFile)
		}
		tlsConfig.RootCAs = pool
	}
	return tlsConfig, nil
}

func (rc *RedisConnection) setDefaults() {
	if rc.config.Mode == "" {
		rc.config.Mode = ModeStandalone
	}
	if rc.config.Addr == "" {
		rc.config.Addr = "localhost:6379"
	}
	if rc.config.PoolSize == 0 {
		rc.config.PoolSize = 10
	}
	if rc.config.MinIdleConns == 0 {
		rc.config.MinIdleConns = 2
	}
	if rc.config.DialTimeout == 0 {
		rc.config.DialTimeout = 5 * time.Second
	}
	if rc.config.ReadTimeout == 0 {
		rc.config.ReadTimeout = 3 * time.Second
	}
	if rc.config.WriteTimeout == 0 {
		rc.config.WriteTimeout = 3 * time.Second
	}
	if rc.config.MaxRetries == 0 {
		rc.config.MaxRetries = 3
	}
}

// GetClient returns the Redis client instance, nil before Connect.
func (rc *RedisConnection) GetClient() redis.UniversalClient {
	return rc.client
}

// Ping checks Redis server connectivity.
func (rc *RedisConnection) Ping(ctx context.Context) error {
	if rc.client == nil {
		return fmt.Errorf("redis connection not initialized")
	}
	return rc.client.Ping(ctx).Err()
}

// Close gracefully closes Redis connection and releases resources.
func (rc *RedisConnection) Close() error {
	if rc.client == nil {
		return nil
	}
	if err := rc.client.Close(); err != nil {
		rc.logger.Error(context.Background(), "Failed to close Redis connection", err)
		return err
	}
	rc.client = nil
	rc.logger.Info(context.Background(), "Redis connection closed successfully")
	return nil
}
