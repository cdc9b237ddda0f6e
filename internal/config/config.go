package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/turtacn/apishield/internal/domain/models"
	"github.com/turtacn/apishield/internal/domain/service"
	"github.com/turtacn/apishield/internal/infrastructure/persistence"
	"github.com/turtacn/apishield/pkg/constants"
	"github.com/turtacn/apishield/pkg/errors"
)

// Config holds the application's configuration.
type Config struct {
	Server  ServerConfig       `mapstructure:"server"`
	Shield  ShieldConfig       `mapstructure:"shield"`
	Storage persistence.Config `mapstructure:"storage"`
	Cleanup CleanupConfig      `mapstructure:"cleanup"`
	Audit   AuditConfig        `mapstructure:"audit"`
	Log     LogConfig          `mapstructure:"log"`
	Tracing TracingConfig      `mapstructure:"tracing"`
	Metrics MetricsConfig      `mapstructure:"metrics"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	TrustedProxies  []string      `mapstructure:"trusted_proxies"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	EnablePprof     bool          `mapstructure:"enable_pprof"`
	// AdminToken guards the /admin endpoints; empty disables them.
	AdminToken string `mapstructure:"admin_token"`
	// Upstream, when set, receives every request the router does not serve itself.
	Upstream string `mapstructure:"upstream"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// ShieldConfig is the admission configuration. Limits are in seconds, as operators write them.
type ShieldConfig struct {
	Limit            LimitSpec        `mapstructure:"limit"`
	Routes           []RouteSpec      `mapstructure:"routes"`
	PathPrefix       string           `mapstructure:"path_prefix"`
	ErrorMessage     string           `mapstructure:"error_message"`
	RetryAfterHeader bool             `mapstructure:"retry_after_header"`
	DelayOnBan       bool             `mapstructure:"delay_on_ban"`
	BanDelay         time.Duration    `mapstructure:"ban_delay"`
	FailOpen         bool             `mapstructure:"fail_open"`
	StrictCounting   bool             `mapstructure:"strict_counting"`
	IPTTL            time.Duration    `mapstructure:"ip_ttl"`
	AttemptLog       AttemptLogConfig `mapstructure:"log"`
}

// LimitSpec is the global limit: max requests per duration seconds, ban seconds on trip.
type LimitSpec struct {
	Max      int     `mapstructure:"max"`
	Duration float64 `mapstructure:"duration"`
	Ban      float64 `mapstructure:"ban"`
}

// RouteSpec is one route entry. A plain string entry decodes to {Path: s}.
type RouteSpec struct {
	Path     string   `mapstructure:"path"`
	Pattern  bool     `mapstructure:"pattern"`
	Prefix   bool     `mapstructure:"prefix"`
	Max      *int     `mapstructure:"max"`
	Duration *float64 `mapstructure:"duration"`
	Ban      *float64 `mapstructure:"ban"`
}

// AttemptLogConfig enables the attempt log when Path is set and Attempts > 0.
type AttemptLogConfig struct {
	Path     string `mapstructure:"path"`
	Attempts int    `mapstructure:"attempts"`
}

type CleanupConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	BanInterval      time.Duration `mapstructure:"ban_interval"`
	IdentityInterval time.Duration `mapstructure:"identity_interval"`
	RunOnStart       bool          `mapstructure:"run_on_start"`
}

// AuditConfig routes attempt records beyond the attempt log file. Kafka and
// Database sinks receive every in-window attempt; HMACSecret signs them.
type AuditConfig struct {
	Kafka      KafkaConfig `mapstructure:"kafka"`
	Database   bool        `mapstructure:"database"`
	HMACSecret string      `mapstructure:"hmac_secret"`
}

type KafkaConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	Async        bool          `mapstructure:"async"`
	// GroupID is the consumer group of the attempt archiver.
	GroupID string `mapstructure:"group_id"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

type TracingConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	JaegerEndpoint string  `mapstructure:"jaeger_endpoint"`
	ServiceName    string  `mapstructure:"service_name"`
	Environment    string  `mapstructure:"environment"`
	SamplingRate   float64 `mapstructure:"sampling_rate"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// GlobalLimit converts the configured global limit.
func (s ShieldConfig) GlobalLimit() models.LimitConfig {
	return models.LimitConfig{
		Max:    s.Limit.Max,
		Window: models.SecondsToDuration(s.Limit.Duration),
		Ban:    models.SecondsToDuration(s.Limit.Ban),
	}
}

// Rules converts route entries to domain rules, preserving declaration order.
func (s ShieldConfig) Rules() []models.RouteRule {
	rules := make([]models.RouteRule, 0, len(s.Routes))
	for _, r := range s.Routes {
		override := models.LimitOverride{Max: r.Max}
		if r.Duration != nil {
			d := models.SecondsToDuration(*r.Duration)
			override.Window = &d
		}
		if r.Ban != nil {
			b := models.SecondsToDuration(*r.Ban)
			override.Ban = &b
		}

		switch {
		case r.Pattern:
			rules = append(rules, models.PatternRule(r.Path, override))
		case r.Prefix:
			rules = append(rules, models.PrefixRule(r.Path, override))
		default:
			rules = append(rules, models.LiteralRule(r.Path, override))
		}
	}
	return rules
}

// AttemptLogEnabled reports whether attempts should be written.
func (s ShieldConfig) AttemptLogEnabled() bool {
	return s.AttemptLog.Path != "" && s.AttemptLog.Attempts > 0
}

// RuleIssues reports problems with the route table. Non-fatal issues are
// startup warnings: the offending rules stay configured but never match.
func (c *Config) RuleIssues() []service.RuleIssue {
	return service.NewRouteResolver(nil).ValidateRules(c.Shield.GlobalLimit(), c.Shield.Rules())
}

// Validate checks the configuration; limit errors are fatal.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.ErrInvalidConfig(fmt.Sprintf("invalid server port: %d", c.Server.Port))
	}
	if err := c.Shield.GlobalLimit().Validate(); err != nil {
		return errors.ErrInvalidConfig("shield.limit: " + err.Error())
	}
	if !strings.HasPrefix(c.Shield.PathPrefix, "/") {
		return errors.ErrInvalidConfig(fmt.Sprintf("shield.path_prefix must start with '/': %q", c.Shield.PathPrefix))
	}
	for i, r := range c.Shield.Routes {
		if r.Pattern && r.Prefix {
			return errors.ErrInvalidConfig(fmt.Sprintf("shield.routes[%d] %q: pattern and prefix are exclusive", i, r.Path))
		}
	}
	for _, issue := range c.RuleIssues() {
		if issue.Fatal {
			return errors.ErrInvalidConfig("shield.routes: " + issue.Error())
		}
	}
	if c.Shield.BanDelay < 0 {
		return errors.ErrInvalidConfig("shield.ban_delay must be >= 0")
	}

	switch c.Storage.Driver {
	case constants.StorageDriverMemory, constants.StorageDriverRedis:
	case constants.StorageDriverPostgres, constants.StorageDriverSQLite:
		if c.Storage.Database.DSN == "" {
			return errors.ErrInvalidConfig("storage.database.dsn is required for " + string(c.Storage.Driver))
		}
	default:
		return errors.ErrInvalidConfig(fmt.Sprintf("unknown storage driver %q", c.Storage.Driver))
	}

	if c.Cleanup.Enabled && (c.Cleanup.BanInterval <= 0 || c.Cleanup.IdentityInterval <= 0) {
		return errors.ErrInvalidConfig("cleanup intervals must be > 0 when cleanup is enabled")
	}
	if c.Audit.Database && c.Storage.Driver != constants.StorageDriverPostgres && c.Storage.Driver != constants.StorageDriverSQLite {
		return errors.ErrInvalidConfig("audit.database requires a postgres or sqlite storage driver")
	}
	if c.Audit.Kafka.Enabled && (len(c.Audit.Kafka.Brokers) == 0 || c.Audit.Kafka.Topic == "") {
		return errors.ErrInvalidConfig("audit.kafka requires brokers and topic")
	}
	if c.Tracing.Enabled && (c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1) {
		return errors.ErrInvalidConfig("tracing.sampling_rate must be within [0, 1]")
	}
	return nil
}
