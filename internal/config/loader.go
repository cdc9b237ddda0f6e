package config

import (
	"context"
	"reflect"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/turtacn/apishield/pkg/constants"
	"github.com/turtacn/apishield/pkg/errors"
	"github.com/turtacn/apishield/pkg/logger"
)

// EnvPrefix prefixes environment overrides, e.g. APISHIELD_SHIELD_LIMIT_MAX.
const EnvPrefix = "APISHIELD"

// Loader reads configuration from file and environment.
type Loader struct {
	v   *viper.Viper
	log logger.Logger
}

// NewLoader creates a loader. configFile may be empty, in which case
// shield.yaml is searched in /etc/apishield/ and the working directory.
func NewLoader(configFile string, log logger.Logger) *Loader {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("shield")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/apishield/")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Loader{v: v, log: log.WithComponent("config")}
}

// Load reads, decodes and validates the configuration. A missing config file
// is not an error; defaults and environment apply.
func (l *Loader) Load() (*Config, error) {
	if err := l.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errors.ErrInvalidConfig("failed to read config file").WithCause(err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg, viper.DecodeHook(decodeHook())); err != nil {
		return nil, errors.ErrInvalidConfig("failed to unmarshal config").WithCause(err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ConfigFileUsed returns the path of the file that was read, if any.
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// Watch watches the config file. Route rules are immutable after startup, so
// a change is only reported; onChange may be nil.
func (l *Loader) Watch(onChange func(fsnotify.Event)) {
	l.v.OnConfigChange(func(e fsnotify.Event) {
		l.log.Warn(context.Background(), "Configuration file changed; restart to apply",
			logger.String("file", e.Name),
			logger.String("op", e.Op.String()),
		)
		if onChange != nil {
			onChange(e)
		}
	})
	l.v.WatchConfig()
}

// LoadConfig is NewLoader(configFile, log).Load().
func LoadConfig(configFile string, log logger.Logger) (*Config, error) {
	return NewLoader(configFile, log).Load()
}

func decodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		stringToRouteSpecHook(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

// stringToRouteSpecHook lets a route entry be written as a bare path.
func stringToRouteSpecHook() mapstructure.DecodeHookFuncType {
	return func(f reflect.Type, t reflect.Type, data interface{}) (interface{}, error) {
		if f.Kind() != reflect.String || t != reflect.TypeOf(RouteSpec{}) {
			return data, nil
		}
		return RouteSpec{Path: data.(string)}, nil
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.enable_pprof", false)
	v.SetDefault("server.admin_token", "")

	v.SetDefault("shield.limit.max", constants.DefaultLimitMax)
	v.SetDefault("shield.limit.duration", constants.DefaultLimitWindow.Seconds())
	v.SetDefault("shield.limit.ban", constants.DefaultLimitBan.Seconds())
	v.SetDefault("shield.path_prefix", constants.DefaultPathPrefix)
	v.SetDefault("shield.error_message", constants.DefaultErrorMessage)
	v.SetDefault("shield.retry_after_header", false)
	v.SetDefault("shield.delay_on_ban", true)
	v.SetDefault("shield.ban_delay", constants.DefaultBanDelay)
	v.SetDefault("shield.fail_open", true)
	v.SetDefault("shield.strict_counting", false)
	v.SetDefault("shield.ip_ttl", constants.DefaultIdentityTTL)
	v.SetDefault("shield.log.path", "")
	v.SetDefault("shield.log.attempts", 0)

	v.SetDefault("storage.driver", string(constants.StorageDriverMemory))
	v.SetDefault("storage.redis.addr", "localhost:6379")
	v.SetDefault("storage.redis.namespace", "")
	v.SetDefault("storage.database.auto_migrate", true)

	v.SetDefault("cleanup.enabled", true)
	v.SetDefault("cleanup.ban_interval", time.Hour)
	v.SetDefault("cleanup.identity_interval", 24*time.Hour)
	v.SetDefault("cleanup.run_on_start", false)

	v.SetDefault("audit.kafka.enabled", false)
	v.SetDefault("audit.kafka.topic", "apishield.attempts")
	v.SetDefault("audit.kafka.batch_timeout", 100*time.Millisecond)
	v.SetDefault("audit.kafka.group_id", "apishield-archiver")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stdout")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", constants.ServiceName)
	v.SetDefault("tracing.sampling_rate", 1.0)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}
