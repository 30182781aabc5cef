package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable read by Load.
const EnvPrefix = "ASYNCVIEW"

// ConfigPathEnv names the variable holding an explicit config file path.
const ConfigPathEnv = "ASYNCVIEW_CONFIG"

var validate = validator.New()

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.url", "file:asyncview.db?_pragma=busy_timeout(5000)")
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_lifetime_minutes", 60)
	v.SetDefault("auth.token_cookie", "asyncview_token")

	v.SetDefault("async.durable_storage", true)
	v.SetDefault("async.default_ttl_ms", 600000)
	v.SetDefault("async.require_owner", false)
	v.SetDefault("async.initial_poll_interval_ms", 20000)
	v.SetDefault("async.poll_interval_ms", 5000)
	v.SetDefault("async.eager", false)
	v.SetDefault("async.unique_filenames", false)

	v.SetDefault("task.worker_count", 2)
	v.SetDefault("task.queue_size", 100)
	v.SetDefault("task.stuck_task_age_minutes", 30)
	v.SetDefault("task.await_timeout_seconds", 60)
	v.SetDefault("task.result_retention_minutes", 60)
	v.SetDefault("task.await_poll_ms", 100)
	v.SetDefault("task.backend", "memory")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("rate_limit.requests_per_second", 0)
	v.SetDefault("rate_limit.burst", 0)

	v.SetDefault("example.slow_delay_seconds", 15)
}

// newViper builds a viper instance with defaults, an optional config file and
// environment overrides. Environment variables take precedence over the file.
func newViper() (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	if path := os.Getenv(ConfigPathEnv); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.Task.Backend == "redis" && cfg.Redis.Addr == "" {
		return nil, errors.New("invalid configuration: redis.addr is required for the redis task backend")
	}
	return &cfg, nil
}

// Load configuration from environment variables and optionally config files.
// Environment variables take precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v, err := newViper()
	if err != nil {
		return nil, err
	}
	return decode(v)
}
