package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server    ServerConfig    `mapstructure:"server" validate:"required"`
	Database  DatabaseConfig  `mapstructure:"database" validate:"required"`
	Auth      AuthConfig      `mapstructure:"auth" validate:"required"`
	Async     AsyncConfig     `mapstructure:"async" validate:"required"`
	Task      TaskConfig      `mapstructure:"task" validate:"required"`
	Redis     RedisConfig     `mapstructure:"redis"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Example   ExampleConfig   `mapstructure:"example"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	Driver      string `mapstructure:"driver" validate:"required,oneof=postgres sqlite"`
	URL         string `mapstructure:"url" validate:"required"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
}

// AuthConfig contains the settings for validating bearer tokens. TokenCookie
// names the cookie checked when no Authorization header is sent; empty
// disables the fallback.
type AuthConfig struct {
	JWTSecret            string `mapstructure:"jwt_secret" validate:"required,min=32"`
	TokenLifetimeMinutes int    `mapstructure:"token_lifetime_minutes" validate:"required,gt=0"`
	TokenCookie          string `mapstructure:"token_cookie"`
}

// AsyncConfig holds the ambient settings of async operations and handlers.
type AsyncConfig struct {
	DurableStorage        bool  `mapstructure:"durable_storage"`
	DefaultTTLMs          int64 `mapstructure:"default_ttl_ms" validate:"gte=0"`
	RequireOwner          bool  `mapstructure:"require_owner"`
	InitialPollIntervalMs int   `mapstructure:"initial_poll_interval_ms" validate:"gt=0"`
	PollIntervalMs        int   `mapstructure:"poll_interval_ms" validate:"gt=0"`
	Eager                 bool  `mapstructure:"eager"`
	UniqueFilenames       bool  `mapstructure:"unique_filenames"`
}

// DefaultTTL returns the artifact lifetime as a duration.
func (c AsyncConfig) DefaultTTL() time.Duration {
	return time.Duration(c.DefaultTTLMs) * time.Millisecond
}

// TaskConfig configures the background job runner.
type TaskConfig struct {
	WorkerCount            int    `mapstructure:"worker_count" validate:"gt=0"`
	QueueSize              int    `mapstructure:"queue_size" validate:"gt=0"`
	StuckTaskAgeMinutes    int    `mapstructure:"stuck_task_age_minutes" validate:"gt=0"`
	AwaitTimeoutSeconds    int    `mapstructure:"await_timeout_seconds" validate:"gt=0"`
	ResultRetentionMinutes int    `mapstructure:"result_retention_minutes" validate:"gt=0"`
	AwaitPollMs            int    `mapstructure:"await_poll_ms" validate:"gt=0"`
	Backend                string `mapstructure:"backend" validate:"oneof=memory database redis"`
}

// AwaitTimeout returns how long a blocking fetch may wait for a job.
func (c TaskConfig) AwaitTimeout() time.Duration {
	return time.Duration(c.AwaitTimeoutSeconds) * time.Second
}

// ResultRetention returns how long finished job state is kept.
func (c TaskConfig) ResultRetention() time.Duration {
	return time.Duration(c.ResultRetentionMinutes) * time.Minute
}

// StuckTaskAge returns the processing age after which a task is reported as stuck.
func (c TaskConfig) StuckTaskAge() time.Duration {
	return time.Duration(c.StuckTaskAgeMinutes) * time.Minute
}

// AwaitPoll returns the state polling interval used while awaiting a job.
func (c TaskConfig) AwaitPoll() time.Duration {
	return time.Duration(c.AwaitPollMs) * time.Millisecond
}

// RedisConfig holds connection settings for the redis task backend.
type RedisConfig struct {
	Addr     string `mapstructure:"addr" validate:"required_with=Password"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"gte=0"`
}

// RateLimitConfig throttles job submissions per client.
// A zero RequestsPerSecond disables limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second" validate:"gte=0"`
	Burst             int     `mapstructure:"burst" validate:"gte=0"`
}

// ExampleConfig tunes the demonstration endpoints.
type ExampleConfig struct {
	SlowDelaySeconds int `mapstructure:"slow_delay_seconds" validate:"gte=0"`
}

// SlowDelay returns how long the slow example operations wait.
func (c ExampleConfig) SlowDelay() time.Duration {
	return time.Duration(c.SlowDelaySeconds) * time.Second
}
