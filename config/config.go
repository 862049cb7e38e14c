// Package config provides configuration management for Wayfare.
package config

import (
	"fmt"
	"time"
)

// Config is the global configuration for Wayfare.
type Config struct {
	// App is the application configuration.
	App AppConfig `mapstructure:"app" validate:"required"`

	// Server is the HTTP server configuration.
	Server ServerConfig `mapstructure:"server" validate:"required"`

	// Log is the logging configuration.
	Log LogConfig `mapstructure:"log" validate:"required"`

	// Hub is the dispatch hub configuration.
	Hub HubConfig `mapstructure:"hub"`

	// Storage is the persistence configuration.
	Storage StorageConfig `mapstructure:"storage"`

	// Saga is the travel saga simulation configuration.
	Saga SagaConfig `mapstructure:"saga"`

	// Metrics is the observability configuration.
	Metrics MetricsConfig `mapstructure:"metrics"`

	// Tracing is the distributed tracing configuration.
	Tracing TracingConfig `mapstructure:"tracing"`
}

// AppConfig holds application metadata and settings.
type AppConfig struct {
	// Name is the application name.
	Name string `mapstructure:"name" validate:"required"`

	// Version is the application version.
	Version string `mapstructure:"version"`

	// Environment is the runtime environment.
	Environment string `mapstructure:"environment" validate:"oneof=development staging production"`

	// Debug enables debug mode with verbose logging.
	Debug bool `mapstructure:"debug"`
}

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	// Host is the bind address.
	Host string `mapstructure:"host"`

	// Port is the HTTP API port.
	Port int `mapstructure:"port" validate:"required,min=1,max=65535"`

	// HTTP holds protocol timeouts.
	HTTP HTTPConfig `mapstructure:"http"`
}

// HTTPConfig holds HTTP server timeouts.
type HTTPConfig struct {
	// ReadTimeout is the maximum duration for reading a request.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out response writes.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	// IdleTimeout is the maximum keep-alive idle time.
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`

	// Format is "json" or "text".
	Format string `mapstructure:"format" validate:"oneof=json text"`

	// Output is "stdout", "stderr", or a file path.
	Output string `mapstructure:"output"`
}

// HubConfig holds dispatch hub settings.
type HubConfig struct {
	// Workers is the number of orchestration workers.
	Workers int `mapstructure:"workers" validate:"min=1"`

	// Queue configures the work queue backend.
	Queue QueueConfig `mapstructure:"queue"`

	// ActivityMaxAttempts bounds infrastructure retries per activity.
	// Simulated business rejections are results, never retried.
	ActivityMaxAttempts int `mapstructure:"activity_max_attempts" validate:"min=1"`

	// ActivityRateLimit caps activity executions per second across
	// workers. Zero disables rate limiting.
	ActivityRateLimit float64 `mapstructure:"activity_rate_limit" validate:"min=0"`

	// AwaitPollInterval is the store poll cadence for completion waits.
	AwaitPollInterval time.Duration `mapstructure:"await_poll_interval"`
}

// QueueConfig selects and tunes the work queue backend.
type QueueConfig struct {
	// Type is "channel" or "redis".
	Type string `mapstructure:"type" validate:"oneof=channel redis"`

	// Size is the buffered capacity of the channel queue.
	Size int `mapstructure:"size" validate:"min=1"`

	// Redis configures the redis queue backend.
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig holds redis connection settings.
type RedisConfig struct {
	// Address is the redis host:port.
	Address string `mapstructure:"address"`

	// Password is the redis auth password.
	Password string `mapstructure:"password"`

	// DB is the redis database index.
	DB int `mapstructure:"db" validate:"min=0"`

	// Key is the list key used for the work queue.
	Key string `mapstructure:"key"`
}

// StorageConfig holds persistence settings.
type StorageConfig struct {
	// Type is "memory" or "badger".
	Type string `mapstructure:"type" validate:"oneof=memory badger"`

	// Badger configures the badger backend.
	Badger BadgerConfig `mapstructure:"badger"`
}

// BadgerConfig holds badger-specific settings.
type BadgerConfig struct {
	// Path is the on-disk directory for the database.
	Path string `mapstructure:"path"`

	// SyncWrites forces fsync on every write.
	SyncWrites bool `mapstructure:"sync_writes"`
}

// SagaConfig holds travel saga simulation settings.
type SagaConfig struct {
	// BookingFailureRates maps resource type to simulated rejection
	// probability for booking activities.
	BookingFailureRates map[string]float64 `mapstructure:"booking_failure_rates"`

	// PaymentFailureRate is the simulated decline probability for all
	// payment activities.
	PaymentFailureRate float64 `mapstructure:"payment_failure_rate" validate:"min=0,max=1"`

	// GeneratorFailureRate is the probability the confirmation generator
	// is unavailable (surfaced as a transient infrastructure error).
	GeneratorFailureRate float64 `mapstructure:"generator_failure_rate" validate:"min=0,max=1"`

	// ActivityLatency is the simulated latency per external call.
	ActivityLatency time.Duration `mapstructure:"activity_latency"`
}

// MetricsConfig holds metrics settings.
type MetricsConfig struct {
	// Enabled toggles prometheus metrics.
	Enabled bool `mapstructure:"enabled"`

	// Port is the metrics listener port.
	Port int `mapstructure:"port" validate:"min=0,max=65535"`

	// Path is the metrics endpoint path.
	Path string `mapstructure:"path"`
}

// TracingConfig holds tracing settings.
type TracingConfig struct {
	// Enabled toggles otel tracing.
	Enabled bool `mapstructure:"enabled"`

	// Endpoint is the OTLP gRPC collector endpoint.
	Endpoint string `mapstructure:"endpoint"`

	// SampleRatio is the trace sampling ratio in [0,1].
	SampleRatio float64 `mapstructure:"sample_ratio" validate:"min=0,max=1"`
}

// Addr returns the HTTP bind address.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// String renders a compact summary safe for logs.
func (c *Config) String() string {
	return fmt.Sprintf(
		"app=%s env=%s addr=%s storage=%s queue=%s workers=%d",
		c.App.Name, c.App.Environment, c.Server.Addr(),
		c.Storage.Type, c.Hub.Queue.Type, c.Hub.Workers,
	)
}
