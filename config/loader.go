package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix is the prefix for environment variables.
	EnvPrefix = "WAYFARE_"
	// Delimiter is the key delimiter for nested config.
	Delimiter = "."
)

// Loader handles configuration loading from various sources.
type Loader struct {
	k *koanf.Koanf
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{k: koanf.New(Delimiter)}
}

// Load loads configuration with the following priority:
// 1. Explicit overrides (highest, typically CLI flags)
// 2. Environment variables
// 3. Configuration file
// 4. Defaults (lowest)
func (l *Loader) Load(configPath string, overrides map[string]interface{}) (*Config, error) {
	if err := l.loadDefaults(); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath != "" {
		if err := l.loadFile(configPath); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	} else {
		l.loadDefaultFiles()
	}

	if err := l.loadEnv(); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if len(overrides) > 0 {
		if err := l.k.Load(confmap.Provider(overrides, Delimiter), nil); err != nil {
			return nil, fmt.Errorf("failed to apply overrides: %w", err)
		}
	}

	var cfg Config
	if err := l.k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "mapstructure",
	}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := ValidateWithDetails(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// loadDefaults seeds the key space with DefaultConfig values.
func (l *Loader) loadDefaults() error {
	d := DefaultConfig()
	flat := map[string]interface{}{
		"app.name":        d.App.Name,
		"app.version":     d.App.Version,
		"app.environment": d.App.Environment,
		"app.debug":       d.App.Debug,

		"server.host":               d.Server.Host,
		"server.port":               d.Server.Port,
		"server.http.read_timeout":  d.Server.HTTP.ReadTimeout,
		"server.http.write_timeout": d.Server.HTTP.WriteTimeout,
		"server.http.idle_timeout":  d.Server.HTTP.IdleTimeout,

		"log.level":  d.Log.Level,
		"log.format": d.Log.Format,
		"log.output": d.Log.Output,

		"hub.workers":               d.Hub.Workers,
		"hub.queue.type":            d.Hub.Queue.Type,
		"hub.queue.size":            d.Hub.Queue.Size,
		"hub.queue.redis.address":   d.Hub.Queue.Redis.Address,
		"hub.queue.redis.password":  d.Hub.Queue.Redis.Password,
		"hub.queue.redis.db":        d.Hub.Queue.Redis.DB,
		"hub.queue.redis.key":       d.Hub.Queue.Redis.Key,
		"hub.activity_max_attempts": d.Hub.ActivityMaxAttempts,
		"hub.activity_rate_limit":   d.Hub.ActivityRateLimit,
		"hub.await_poll_interval":   d.Hub.AwaitPollInterval,

		"storage.type":               d.Storage.Type,
		"storage.badger.path":        d.Storage.Badger.Path,
		"storage.badger.sync_writes": d.Storage.Badger.SyncWrites,

		"saga.booking_failure_rates":  d.Saga.BookingFailureRates,
		"saga.payment_failure_rate":   d.Saga.PaymentFailureRate,
		"saga.generator_failure_rate": d.Saga.GeneratorFailureRate,
		"saga.activity_latency":       d.Saga.ActivityLatency,

		"metrics.enabled": d.Metrics.Enabled,
		"metrics.port":    d.Metrics.Port,
		"metrics.path":    d.Metrics.Path,

		"tracing.enabled":      d.Tracing.Enabled,
		"tracing.endpoint":     d.Tracing.Endpoint,
		"tracing.sample_ratio": d.Tracing.SampleRatio,
	}
	return l.k.Load(confmap.Provider(flat, Delimiter), nil)
}

// loadFile loads configuration from a YAML or JSON file.
func (l *Loader) loadFile(path string) error {
	var parser koanf.Parser
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return fmt.Errorf("unsupported config file format: %s", path)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s", path)
	}

	return l.k.Load(file.Provider(path), parser)
}

// loadDefaultFiles tries standard config locations.
func (l *Loader) loadDefaultFiles() {
	candidates := []string{
		"config.yaml",
		"config.yml",
		"config.json",
		"configs/config.yaml",
		"/etc/wayfare/config.yaml",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			_ = l.loadFile(path)
			return
		}
	}
}

// loadEnv loads configuration from environment variables.
// WAYFARE_SERVER__PORT maps to server.port; a double underscore is the
// nesting delimiter so multi-word leaf keys survive.
func (l *Loader) loadEnv() error {
	return l.k.Load(env.Provider(EnvPrefix, Delimiter, func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(key, "__", Delimiter)
	}), nil)
}

// Get returns a configuration value by key.
func (l *Loader) Get(key string) interface{} {
	return l.k.Get(key)
}

// Set sets a configuration value.
func (l *Loader) Set(key string, value interface{}) error {
	return l.k.Set(key, value)
}

// Load is a convenience function to load configuration.
func Load(configPath string, overrides map[string]interface{}) (*Config, error) {
	return NewLoader().Load(configPath, overrides)
}
