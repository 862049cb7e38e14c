package config

import "time"

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:        "wayfare",
			Version:     "dev",
			Environment: "development",
			Debug:       false,
		},
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
			HTTP: HTTPConfig{
				ReadTimeout:  30 * time.Second,
				WriteTimeout: 60 * time.Second,
				IdleTimeout:  120 * time.Second,
			},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Hub: HubConfig{
			Workers: 4,
			Queue: QueueConfig{
				Type: "channel",
				Size: 1024,
				Redis: RedisConfig{
					Address: "localhost:6379",
					Key:     "wayfare:work",
				},
			},
			ActivityMaxAttempts: 1,
			ActivityRateLimit:   0,
			AwaitPollInterval:   100 * time.Millisecond,
		},
		Storage: StorageConfig{
			Type: "memory",
			Badger: BadgerConfig{
				Path:       "./data/wayfare",
				SyncWrites: true,
			},
		},
		Saga: SagaConfig{
			BookingFailureRates: map[string]float64{
				"flight": 0.20,
				"hotel":  0.15,
				"car":    0.25,
			},
			PaymentFailureRate:   0.10,
			GeneratorFailureRate: 0,
			ActivityLatency:      50 * time.Millisecond,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9091,
			Path:    "/metrics",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			Endpoint:    "localhost:4317",
			SampleRatio: 1.0,
		},
	}
}
