// Package metrics provides Prometheus metrics instrumentation for Wayfare.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Manager owns the metric families and their registry. A disabled
// manager is a valid no-op value.
type Manager struct {
	registry *prometheus.Registry
	enabled  bool

	// Saga metrics
	sagaSubmissions *prometheus.CounterVec
	sagaDuration    *prometheus.HistogramVec
	sagaActive      prometheus.Gauge

	// Activity metrics
	activityExecutions *prometheus.CounterVec
	activityDuration   *prometheus.HistogramVec
	activityRetries    *prometheus.CounterVec

	// HTTP metrics
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	httpConnections prometheus.Gauge
}

// Config holds metrics configuration.
type Config struct {
	Enabled bool
	Port    int
	Path    string

	// Histogram bucket configurations
	SagaDurationBuckets     []float64
	ActivityDurationBuckets []float64
	HTTPDurationBuckets     []float64
}

// DefaultConfig returns default metrics configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:                 true,
		Port:                    9091,
		Path:                    "/metrics",
		SagaDurationBuckets:     []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		ActivityDurationBuckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		HTTPDurationBuckets:     []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}
}

// NewManager creates a metrics manager with its own registry.
func NewManager(cfg Config) *Manager {
	if !cfg.Enabled {
		return NoOpManager()
	}

	m := &Manager{
		registry: prometheus.NewRegistry(),
		enabled:  true,
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m.initSagaMetrics(cfg)
	m.initActivityMetrics(cfg)
	m.initHTTPMetrics(cfg)
	return m
}

// NoOpManager returns a disabled manager whose record methods do
// nothing.
func NoOpManager() *Manager {
	return &Manager{enabled: false}
}

// Enabled reports whether metrics collection is enabled.
func (m *Manager) Enabled() bool {
	return m.enabled
}

// Handler returns the scrape endpoint handler. Disabled managers
// answer 404.
func (m *Manager) Handler() http.Handler {
	if !m.enabled {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartServer serves the scrape endpoint on its own port, shutting
// down when ctx is cancelled.
func (m *Manager) StartServer(ctx context.Context, port int, path string) error {
	if !m.enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	return server.ListenAndServe()
}
