package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/wayfare/wayfare/config"
	"github.com/wayfare/wayfare/pkg/api"
	"github.com/wayfare/wayfare/pkg/api/events"
	"github.com/wayfare/wayfare/pkg/api/handlers"
	"github.com/wayfare/wayfare/pkg/hub"
	"github.com/wayfare/wayfare/pkg/logger"
	"github.com/wayfare/wayfare/pkg/metrics"
	"github.com/wayfare/wayfare/pkg/saga"
	"github.com/wayfare/wayfare/pkg/telemetry/tracing"
	"github.com/wayfare/wayfare/pkg/version"
)

var (
	configPath  = flag.String("config", "", "Path to configuration file")
	versionFlag = flag.Bool("version", false, "Print version information")
	helpFlag    = flag.Bool("help", false, "Print help information")

	// CLI overrides
	serverPort = flag.Int("port", 0, "Override server port")
	logLevel   = flag.String("log-level", "", "Override log level")
	workers    = flag.Int("workers", 0, "Override worker count")
	storage    = flag.String("storage", "", "Override storage backend (memory|badger)")
	debugMode  = flag.Bool("debug", false, "Enable debug mode")
)

func main() {
	flag.Parse()

	if *helpFlag {
		printHelp()
		os.Exit(0)
	}
	if *versionFlag {
		printVersion()
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath, buildOverrides())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration:\n%s\n", err)
		os.Exit(1)
	}

	logCfg := &logger.Config{
		Level:  logger.ParseLevel(cfg.Log.Level),
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	}
	if cfg.App.Debug || *debugMode {
		logCfg.Level = logger.DebugLevel
	}
	log := logger.New(logCfg)
	logger.SetGlobal(log)

	log.Info("starting wayfare",
		"version", version.Version,
		"buildTime", version.BuildTime,
		"gitCommit", version.GitCommit,
		"environment", cfg.App.Environment,
	)
	log.Debug("configuration loaded", "config", cfg.String())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Tracing
	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing, cfg.App.Name, version.Version)
	if err != nil {
		log.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	// Storage backend
	var store hub.Store
	switch cfg.Storage.Type {
	case "badger":
		store, err = hub.OpenBadgerStore(cfg.Storage.Badger.Path, cfg.Storage.Badger.SyncWrites)
		if err != nil {
			log.Error("failed to open badger store", "error", err, "path", cfg.Storage.Badger.Path)
			os.Exit(1)
		}
		log.Info("initialized badger store", "path", cfg.Storage.Badger.Path)
	default:
		store = hub.NewMemoryStore()
		log.Info("initialized memory store")
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("error closing store", "error", err)
		}
	}()

	// Work queue backend
	var queue hub.Queue
	switch cfg.Hub.Queue.Type {
	case "redis":
		queue, err = hub.NewRedisQueue(hub.RedisQueueConfig{
			Address:  cfg.Hub.Queue.Redis.Address,
			Password: cfg.Hub.Queue.Redis.Password,
			DB:       cfg.Hub.Queue.Redis.DB,
			Key:      cfg.Hub.Queue.Redis.Key,
		})
		if err != nil {
			log.Error("failed to connect redis queue", "error", err, "address", cfg.Hub.Queue.Redis.Address)
			os.Exit(1)
		}
		log.Info("initialized redis queue", "address", cfg.Hub.Queue.Redis.Address)
	default:
		queue = hub.NewChannelQueue(cfg.Hub.Queue.Size)
		log.Info("initialized channel queue", "size", cfg.Hub.Queue.Size)
	}

	// Metrics
	metricsCfg := metrics.DefaultConfig()
	metricsCfg.Enabled = cfg.Metrics.Enabled
	metricsCfg.Port = cfg.Metrics.Port
	metricsCfg.Path = cfg.Metrics.Path
	metricsManager := metrics.NewManager(metricsCfg)
	if metricsManager.Enabled() {
		go func() {
			log.Info("starting metrics server", "port", cfg.Metrics.Port, "path", cfg.Metrics.Path)
			if err := metricsManager.StartServer(ctx, cfg.Metrics.Port, cfg.Metrics.Path); err != nil {
				log.Error("metrics server error", "error", err)
			}
		}()
	}

	// Saga registration
	registry := hub.NewRegistry()
	decider := saga.NewRateDecider(saga.OperationRates(
		cfg.Saga.BookingFailureRates,
		cfg.Saga.PaymentFailureRate,
		cfg.Saga.GeneratorFailureRate,
	), time.Now().UnixNano())
	activities := saga.NewActivities(
		saga.NewSimGenerator(decider),
		decider,
		cfg.Saga.ActivityLatency,
		log.With("component", "saga"),
	)
	if err := saga.Register(registry, activities); err != nil {
		log.Error("failed to register sagas", "error", err)
		os.Exit(1)
	}

	// Hub: worker pool plus client
	broadcaster := events.NewBroadcaster()
	worker := hub.NewWorker(store, queue, registry, log.With("component", "hub"), hub.WorkerConfig{
		Workers:     cfg.Hub.Workers,
		MaxAttempts: cfg.Hub.ActivityMaxAttempts,
		RateLimit:   cfg.Hub.ActivityRateLimit,
	})
	worker.SetMetrics(metricsManager)
	worker.AddListener(broadcaster.BroadcastInstanceEvent)

	if recovered, err := worker.RecoverPending(ctx); err != nil {
		log.Error("failed to recover pending instances", "error", err)
		os.Exit(1)
	} else if recovered > 0 {
		log.Info("re-enqueued interrupted sagas", "count", recovered)
	}
	worker.Start(ctx)

	client := hub.NewClient(store, queue, registry, log, cfg.Hub.AwaitPollInterval)

	// HTTP API
	tripHandler := handlers.NewTripHandler(client, log)
	tripHandler.SetSubmissionRecorder(metricsManager)
	apiHandlers := &api.Handlers{
		Trip:      tripHandler,
		Health:    handlers.NewHealthHandler(nil),
		WebSocket: handlers.NewWebSocketHandler(log, handlers.WebSocketConfig{}),
	}
	if metricsManager.Enabled() {
		apiHandlers.Metrics = metricsManager
	}

	httpServer := api.NewHTTPServer(cfg, log, apiHandlers, broadcaster)

	serverErrChan := make(chan error, 1)
	go func() {
		if err := httpServer.Start(); err != nil {
			serverErrChan <- err
		}
	}()

	log.Info("wayfare is running",
		"http_addr", cfg.Server.Addr(),
		"metrics_port", cfg.Metrics.Port,
		"workers", cfg.Hub.Workers,
	)

	select {
	case sig := <-sigChan:
		log.Info("received shutdown signal", "signal", sig)
	case err := <-serverErrChan:
		log.Error("HTTP server error", "error", err)
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("error shutting down HTTP server", "error", err)
	}

	if err := queue.Close(); err != nil {
		log.Error("error closing queue", "error", err)
	}
	worker.Stop()
	broadcaster.Close()

	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error("error shutting down tracing", "error", err)
	}

	log.Info("wayfare stopped gracefully")
}

func buildOverrides() map[string]interface{} {
	overrides := make(map[string]interface{})

	if *serverPort != 0 {
		overrides["server.port"] = *serverPort
	}
	if *logLevel != "" {
		overrides["log.level"] = *logLevel
	}
	if *workers != 0 {
		overrides["hub.workers"] = *workers
	}
	if *storage != "" {
		overrides["storage.type"] = *storage
	}
	if *debugMode {
		overrides["app.debug"] = true
	}

	return overrides
}

func printVersion() {
	fmt.Printf("Wayfare - Travel Saga Orchestration Engine\n")
	fmt.Printf("Version:    %s\n", version.Version)
	fmt.Printf("Build Time: %s\n", version.BuildTime)
	fmt.Printf("Git Commit: %s\n", version.GitCommit)
	fmt.Printf("Go Version: %s\n", runtime.Version())
}

func printHelp() {
	fmt.Printf("Wayfare - Durable travel booking sagas with compensation\n\n")
	fmt.Printf("Usage: wayfare [options]\n\n")
	fmt.Printf("Options:\n")
	flag.PrintDefaults()
	fmt.Printf("\nExamples:\n")
	fmt.Printf("  wayfare                                   # Run with default config\n")
	fmt.Printf("  wayfare -config config.yaml               # Use specific config file\n")
	fmt.Printf("  wayfare -port 9090 -log-level debug       # Override specific options\n")
	fmt.Printf("  wayfare -storage badger                   # Persist sagas on disk\n")
}
