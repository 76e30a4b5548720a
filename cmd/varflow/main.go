package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/aescanero/varflow/internal/application/orchestrator"
	"github.com/aescanero/varflow/internal/application/resolvers"
	"github.com/aescanero/varflow/internal/application/workers"
	"github.com/aescanero/varflow/internal/config"
	memorycache "github.com/aescanero/varflow/pkg/adapters/cache/memory"
	rediscache "github.com/aescanero/varflow/pkg/adapters/cache/redis"
	memoryevents "github.com/aescanero/varflow/pkg/adapters/events/memory"
	redisevents "github.com/aescanero/varflow/pkg/adapters/events/redis"
	"github.com/aescanero/varflow/pkg/adapters/fetcher"
	httpfetcher "github.com/aescanero/varflow/pkg/adapters/fetcher/http"
	metrics "github.com/aescanero/varflow/pkg/adapters/metrics/prometheus"
	memorystorage "github.com/aescanero/varflow/pkg/adapters/storage/memory"
	redisstorage "github.com/aescanero/varflow/pkg/adapters/storage/redis"
	"github.com/aescanero/varflow/pkg/api/grpc"
	"github.com/aescanero/varflow/pkg/api/http"
	"github.com/aescanero/varflow/pkg/api/websocket"
	"github.com/aescanero/varflow/pkg/ports"
)

var (
	// Version is set by build flags
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := initLogger(cfg.LogLevel)
	defer func() { _ = logger.Sync() }()

	logger.Info("starting varflow",
		zap.String("version", Version),
		zap.String("build_time", BuildTime))

	ctx := context.Background()

	// Redis is only dialed when a backend needs it
	var redisClient *goredis.Client
	if cfg.UsesRedis() {
		redisClient = goredis.NewClient(&goredis.Options{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			MaxRetries:   cfg.Redis.MaxRetries,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})

		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal("failed to connect to Redis", zap.Error(err))
		}
		logger.Info("connected to Redis", zap.String("addr", cfg.Redis.Addr))
	}

	metricsCollector := metrics.NewCollector(prometheus.DefaultRegisterer)

	// Initialize adapters
	eventBus, err := newEventBus(cfg, redisClient, logger)
	if err != nil {
		logger.Fatal("failed to create event bus", zap.Error(err))
	}

	snapshotStore := newSnapshotStore(cfg, redisClient, logger)

	valuesFetcher, err := newFetcher(cfg, redisClient, metricsCollector, logger)
	if err != nil {
		logger.Fatal("failed to create values fetcher", zap.Error(err))
	}

	// Initialize application components
	workerPool := workers.NewPool(
		cfg.Workers.PoolSize,
		cfg.Workers.QueueSize,
		metricsCollector,
		logger,
		cfg.Workers.HealthCheckInterval,
	)

	if err := workerPool.Start(); err != nil {
		logger.Fatal("failed to start worker pool", zap.Error(err))
	}

	sessionMgr := orchestrator.NewManager(
		eventBus,
		snapshotStore,
		metricsCollector,
		resolvers.NewSet(valuesFetcher, logger),
		workerPool,
		logger,
		cfg.Sessions.IdleTimeout,
		cfg.Sessions.SweepInterval,
	)
	sessionMgr.Start()

	// Initialize API servers
	httpServer := http.NewServer(&http.Config{
		Port:     cfg.HTTPPort,
		Sessions: sessionMgr,
		Health:   workerPool.Health(),
		Logger:   logger,
	})

	wsHandler := websocket.NewHandler(sessionMgr, eventBus, logger)
	httpServer.SetupWebSocket(wsHandler)

	grpcServer, err := grpc.NewServer(&grpc.Config{
		Port:   cfg.GRPCPort,
		Logger: logger,
	})
	if err != nil {
		logger.Fatal("failed to create gRPC server", zap.Error(err))
	}

	// Start servers
	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	go func() {
		if err := grpcServer.Start(); err != nil {
			logger.Fatal("gRPC server failed", zap.Error(err))
		}
	}()

	logger.Info("varflow started",
		zap.Int("http_port", cfg.HTTPPort),
		zap.Int("grpc_port", cfg.GRPCPort),
		zap.Int("worker_pool_size", cfg.Workers.PoolSize),
		zap.String("events_backend", cfg.Backends.Events),
		zap.String("snapshot_store", cfg.Backends.SnapshotStore),
		zap.String("values_cache", cfg.Backends.ValuesCache))

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info("received shutdown signal")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.ShutdownTimeout)
	defer cancel()

	if err := grpcServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("gRPC server shutdown error", zap.Error(err))
	}

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	if err := sessionMgr.Shutdown(shutdownCtx); err != nil {
		logger.Error("session manager shutdown error", zap.Error(err))
	}

	if err := workerPool.Shutdown(shutdownCtx); err != nil {
		logger.Error("worker pool shutdown error", zap.Error(err))
	}

	if err := eventBus.Close(); err != nil {
		logger.Error("event bus close error", zap.Error(err))
	}

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Error("Redis close error", zap.Error(err))
		}
	}

	logger.Info("varflow shut down complete")
}

func newEventBus(cfg *config.Config, client *goredis.Client, logger *zap.Logger) (ports.EventBus, error) {
	if cfg.Backends.Events != config.BackendRedis {
		return memoryevents.NewInMemoryEventBus(logger), nil
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	group := cfg.Backends.ConsumerGroup
	if group == "" {
		group = "varflow-" + hostname
	}

	return redisevents.NewStreamsEventBus(
		client,
		group,
		fmt.Sprintf("%s-%d", hostname, os.Getpid()),
		cfg.Backends.StreamMaxLen,
		logger,
	)
}

func newSnapshotStore(cfg *config.Config, client *goredis.Client, logger *zap.Logger) ports.SnapshotStore {
	if cfg.Backends.SnapshotStore == config.BackendRedis {
		return redisstorage.NewSnapshotStore(client, cfg.Sessions.SnapshotTTL, logger)
	}
	return memorystorage.NewInMemorySnapshotStore(cfg.Sessions.SnapshotTTL)
}

func newFetcher(cfg *config.Config, client *goredis.Client, m ports.MetricsCollector, logger *zap.Logger) (ports.FieldValuesFetcher, error) {
	api, err := httpfetcher.NewClient(httpfetcher.Config{
		BaseURL:   cfg.Values.URL,
		Org:       cfg.Values.Org,
		Timeout:   cfg.Values.Timeout,
		RateLimit: cfg.Values.RateLimit,
		Burst:     cfg.Values.Burst,
	}, m, logger)
	if err != nil {
		return nil, err
	}

	switch cfg.Backends.ValuesCache {
	case config.BackendRedis:
		return fetcher.NewCaching(api, rediscache.NewValuesCache(client, cfg.Values.CacheTTL, logger), m, logger), nil
	case config.BackendMemory:
		return fetcher.NewCaching(api, memorycache.NewInMemoryValuesCache(cfg.Values.CacheTTL), m, logger), nil
	default:
		return api, nil
	}
}

// initLogger initializes the logger based on log level
func initLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(zapLevel)
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zapCfg.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}

	return logger
}
