package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Backend names accepted by the *_BACKEND and store settings
const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config holds all configuration for the varflow service
type Config struct {
	// Server configuration
	HTTPPort int    `env:"VARFLOW_HTTP_PORT" envDefault:"8080"`
	GRPCPort int    `env:"VARFLOW_GRPC_PORT" envDefault:"9090"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Redis configuration
	Redis RedisConfig

	// Adapter selection
	Backends BackendConfig

	// Values API configuration
	Values ValuesConfig

	// Worker configuration
	Workers WorkerConfig

	// Session lifecycle
	Sessions SessionConfig

	// Timeouts
	Timeouts TimeoutConfig
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASS"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`

	// Connection pool settings
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	MaxRetries   int           `env:"REDIS_MAX_RETRIES" envDefault:"3"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`
}

// BackendConfig selects the adapter behind each port
type BackendConfig struct {
	Events        string `env:"EVENTS_BACKEND" envDefault:"memory"`
	SnapshotStore string `env:"SNAPSHOT_STORE" envDefault:"memory"`
	ValuesCache   string `env:"VALUES_CACHE" envDefault:"memory"`

	// Redis Streams settings. An empty consumer group defaults to one
	// derived from the hostname so every instance sees every event.
	ConsumerGroup string `env:"EVENTS_CONSUMER_GROUP"`
	StreamMaxLen  int64  `env:"EVENTS_STREAM_MAXLEN" envDefault:"10000"`
}

// ValuesConfig holds the values API client configuration
type ValuesConfig struct {
	URL       string        `env:"VALUES_API_URL" envDefault:"http://localhost:5080"`
	Org       string        `env:"VALUES_API_ORG" envDefault:"default"`
	Timeout   time.Duration `env:"VALUES_API_TIMEOUT" envDefault:"30s"`
	RateLimit float64       `env:"VALUES_API_RATE_LIMIT" envDefault:"50"`
	Burst     int           `env:"VALUES_API_BURST" envDefault:"10"`
	CacheTTL  time.Duration `env:"VALUES_CACHE_TTL" envDefault:"30s"`
}

// WorkerConfig holds worker pool configuration
type WorkerConfig struct {
	PoolSize            int           `env:"WORKER_POOL_SIZE" envDefault:"8"`
	QueueSize           int           `env:"WORKER_QUEUE_SIZE" envDefault:"256"`
	HealthCheckInterval time.Duration `env:"WORKER_HEALTH_CHECK_INTERVAL" envDefault:"30s"`
}

// SessionConfig holds session lifecycle configuration
type SessionConfig struct {
	IdleTimeout   time.Duration `env:"SESSION_IDLE_TIMEOUT" envDefault:"30m"`
	SweepInterval time.Duration `env:"SESSION_SWEEP_INTERVAL" envDefault:"1m"`
	SnapshotTTL   time.Duration `env:"SNAPSHOT_TTL" envDefault:"1h"`
}

// TimeoutConfig holds various timeout configurations
type TimeoutConfig struct {
	ShutdownTimeout time.Duration `env:"TIMEOUT_SHUTDOWN" envDefault:"30s"`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server ports
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.GRPCPort < 1 || c.GRPCPort > 65535 {
		return fmt.Errorf("invalid gRPC port: %d", c.GRPCPort)
	}

	// Validate backends
	if err := oneOf("EVENTS_BACKEND", c.Backends.Events, BackendMemory, BackendRedis); err != nil {
		return err
	}
	if err := oneOf("SNAPSHOT_STORE", c.Backends.SnapshotStore, BackendMemory, BackendRedis); err != nil {
		return err
	}
	if err := oneOf("VALUES_CACHE", c.Backends.ValuesCache, BackendNone, BackendMemory, BackendRedis); err != nil {
		return err
	}

	// Redis is only needed when a backend uses it
	if c.UsesRedis() && c.Redis.Addr == "" {
		return fmt.Errorf("redis address is required")
	}

	// Validate values API config
	if c.Values.URL == "" {
		return fmt.Errorf("values API URL is required")
	}
	if c.Values.Org == "" {
		return fmt.Errorf("values API organization is required")
	}
	if c.Values.RateLimit < 0 {
		return fmt.Errorf("values API rate limit must not be negative")
	}

	// Validate worker config
	if c.Workers.PoolSize < 1 {
		return fmt.Errorf("worker pool size must be at least 1")
	}
	if c.Workers.QueueSize < 0 {
		return fmt.Errorf("worker queue size must not be negative")
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}

	return nil
}

// UsesRedis reports whether any backend is Redis
func (c *Config) UsesRedis() bool {
	return c.Backends.Events == BackendRedis ||
		c.Backends.SnapshotStore == BackendRedis ||
		c.Backends.ValuesCache == BackendRedis
}

// GetHTTPAddr returns the HTTP server address
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// GetGRPCAddr returns the gRPC server address
func (c *Config) GetGRPCAddr() string {
	return fmt.Sprintf(":%d", c.GRPCPort)
}

func oneOf(name, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("invalid %s: %q (must be one of %v)", name, value, allowed)
}
