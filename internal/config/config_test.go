package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, 9090, cfg.GRPCPort)
	assert.Equal(t, BackendMemory, cfg.Backends.Events)
	assert.Equal(t, BackendMemory, cfg.Backends.SnapshotStore)
	assert.Equal(t, BackendMemory, cfg.Backends.ValuesCache)
	assert.False(t, cfg.UsesRedis())
	assert.Equal(t, 30*time.Minute, cfg.Sessions.IdleTimeout)
	assert.Equal(t, ":8080", cfg.GetHTTPAddr())
	assert.Equal(t, ":9090", cfg.GetGRPCAddr())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("VARFLOW_HTTP_PORT", "8181")
	t.Setenv("EVENTS_BACKEND", "redis")
	t.Setenv("VALUES_CACHE", "none")
	t.Setenv("VALUES_API_URL", "http://openobserve:5080")
	t.Setenv("VALUES_API_TIMEOUT", "5s")
	t.Setenv("SNAPSHOT_TTL", "10m")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8181, cfg.HTTPPort)
	assert.True(t, cfg.UsesRedis())
	assert.Equal(t, BackendNone, cfg.Backends.ValuesCache)
	assert.Equal(t, "http://openobserve:5080", cfg.Values.URL)
	assert.Equal(t, 5*time.Second, cfg.Values.Timeout)
	assert.Equal(t, 10*time.Minute, cfg.Sessions.SnapshotTTL)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := Load()
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"http port", func(c *Config) { c.HTTPPort = 0 }},
		{"grpc port", func(c *Config) { c.GRPCPort = 70000 }},
		{"events backend", func(c *Config) { c.Backends.Events = "kafka" }},
		{"snapshot store", func(c *Config) { c.Backends.SnapshotStore = "none" }},
		{"values cache", func(c *Config) { c.Backends.ValuesCache = "disk" }},
		{"redis addr", func(c *Config) {
			c.Backends.SnapshotStore = BackendRedis
			c.Redis.Addr = ""
		}},
		{"values url", func(c *Config) { c.Values.URL = "" }},
		{"values org", func(c *Config) { c.Values.Org = "" }},
		{"rate limit", func(c *Config) { c.Values.RateLimit = -1 }},
		{"pool size", func(c *Config) { c.Workers.PoolSize = 0 }},
		{"queue size", func(c *Config) { c.Workers.QueueSize = -1 }},
		{"log level", func(c *Config) { c.LogLevel = "trace" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	t.Run("memory backends need no redis", func(t *testing.T) {
		cfg := valid()
		cfg.Redis.Addr = ""
		assert.NoError(t, cfg.Validate())
	})
}
