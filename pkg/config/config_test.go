package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 30*time.Minute, cfg.Tracker.Window)
	assert.Equal(t, 50.0, cfg.Tracker.MajorityThreshold)
	assert.Equal(t, 19.0, cfg.Tracker.SignificantChange)
	assert.Equal(t, 1.0, cfg.Tracker.OfflineThreshold)
	assert.Equal(t, 3, cfg.Tracker.BurstCount)
	assert.Equal(t, 10*time.Second, cfg.Comparator.StaleTolerance)
	assert.Equal(t, 10.0, cfg.Comparator.RTTTolerance)
	assert.Equal(t, 4, cfg.Engine.ComparatorShards)
}

func TestValidate_InvalidValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "empty server address", mutate: func(c *Config) { c.Server.Address = "" }},
		{name: "bad stream url", mutate: func(c *Config) { c.Stream.URL = "ftp://atlas" }},
		{name: "pong not after ping", mutate: func(c *Config) { c.Stream.PongTimeout = c.Stream.PingInterval }},
		{name: "reconnect max below initial", mutate: func(c *Config) { c.Stream.ReconnectMax = time.Millisecond }},
		{name: "bad stream measurement", mutate: func(c *Config) { c.Stream.Measurements = []int{0} }},
		{name: "bad atlas url", mutate: func(c *Config) { c.Atlas.BaseURL = "" }},
		{name: "poller without measurements", mutate: func(c *Config) { c.Poller.Enabled = true }},
		{name: "poller bad probe", mutate: func(c *Config) {
			c.Poller.Enabled = true
			c.Poller.Measurements = []int{1}
			c.Poller.ProbeIDs = []int{-1}
		}},
		{name: "poller leader lock ttl", mutate: func(c *Config) {
			c.Poller.Enabled = true
			c.Poller.Measurements = []int{1}
			c.Poller.LeaderLock = true
			c.Poller.LeaderLockTTL = 0
		}},
		{name: "zero window", mutate: func(c *Config) { c.Tracker.Window = 0 }},
		{name: "majority above 100", mutate: func(c *Config) { c.Tracker.MajorityThreshold = 101 }},
		{name: "zero burst", mutate: func(c *Config) { c.Tracker.BurstCount = 0 }},
		{name: "zero default interval", mutate: func(c *Config) { c.Comparator.DefaultInterval = 0 }},
		{name: "zero shards", mutate: func(c *Config) { c.Engine.ComparatorShards = 0 }},
		{name: "zero queue", mutate: func(c *Config) { c.Engine.QueueSize = 0 }},
		{name: "bad redis channel", mutate: func(c *Config) {
			c.Sinks.Redis.Enabled = true
			c.Sinks.Redis.Channel = "alerts channel"
		}},
		{name: "redis without address", mutate: func(c *Config) {
			c.Sinks.Redis.Enabled = true
			c.Redis.Address = ""
		}},
		{name: "unknown log level", mutate: func(c *Config) { c.Logging.Level = "verbose" }},
		{name: "unknown log format", mutate: func(c *Config) { c.Logging.Format = "xml" }},
		{name: "tracing sample rate", mutate: func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.SampleRate = 2
		}},
		{name: "rate limit rps", mutate: func(c *Config) {
			c.RateLimiting.Enabled = true
			c.RateLimiting.HTTP.RequestsPerSecond = 0
		}},
		{name: "rate limit ws max concurrent", mutate: func(c *Config) {
			c.RateLimiting.Enabled = true
			c.RateLimiting.WebSocket.MaxConcurrent = -1
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidate_DisabledSectionsIgnoreValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Stream.Enabled = false
	cfg.Stream.URL = ""
	cfg.RateLimiting.HTTP.RequestsPerSecond = 0
	cfg.Sinks.Redis.Channel = ""

	assert.NoError(t, cfg.Validate())
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Address)
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  address: ":9000"
tracker:
  window: 10m
comparator:
  rtt_tolerance_ms: -10
poller:
  enabled: true
  interval: 1m
  measurements: [5001]
`), 0o600))

	t.Setenv("PROBEWATCH_LOG_LEVEL", "debug")
	t.Setenv("PROBEWATCH_MEASUREMENTS", "1001, 1002")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Address)
	assert.Equal(t, 10*time.Minute, cfg.Tracker.Window)
	assert.Equal(t, -10.0, cfg.Comparator.RTTTolerance)
	assert.Equal(t, time.Minute, cfg.Poller.Interval)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, []int{1001, 1002}, cfg.Stream.Measurements)
	assert.Equal(t, []int{1001, 1002}, cfg.Poller.Measurements)
	assert.Equal(t, 3, cfg.Tracker.BurstCount, "unset keys keep defaults")
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	badYAML := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(badYAML, []byte("server: [unclosed"), 0o600))
	_, err := Load(badYAML)
	assert.Error(t, err)

	invalid := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("engine:\n  queue_size: 0\n"), 0o600))
	_, err = Load(invalid)
	assert.ErrorContains(t, err, "engine.queue_size")

	t.Setenv("PROBEWATCH_MEASUREMENTS", "12,abc")
	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.ErrorContains(t, err, "PROBEWATCH_MEASUREMENTS")
}
