package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"probewatch/pkg/circuitbreaker"
	"probewatch/pkg/retry"
	"probewatch/pkg/tracing"
	"probewatch/pkg/validation"

	"gopkg.in/yaml.v2"
)

const envPrefix = "PROBEWATCH_"

type Config struct {
	Server struct {
		Address         string        `yaml:"address"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	// Stream is the Atlas websocket feed of probe status events and results.
	Stream struct {
		Enabled             bool          `yaml:"enabled"`
		URL                 string        `yaml:"url"`
		Measurements        []int         `yaml:"measurements"`
		PingInterval        time.Duration `yaml:"ping_interval"`
		PongTimeout         time.Duration `yaml:"pong_timeout"`
		WriteTimeout        time.Duration `yaml:"write_timeout"`
		ReconnectInitial    time.Duration `yaml:"reconnect_initial"`
		ReconnectMax        time.Duration `yaml:"reconnect_max"`
		MaxMessageSizeBytes int64         `yaml:"max_message_size_bytes"`
	} `yaml:"stream"`

	Atlas struct {
		BaseURL               string        `yaml:"base_url"`
		APIKey                string        `yaml:"api_key"`
		UserAgent             string        `yaml:"user_agent"`
		Timeout               time.Duration `yaml:"timeout"`
		IntervalCacheTTL      time.Duration `yaml:"interval_cache_ttl"`
		InventoryRetryInitial time.Duration `yaml:"inventory_retry_initial"`
		InventoryRetryMax     time.Duration `yaml:"inventory_retry_max"`
	} `yaml:"atlas"`

	// Poller fetches the latest results of measurements over REST.
	Poller struct {
		Enabled      bool          `yaml:"enabled"`
		Interval     time.Duration `yaml:"interval"`
		Measurements []int         `yaml:"measurements"`
		ProbeIDs     []int         `yaml:"probe_ids"`

		// LeaderLock lets only one instance sharing Redis poll at a time.
		LeaderLock    bool          `yaml:"leader_lock"`
		LeaderLockTTL time.Duration `yaml:"leader_lock_ttl"`
	} `yaml:"poller"`

	Tracker struct {
		Window            time.Duration `yaml:"window"`
		MajorityThreshold float64       `yaml:"majority_threshold"`
		SignificantChange float64       `yaml:"significant_change"`
		OfflineThreshold  float64       `yaml:"offline_threshold"`
		BurstCount        int           `yaml:"burst_count"`
	} `yaml:"tracker"`

	Comparator struct {
		DefaultInterval time.Duration `yaml:"default_interval"`
		StaleTolerance  time.Duration `yaml:"stale_tolerance"`
		RTTTolerance    float64       `yaml:"rtt_tolerance_ms"`
	} `yaml:"comparator"`

	Engine struct {
		ComparatorShards int           `yaml:"comparator_shards"`
		QueueSize        int           `yaml:"queue_size"`
		DispatchTimeout  time.Duration `yaml:"dispatch_timeout"`
	} `yaml:"engine"`

	Sinks struct {
		Log struct {
			Enabled bool `yaml:"enabled"`
		} `yaml:"log"`

		Dedupe struct {
			Enabled bool          `yaml:"enabled"`
			TTL     time.Duration `yaml:"ttl"`
		} `yaml:"dedupe"`

		Redis struct {
			Enabled   bool          `yaml:"enabled"`
			Channel   string        `yaml:"channel"`
			DedupeTTL time.Duration `yaml:"dedupe_ttl"`
		} `yaml:"redis"`

		WebSocket struct {
			Enabled      bool          `yaml:"enabled"`
			BufferSize   int           `yaml:"buffer_size"`
			PingInterval time.Duration `yaml:"ping_interval"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
		} `yaml:"websocket"`
	} `yaml:"sinks"`

	Redis struct {
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size"`
	} `yaml:"redis"`

	Monitoring struct {
		PrometheusEnabled bool   `yaml:"prometheus_enabled"`
		MetricsPath       string `yaml:"metrics_path"`
	} `yaml:"monitoring"`

	Logging struct {
		Level      string `yaml:"level"`
		Format     string `yaml:"format"`
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
		Compress   bool   `yaml:"compress"`
	} `yaml:"logging"`

	Tracing tracing.Config `yaml:"tracing"`

	RateLimiting struct {
		Enabled bool `yaml:"enabled"`

		HTTP struct {
			RequestsPerSecond float64 `yaml:"requests_per_second"`
			Burst             int     `yaml:"burst"`
			MaxConcurrent     int     `yaml:"max_concurrent"`
		} `yaml:"http"`

		WebSocket struct {
			ConnectionsPerMinute int `yaml:"connections_per_minute"`
			MaxConcurrent        int `yaml:"max_concurrent_connections"`
		} `yaml:"websocket"`
	} `yaml:"rate_limiting"`

	Reliability struct {
		Retry          retry.Config          `yaml:"retry"`
		CircuitBreaker circuitbreaker.Config `yaml:"circuit_breaker"`
	} `yaml:"reliability"`
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	// Server
	if c.Server.Address == "" {
		return fmt.Errorf("server.address must not be empty")
	}
	if c.Server.ReadTimeout <= 0 || c.Server.WriteTimeout <= 0 || c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server timeouts must be > 0")
	}

	// Stream
	if c.Stream.Enabled {
		if err := validation.ValidateURL(c.Stream.URL); err != nil {
			return fmt.Errorf("stream.url: %w", err)
		}
		if c.Stream.PingInterval <= 0 {
			return fmt.Errorf("stream.ping_interval must be > 0")
		}
		if c.Stream.PongTimeout <= c.Stream.PingInterval {
			return fmt.Errorf("stream.pong_timeout must be > stream.ping_interval")
		}
		if c.Stream.ReconnectInitial <= 0 || c.Stream.ReconnectMax < c.Stream.ReconnectInitial {
			return fmt.Errorf("stream.reconnect_initial must be > 0 and <= reconnect_max")
		}
	}
	for _, id := range c.Stream.Measurements {
		if err := validation.ValidateMeasurementID(id); err != nil {
			return fmt.Errorf("stream.measurements: %w", err)
		}
	}

	// Atlas
	if err := validation.ValidateURL(c.Atlas.BaseURL); err != nil {
		return fmt.Errorf("atlas.base_url: %w", err)
	}
	if c.Atlas.Timeout <= 0 {
		return fmt.Errorf("atlas.timeout must be > 0")
	}
	if c.Atlas.InventoryRetryInitial <= 0 || c.Atlas.InventoryRetryMax < c.Atlas.InventoryRetryInitial {
		return fmt.Errorf("atlas.inventory_retry_initial must be > 0 and <= inventory_retry_max")
	}

	// Poller
	if c.Poller.Enabled {
		if c.Poller.Interval <= 0 {
			return fmt.Errorf("poller.interval must be > 0")
		}
		if len(c.Poller.Measurements) == 0 {
			return fmt.Errorf("poller.measurements must not be empty when poller.enabled=true")
		}
		for _, id := range c.Poller.Measurements {
			if err := validation.ValidateMeasurementID(id); err != nil {
				return fmt.Errorf("poller.measurements: %w", err)
			}
		}
		for _, id := range c.Poller.ProbeIDs {
			if err := validation.ValidateProbeID(id); err != nil {
				return fmt.Errorf("poller.probe_ids: %w", err)
			}
		}
		if c.Poller.LeaderLock && c.Poller.LeaderLockTTL < time.Second {
			return fmt.Errorf("poller.leader_lock_ttl must be at least 1s")
		}
	}

	// Tracker
	if c.Tracker.Window <= 0 {
		return fmt.Errorf("tracker.window must be > 0")
	}
	if c.Tracker.MajorityThreshold <= 0 || c.Tracker.MajorityThreshold > 100 {
		return fmt.Errorf("tracker.majority_threshold must be in (0, 100]")
	}
	if c.Tracker.SignificantChange <= 0 || c.Tracker.SignificantChange > 100 {
		return fmt.Errorf("tracker.significant_change must be in (0, 100]")
	}
	if c.Tracker.OfflineThreshold < 0 || c.Tracker.OfflineThreshold > 100 {
		return fmt.Errorf("tracker.offline_threshold must be in [0, 100]")
	}
	if c.Tracker.BurstCount <= 0 {
		return fmt.Errorf("tracker.burst_count must be > 0")
	}

	// Comparator
	if c.Comparator.DefaultInterval <= 0 {
		return fmt.Errorf("comparator.default_interval must be > 0")
	}
	if c.Comparator.StaleTolerance < 0 {
		return fmt.Errorf("comparator.stale_tolerance must be >= 0")
	}

	// Engine
	if c.Engine.ComparatorShards <= 0 {
		return fmt.Errorf("engine.comparator_shards must be > 0")
	}
	if c.Engine.QueueSize <= 0 {
		return fmt.Errorf("engine.queue_size must be > 0")
	}
	if c.Engine.DispatchTimeout <= 0 {
		return fmt.Errorf("engine.dispatch_timeout must be > 0")
	}

	// Sinks
	if c.Sinks.Dedupe.Enabled && c.Sinks.Dedupe.TTL <= 0 {
		return fmt.Errorf("sinks.dedupe.ttl must be > 0 when dedupe is enabled")
	}
	if c.Sinks.Redis.Enabled {
		if err := validation.ValidateRedisChannel(c.Sinks.Redis.Channel); err != nil {
			return fmt.Errorf("sinks.redis.channel: %w", err)
		}
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address must not be empty when sinks.redis.enabled=true")
		}
		if c.Redis.PoolSize <= 0 {
			return fmt.Errorf("redis.pool_size must be > 0 when sinks.redis.enabled=true")
		}
	}
	if c.Sinks.WebSocket.Enabled && c.Sinks.WebSocket.BufferSize <= 0 {
		return fmt.Errorf("sinks.websocket.buffer_size must be > 0 when websocket sink is enabled")
	}

	// Logging
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error")
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("logging.format must be json or console")
	}

	// Tracing
	if c.Tracing.Enabled {
		if err := validation.ValidateURL(c.Tracing.JaegerURL); err != nil {
			return fmt.Errorf("tracing.jaeger_url: %w", err)
		}
		if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
			return fmt.Errorf("tracing.sample_rate must be in [0, 1]")
		}
	}

	// Rate limiting
	if c.RateLimiting.Enabled {
		if c.RateLimiting.HTTP.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.http.requests_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.HTTP.Burst <= 0 {
			return fmt.Errorf("rate_limiting.http.burst must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.HTTP.MaxConcurrent < 0 {
			return fmt.Errorf("rate_limiting.http.max_concurrent must be >= 0 when rate limiting is enabled")
		}
		if c.RateLimiting.WebSocket.ConnectionsPerMinute <= 0 {
			return fmt.Errorf("rate_limiting.websocket.connections_per_minute must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.WebSocket.MaxConcurrent < 0 {
			return fmt.Errorf("rate_limiting.websocket.max_concurrent_connections must be >= 0 when rate limiting is enabled")
		}
	}

	// Reliability
	if c.Reliability.Retry.Enabled && c.Reliability.Retry.MaxAttempts < 0 {
		return fmt.Errorf("reliability.retry.max_attempts must be >= 0")
	}
	if c.Reliability.CircuitBreaker.FailureThreshold <= 0 {
		return fmt.Errorf("reliability.circuit_breaker.failure_threshold must be > 0")
	}

	return nil
}

// Load reads configuration from YAML file, applies defaults and env overrides.
// A missing file yields the defaults.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(configPath)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Server.Address = ":8080"
	cfg.Server.ReadTimeout = 15 * time.Second
	cfg.Server.WriteTimeout = 15 * time.Second
	cfg.Server.ShutdownTimeout = 30 * time.Second

	cfg.Stream.Enabled = true
	cfg.Stream.URL = "wss://atlas-stream.ripe.net/stream/?client=probewatch"
	cfg.Stream.PingInterval = 30 * time.Second
	cfg.Stream.PongTimeout = 90 * time.Second
	cfg.Stream.WriteTimeout = 10 * time.Second
	cfg.Stream.ReconnectInitial = time.Second
	cfg.Stream.ReconnectMax = time.Minute
	cfg.Stream.MaxMessageSizeBytes = 1 << 20

	cfg.Atlas.BaseURL = "https://atlas.ripe.net"
	cfg.Atlas.UserAgent = "probewatch"
	cfg.Atlas.Timeout = 60 * time.Second
	cfg.Atlas.IntervalCacheTTL = time.Hour
	cfg.Atlas.InventoryRetryInitial = 5 * time.Second
	cfg.Atlas.InventoryRetryMax = 5 * time.Minute

	cfg.Poller.Enabled = false
	cfg.Poller.Interval = 5 * time.Minute
	cfg.Poller.LeaderLock = false
	cfg.Poller.LeaderLockTTL = 30 * time.Second

	cfg.Tracker.Window = 30 * time.Minute
	cfg.Tracker.MajorityThreshold = 50.0
	cfg.Tracker.SignificantChange = 19.0
	cfg.Tracker.OfflineThreshold = 1.0
	cfg.Tracker.BurstCount = 3

	cfg.Comparator.DefaultInterval = 15 * time.Minute
	cfg.Comparator.StaleTolerance = 10 * time.Second
	cfg.Comparator.RTTTolerance = 10

	cfg.Engine.ComparatorShards = 4
	cfg.Engine.QueueSize = 1024
	cfg.Engine.DispatchTimeout = 5 * time.Second

	cfg.Sinks.Log.Enabled = true
	cfg.Sinks.Dedupe.Enabled = true
	cfg.Sinks.Dedupe.TTL = time.Hour
	cfg.Sinks.Redis.Enabled = false
	cfg.Sinks.Redis.Channel = "probewatch:alerts"
	cfg.Sinks.Redis.DedupeTTL = 24 * time.Hour
	cfg.Sinks.WebSocket.Enabled = true
	cfg.Sinks.WebSocket.BufferSize = 256
	cfg.Sinks.WebSocket.PingInterval = 30 * time.Second
	cfg.Sinks.WebSocket.WriteTimeout = 10 * time.Second

	cfg.Redis.Address = "localhost:6379"
	cfg.Redis.DB = 0
	cfg.Redis.PoolSize = 10

	cfg.Monitoring.PrometheusEnabled = true
	cfg.Monitoring.MetricsPath = "/metrics"

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"
	cfg.Logging.MaxSizeMB = 100
	cfg.Logging.MaxBackups = 5
	cfg.Logging.MaxAgeDays = 14

	cfg.Tracing = tracing.DefaultConfig()

	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.HTTP.RequestsPerSecond = 50
	cfg.RateLimiting.HTTP.Burst = 100
	cfg.RateLimiting.HTTP.MaxConcurrent = 0
	cfg.RateLimiting.WebSocket.ConnectionsPerMinute = 60
	cfg.RateLimiting.WebSocket.MaxConcurrent = 0

	cfg.Reliability.Retry = retry.DefaultConfig()
	cfg.Reliability.CircuitBreaker = circuitbreaker.DefaultConfig()

	return cfg
}

func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv(envPrefix + "SERVER_ADDRESS"); v != "" {
		c.Server.Address = v
	}
	if v := os.Getenv(envPrefix + "LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(envPrefix + "STREAM_URL"); v != "" {
		c.Stream.URL = v
	}
	if v := os.Getenv(envPrefix + "ATLAS_BASE_URL"); v != "" {
		c.Atlas.BaseURL = v
	}
	if v := os.Getenv(envPrefix + "ATLAS_API_KEY"); v != "" {
		c.Atlas.APIKey = v
	}
	if v := os.Getenv(envPrefix + "REDIS_ADDRESS"); v != "" {
		c.Redis.Address = v
	}
	if v := os.Getenv(envPrefix + "REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv(envPrefix + "MEASUREMENTS"); v != "" {
		ids, err := parseIDList(v)
		if err != nil {
			return fmt.Errorf("invalid %sMEASUREMENTS: %w", envPrefix, err)
		}
		c.Stream.Measurements = ids
		c.Poller.Measurements = ids
	}
	return nil
}

func parseIDList(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	ids := make([]int, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("failed to parse id %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
