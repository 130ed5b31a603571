package sink

import (
	"probewatch/internal/core/ports"
	"probewatch/internal/infrastructure/reliability"
	"probewatch/pkg/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Set is the assembled alert pipeline: dedupe -> fanout -> {log, redis, websocket}.
type Set struct {
	// Sink is the entry point handed to the engine.
	Sink ports.AlertSink
	// Hub is nil when the websocket sink is disabled.
	Hub *Hub
	// Redis is nil when disabled or when Redis was unreachable at startup.
	Redis *RedisPublisher

	redisClient *redis.Client
	dedupe      *DedupeSink
}

// Build creates the sinks enabled in cfg. An unreachable Redis is logged and
// skipped rather than failing startup.
func Build(cfg *config.Config, failures FailureRecorder, logger *zap.SugaredLogger) *Set {
	set := &Set{}
	var sinks []ports.AlertSink

	if cfg.Sinks.Log.Enabled {
		sinks = append(sinks, NewLogSink(logger.Named("alerts")))
	}

	if cfg.Sinks.Redis.Enabled {
		client, err := NewRedisClient(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.PoolSize, logger)
		if err != nil {
			logger.Warnw("failed to connect to Redis, alerts will not be published", "error", err)
		} else {
			set.redisClient = client
			set.Redis = NewRedisPublisher(client, cfg.Sinks.Redis.Channel, cfg.Sinks.Redis.DedupeTTL, logger)
			sinks = append(sinks, reliability.NewSinkWrapper(
				set.Redis,
				cfg.Reliability.Retry,
				cfg.Reliability.CircuitBreaker,
				logger,
			))
			logger.Infow("publishing alerts to Redis", "channel", cfg.Sinks.Redis.Channel)
		}
	}

	if cfg.Sinks.WebSocket.Enabled {
		set.Hub = NewHub(HubConfig{
			BufferSize:   cfg.Sinks.WebSocket.BufferSize,
			PingInterval: cfg.Sinks.WebSocket.PingInterval,
			WriteTimeout: cfg.Sinks.WebSocket.WriteTimeout,
		}, logger)
		sinks = append(sinks, set.Hub)
	}

	var out ports.AlertSink = NewMulti(failures, logger, sinks...)
	if cfg.Sinks.Dedupe.Enabled {
		set.dedupe = NewDedupeSink(out, cfg.Sinks.Dedupe.TTL)
		out = set.dedupe
	}
	set.Sink = out
	return set
}

// RedisClient returns the shared Redis client, or nil when Redis is not in use.
func (s *Set) RedisClient() redis.UniversalClient {
	if s.redisClient == nil {
		return nil
	}
	return s.redisClient
}

// Close releases the sink resources.
func (s *Set) Close() error {
	if s.dedupe != nil {
		s.dedupe.Close()
	}
	if s.Hub != nil {
		s.Hub.Close()
	}
	if s.redisClient != nil {
		return s.redisClient.Close()
	}
	return nil
}
