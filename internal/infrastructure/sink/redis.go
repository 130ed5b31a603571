package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"probewatch/internal/core/domain"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const dedupeKeyPrefix = "probewatch:alert:"

// Envelope is the message published on the alert channel.
type Envelope struct {
	ID         string       `json:"id"`
	InstanceID string       `json:"instance_id"`
	Alert      domain.Alert `json:"alert"`
}

// RedisPublisher publishes alerts on a pub/sub channel. With a dedupe TTL,
// only the first instance to claim a correlation key publishes it.
type RedisPublisher struct {
	client     redis.UniversalClient
	channel    string
	instanceID string
	dedupeTTL  time.Duration
	logger     *zap.SugaredLogger
}

func NewRedisPublisher(client redis.UniversalClient, channel string, dedupeTTL time.Duration, logger *zap.SugaredLogger) *RedisPublisher {
	return &RedisPublisher{
		client:     client,
		channel:    channel,
		instanceID: uuid.NewString(),
		dedupeTTL:  dedupeTTL,
		logger:     logger,
	}
}

// InstanceID identifies this publisher in envelopes.
func (p *RedisPublisher) InstanceID() string { return p.instanceID }

func (p *RedisPublisher) Dispatch(ctx context.Context, alert domain.Alert) error {
	if p.dedupeTTL > 0 && alert.CorrelationKey != "" {
		claimed, err := p.client.SetNX(ctx, dedupeKeyPrefix+alert.CorrelationKey, p.instanceID, p.dedupeTTL).Result()
		if err != nil {
			return fmt.Errorf("failed to claim alert key: %w", err)
		}
		if !claimed {
			p.logger.Debugw("alert already published by another instance", "correlation_key", alert.CorrelationKey)
			return nil
		}
	}

	data, err := json.Marshal(Envelope{
		ID:         uuid.NewString(),
		InstanceID: p.instanceID,
		Alert:      alert,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		if p.dedupeTTL > 0 && alert.CorrelationKey != "" {
			p.client.Del(context.WithoutCancel(ctx), dedupeKeyPrefix+alert.CorrelationKey)
		}
		return fmt.Errorf("failed to publish alert: %w", err)
	}

	p.logger.Debugw("published alert", "kind", alert.Kind, "channel", p.channel)
	return nil
}

func (p *RedisPublisher) Name() string { return "redis" }

// Subscribe delivers alerts published by other instances until ctx is done.
func (p *RedisPublisher) Subscribe(ctx context.Context, handler func(Envelope) error) error {
	pubsub := p.client.Subscribe(ctx, p.channel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("subscription to %s closed", p.channel)
			}
			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				p.logger.Warnw("failed to unmarshal alert envelope", "error", err, "payload", msg.Payload)
				continue
			}
			if env.InstanceID == p.instanceID {
				continue
			}
			if err := handler(env); err != nil {
				p.logger.Warnw("error handling alert envelope", "kind", env.Alert.Kind, "error", err)
			}
		}
	}
}

// Ping checks the connection for readiness probes.
func (p *RedisPublisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// NewRedisClient creates a pooled client and checks the connection.
func NewRedisClient(address, password string, db, poolSize int, logger *zap.SugaredLogger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         address,
		Password:     password,
		DB:           db,
		PoolSize:     poolSize,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Infow("connected to Redis",
		"address", address,
		"db", db,
		"pool_size", poolSize,
	)
	return client, nil
}
