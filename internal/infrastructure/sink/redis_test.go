package sink

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"probewatch/internal/core/domain"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// redisForTest connects to PROBEWATCH_TEST_REDIS or skips.
func redisForTest(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("PROBEWATCH_TEST_REDIS")
	if addr == "" {
		t.Skip("PROBEWATCH_TEST_REDIS not set")
	}
	client, err := NewRedisClient(addr, "", 0, 4, zap.NewNop().Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRedisPublisher_PublishesOncePerKey(t *testing.T) {
	client := redisForTest(t)
	channel := "probewatch:test:" + uuid.NewString()
	key := "test-" + uuid.NewString()

	first := NewRedisPublisher(client, channel, time.Minute, zap.NewNop().Sugar())
	second := NewRedisPublisher(client, channel, time.Minute, zap.NewNop().Sugar())
	assert.NotEqual(t, first.InstanceID(), second.InstanceID())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	received := make(chan Envelope, 4)
	sub := client.Subscribe(ctx, channel)
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)
	go func() {
		for msg := range sub.Channel() {
			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err == nil {
				received <- env
			}
		}
	}()

	require.NoError(t, first.Dispatch(ctx, offline(key)))
	require.NoError(t, second.Dispatch(ctx, offline(key)))

	select {
	case env := <-received:
		assert.Equal(t, first.InstanceID(), env.InstanceID)
		assert.Equal(t, domain.AlertNetworkOffline, env.Alert.Kind)
	case <-ctx.Done():
		t.Fatal("no alert received")
	}
	select {
	case env := <-received:
		t.Fatalf("duplicate alert published by %s", env.InstanceID)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestRedisPublisher_SubscribeSkipsOwnAlerts(t *testing.T) {
	client := redisForTest(t)
	channel := "probewatch:test:" + uuid.NewString()

	local := NewRedisPublisher(client, channel, 0, zap.NewNop().Sugar())
	remote := NewRedisPublisher(client, channel, 0, zap.NewNop().Sugar())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := make(chan Envelope, 4)
	go local.Subscribe(ctx, func(env Envelope) error {
		got <- env
		return nil
	})
	require.Eventually(t, func() bool {
		n, _ := client.PubSubNumSub(ctx, channel).Result()
		return n[channel] > 0
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, local.Dispatch(ctx, offline("own")))
	require.NoError(t, remote.Dispatch(ctx, offline("remote")))

	env := <-got
	assert.Equal(t, "remote", env.Alert.CorrelationKey)
	assert.NoError(t, local.Ping(ctx))
}
