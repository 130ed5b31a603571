package distributed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrNotHeld = errors.New("lock was not held by this instance")

// Only the holder may delete or extend the key.
var (
	unlockScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		end
		return 0
	`)
	renewScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("pexpire", KEYS[1], ARGV[2])
		end
		return 0
	`)
)

// Lock is a Redis lease held with SET NX PX and renewed at half its TTL.
type Lock struct {
	client redis.UniversalClient
	key    string
	value  string
	ttl    time.Duration

	mu        sync.Mutex
	held      bool
	stopRenew chan struct{}
	lost      chan struct{}
}

// NewLock creates a lock on key. Each Lock carries its own holder identity.
func NewLock(client redis.UniversalClient, key string, ttl time.Duration) *Lock {
	return &Lock{
		client: client,
		key:    key,
		value:  uuid.NewString(),
		ttl:    ttl,
	}
}

// TryLock attempts to acquire the lock without blocking. On success the lease
// is renewed in the background until Unlock or until renewal fails, at which
// point Lost is closed.
func (l *Lock) TryLock(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return true, nil
	}

	acquired, err := l.client.SetNX(ctx, l.key, l.value, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to try lock %s: %w", l.key, err)
	}
	if !acquired {
		return false, nil
	}

	l.held = true
	l.stopRenew = make(chan struct{})
	l.lost = make(chan struct{})
	go l.renewLock(l.stopRenew, l.lost)
	return true, nil
}

// Lost is closed when a held lease could not be renewed. It returns nil
// before the first successful TryLock.
func (l *Lock) Lost() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lost
}

// Unlock releases the lock if this instance still holds it.
func (l *Lock) Unlock(ctx context.Context) error {
	l.mu.Lock()
	if !l.held {
		l.mu.Unlock()
		return ErrNotHeld
	}
	l.held = false
	close(l.stopRenew)
	l.mu.Unlock()

	released, err := unlockScript.Run(ctx, l.client, []string{l.key}, l.value).Int64()
	if err != nil {
		return fmt.Errorf("failed to unlock %s: %w", l.key, err)
	}
	if released == 0 {
		return ErrNotHeld
	}
	return nil
}

func (l *Lock) renewLock(stop <-chan struct{}, lost chan struct{}) {
	ticker := time.NewTicker(l.ttl / 2)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), l.ttl/2)
			renewed, err := renewScript.Run(ctx, l.client, []string{l.key}, l.value, l.ttl.Milliseconds()).Int64()
			cancel()
			if err != nil || renewed == 0 {
				l.mu.Lock()
				if l.lost == lost {
					l.held = false
				}
				l.mu.Unlock()
				close(lost)
				return
			}
		}
	}
}

// IsLocked checks if anyone currently holds the lock
func (l *Lock) IsLocked(ctx context.Context) (bool, error) {
	exists, err := l.client.Exists(ctx, l.key).Result()
	if err != nil {
		return false, err
	}
	return exists > 0, nil
}
