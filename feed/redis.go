package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const redisChannelPrefix = "tax_sessions:changed:"

// RedisNotifier carries change signals over Redis pub/sub so every API
// instance sees writes made by the others.
type RedisNotifier struct {
	inner *redis.Client
	log   *logrus.Entry
}

// NewRedisNotifier connects and pings Redis.
func NewRedisNotifier(addr, password string, db int, log *logrus.Entry) (*RedisNotifier, error) {
	if addr == "" {
		return nil, errors.New("redis address required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to reach redis: %w", err)
	}
	return &RedisNotifier{inner: client, log: log}, nil
}

func (n *RedisNotifier) Publish(ctx context.Context, userID string) error {
	return n.inner.Publish(ctx, redisChannelPrefix+userID, "changed").Err()
}

func (n *RedisNotifier) Subscribe(ctx context.Context, userID string) (<-chan struct{}, func(), error) {
	pubsub := n.inner.Subscribe(ctx, redisChannelPrefix+userID)
	// Wait for the subscription confirmation so no publish is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	out := make(chan struct{}, 1)
	done := make(chan struct{})
	msgs := pubsub.Channel()

	go func() {
		for {
			select {
			case <-done:
				return
			case _, ok := <-msgs:
				if !ok {
					return
				}
				signal(out)
			}
		}
	}()

	var once sync.Once
	release := func() {
		once.Do(func() {
			close(done)
			if err := pubsub.Close(); err != nil {
				n.log.Warn("Failed to close redis subscription: ", err)
			}
		})
	}
	return out, release, nil
}

func (n *RedisNotifier) Close() error {
	return n.inner.Close()
}
