package crosstab

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"quorum/pkg/platform/sentinel"
)

// notifyPrefix namespaces the pub/sub channel that carries write
// notifications for a key.
const notifyPrefix = "crosstab:notify:"

// keyTTL bounds how long an orphaned signal key can linger if the writer
// died between its write and its delayed delete.
const keyTTL = time.Minute

// RedisStore backs the cross-context channel with a shared Redis instance.
// Writes publish the new value on a per-key pub/sub channel so sibling
// processes observe the change without polling.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, key, value, keyTTL).Err(); err != nil {
		return err
	}
	return s.client.Publish(ctx, notifyPrefix+key, value).Err()
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	v, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", sentinel.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return v, nil
}

func (s *RedisStore) Remove(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

// Watch subscribes to the key's notification channel and pumps values into fn
// until cancelled. The pump goroutine owns the subscription and exits when
// the subscription closes.
func (s *RedisStore) Watch(ctx context.Context, key string, fn func(string)) (func(), error) {
	sub := s.client.Subscribe(ctx, notifyPrefix+key)
	// Force the subscription to be established before returning so a
	// broadcast issued right after Watch is not missed.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}

	go func() {
		for msg := range sub.Channel() {
			fn(msg.Payload)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { _ = sub.Close() })
	}, nil
}
