package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/turtacn/TransitLedger/pkg/errors"
)

// CounterStore counts events per key inside a fixed window. It backs login
// throttling.
type CounterStore struct {
	client *Client
}

func NewCounterStore(client *Client) *CounterStore {
	return &CounterStore{client: client}
}

// Increment bumps key and returns the new count. The window starts with the
// first increment and is not extended by later ones.
func (s *CounterStore) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	k := s.client.Key("counter", key)
	n, err := s.client.Incr(ctx, k).Result()
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeCacheError, "failed to increment counter")
	}
	if n == 1 {
		if err := s.client.Expire(ctx, k, window).Err(); err != nil {
			return 0, errors.Wrap(err, errors.ErrCodeCacheError, "failed to set counter window")
		}
	}
	return n, nil
}

// Count returns the current value of key, zero when absent.
func (s *CounterStore) Count(ctx context.Context, key string) (int64, error) {
	n, err := s.client.Get(ctx, s.client.Key("counter", key)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeCacheError, "failed to read counter")
	}
	return n, nil
}

// Reset clears key.
func (s *CounterStore) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.client.Key("counter", key)).Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "failed to reset counter")
	}
	return nil
}
