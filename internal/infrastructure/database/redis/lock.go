package redis

import (
	"context"
	stderrors "errors"
	"sort"
	"time"

	"github.com/bsm/redislock"

	"github.com/turtacn/TransitLedger/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/TransitLedger/pkg/errors"
)

// ErrLockNotAcquired is returned when another holder keeps the lock past
// every retry.
var ErrLockNotAcquired = errors.New(errors.ErrCodeLockNotAcquired, "ressource verrouillée par une autre opération, réessayez")

type LockOption func(*lockConfig)

func WithRetryDelay(delay time.Duration) LockOption {
	return func(c *lockConfig) { c.retryDelay = delay }
}

func WithRetryCount(count int) LockOption {
	return func(c *lockConfig) { c.retryCount = count }
}

type lockConfig struct {
	retryDelay time.Duration
	retryCount int
}

// Locker hands out exclusive locks on named resources.
type Locker struct {
	client *Client
	locker *redislock.Client
	config lockConfig
	log    logging.Logger
}

func NewLocker(client *Client, log logging.Logger, opts ...LockOption) *Locker {
	cfg := lockConfig{
		retryDelay: 100 * time.Millisecond,
		retryCount: 30,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Locker{
		client: client,
		locker: redislock.New(client.GetUnderlyingClient()),
		config: cfg,
		log:    log,
	}
}

// Acquire locks every key for ttl. Keys are taken in sorted order so two
// callers asking for overlapping sets cannot deadlock. On failure, locks
// already held are released. The returned func releases all of them.
func (l *Locker) Acquire(ctx context.Context, ttl time.Duration, keys ...string) (func(context.Context) error, error) {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)

	opts := &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(l.config.retryDelay), l.config.retryCount),
	}

	held := make([]*redislock.Lock, 0, len(sorted))
	release := func(ctx context.Context) error {
		var firstErr error
		for i := len(held) - 1; i >= 0; i-- {
			if err := held[i].Release(ctx); err != nil && !stderrors.Is(err, redislock.ErrLockNotHeld) && firstErr == nil {
				firstErr = errors.Wrap(err, errors.ErrCodeCacheError, "failed to release lock")
			}
		}
		return firstErr
	}

	for i, key := range sorted {
		if i > 0 && key == sorted[i-1] {
			continue
		}
		lock, err := l.locker.Obtain(ctx, l.client.Key("lock", key), ttl, opts)
		if err != nil {
			_ = release(context.Background())
			if stderrors.Is(err, redislock.ErrNotObtained) {
				l.log.Warn("lock not obtained", logging.String("key", key))
				return nil, ErrLockNotAcquired.WithDetail("key=" + key)
			}
			return nil, errors.Wrap(err, errors.ErrCodeCacheError, "failed to obtain lock")
		}
		held = append(held, lock)
	}
	return release, nil
}
