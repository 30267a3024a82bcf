package redis

import (
	"context"
	"time"

	"github.com/turtacn/TransitLedger/pkg/errors"
)

// Deduplicator remembers keys for a period so that repeated work is skipped.
type Deduplicator struct {
	client *Client
}

func NewDeduplicator(client *Client) *Deduplicator {
	return &Deduplicator{client: client}
}

// FirstSeen marks key as seen for ttl and reports whether this call was the
// first one to do so.
func (d *Deduplicator) FirstSeen(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := d.client.SetNX(ctx, d.client.Key("seen", key), time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeCacheError, "failed to record dedupe key")
	}
	return ok, nil
}

// Forget removes key so the next FirstSeen succeeds again.
func (d *Deduplicator) Forget(ctx context.Context, key string) error {
	if err := d.client.Del(ctx, d.client.Key("seen", key)).Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "failed to forget dedupe key")
	}
	return nil
}
