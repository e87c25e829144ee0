// Package redisdedup remembers processed provider deliveries in Redis so
// re-deliveries are skipped across service instances.
package redisdedup

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "subrelay:event:"

// Deduplicator implements subscription.Deduplicator with expiring keys.
type Deduplicator struct {
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
}

// Option configures a Deduplicator.
type Option func(*Deduplicator)

// WithPrefix overrides the key namespace.
func WithPrefix(prefix string) Option {
	return func(d *Deduplicator) {
		if prefix != "" {
			d.prefix = prefix
		}
	}
}

// New returns a Deduplicator keeping keys for ttl.
func New(client redis.UniversalClient, ttl time.Duration, opts ...Option) *Deduplicator {
	d := &Deduplicator{client: client, ttl: ttl, prefix: defaultPrefix}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Deduplicator) Seen(ctx context.Context, key string) (bool, error) {
	n, err := d.client.Exists(ctx, d.prefix+key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (d *Deduplicator) Remember(ctx context.Context, key string) error {
	return d.client.Set(ctx, d.prefix+key, time.Now().UTC().Format(time.RFC3339), d.ttl).Err()
}
