package subscription

import (
	"context"
	"time"

	"github.com/dmitrymomot/subrelay/pkg/cache"
)

// Deduplicator remembers processed provider deliveries.
// Reconciliation is idempotent without it; it only saves store round trips
// on re-delivery.
type Deduplicator interface {
	// Seen reports whether key was already processed.
	Seen(ctx context.Context, key string) (bool, error)
	// Remember marks key as processed.
	Remember(ctx context.Context, key string) error
}

type noopDeduplicator struct{}

func (noopDeduplicator) Seen(context.Context, string) (bool, error) { return false, nil }
func (noopDeduplicator) Remember(context.Context, string) error     { return nil }

// DefaultDedupCapacity bounds MemoryDeduplicator when no capacity is given.
const DefaultDedupCapacity = 100_000

// MemoryDeduplicator keeps processed keys in a bounded LRU for a fixed TTL.
type MemoryDeduplicator struct {
	ttl  time.Duration
	keys *cache.LRU[string, struct{}]
}

// NewMemoryDeduplicator returns a MemoryDeduplicator expiring keys after ttl
// and holding at most capacity keys.
func NewMemoryDeduplicator(ttl time.Duration, capacity int) *MemoryDeduplicator {
	if capacity <= 0 {
		capacity = DefaultDedupCapacity
	}
	return &MemoryDeduplicator{
		ttl:  ttl,
		keys: cache.New[string, struct{}](capacity),
	}
}

func (d *MemoryDeduplicator) Seen(_ context.Context, key string) (bool, error) {
	_, ok := d.keys.Get(key)
	return ok, nil
}

func (d *MemoryDeduplicator) Remember(_ context.Context, key string) error {
	d.keys.Put(key, struct{}{}, d.ttl)
	return nil
}
