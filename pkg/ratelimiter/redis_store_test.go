package ratelimiter_test

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/subrelay/pkg/ratelimiter"
	"github.com/dmitrymomot/subrelay/pkg/redis"
)

func TestRedisStore(t *testing.T) {
	url := os.Getenv("REDIS_TEST_URL")
	if url == "" {
		t.Skip("REDIS_TEST_URL is not set")
	}

	ctx := context.Background()
	client, err := redis.Connect(ctx, redis.Config{
		ConnectionURL:  url,
		RetryAttempts:  1,
		ConnectTimeout: 5 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	store := ratelimiter.NewRedisStore(client, ratelimiter.WithKeyPrefix("subrelay:test:ratelimit:"))
	b, err := ratelimiter.NewBucket(store, ratelimiter.Config{Capacity: 2, RefillRate: 1, RefillInterval: time.Hour})
	require.NoError(t, err)

	key := "ip-" + strconv.FormatInt(time.Now().UnixNano(), 10)
	t.Cleanup(func() { _ = b.Reset(context.Background(), key) })

	for _, want := range []int{1, 0, -1, -1} {
		res, err := b.Allow(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, want, res.Remaining)
		assert.Equal(t, 2, res.Limit)
	}

	require.NoError(t, b.Reset(ctx, key))
	res, err := b.Allow(ctx, key)
	require.NoError(t, err)
	assert.True(t, res.Allowed())
}
