package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/subrelay/pkg/config"
	"github.com/dmitrymomot/subrelay/pkg/logger"
	"github.com/dmitrymomot/subrelay/pkg/ratelimiter"
	"github.com/dmitrymomot/subrelay/svc/subscription"
)

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	t.Run("memory in development", func(t *testing.T) {
		var deps dependencies
		store, err := openStore(ctx, appConfig{Env: "development", StoreDriver: "memory"}, logger.Discard(), &deps)
		require.NoError(t, err)
		assert.IsType(t, &subscription.MemoryStore{}, store)
		assert.Empty(t, deps.checks)
	})

	t.Run("memory in production", func(t *testing.T) {
		var deps dependencies
		_, err := openStore(ctx, appConfig{Env: "prod", StoreDriver: "memory"}, logger.Discard(), &deps)
		assert.ErrorIs(t, err, ErrMemoryStoreInProduction)
	})

	t.Run("unknown driver", func(t *testing.T) {
		var deps dependencies
		_, err := openStore(ctx, appConfig{StoreDriver: "sqlite"}, logger.Discard(), &deps)
		assert.ErrorIs(t, err, ErrUnknownStoreDriver)
	})
}

func TestOpenDeduplicator(t *testing.T) {
	ctx := context.Background()
	var deps dependencies

	d, err := openDeduplicator(ctx, appConfig{EventDedup: "none"}, &deps)
	require.NoError(t, err)
	assert.Nil(t, d)

	d, err = openDeduplicator(ctx, appConfig{EventDedup: "memory"}, &deps)
	require.NoError(t, err)
	assert.IsType(t, &subscription.MemoryDeduplicator{}, d)

	_, err = openDeduplicator(ctx, appConfig{EventDedup: "memcached"}, &deps)
	assert.ErrorIs(t, err, ErrUnknownDedupDriver)
}

func TestOpenRateLimiter(t *testing.T) {
	ctx := context.Background()
	var deps dependencies
	t.Cleanup(func() { deps.close(logger.Discard()) })

	l, err := openRateLimiter(ctx, appConfig{RateLimit: "none"}, &deps)
	require.NoError(t, err)
	assert.Nil(t, l)

	l, err = openRateLimiter(ctx, appConfig{RateLimit: "memory"}, &deps)
	require.NoError(t, err)
	assert.IsType(t, &ratelimiter.Bucket{}, l)
	assert.Len(t, deps.closers, 1)

	_, err = openRateLimiter(ctx, appConfig{RateLimit: "leaky"}, &deps)
	assert.ErrorIs(t, err, ErrUnknownRateLimitDriver)
}

func TestLoadProviders(t *testing.T) {
	t.Run("empty list", func(t *testing.T) {
		_, err := loadProviders(" , ", logger.Discard())
		assert.ErrorIs(t, err, ErrNoProviders)
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := loadProviders("stripe,bitcoin", logger.Discard())
		assert.ErrorIs(t, err, subscription.ErrUnknownProvider)
	})

	t.Run("empty credentials", func(t *testing.T) {
		config.Reset()
		t.Cleanup(config.Reset)
		t.Setenv("PAYPAL_CLIENT_ID", "")
		t.Setenv("PAYPAL_CLIENT_SECRET", "")
		t.Setenv("PAYPAL_PLAN_ID", "")

		_, err := loadProviders("paypal", logger.Discard())
		assert.ErrorIs(t, err, subscription.ErrMissingAPIKey)
	})

	t.Run("configured providers", func(t *testing.T) {
		config.Reset()
		t.Cleanup(config.Reset)
		t.Setenv("STRIPE_SECRET_KEY", "sk_test_123")
		t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_123")
		t.Setenv("MP_ACCESS_TOKEN", "APP_USR-123")

		providers, err := loadProviders("mercadopago,stripe", logger.Discard())
		require.NoError(t, err)
		require.Len(t, providers, 2)
		assert.Equal(t, subscription.ProviderMercadoPago, providers[0].Name())
		assert.Equal(t, subscription.ProviderStripe, providers[1].Name())
	})
}

func TestDependencies(t *testing.T) {
	var deps dependencies
	closed := 0
	deps.add("store", func(context.Context) error { return nil }, func(context.Context) error {
		closed++
		return nil
	})
	deps.add("cache", nil, nil)

	assert.Len(t, deps.checks, 1)
	assert.Len(t, deps.hooks, 1)
	deps.close(logger.Discard())
	assert.Equal(t, 1, closed)
}
