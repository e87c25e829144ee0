package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/subrelay/pkg/config"
	"github.com/dmitrymomot/subrelay/pkg/environment"
	"github.com/dmitrymomot/subrelay/pkg/mongo"
	"github.com/dmitrymomot/subrelay/pkg/pg"
	"github.com/dmitrymomot/subrelay/pkg/ratelimiter"
	"github.com/dmitrymomot/subrelay/pkg/redis"
	"github.com/dmitrymomot/subrelay/svc/subscription"
	"github.com/dmitrymomot/subrelay/svc/subscription/mongostore"
	"github.com/dmitrymomot/subrelay/svc/subscription/pgstore"
	"github.com/dmitrymomot/subrelay/svc/subscription/redisdedup"
)

func openStore(ctx context.Context, cfg appConfig, log *slog.Logger, deps *dependencies) (subscription.Store, error) {
	switch strings.ToLower(cfg.StoreDriver) {
	case "mongo", "mongodb":
		var mcfg mongo.Config
		if err := config.Load(&mcfg); err != nil {
			return nil, err
		}
		db, err := mongo.ConnectDatabase(ctx, mcfg)
		if err != nil {
			return nil, err
		}
		deps.add("mongodb", mongo.Healthcheck(db.Client()), db.Client().Disconnect)
		return mongostore.New(ctx, db)

	case "postgres", "pg":
		var pcfg pg.Config
		if err := config.Load(&pcfg); err != nil {
			return nil, err
		}
		pool, err := pg.Connect(ctx, pcfg)
		if err != nil {
			return nil, err
		}
		deps.add("postgres", pg.Healthcheck(pool), func(context.Context) error {
			pool.Close()
			return nil
		})
		if err := pgstore.Migrate(ctx, pool, pcfg, log); err != nil {
			return nil, err
		}
		return pgstore.New(pool), nil

	case "memory":
		if environment.Parse(cfg.Env).IsProduction() {
			return nil, ErrMemoryStoreInProduction
		}
		log.Warn("using in-memory subscription store, state is lost on restart")
		return subscription.NewMemoryStore(), nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStoreDriver, cfg.StoreDriver)
	}
}

func openDeduplicator(ctx context.Context, cfg appConfig, deps *dependencies) (subscription.Deduplicator, error) {
	switch strings.ToLower(cfg.EventDedup) {
	case "", "none", "off":
		return nil, nil

	case "memory":
		return subscription.NewMemoryDeduplicator(cfg.EventDedupTTL, cfg.EventDedupCapacity), nil

	case "redis":
		client, err := deps.redisClient(ctx)
		if err != nil {
			return nil, err
		}
		return redisdedup.New(client, cfg.EventDedupTTL), nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDedupDriver, cfg.EventDedup)
	}
}

// openRateLimiter returns the checkout limiter, or nil when disabled.
func openRateLimiter(ctx context.Context, cfg appConfig, deps *dependencies) (ratelimiter.Limiter, error) {
	var store ratelimiter.Store
	switch strings.ToLower(cfg.RateLimit) {
	case "", "none", "off":
		return nil, nil

	case "memory":
		ms := ratelimiter.NewMemoryStore()
		deps.add("ratelimiter", nil, func(context.Context) error { return ms.Close() })
		store = ms

	case "redis":
		client, err := deps.redisClient(ctx)
		if err != nil {
			return nil, err
		}
		store = ratelimiter.NewRedisStore(client, ratelimiter.WithKeyPrefix(cfg.Name+":ratelimit:"))

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownRateLimitDriver, cfg.RateLimit)
	}

	var rlcfg ratelimiter.Config
	if err := config.Load(&rlcfg); err != nil {
		return nil, err
	}
	return ratelimiter.NewBucket(store, rlcfg)
}

// redisClient connects on first use so dedup and rate limiting share one
// client.
func (d *dependencies) redisClient(ctx context.Context) (*goredis.Client, error) {
	if d.redis != nil {
		return d.redis, nil
	}
	var rcfg redis.Config
	if err := config.Load(&rcfg); err != nil {
		return nil, err
	}
	client, err := redis.Connect(ctx, rcfg)
	if err != nil {
		return nil, err
	}
	d.add("redis", redis.Healthcheck(client), func(context.Context) error {
		return client.Close()
	})
	d.redis = client
	return client, nil
}
