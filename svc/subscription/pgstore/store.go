// Package pgstore persists user subscription documents in PostgreSQL.
package pgstore

import (
	"context"
	"embed"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/subrelay/pkg/pg"
	"github.com/dmitrymomot/subrelay/svc/subscription"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate applies the store schema.
func Migrate(ctx context.Context, pool *pgxpool.Pool, cfg pg.Config, log *slog.Logger) error {
	return pg.Migrate(ctx, pool, migrations, "migrations", cfg, log)
}

// Store implements subscription.Store on two tables: one row per user and
// one correlation row per (user, provider).
type Store struct {
	pool *pgxpool.Pool
}

// New returns a Store over pool. Run Migrate first.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const selectUser = `
SELECT user_id, subscription_active, COALESCE(active_provider, ''), last_event_at, created_at, updated_at
FROM user_subscriptions
WHERE user_id = $1`

const selectCorrelations = `
SELECT provider, COALESCE(correlation_id, ''), COALESCE(customer_id, '')
FROM subscription_correlations
WHERE user_id = $1`

func (s *Store) Get(ctx context.Context, userID string) (*subscription.UserSubscription, error) {
	sub, err := scanUser(s.pool.QueryRow(ctx, selectUser, userID))
	if pg.IsNotFoundError(err) {
		return nil, subscription.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, errors.Join(subscription.ErrStore, err)
	}

	rows, err := s.pool.Query(ctx, selectCorrelations, userID)
	if err != nil {
		return nil, errors.Join(subscription.ErrStore, err)
	}
	defer rows.Close()

	for rows.Next() {
		var provider, correlationID, customerID string
		if err := rows.Scan(&provider, &correlationID, &customerID); err != nil {
			return nil, errors.Join(subscription.ErrStore, err)
		}
		if correlationID != "" {
			sub.CorrelationIDs[subscription.Provider(provider)] = correlationID
		}
		if customerID != "" {
			sub.CustomerIDs[subscription.Provider(provider)] = customerID
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Join(subscription.ErrStore, err)
	}
	return sub, nil
}

const seedUser = `
INSERT INTO user_subscriptions (user_id, subscription_active, created_at, updated_at)
VALUES ($1, FALSE, $2, $2)
ON CONFLICT (user_id) DO UPDATE SET
    subscription_active = FALSE,
    updated_at          = EXCLUDED.updated_at`

func (s *Store) Seed(ctx context.Context, params subscription.SeedParams) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, seedUser, params.UserID, params.At.UTC()); err != nil {
			return err
		}
		return mergeIDs(ctx, tx, params.UserID, params.Provider, params.CorrelationID, params.CustomerID, params.At)
	})
	if err != nil {
		return errors.Join(subscription.ErrStore, err)
	}
	return nil
}

const findByCorrelation = `
SELECT u.user_id, u.subscription_active, COALESCE(u.active_provider, ''), u.last_event_at, u.created_at, u.updated_at
FROM user_subscriptions u
JOIN subscription_correlations c ON c.user_id = u.user_id
WHERE c.provider = $1 AND c.correlation_id = $2`

func (s *Store) FindByCorrelationID(ctx context.Context, p subscription.Provider, id string) ([]subscription.UserSubscription, error) {
	if id == "" {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx, findByCorrelation, string(p), id)
	if err != nil {
		return nil, errors.Join(subscription.ErrStore, err)
	}
	defer rows.Close()

	var out []subscription.UserSubscription
	for rows.Next() {
		sub, err := scanUser(rows)
		if err != nil {
			return nil, errors.Join(subscription.ErrStore, err)
		}
		sub.CorrelationIDs[p] = id
		out = append(out, *sub)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Join(subscription.ErrStore, err)
	}
	return out, nil
}

// The conflict branch only fires when the stored event is not newer, so a
// missing RETURNING row means the change is stale.
const setState = `
INSERT INTO user_subscriptions (user_id, subscription_active, active_provider, last_event_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $5)
ON CONFLICT (user_id) DO UPDATE SET
    subscription_active = EXCLUDED.subscription_active,
    active_provider     = EXCLUDED.active_provider,
    last_event_at       = EXCLUDED.last_event_at,
    updated_at          = EXCLUDED.updated_at
WHERE user_subscriptions.last_event_at IS NULL
   OR user_subscriptions.last_event_at <= EXCLUDED.last_event_at
RETURNING user_id`

func (s *Store) SetState(ctx context.Context, change subscription.StateChange) (bool, error) {
	applied := false
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var id string
		err := tx.QueryRow(ctx, setState,
			change.UserID,
			change.Active,
			string(change.Provider),
			change.EventAt.UTC(),
			change.UpdatedAt.UTC(),
		).Scan(&id)
		if pg.IsNotFoundError(err) {
			return nil
		}
		if err != nil {
			return err
		}
		applied = true
		return mergeIDs(ctx, tx, change.UserID, change.Provider, change.CorrelationID, change.CustomerID, change.UpdatedAt)
	})
	if err != nil {
		return false, errors.Join(subscription.ErrStore, err)
	}
	return applied, nil
}

const upsertCorrelation = `
INSERT INTO subscription_correlations (user_id, provider, correlation_id, customer_id, updated_at)
VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5)
ON CONFLICT (user_id, provider) DO UPDATE SET
    correlation_id = COALESCE(EXCLUDED.correlation_id, subscription_correlations.correlation_id),
    customer_id    = COALESCE(EXCLUDED.customer_id, subscription_correlations.customer_id),
    updated_at     = EXCLUDED.updated_at`

func mergeIDs(ctx context.Context, tx pgx.Tx, userID string, p subscription.Provider, correlationID, customerID string, at time.Time) error {
	if correlationID == "" && customerID == "" {
		return nil
	}
	_, err := tx.Exec(ctx, upsertCorrelation, userID, string(p), correlationID, customerID, at.UTC())
	return err
}

func scanUser(row pgx.Row) (*subscription.UserSubscription, error) {
	sub := &subscription.UserSubscription{
		CorrelationIDs: make(map[subscription.Provider]string),
		CustomerIDs:    make(map[subscription.Provider]string),
	}
	var provider string
	var lastEventAt *time.Time
	if err := row.Scan(&sub.UserID, &sub.SubscriptionActive, &provider, &lastEventAt, &sub.CreatedAt, &sub.UpdatedAt); err != nil {
		return nil, err
	}
	sub.ActiveProvider = subscription.Provider(provider)
	if lastEventAt != nil {
		t := lastEventAt.UTC()
		sub.LastEventAt = &t
	}
	sub.CreatedAt = sub.CreatedAt.UTC()
	sub.UpdatedAt = sub.UpdatedAt.UTC()
	return sub, nil
}
