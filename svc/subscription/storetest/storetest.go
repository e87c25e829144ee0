// Package storetest holds behaviour tests shared by every subscription.Store
// implementation.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/subrelay/svc/subscription"
)

var seq atomic.Int64

// uniqueUser returns a user id that does not collide across runs against a
// shared database.
func uniqueUser(prefix string) string {
	return fmt.Sprintf("%s-%d-%d", prefix, time.Now().UnixNano(), seq.Add(1))
}

// Run exercises store. Tests use fresh user ids so a shared database can be
// reused between runs.
func Run(t *testing.T, store subscription.Store) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("missing document", func(t *testing.T) {
		_, err := store.Get(ctx, uniqueUser("missing"))
		assert.ErrorIs(t, err, subscription.ErrSubscriptionNotFound)
	})

	t.Run("seed creates an inactive document", func(t *testing.T) {
		uid := uniqueUser("seed")
		cid := uniqueUser("cs")
		require.NoError(t, store.Seed(ctx, subscription.SeedParams{
			UserID:        uid,
			Provider:      subscription.ProviderStripe,
			CorrelationID: cid,
			CustomerID:    "cus_1",
			At:            base,
		}))

		doc, err := store.Get(ctx, uid)
		require.NoError(t, err)
		assert.False(t, doc.SubscriptionActive)
		assert.Equal(t, cid, doc.CorrelationID(subscription.ProviderStripe))
		assert.Equal(t, "cus_1", doc.CustomerIDs[subscription.ProviderStripe])
		assert.Nil(t, doc.LastEventAt)

		matches, err := store.FindByCorrelationID(ctx, subscription.ProviderStripe, cid)
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, uid, matches[0].UserID)

		matches, err = store.FindByCorrelationID(ctx, subscription.ProviderMercadoPago, cid)
		require.NoError(t, err)
		assert.Empty(t, matches)
	})

	t.Run("seed deactivates an active user", func(t *testing.T) {
		uid := uniqueUser("reseed")
		applied, err := store.SetState(ctx, subscription.StateChange{
			UserID:    uid,
			Provider:  subscription.ProviderPayPal,
			Active:    true,
			EventAt:   base,
			UpdatedAt: base,
		})
		require.NoError(t, err)
		require.True(t, applied)

		require.NoError(t, store.Seed(ctx, subscription.SeedParams{
			UserID:        uid,
			Provider:      subscription.ProviderMercadoPago,
			CorrelationID: uniqueUser("pre"),
			At:            base.Add(time.Minute),
		}))

		doc, err := store.Get(ctx, uid)
		require.NoError(t, err)
		assert.False(t, doc.SubscriptionActive)
		require.NotNil(t, doc.LastEventAt)
		assert.True(t, doc.LastEventAt.Equal(base))

		// The confirming event still applies after the seed.
		applied, err = store.SetState(ctx, subscription.StateChange{
			UserID:    uid,
			Provider:  subscription.ProviderMercadoPago,
			Active:    true,
			EventAt:   base.Add(2 * time.Minute),
			UpdatedAt: base.Add(2 * time.Minute),
		})
		require.NoError(t, err)
		assert.True(t, applied)
	})

	t.Run("set state is conditional on event time", func(t *testing.T) {
		uid := uniqueUser("order")
		change := func(active bool, at time.Time) subscription.StateChange {
			return subscription.StateChange{
				UserID:    uid,
				Provider:  subscription.ProviderStripe,
				Active:    active,
				EventAt:   at,
				UpdatedAt: base.Add(time.Hour),
			}
		}

		applied, err := store.SetState(ctx, change(false, base.Add(2*time.Minute)))
		require.NoError(t, err)
		assert.True(t, applied)

		applied, err = store.SetState(ctx, change(true, base.Add(time.Minute)))
		require.NoError(t, err)
		assert.False(t, applied)

		applied, err = store.SetState(ctx, change(false, base.Add(2*time.Minute)))
		require.NoError(t, err)
		assert.True(t, applied, "equal event time is re-applied")

		doc, err := store.Get(ctx, uid)
		require.NoError(t, err)
		assert.False(t, doc.SubscriptionActive)
		require.NotNil(t, doc.LastEventAt)
		assert.True(t, doc.LastEventAt.Equal(base.Add(2*time.Minute)))
	})

	t.Run("racing first writes keep the newest event", func(t *testing.T) {
		for range 10 {
			uid := uniqueUser("race")
			older := subscription.StateChange{
				UserID:    uid,
				Provider:  subscription.ProviderPayPal,
				Active:    true,
				EventAt:   base,
				UpdatedAt: base,
			}
			newer := older
			newer.Active = false
			newer.EventAt = base.Add(time.Minute)

			var wg sync.WaitGroup
			applied := make([]bool, 2)
			errs := make([]error, 2)
			for i, change := range []subscription.StateChange{older, newer} {
				wg.Add(1)
				go func() {
					defer wg.Done()
					applied[i], errs[i] = store.SetState(ctx, change)
				}()
			}
			wg.Wait()

			require.NoError(t, errs[0])
			require.NoError(t, errs[1])
			assert.True(t, applied[1], "newer event must apply")

			doc, err := store.Get(ctx, uid)
			require.NoError(t, err)
			assert.False(t, doc.SubscriptionActive)
			require.NotNil(t, doc.LastEventAt)
			assert.True(t, doc.LastEventAt.Equal(newer.EventAt))
		}
	})

	t.Run("set state merges non-empty ids", func(t *testing.T) {
		uid := uniqueUser("merge")
		cid := uniqueUser("pre")
		require.NoError(t, store.Seed(ctx, subscription.SeedParams{
			UserID:        uid,
			Provider:      subscription.ProviderMercadoPago,
			CorrelationID: cid,
			At:            base,
		}))

		_, err := store.SetState(ctx, subscription.StateChange{
			UserID:     uid,
			Provider:   subscription.ProviderMercadoPago,
			Active:     true,
			CustomerID: "payer_1",
			EventAt:    base,
			UpdatedAt:  base,
		})
		require.NoError(t, err)

		doc, err := store.Get(ctx, uid)
		require.NoError(t, err)
		assert.True(t, doc.SubscriptionActive)
		assert.Equal(t, cid, doc.CorrelationID(subscription.ProviderMercadoPago))
		assert.Equal(t, "payer_1", doc.CustomerIDs[subscription.ProviderMercadoPago])
	})

	t.Run("shared correlation id matches every user", func(t *testing.T) {
		cid := uniqueUser("shared")
		u1, u2 := uniqueUser("a"), uniqueUser("b")
		for _, uid := range []string{u1, u2} {
			require.NoError(t, store.Seed(ctx, subscription.SeedParams{
				UserID:        uid,
				Provider:      subscription.ProviderPayPal,
				CorrelationID: cid,
				At:            base,
			}))
		}

		matches, err := store.FindByCorrelationID(ctx, subscription.ProviderPayPal, cid)
		require.NoError(t, err)
		ids := make([]string, 0, len(matches))
		for _, m := range matches {
			ids = append(ids, m.UserID)
		}
		assert.ElementsMatch(t, []string{u1, u2}, ids)
	})
}
