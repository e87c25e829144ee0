package subscription_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/subrelay/svc/subscription"
	"github.com/dmitrymomot/subrelay/svc/subscription/storetest"
)

func TestParseProviders(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    []subscription.Provider
		wantErr error
	}{
		{name: "empty", input: "", want: nil},
		{name: "single", input: "stripe", want: []subscription.Provider{subscription.ProviderStripe}},
		{
			name:  "mixed case with blanks and duplicates",
			input: " Stripe, ,mercadopago,stripe,PAYPAL",
			want: []subscription.Provider{
				subscription.ProviderStripe,
				subscription.ProviderMercadoPago,
				subscription.ProviderPayPal,
			},
		},
		{name: "unknown", input: "stripe,bitcoin", wantErr: subscription.ErrUnknownProvider},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := subscription.ParseProviders(tt.input)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestUserSubscription_Accepts(t *testing.T) {
	t.Parallel()

	var empty *subscription.UserSubscription
	assert.True(t, empty.Accepts(baseTime))

	last := baseTime
	doc := &subscription.UserSubscription{LastEventAt: &last}
	assert.True(t, doc.Accepts(baseTime))
	assert.True(t, doc.Accepts(baseTime.Add(time.Second)))
	assert.False(t, doc.Accepts(baseTime.Add(-time.Second)))
}

func TestParsedEvent(t *testing.T) {
	t.Parallel()

	active, ok := subscription.ParsedEvent{Kind: subscription.EventActivated}.TargetState()
	assert.True(t, ok)
	assert.True(t, active)

	active, ok = subscription.ParsedEvent{Kind: subscription.EventCancelled}.TargetState()
	assert.True(t, ok)
	assert.False(t, active)

	_, ok = subscription.ParsedEvent{Kind: subscription.EventUnrecognized}.TargetState()
	assert.False(t, ok)

	assert.Equal(t, "stripe:evt_1", subscription.ParsedEvent{Provider: subscription.ProviderStripe, EventID: "evt_1"}.DedupKey())
	assert.Empty(t, subscription.ParsedEvent{Provider: subscription.ProviderStripe}.DedupKey())
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()

	t.Run("get missing document", func(t *testing.T) {
		t.Parallel()
		_, err := subscription.NewMemoryStore().Get(context.Background(), "nobody")
		assert.ErrorIs(t, err, subscription.ErrSubscriptionNotFound)
	})

	t.Run("seed clears the flag and replaces the correlation id", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		store := subscription.NewMemoryStore()

		applied, err := store.SetState(ctx, subscription.StateChange{
			UserID:    "u1",
			Provider:  subscription.ProviderStripe,
			Active:    true,
			EventAt:   baseTime,
			UpdatedAt: baseTime,
		})
		require.NoError(t, err)
		require.True(t, applied)

		seed(t, store, "u1", subscription.ProviderStripe, "cs_old")
		seed(t, store, "u1", subscription.ProviderStripe, "cs_new")
		seed(t, store, "u1", subscription.ProviderMercadoPago, "pre_1")

		doc, err := store.Get(ctx, "u1")
		require.NoError(t, err)
		assert.False(t, doc.SubscriptionActive)
		assert.Equal(t, "cs_new", doc.CorrelationID(subscription.ProviderStripe))
		assert.Equal(t, "pre_1", doc.CorrelationID(subscription.ProviderMercadoPago))

		matches, err := store.FindByCorrelationID(ctx, subscription.ProviderStripe, "cs_old")
		require.NoError(t, err)
		assert.Empty(t, matches)
	})

	t.Run("returned documents are copies", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		store := subscription.NewMemoryStore()
		seed(t, store, "u1", subscription.ProviderStripe, "cs_1")

		doc, err := store.Get(ctx, "u1")
		require.NoError(t, err)
		doc.CorrelationIDs[subscription.ProviderStripe] = "mutated"

		doc, err = store.Get(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, "cs_1", doc.CorrelationID(subscription.ProviderStripe))
	})
}

func TestMemoryStore_Conformance(t *testing.T) {
	t.Parallel()
	storetest.Run(t, subscription.NewMemoryStore())
}
