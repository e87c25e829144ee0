package subscription_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/subrelay/pkg/logger"
	"github.com/dmitrymomot/subrelay/pkg/validator"
	"github.com/dmitrymomot/subrelay/svc/subscription"
)

type mockProvider struct {
	mock.Mock
	name subscription.Provider
}

func (m *mockProvider) Name() subscription.Provider { return m.name }

func (m *mockProvider) Initiate(ctx context.Context, req subscription.InitiateRequest) (*subscription.Checkout, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscription.Checkout), args.Error(1)
}

func (m *mockProvider) ParseWebhook(ctx context.Context, payload []byte, headers http.Header) (*subscription.ParsedEvent, error) {
	args := m.Called(ctx, payload, headers)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscription.ParsedEvent), args.Error(1)
}

func newTestService(store subscription.Store, opts ...subscription.ServiceOption) *subscription.Service {
	opts = append([]subscription.ServiceOption{
		subscription.WithLogger(logger.Discard()),
		subscription.WithServiceClock(fixedClock),
	}, opts...)
	return subscription.NewService(store, opts...)
}

var validRequest = subscription.InitiateRequest{
	UserID:  "u1",
	Email:   "a@b.co",
	PriceID: "price_1",
}

func TestService_Initiate(t *testing.T) {
	t.Parallel()

	t.Run("seeds correlation id without activating", func(t *testing.T) {
		t.Parallel()
		store := subscription.NewMemoryStore()
		provider := &mockProvider{name: subscription.ProviderStripe}
		provider.On("Initiate", mock.Anything, validRequest).Return(&subscription.Checkout{
			CorrelationID: "cs_1",
			URL:           "https://checkout.example/cs_1",
		}, nil)

		svc := newTestService(store, subscription.WithProvider(provider))
		checkout, err := svc.Initiate(context.Background(), subscription.ProviderStripe, validRequest)
		require.NoError(t, err)
		assert.Equal(t, subscription.ProviderStripe, checkout.Provider)
		assert.Equal(t, "https://checkout.example/cs_1", checkout.URL)

		doc, err := store.Get(context.Background(), "u1")
		require.NoError(t, err)
		assert.False(t, doc.SubscriptionActive)
		assert.Equal(t, "cs_1", doc.CorrelationID(subscription.ProviderStripe))
		provider.AssertExpectations(t)
	})

	t.Run("re-initiation marks an active user inactive", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		store := subscription.NewMemoryStore()
		_, err := store.SetState(ctx, subscription.StateChange{
			UserID:    "u1",
			Provider:  subscription.ProviderMercadoPago,
			Active:    true,
			EventAt:   baseTime.Add(-time.Hour),
			UpdatedAt: baseTime.Add(-time.Hour),
		})
		require.NoError(t, err)

		provider := &mockProvider{name: subscription.ProviderMercadoPago}
		provider.On("Initiate", mock.Anything, validRequest).Return(&subscription.Checkout{
			CorrelationID: "pre_2",
			URL:           "https://mp.example/pre_2",
		}, nil)

		svc := newTestService(store, subscription.WithProvider(provider))
		_, err = svc.Initiate(ctx, subscription.ProviderMercadoPago, validRequest)
		require.NoError(t, err)

		active, err := svc.Status(ctx, "u1")
		require.NoError(t, err)
		assert.False(t, active)

		doc, err := store.Get(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, "pre_2", doc.CorrelationID(subscription.ProviderMercadoPago))
	})

	t.Run("invalid request never reaches the provider", func(t *testing.T) {
		t.Parallel()
		store := subscription.NewMemoryStore()
		provider := &mockProvider{name: subscription.ProviderStripe}

		svc := newTestService(store, subscription.WithProvider(provider))
		_, err := svc.Initiate(context.Background(), subscription.ProviderStripe, subscription.InitiateRequest{Email: "not-an-email"})
		require.Error(t, err)

		verr := validator.ExtractValidationErrors(err)
		assert.True(t, verr.Has("userId"))
		assert.True(t, verr.Has("email"))
		provider.AssertNotCalled(t, "Initiate", mock.Anything, mock.Anything)
		assert.Equal(t, 0, store.Len())
	})

	t.Run("provider failure leaves the store untouched", func(t *testing.T) {
		t.Parallel()
		store := subscription.NewMemoryStore()
		provider := &mockProvider{name: subscription.ProviderMercadoPago}
		provider.On("Initiate", mock.Anything, validRequest).Return(nil, &subscription.ProviderError{
			Provider:   subscription.ProviderMercadoPago,
			StatusCode: http.StatusBadRequest,
			Message:    "invalid payer_email",
		})

		svc := newTestService(store, subscription.WithProvider(provider))
		_, err := svc.Initiate(context.Background(), subscription.ProviderMercadoPago, validRequest)
		assert.ErrorIs(t, err, subscription.ErrProviderError)
		assert.Equal(t, 0, store.Len())
	})

	t.Run("slow provider times out", func(t *testing.T) {
		t.Parallel()
		store := subscription.NewMemoryStore()
		provider := &mockProvider{name: subscription.ProviderPayPal}
		provider.On("Initiate", mock.Anything, validRequest).
			Run(func(args mock.Arguments) {
				<-args.Get(0).(context.Context).Done()
			}).
			Return(nil, context.DeadlineExceeded)

		svc := newTestService(store,
			subscription.WithProvider(provider),
			subscription.WithProviderTimeout(10*time.Millisecond),
		)
		_, err := svc.Initiate(context.Background(), subscription.ProviderPayPal, validRequest)
		assert.ErrorIs(t, err, subscription.ErrProviderTimeout)
		assert.Equal(t, 0, store.Len())
	})

	t.Run("seed failure surfaces as store error", func(t *testing.T) {
		t.Parallel()
		store := &mockStore{}
		store.On("Seed", mock.Anything, mock.Anything).Return(errors.New("disk full"))
		provider := &mockProvider{name: subscription.ProviderStripe}
		provider.On("Initiate", mock.Anything, validRequest).Return(&subscription.Checkout{CorrelationID: "cs_1", URL: "u"}, nil)

		svc := newTestService(store, subscription.WithProvider(provider))
		_, err := svc.Initiate(context.Background(), subscription.ProviderStripe, validRequest)
		assert.ErrorIs(t, err, subscription.ErrStore)
	})

	t.Run("unregistered provider", func(t *testing.T) {
		t.Parallel()
		svc := newTestService(subscription.NewMemoryStore())
		_, err := svc.Initiate(context.Background(), subscription.ProviderPaddle, validRequest)
		assert.ErrorIs(t, err, subscription.ErrProviderNotConfigured)
	})
}

func TestService_HandleWebhook(t *testing.T) {
	t.Parallel()

	t.Run("verified event is reconciled", func(t *testing.T) {
		t.Parallel()
		store := subscription.NewMemoryStore()
		seed(t, store, "u1", subscription.ProviderStripe, "cs_1")

		provider := &mockProvider{name: subscription.ProviderStripe}
		provider.On("ParseWebhook", mock.Anything, []byte("{}"), mock.Anything).Return(&subscription.ParsedEvent{
			Kind:          subscription.EventActivated,
			Provider:      subscription.ProviderStripe,
			CorrelationID: "cs_1",
			OccurredAt:    baseTime,
		}, nil)

		svc := newTestService(store, subscription.WithProvider(provider))
		res, err := svc.HandleWebhook(context.Background(), subscription.ProviderStripe, []byte("{}"), http.Header{})
		require.NoError(t, err)
		assert.Equal(t, subscription.OutcomeApplied, res.Outcome)

		active, err := svc.Status(context.Background(), "u1")
		require.NoError(t, err)
		assert.True(t, active)
	})

	t.Run("verification failure writes nothing", func(t *testing.T) {
		t.Parallel()
		store := subscription.NewMemoryStore()
		provider := &mockProvider{name: subscription.ProviderStripe}
		provider.On("ParseWebhook", mock.Anything, mock.Anything, mock.Anything).
			Return(nil, subscription.ErrWebhookVerificationFailed)

		svc := newTestService(store, subscription.WithProvider(provider))
		_, err := svc.HandleWebhook(context.Background(), subscription.ProviderStripe, []byte("{}"), http.Header{})
		assert.ErrorIs(t, err, subscription.ErrWebhookVerificationFailed)
		assert.Equal(t, 0, store.Len())
	})
}

func TestService_Status(t *testing.T) {
	t.Parallel()

	svc := newTestService(subscription.NewMemoryStore())

	active, err := svc.Status(context.Background(), "unknown")
	require.NoError(t, err)
	assert.False(t, active)

	_, err = svc.Status(context.Background(), "")
	assert.True(t, validator.IsValidationError(err))
}

func TestService_Providers(t *testing.T) {
	t.Parallel()

	svc := newTestService(subscription.NewMemoryStore(),
		subscription.WithProvider(&mockProvider{name: subscription.ProviderStripe}),
		subscription.WithProvider(&mockProvider{name: subscription.ProviderMercadoPago}),
	)
	assert.Equal(t, []subscription.Provider{subscription.ProviderMercadoPago, subscription.ProviderStripe}, svc.Providers())
	assert.True(t, svc.Enabled(subscription.ProviderStripe))
	assert.False(t, svc.Enabled(subscription.ProviderPayPal))

	assert.Panics(t, func() {
		newTestService(subscription.NewMemoryStore(),
			subscription.WithProvider(&mockProvider{name: subscription.ProviderStripe}),
			subscription.WithProvider(&mockProvider{name: subscription.ProviderStripe}),
		)
	})
}
