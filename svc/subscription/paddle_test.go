package subscription_test

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"testing"
	"time"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/subrelay/pkg/webhook"
	"github.com/dmitrymomot/subrelay/svc/subscription"
)

const paddleWebhookSecret = "pdl_ntfset_test"

func newPaddleProvider(t *testing.T, opts ...subscription.PaddleOption) *subscription.PaddleProvider {
	t.Helper()
	p, err := subscription.NewPaddleProvider(subscription.PaddleConfig{
		APIKey:          "pdl_sdbx_apikey_test",
		WebhookSecret:   paddleWebhookSecret,
		Environment:     "sandbox",
		SignatureMaxAge: 5 * time.Minute,
	}, opts...)
	require.NoError(t, err)
	return p
}

func paddleSignature(body string, at time.Time) http.Header {
	ts := strconv.FormatInt(at.Unix(), 10)
	h := http.Header{}
	h.Set("Paddle-Signature", "ts="+ts+";h1="+webhook.Sign(paddleWebhookSecret, []byte(ts+":"+body)))
	return h
}

func TestNewPaddleProvider(t *testing.T) {
	t.Parallel()

	_, err := subscription.NewPaddleProvider(subscription.PaddleConfig{WebhookSecret: "s"})
	assert.ErrorIs(t, err, subscription.ErrMissingAPIKey)

	_, err = subscription.NewPaddleProvider(subscription.PaddleConfig{APIKey: "k"})
	assert.ErrorIs(t, err, subscription.ErrMissingWebhookSecret)

	_, err = subscription.NewPaddleProvider(subscription.PaddleConfig{APIKey: "k", WebhookSecret: "s", Environment: "moon"})
	assert.ErrorIs(t, err, subscription.ErrInvalidProviderEnvironment)
}

func TestPaddleProvider_Initiate(t *testing.T) {
	t.Parallel()

	t.Run("creates transaction with user custom data", func(t *testing.T) {
		t.Parallel()
		var got *paddle.CreateTransactionRequest
		p := newPaddleProvider(t, subscription.WithPaddleTransactionCreator(
			func(_ context.Context, req *paddle.CreateTransactionRequest) (*paddle.Transaction, error) {
				got = req
				return &paddle.Transaction{
					ID:       "txn_1",
					Checkout: &paddle.TransactionCheckout{URL: paddle.PtrTo("https://pay.example/?_ptxn=txn_1")},
				}, nil
			},
		))

		checkout, err := p.Initiate(context.Background(), validRequest)
		require.NoError(t, err)
		assert.Equal(t, "txn_1", checkout.CorrelationID)
		assert.Equal(t, "https://pay.example/?_ptxn=txn_1", checkout.URL)

		require.NotNil(t, got)
		assert.Equal(t, "u1", got.CustomData["user_id"])
		require.Len(t, got.Items, 1)
	})

	t.Run("missing checkout url", func(t *testing.T) {
		t.Parallel()
		p := newPaddleProvider(t, subscription.WithPaddleTransactionCreator(
			func(context.Context, *paddle.CreateTransactionRequest) (*paddle.Transaction, error) {
				return &paddle.Transaction{ID: "txn_2"}, nil
			},
		))

		_, err := p.Initiate(context.Background(), validRequest)
		assert.ErrorIs(t, err, subscription.ErrNoCheckoutURL)
	})

	t.Run("api failure", func(t *testing.T) {
		t.Parallel()
		p := newPaddleProvider(t, subscription.WithPaddleTransactionCreator(
			func(context.Context, *paddle.CreateTransactionRequest) (*paddle.Transaction, error) {
				return nil, errors.New("forbidden")
			},
		))

		_, err := p.Initiate(context.Background(), validRequest)
		assert.ErrorIs(t, err, subscription.ErrProviderError)
	})
}

func TestPaddleProvider_ParseWebhook(t *testing.T) {
	t.Parallel()

	p := newPaddleProvider(t)

	tests := []struct {
		name            string
		body            string
		wantKind        subscription.EventKind
		wantCorrelation string
		wantUser        string
	}{
		{
			name:            "completed transaction activates",
			body:            `{"event_id":"evt_1","event_type":"transaction.completed","occurred_at":"2025-03-01T12:00:00Z","data":{"id":"txn_1","status":"completed","custom_data":{"user_id":"u1"}}}`,
			wantKind:        subscription.EventActivated,
			wantCorrelation: "txn_1",
			wantUser:        "u1",
		},
		{
			name:            "activated subscription correlates by transaction",
			body:            `{"event_id":"evt_2","event_type":"subscription.activated","data":{"id":"sub_1","status":"active","transaction_id":"txn_1"}}`,
			wantKind:        subscription.EventActivated,
			wantCorrelation: "txn_1",
		},
		{
			name:     "canceled subscription",
			body:     `{"event_id":"evt_3","event_type":"subscription.canceled","data":{"id":"sub_1","status":"canceled","custom_data":{"user_id":"u1"}}}`,
			wantKind: subscription.EventCancelled,
			wantUser: "u1",
		},
		{
			name:     "past due update is unrecognized",
			body:     `{"event_id":"evt_4","event_type":"subscription.updated","data":{"id":"sub_1","status":"past_due"}}`,
			wantKind: subscription.EventUnrecognized,
		},
		{
			name:            "other events are unrecognized",
			body:            `{"event_id":"evt_5","event_type":"transaction.created","data":{"id":"txn_9"}}`,
			wantKind:        subscription.EventUnrecognized,
			wantCorrelation: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ev, err := p.ParseWebhook(context.Background(), []byte(tt.body), paddleSignature(tt.body, time.Now()))
			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, ev.Kind)
			assert.Equal(t, tt.wantCorrelation, ev.CorrelationID)
			assert.Equal(t, tt.wantUser, ev.UserID)
		})
	}

	t.Run("tampered body is rejected", func(t *testing.T) {
		t.Parallel()
		body := `{"event_type":"transaction.completed","data":{"id":"txn_1"}}`
		headers := paddleSignature(body, time.Now())

		_, err := p.ParseWebhook(context.Background(), []byte(`{"event_type":"transaction.completed","data":{"id":"txn_2"}}`), headers)
		assert.ErrorIs(t, err, subscription.ErrWebhookVerificationFailed)
	})

	t.Run("expired signature is rejected", func(t *testing.T) {
		t.Parallel()
		body := `{"event_type":"transaction.completed","data":{"id":"txn_1"}}`

		_, err := p.ParseWebhook(context.Background(), []byte(body), paddleSignature(body, time.Now().Add(-time.Hour)))
		assert.ErrorIs(t, err, subscription.ErrWebhookVerificationFailed)
	})

	t.Run("missing signature is rejected", func(t *testing.T) {
		t.Parallel()
		_, err := p.ParseWebhook(context.Background(), []byte(`{}`), http.Header{})
		assert.ErrorIs(t, err, subscription.ErrWebhookVerificationFailed)
	})
}
