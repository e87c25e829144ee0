package subscription_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/subrelay/svc/subscription"
)

// fakePayPal issues client-credential tokens and serves billing subscriptions.
type fakePayPal struct {
	statuses map[string]string
}

func (f *fakePayPal) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/v1/oauth2/token" {
		id, secret, ok := r.BasicAuth()
		if !ok || id != "client" || secret != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"pp_token","token_type":"Bearer","expires_in":3600}`))
		return
	}
	if r.Header.Get("Authorization") != "Bearer pp_token" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/v1/billing/subscriptions":
		var body struct {
			PlanID     string `json:"plan_id"`
			CustomID   string `json:"custom_id"`
			Subscriber struct {
				EmailAddress string `json:"email_address"`
			} `json:"subscriber"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.PlanID != "P-1" || r.Header.Get("Paypal-Request-Id") == "" {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"name":"UNPROCESSABLE_ENTITY","message":"The requested action could not be performed"}`))
			return
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "I-SUB1",
			"status": "APPROVAL_PENDING",
			"links": []map[string]string{
				{"href": "https://api-m.paypal.com/v1/billing/subscriptions/I-SUB1", "rel": "self", "method": "GET"},
				{"href": "https://www.paypal.com/webapps/billing/subscriptions?ba_token=BA-1", "rel": "approve", "method": "GET"},
			},
		})

	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/v1/billing/subscriptions/"):
		id := strings.TrimPrefix(r.URL.Path, "/v1/billing/subscriptions/")
		status, ok := f.statuses[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"name":"RESOURCE_NOT_FOUND"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":                 id,
			"status":             status,
			"custom_id":          "u1",
			"status_update_time": "2025-03-01T12:00:00Z",
			"subscriber":         map[string]string{"payer_id": "PAYER1"},
		})

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newPayPalProvider(t *testing.T, baseURL string, verify bool) *subscription.PayPalProvider {
	t.Helper()
	p, err := subscription.NewPayPalProvider(subscription.PayPalConfig{
		ClientID:     "client",
		ClientSecret: "secret",
		PlanID:       "P-1",
		BaseURL:      baseURL,
		ReturnURL:    "https://app.example/success",
		CancelURL:    "https://app.example/cancel",
		VerifyStatus: verify,
	}, subscription.WithPayPalClock(fixedClock))
	require.NoError(t, err)
	return p
}

func TestNewPayPalProvider(t *testing.T) {
	t.Parallel()

	_, err := subscription.NewPayPalProvider(subscription.PayPalConfig{PlanID: "P-1"})
	assert.ErrorIs(t, err, subscription.ErrMissingAPIKey)

	_, err = subscription.NewPayPalProvider(subscription.PayPalConfig{ClientID: "c", ClientSecret: "s"})
	assert.ErrorIs(t, err, subscription.ErrMissingPlanID)

	_, err = subscription.NewPayPalProvider(subscription.PayPalConfig{ClientID: "c", ClientSecret: "s", PlanID: "P-1", Environment: "staging"})
	assert.ErrorIs(t, err, subscription.ErrInvalidProviderEnvironment)
}

func TestPayPalProvider_Initiate(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(&fakePayPal{})
	t.Cleanup(srv.Close)

	checkout, err := newPayPalProvider(t, srv.URL, false).Initiate(context.Background(), validRequest)
	require.NoError(t, err)
	assert.Equal(t, "I-SUB1", checkout.CorrelationID)
	assert.Equal(t, "https://www.paypal.com/webapps/billing/subscriptions?ba_token=BA-1", checkout.URL)
}

func TestPayPalProvider_ParseWebhook(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(&fakePayPal{statuses: map[string]string{
		"I-ACTIVE":    "ACTIVE",
		"I-CANCELLED": "CANCELLED",
	}})
	t.Cleanup(srv.Close)

	t.Run("event body is trusted without verification", func(t *testing.T) {
		t.Parallel()
		p := newPayPalProvider(t, srv.URL, false)

		ev, err := p.ParseWebhook(context.Background(), []byte(`{
			"id": "WH-1",
			"event_type": "BILLING.SUBSCRIPTION.ACTIVATED",
			"create_time": "2025-03-01T11:00:00Z",
			"resource": {"id": "I-SUB1", "custom_id": "u1", "status": "ACTIVE"}
		}`), http.Header{})
		require.NoError(t, err)
		assert.Equal(t, subscription.EventActivated, ev.Kind)
		assert.Equal(t, "WH-1", ev.EventID)
		assert.Equal(t, "I-SUB1", ev.CorrelationID)
		assert.Equal(t, "u1", ev.UserID)
	})

	t.Run("cancellation", func(t *testing.T) {
		t.Parallel()
		p := newPayPalProvider(t, srv.URL, false)

		ev, err := p.ParseWebhook(context.Background(), []byte(`{
			"id": "WH-2",
			"event_type": "BILLING.SUBSCRIPTION.CANCELLED",
			"resource": {"id": "I-SUB1"}
		}`), http.Header{})
		require.NoError(t, err)
		assert.Equal(t, subscription.EventCancelled, ev.Kind)
		assert.Equal(t, baseTime, ev.OccurredAt)
	})

	t.Run("other events are unrecognized", func(t *testing.T) {
		t.Parallel()
		p := newPayPalProvider(t, srv.URL, true)

		ev, err := p.ParseWebhook(context.Background(), []byte(`{"event_type":"PAYMENT.SALE.COMPLETED","resource":{"id":"S-1"}}`), http.Header{})
		require.NoError(t, err)
		assert.Equal(t, subscription.EventUnrecognized, ev.Kind)
	})

	t.Run("verified status overrides the event type", func(t *testing.T) {
		t.Parallel()
		p := newPayPalProvider(t, srv.URL, true)

		ev, err := p.ParseWebhook(context.Background(), []byte(`{
			"event_type": "BILLING.SUBSCRIPTION.ACTIVATED",
			"resource": {"id": "I-CANCELLED"}
		}`), http.Header{})
		require.NoError(t, err)
		assert.Equal(t, subscription.EventCancelled, ev.Kind)
		assert.Equal(t, "u1", ev.UserID)
		assert.Equal(t, "PAYER1", ev.CustomerID)
	})

	t.Run("unknown subscription is unrecognized", func(t *testing.T) {
		t.Parallel()
		p := newPayPalProvider(t, srv.URL, true)

		ev, err := p.ParseWebhook(context.Background(), []byte(`{
			"event_type": "BILLING.SUBSCRIPTION.ACTIVATED",
			"resource": {"id": "I-MISSING"}
		}`), http.Header{})
		require.NoError(t, err)
		assert.Equal(t, subscription.EventUnrecognized, ev.Kind)
	})

	t.Run("malformed body", func(t *testing.T) {
		t.Parallel()
		p := newPayPalProvider(t, srv.URL, false)

		_, err := p.ParseWebhook(context.Background(), []byte(`[`), http.Header{})
		assert.ErrorIs(t, err, subscription.ErrInvalidPayload)
	})
}
