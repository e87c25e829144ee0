package subscription

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"

	"github.com/dmitrymomot/subrelay/pkg/webhook"
)

// PaddleConfig holds configuration for Paddle billing provider.
type PaddleConfig struct {
	APIKey        string `env:"PADDLE_API_KEY,required"`
	WebhookSecret string `env:"PADDLE_WEBHOOK_SECRET,required"`
	Environment   string `env:"PADDLE_ENVIRONMENT" envDefault:"production"`
	// CheckoutURL is the approved domain page hosting Paddle.js checkout.
	// Empty uses the default payment link set in the Paddle dashboard.
	CheckoutURL     string        `env:"PADDLE_CHECKOUT_URL"`
	SignatureMaxAge time.Duration `env:"PADDLE_SIGNATURE_MAX_AGE" envDefault:"5m"`
}

// PaddleTransactionCreator creates transactions. The default calls the
// Paddle API through the SDK.
type PaddleTransactionCreator func(ctx context.Context, req *paddle.CreateTransactionRequest) (*paddle.Transaction, error)

// PaddleProvider implements BillingProvider for Paddle Billing.
type PaddleProvider struct {
	config            PaddleConfig
	verifier          *paddle.WebhookVerifier
	createTransaction PaddleTransactionCreator
	now               func() time.Time
}

// PaddleOption configures a PaddleProvider.
type PaddleOption func(*PaddleProvider)

// WithPaddleTransactionCreator replaces the API call used to create
// transactions.
func WithPaddleTransactionCreator(fn PaddleTransactionCreator) PaddleOption {
	return func(p *PaddleProvider) {
		if fn != nil {
			p.createTransaction = fn
		}
	}
}

func WithPaddleClock(now func() time.Time) PaddleOption {
	return func(p *PaddleProvider) {
		if now != nil {
			p.now = now
		}
	}
}

// NewPaddleProvider creates a new Paddle billing provider.
func NewPaddleProvider(config PaddleConfig, opts ...PaddleOption) (*PaddleProvider, error) {
	if config.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if config.WebhookSecret == "" {
		return nil, ErrMissingWebhookSecret
	}

	var client *paddle.SDK
	var err error

	switch strings.ToLower(config.Environment) {
	case "sandbox":
		client, err = paddle.NewSandbox(config.APIKey)
	case "production", "":
		client, err = paddle.New(config.APIKey)
	default:
		return nil, ErrInvalidProviderEnvironment
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create paddle client: %w", err)
	}

	p := &PaddleProvider{
		config:   config,
		verifier: paddle.NewWebhookVerifier(config.WebhookSecret),
		createTransaction: func(ctx context.Context, req *paddle.CreateTransactionRequest) (*paddle.Transaction, error) {
			return client.TransactionsClient.CreateTransaction(ctx, req)
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *PaddleProvider) Name() Provider { return ProviderPaddle }

// Initiate creates a transaction for req.PriceID. Completing its checkout
// creates the subscription, which inherits the transaction custom data.
func (p *PaddleProvider) Initiate(ctx context.Context, req InitiateRequest) (*Checkout, error) {
	if err := req.requirePrice(); err != nil {
		return nil, err
	}

	item := paddle.NewCreateTransactionItemsTransactionItemFromCatalog(&paddle.TransactionItemFromCatalog{
		PriceID:  req.PriceID,
		Quantity: 1,
	})

	txReq := &paddle.CreateTransactionRequest{
		Items: []paddle.CreateTransactionItems{*item},
		CustomData: paddle.CustomData{
			metadataUserID: req.UserID,
			"email":        req.Email,
		},
	}
	if p.config.CheckoutURL != "" {
		txReq.Checkout = &paddle.TransactionCheckout{
			URL: paddle.PtrTo(p.config.CheckoutURL),
		}
	}

	tx, err := p.createTransaction(ctx, txReq)
	if err != nil {
		return nil, errors.Join(ErrProviderError, err)
	}
	if tx.Checkout == nil || tx.Checkout.URL == nil || *tx.Checkout.URL == "" {
		return nil, ErrNoCheckoutURL
	}

	checkout := &Checkout{
		Provider:      ProviderPaddle,
		CorrelationID: tx.ID,
		URL:           *tx.Checkout.URL,
	}
	if tx.CustomerID != nil {
		checkout.CustomerID = *tx.CustomerID
	}
	return checkout, nil
}

type paddleWebhook struct {
	EventID    string `json:"event_id"`
	EventType  string `json:"event_type"`
	OccurredAt string `json:"occurred_at"`
	Data       struct {
		ID             string         `json:"id"`
		Status         string         `json:"status"`
		CustomerID     string         `json:"customer_id"`
		TransactionID  string         `json:"transaction_id"`
		SubscriptionID string         `json:"subscription_id"`
		CustomData     map[string]any `json:"custom_data"`
	} `json:"data"`
}

// ParseWebhook verifies the Paddle-Signature header and maps the event.
// Transaction events correlate by their own id; subscription events by the
// transaction that created them.
func (p *PaddleProvider) ParseWebhook(ctx context.Context, payload []byte, headers http.Header) (*ParsedEvent, error) {
	if err := p.verify(ctx, payload, headers.Get("Paddle-Signature")); err != nil {
		return nil, errors.Join(ErrWebhookVerificationFailed, err)
	}

	var ev paddleWebhook
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, errors.Join(ErrInvalidPayload, err)
	}

	parsed := unrecognized(ProviderPaddle, ev.EventType, parseTime(ev.OccurredAt, p.now()))
	parsed.EventID = ev.EventID
	parsed.CustomerID = ev.Data.CustomerID
	if uid, ok := ev.Data.CustomData[metadataUserID].(string); ok {
		parsed.UserID = uid
	}

	status := strings.ToLower(ev.Data.Status)
	switch {
	case ev.EventType == "transaction.completed":
		parsed.CorrelationID = ev.Data.ID
		parsed.Kind = EventActivated

	case strings.HasPrefix(ev.EventType, "subscription."):
		parsed.CorrelationID = ev.Data.TransactionID
		switch {
		case ev.EventType == "subscription.canceled" || status == "canceled":
			parsed.Kind = EventCancelled
		case ev.EventType == "subscription.activated":
			parsed.Kind = EventActivated
		case status == "active" || status == "trialing":
			parsed.Kind = EventActivated
		}
	}

	return parsed, nil
}

func (p *PaddleProvider) verify(ctx context.Context, payload []byte, signature string) error {
	if signature == "" {
		return webhook.ErrMissingSignature
	}
	ts := webhook.ParseHeader(signature, ";")["ts"]
	if err := webhook.CheckTimestamp(ts, p.config.SignatureMaxAge, p.now()); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "/webhook", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request for verification: %w", err)
	}
	req.Header.Set("Paddle-Signature", signature)

	valid, err := p.verifier.Verify(req)
	if err != nil {
		return err
	}
	if !valid {
		return webhook.ErrSignatureMismatch
	}
	return nil
}
