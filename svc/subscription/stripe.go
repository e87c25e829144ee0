package subscription

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// StripeConfig holds configuration for the Stripe card checkout provider.
type StripeConfig struct {
	SecretKey     string `env:"STRIPE_SECRET_KEY,required"`
	WebhookSecret string `env:"STRIPE_WEBHOOK_SECRET,required"`
	SuccessURL    string `env:"STRIPE_SUCCESS_URL" envDefault:"https://horas-planetarias.vercel.app/success"`
	CancelURL     string `env:"STRIPE_CANCEL_URL" envDefault:"https://horas-planetarias.vercel.app/cancel"`
}

// StripeSessionCreator creates checkout sessions. The default calls the
// Stripe API through stripe.Client.
type StripeSessionCreator func(ctx context.Context, params *stripe.CheckoutSessionCreateParams) (*stripe.CheckoutSession, error)

// StripeProvider implements BillingProvider for Stripe Checkout in
// subscription mode.
type StripeProvider struct {
	config        StripeConfig
	createSession StripeSessionCreator
}

// StripeOption configures a StripeProvider.
type StripeOption func(*StripeProvider)

// WithStripeSessionCreator replaces the API call used to create sessions.
func WithStripeSessionCreator(fn StripeSessionCreator) StripeOption {
	return func(p *StripeProvider) {
		if fn != nil {
			p.createSession = fn
		}
	}
}

// NewStripeProvider creates a new Stripe billing provider.
func NewStripeProvider(config StripeConfig, opts ...StripeOption) (*StripeProvider, error) {
	if config.SecretKey == "" {
		return nil, ErrMissingAPIKey
	}
	if config.WebhookSecret == "" {
		return nil, ErrMissingWebhookSecret
	}

	client := stripe.NewClient(config.SecretKey, nil)
	p := &StripeProvider{
		config: config,
		createSession: func(ctx context.Context, params *stripe.CheckoutSessionCreateParams) (*stripe.CheckoutSession, error) {
			return client.V1CheckoutSessions.Create(ctx, params)
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *StripeProvider) Name() Provider { return ProviderStripe }

// Initiate creates a subscription-mode checkout session for req.PriceID.
// The user id travels as client_reference_id and as metadata on both the
// session and the resulting subscription.
func (p *StripeProvider) Initiate(ctx context.Context, req InitiateRequest) (*Checkout, error) {
	if err := req.requirePrice(); err != nil {
		return nil, err
	}

	metadata := map[string]string{metadataUserID: req.UserID}
	params := &stripe.CheckoutSessionCreateParams{
		Mode:               stripe.String("subscription"),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionCreateLineItemParams{
			{
				Price:    stripe.String(req.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		CustomerEmail:     stripe.String(req.Email),
		ClientReferenceID: stripe.String(req.UserID),
		SuccessURL:        stripe.String(p.config.SuccessURL),
		CancelURL:         stripe.String(p.config.CancelURL),
		Metadata:          metadata,
		SubscriptionData: &stripe.CheckoutSessionCreateSubscriptionDataParams{
			Metadata: metadata,
		},
	}

	session, err := p.createSession(ctx, params)
	if err != nil {
		return nil, stripeError(err)
	}

	checkout := &Checkout{
		Provider:      ProviderStripe,
		CorrelationID: session.ID,
		URL:           session.URL,
	}
	if session.Customer != nil {
		checkout.CustomerID = session.Customer.ID
	}
	return checkout, nil
}

// ParseWebhook verifies the Stripe-Signature header against the raw body
// and maps the event.
func (p *StripeProvider) ParseWebhook(_ context.Context, payload []byte, headers http.Header) (*ParsedEvent, error) {
	signature := headers.Get("Stripe-Signature")
	if signature == "" {
		return nil, ErrWebhookVerificationFailed
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, p.config.WebhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, errors.Join(ErrWebhookVerificationFailed, err)
	}

	parsed := unrecognized(ProviderStripe, string(event.Type), time.Unix(event.Created, 0).UTC())
	parsed.EventID = event.ID

	switch string(event.Type) {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return nil, errors.Join(ErrInvalidPayload, err)
		}
		parsed.CorrelationID = session.ID
		parsed.UserID = firstNonEmpty(session.ClientReferenceID, session.Metadata[metadataUserID])
		if session.Customer != nil {
			parsed.CustomerID = session.Customer.ID
		}
		// A completed session may still wait for an async payment method.
		if event.Type == "checkout.session.async_payment_succeeded" || sessionPaid(session) {
			parsed.Kind = EventActivated
		}

	case "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, errors.Join(ErrInvalidPayload, err)
		}
		parsed.Kind = EventCancelled
		parsed.UserID = sub.Metadata[metadataUserID]
		if sub.Customer != nil {
			parsed.CustomerID = sub.Customer.ID
		}
	}

	return parsed, nil
}

func sessionPaid(s stripe.CheckoutSession) bool {
	switch string(s.PaymentStatus) {
	case "paid", "no_payment_required":
		return true
	default:
		return false
	}
}

func stripeError(err error) error {
	var serr *stripe.Error
	if errors.As(err, &serr) {
		body, _ := json.Marshal(serr)
		return &ProviderError{
			Provider:   ProviderStripe,
			StatusCode: serr.HTTPStatusCode,
			Message:    serr.Msg,
			Body:       body,
		}
	}
	return errors.Join(ErrProviderError, err)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
