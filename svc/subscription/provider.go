package subscription

import (
	"context"
	"net/http"

	"github.com/dmitrymomot/subrelay/pkg/validator"
)

// metadataUserID is the metadata key carrying our user id on provider objects.
const metadataUserID = "user_id"

// BillingProvider defines the minimal interface for payment provider integrations.
// Implementations authenticate and normalize their own webhooks; everything
// after ParseWebhook is provider-agnostic.
type BillingProvider interface {
	// Name returns the provider identifier.
	Name() Provider

	// Initiate creates the provider-side checkout or subscription object,
	// passing the user id as provider metadata.
	Initiate(ctx context.Context, req InitiateRequest) (*Checkout, error)

	// ParseWebhook authenticates a notification and maps it to a ParsedEvent.
	// Authentication failures wrap ErrWebhookVerificationFailed.
	ParseWebhook(ctx context.Context, payload []byte, headers http.Header) (*ParsedEvent, error)
}

// InitiateRequest contains the data needed to start a checkout.
type InitiateRequest struct {
	UserID  string
	Email   string
	PriceID string
}

// Validate checks the fields every provider needs.
func (r InitiateRequest) Validate() error {
	return validator.Apply(
		validator.RequiredString("userId", r.UserID),
		validator.MaxLenString("userId", r.UserID, 128),
		validator.RequiredString("email", r.Email),
		validator.ValidEmail("email", r.Email),
	)
}

func (r InitiateRequest) requirePrice() error {
	return validator.Apply(validator.RequiredString("priceId", r.PriceID))
}

// Checkout is the provider object created by an initiator.
type Checkout struct {
	Provider Provider
	// CorrelationID is the provider object id stored for webhook lookup.
	CorrelationID string
	CustomerID    string
	// URL is where the user completes payment (session url, init point,
	// approval link, checkout url).
	URL string
}
