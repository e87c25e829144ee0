package subscription

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrStore                = errors.New("subscription store failure")

	ErrUnknownProvider       = errors.New("unknown billing provider")
	ErrProviderNotConfigured = errors.New("billing provider is not configured")
	ErrProviderError         = errors.New("billing provider error")
	ErrProviderTimeout       = errors.New("billing provider timed out")

	// Provider-specific errors
	ErrMissingAPIKey              = errors.New("billing provider API key is required")
	ErrMissingWebhookSecret       = errors.New("billing provider webhook secret is required")
	ErrMissingPlanID              = errors.New("billing provider plan ID is required")
	ErrInvalidProviderEnvironment = errors.New("invalid billing provider environment")
	ErrWebhookVerificationFailed  = errors.New("webhook signature verification failed")
	ErrInvalidPayload             = errors.New("invalid webhook payload")
	ErrNoCheckoutURL              = errors.New("no checkout URL returned from provider")
)

// ProviderError carries a non-success response from a provider API.
// Body is the provider's response, passed through to the caller as-is.
type ProviderError struct {
	Provider   Provider
	StatusCode int
	Message    string
	Body       json.RawMessage
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: %s (status %d): %s", e.Provider, ErrProviderError, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Provider, ErrProviderError, e.Message)
}

func (e *ProviderError) Unwrap() error { return ErrProviderError }

// newProviderError builds a ProviderError from a raw response body.
// Non-JSON bodies are kept as a JSON string.
func newProviderError(p Provider, status int, body []byte) *ProviderError {
	e := &ProviderError{Provider: p, StatusCode: status}
	if json.Valid(body) && len(body) > 0 {
		e.Body = json.RawMessage(body)
		var msg struct {
			Message string `json:"message"`
			Error   string `json:"error"`
		}
		if err := json.Unmarshal(body, &msg); err == nil {
			e.Message = msg.Message
			if e.Message == "" {
				e.Message = msg.Error
			}
		}
	} else if len(body) > 0 {
		e.Body, _ = json.Marshal(string(body))
		e.Message = string(body)
	}
	if e.Message == "" {
		e.Message = "unexpected response"
	}
	return e
}
