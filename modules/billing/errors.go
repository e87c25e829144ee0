package billing

import (
	"errors"
	"net/http"

	"github.com/dmitrymomot/subrelay/binder"
	"github.com/dmitrymomot/subrelay/handler"
	"github.com/dmitrymomot/subrelay/pkg/validator"
	"github.com/dmitrymomot/subrelay/svc/subscription"
)

var (
	errInvalidSignature      = handler.NewHTTPError(http.StatusBadRequest, "invalid_signature")
	errInvalidPayload        = handler.NewHTTPError(http.StatusBadRequest, "invalid_payload")
	errProviderNotConfigured = handler.NewHTTPError(http.StatusNotFound, "provider_not_configured")
	errProviderTimeout       = handler.NewHTTPError(http.StatusServiceUnavailable, "provider_timeout")
	errStore                 = handler.NewHTTPError(http.StatusInternalServerError, "store_error")
)

// mapError classifies err into the HTTP error returned to the caller.
// Timeouts are checked first: a timed-out provider call may also carry a
// transport error.
func mapError(err error) handler.HTTPError {
	var he handler.HTTPError
	switch {
	case errors.Is(err, subscription.ErrProviderTimeout):
		return errProviderTimeout
	case errors.Is(err, subscription.ErrProviderError),
		errors.Is(err, subscription.ErrNoCheckoutURL):
		return handler.ErrBadGateway
	case errors.Is(err, subscription.ErrWebhookVerificationFailed):
		return errInvalidSignature
	case errors.Is(err, subscription.ErrInvalidPayload),
		errors.Is(err, binder.ErrInvalidJSON),
		errors.Is(err, binder.ErrInvalidPath):
		return errInvalidPayload
	case errors.Is(err, binder.ErrUnsupportedMediaType):
		return handler.ErrUnsupportedMediaType
	case errors.Is(err, binder.ErrRequestTooLarge):
		return handler.ErrRequestEntityTooLarge
	case errors.Is(err, subscription.ErrProviderNotConfigured),
		errors.Is(err, subscription.ErrUnknownProvider):
		return errProviderNotConfigured
	case errors.Is(err, subscription.ErrStore):
		return errStore
	case errors.As(err, &he):
		return he
	default:
		return handler.ErrInternalServerError
	}
}

// errorResponse renders err for the client. Client errors carry the error
// text; provider errors carry the provider's message and response body;
// server errors carry nothing beyond the status text.
func errorResponse(err error) handler.Response {
	if ve := validator.ExtractValidationErrors(err); ve != nil {
		return handler.JSONError(ve)
	}

	httpErr := mapError(err)
	var opts []handler.JSONOption

	var pe *subscription.ProviderError
	switch {
	case httpErr == handler.ErrBadGateway && errors.As(err, &pe):
		opts = append(opts, handler.WithErrorMessage(pe.Message))
		if len(pe.Body) > 0 {
			opts = append(opts, handler.WithErrorDetails(pe.Body))
		}
	case httpErr.Code < http.StatusInternalServerError:
		opts = append(opts, handler.WithErrorMessage(err.Error()))
	case httpErr == errProviderTimeout:
		opts = append(opts, handler.WithErrorMessage(subscription.ErrProviderTimeout.Error()))
	}

	return handler.JSONError(httpErr, opts...)
}
