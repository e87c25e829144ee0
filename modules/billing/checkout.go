package billing

import (
	"net/http"

	"github.com/dmitrymomot/subrelay/binder"
	"github.com/dmitrymomot/subrelay/handler"
	"github.com/dmitrymomot/subrelay/svc/subscription"
)

// CheckoutRequest is the body of every initiation route.
type CheckoutRequest struct {
	UserID  string `json:"userId"`
	Email   string `json:"email"`
	PriceID string `json:"priceId"`

	// UID is the user id field name used by the first release.
	UID string `json:"uid"`
}

func (r CheckoutRequest) initiateRequest() subscription.InitiateRequest {
	userID := r.UserID
	if userID == "" {
		userID = r.UID
	}
	return subscription.InitiateRequest{
		UserID:  userID,
		Email:   r.Email,
		PriceID: r.PriceID,
	}
}

// checkoutResponse shapes the provider handle returned to the client.
type checkoutResponse func(c *subscription.Checkout) any

func cardResponse(c *subscription.Checkout) any {
	return map[string]string{"sessionId": c.CorrelationID, "url": c.URL}
}

func recurringResponse(c *subscription.Checkout) any {
	return map[string]string{"initPoint": c.URL}
}

func legacyRecurringResponse(c *subscription.Checkout) any {
	return map[string]string{"init_point": c.URL}
}

func globalResponse(c *subscription.Checkout) any {
	return map[string]string{"approveUrl": c.URL}
}

func paddleResponse(c *subscription.Checkout) any {
	return map[string]string{"transactionId": c.CorrelationID, "url": c.URL}
}

func (h *Handlers) checkout(p subscription.Provider, shape checkoutResponse) http.HandlerFunc {
	return handler.Wrap(
		func(ctx handler.Context, req CheckoutRequest) handler.Response {
			checkout, err := h.svc.Initiate(ctx, p, req.initiateRequest())
			if err != nil {
				return handler.Error(err)
			}
			return handler.JSON(shape(checkout))
		},
		handler.WithBinder[handler.Context, CheckoutRequest](binder.JSON(h.bodyLimit)),
		handler.WithErrorHandler[handler.Context, CheckoutRequest](h.errorHandler),
	)
}
