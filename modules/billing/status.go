package billing

import (
	"github.com/dmitrymomot/subrelay/handler"
)

// StatusRequest addresses a user's subscription flag.
type StatusRequest struct {
	UserID string `path:"userId"`
}

// StatusResponse is the status query projection.
type StatusResponse struct {
	SubscriptionActive bool `json:"subscriptionActive"`
}

func (h *Handlers) status(ctx handler.Context, req StatusRequest) handler.Response {
	active, err := h.svc.Status(ctx, req.UserID)
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(StatusResponse{SubscriptionActive: active})
}
