package billing

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/subrelay/binder"
	"github.com/dmitrymomot/subrelay/handler"
	"github.com/dmitrymomot/subrelay/pkg/logger"
	"github.com/dmitrymomot/subrelay/svc/subscription"
)

// WebhookRequest is a provider notification exactly as received.
// Signatures are computed over Payload, so it is never re-encoded.
type WebhookRequest struct {
	Payload []byte
	Header  http.Header
}

// rawBody binds the unparsed body and headers into a WebhookRequest.
func rawBody(limit int64) handler.Bind {
	return func(r *http.Request, v any) error {
		req, ok := v.(*WebhookRequest)
		if !ok {
			return fmt.Errorf("%w: target must be *WebhookRequest", binder.ErrInvalidJSON)
		}
		if r.Body == nil {
			return fmt.Errorf("%w: empty body", subscription.ErrInvalidPayload)
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
		if err != nil {
			return fmt.Errorf("%w: failed to read request body: %v", subscription.ErrInvalidPayload, err)
		}
		if int64(len(body)) > limit {
			return fmt.Errorf("%w: max %d bytes", binder.ErrRequestTooLarge, limit)
		}

		req.Payload = body
		req.Header = r.Header.Clone()
		return nil
	}
}

// webhookResponse is the acknowledgement a provider expects.
type webhookResponse func() handler.Response

func received() handler.Response {
	return handler.JSON(map[string]bool{"received": true})
}

func acknowledged() handler.Response {
	return handler.EmptyWithStatus(http.StatusOK)
}

// webhook acknowledges every authenticated, parsed delivery, matched or
// not. Retryable failures (timeouts, store errors) answer 5xx so the
// provider redelivers.
func (h *Handlers) webhook(p subscription.Provider, ack webhookResponse) http.HandlerFunc {
	return handler.Wrap(
		func(ctx handler.Context, req WebhookRequest) handler.Response {
			res, err := h.svc.HandleWebhook(ctx, p, req.Payload, req.Header)
			if err != nil {
				return handler.Error(err)
			}
			h.log.DebugContext(ctx, "webhook acknowledged",
				logger.Provider(string(p)),
				logger.Component("billing"),
				slog.String("outcome", string(res.Outcome)),
			)
			return ack()
		},
		handler.WithBinder[handler.Context, WebhookRequest](rawBody(h.bodyLimit)),
		handler.WithErrorHandler[handler.Context, WebhookRequest](h.errorHandler),
	)
}
