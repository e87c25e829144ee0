package billing

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/subrelay/binder"
	"github.com/dmitrymomot/subrelay/handler"
	"github.com/dmitrymomot/subrelay/pkg/logger"
	"github.com/dmitrymomot/subrelay/pkg/ratelimiter"
	"github.com/dmitrymomot/subrelay/svc/subscription"
)

// Service is the subscription behaviour the HTTP module needs.
type Service interface {
	Initiate(ctx context.Context, p subscription.Provider, req subscription.InitiateRequest) (*subscription.Checkout, error)
	HandleWebhook(ctx context.Context, p subscription.Provider, payload []byte, headers http.Header) (subscription.Result, error)
	Status(ctx context.Context, userID string) (bool, error)
}

// Handlers exposes checkout initiation, provider webhooks and the status
// query over HTTP.
type Handlers struct {
	svc          Service
	log          *slog.Logger
	bodyLimit    int64
	limiter      ratelimiter.Limiter
	errorHandler handler.ErrorHandler[handler.Context]
}

// Option configures Handlers.
type Option func(*Handlers)

func WithLogger(l *slog.Logger) Option {
	return func(h *Handlers) {
		if l != nil {
			h.log = l
		}
	}
}

// WithBodyLimit caps request bodies, webhook payloads included.
func WithBodyLimit(n int64) Option {
	return func(h *Handlers) {
		if n > 0 {
			h.bodyLimit = n
		}
	}
}

// WithCheckoutLimiter rate limits checkout initiation per client IP.
// Webhooks and the status query are not limited.
func WithCheckoutLimiter(l ratelimiter.Limiter) Option {
	return func(h *Handlers) { h.limiter = l }
}

// NewHandlers creates the billing HTTP handlers over svc.
func NewHandlers(svc Service, opts ...Option) *Handlers {
	h := &Handlers{
		svc:       svc,
		log:       slog.Default(),
		bodyLimit: binder.DefaultMaxJSONSize,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.errorHandler = handler.NewErrorHandler(h.log, errorResponse)
	return h
}

// Handle returns the billing routes. Routes for providers that are not
// configured answer 404.
func (h *Handlers) Handle() http.Handler {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		if h.limiter != nil {
			r.Use(ratelimiter.Middleware(h.limiter, ratelimiter.ByClientIP,
				ratelimiter.WithOnLimited(h.rateLimited),
				ratelimiter.WithOnError(h.limiterFailed),
			))
		}

		r.Post("/checkout-card", h.checkout(subscription.ProviderStripe, cardResponse))
		r.Post("/subscribe-recurring", h.checkout(subscription.ProviderMercadoPago, recurringResponse))
		r.Post("/subscribe-global", h.checkout(subscription.ProviderPayPal, globalResponse))
		r.Post("/subscribe-paddle", h.checkout(subscription.ProviderPaddle, paddleResponse))

		// Routes kept for clients of the first release
		r.Post("/stripe-checkout", h.checkout(subscription.ProviderStripe, cardResponse))
		r.Post("/mp-subscription", h.checkout(subscription.ProviderMercadoPago, legacyRecurringResponse))
	})

	r.Post("/webhook-card", h.webhook(subscription.ProviderStripe, received))
	r.Post("/webhook-recurring", h.webhook(subscription.ProviderMercadoPago, received))
	r.Post("/webhook-global", h.webhook(subscription.ProviderPayPal, acknowledged))
	r.Post("/webhook-paddle", h.webhook(subscription.ProviderPaddle, received))

	r.Get("/subscription-status/{userId}", handler.Wrap(h.status,
		handler.WithBinders[handler.Context, StatusRequest](
			binder.Path(chi.URLParam),
		),
		handler.WithErrorHandler[handler.Context, StatusRequest](h.errorHandler),
	))

	return r
}

func (h *Handlers) rateLimited(w http.ResponseWriter, r *http.Request, _ *ratelimiter.Result) {
	h.errorHandler(handler.NewContext(w, r), handler.ErrTooManyRequests)
}

// limiterFailed lets the request through when the limiter store is down.
func (h *Handlers) limiterFailed(_ http.ResponseWriter, r *http.Request, err error) bool {
	h.log.WarnContext(r.Context(), "rate limiter unavailable", logger.Error(err))
	return true
}
