package subscription

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/dmitrymomot/subrelay/pkg/logger"
	"github.com/dmitrymomot/subrelay/pkg/validator"
)

// Service wires providers, the store and the reconciler together.
type Service struct {
	store      Store
	reconciler *Reconciler
	providers  map[Provider]BillingProvider
	log        *slog.Logger
	timeout    time.Duration
	now        func() time.Time
}

// ServiceOption configures a Service instance.
type ServiceOption func(*Service)

// WithProvider registers a billing provider. Registering the same provider
// twice panics.
func WithProvider(p BillingProvider) ServiceOption {
	return func(s *Service) {
		if p == nil {
			return
		}
		if _, exists := s.providers[p.Name()]; exists {
			panic("subscription: provider " + string(p.Name()) + " already registered")
		}
		s.providers[p.Name()] = p
	}
}

func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithProviderTimeout bounds every outbound provider call.
func WithProviderTimeout(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithReconciler replaces the default reconciler built over the service store.
func WithReconciler(r *Reconciler) ServiceOption {
	return func(s *Service) {
		if r != nil {
			s.reconciler = r
		}
	}
}

func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates a Service over store.
func NewService(store Store, opts ...ServiceOption) *Service {
	s := &Service{
		store:     store,
		providers: make(map[Provider]BillingProvider),
		log:       slog.Default(),
		timeout:   10 * time.Second,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.reconciler == nil {
		s.reconciler = NewReconciler(store, WithReconcilerLogger(s.log), WithClock(s.now))
	}
	return s
}

// Providers returns the registered providers in a stable order.
func (s *Service) Providers() []Provider {
	out := make([]Provider, 0, len(s.providers))
	for p := range s.providers {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

// Enabled reports whether provider p is registered.
func (s *Service) Enabled(p Provider) bool {
	_, ok := s.providers[p]
	return ok
}

// Initiate creates a checkout with provider p and seeds the user document
// with the returned correlation id. The remote object is not rolled back
// when the seed write fails; the failure is logged with enough context for
// manual reconciliation.
func (s *Service) Initiate(ctx context.Context, p Provider, req InitiateRequest) (*Checkout, error) {
	bp, err := s.provider(p)
	if err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	checkout, err := bp.Initiate(callCtx, req)
	err = timeoutError(callCtx, err)
	cancel()
	if err != nil {
		s.log.WarnContext(ctx, "provider checkout failed",
			logger.Provider(string(p)),
			logger.UserID(req.UserID),
			logger.Error(err),
		)
		return nil, err
	}
	checkout.Provider = p

	err = s.store.Seed(ctx, SeedParams{
		UserID:        req.UserID,
		Provider:      p,
		CorrelationID: checkout.CorrelationID,
		CustomerID:    checkout.CustomerID,
		At:            s.now().UTC(),
	})
	if err != nil {
		s.log.ErrorContext(ctx, "provider object created but seed write failed, reconcile manually",
			logger.Provider(string(p)),
			logger.UserID(req.UserID),
			logger.CorrelationID(checkout.CorrelationID),
			logger.Error(err),
		)
		return nil, storeError(err)
	}

	s.log.InfoContext(ctx, "checkout initiated",
		logger.Provider(string(p)),
		logger.UserID(req.UserID),
		logger.CorrelationID(checkout.CorrelationID),
	)
	return checkout, nil
}

// HandleWebhook authenticates and parses a provider notification and
// reconciles it. A nil error means the delivery must be acknowledged.
func (s *Service) HandleWebhook(ctx context.Context, p Provider, payload []byte, headers http.Header) (Result, error) {
	bp, err := s.provider(p)
	if err != nil {
		return Result{}, err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	ev, err := bp.ParseWebhook(callCtx, payload, headers)
	err = timeoutError(callCtx, err)
	cancel()
	if err != nil {
		s.log.WarnContext(ctx, "provider webhook rejected",
			logger.Provider(string(p)),
			logger.Error(err),
		)
		return Result{}, err
	}

	return s.reconciler.Reconcile(ctx, *ev)
}

// Status returns the subscription flag for userID.
// A user without a document is reported inactive.
func (s *Service) Status(ctx context.Context, userID string) (bool, error) {
	if err := validator.Apply(validator.RequiredString("userId", userID)); err != nil {
		return false, err
	}

	sub, err := s.store.Get(ctx, userID)
	if errors.Is(err, ErrSubscriptionNotFound) {
		return false, nil
	}
	if err != nil {
		return false, storeError(err)
	}
	return sub.SubscriptionActive, nil
}

func (s *Service) provider(p Provider) (BillingProvider, error) {
	bp, ok := s.providers[p]
	if !ok {
		return nil, ErrProviderNotConfigured
	}
	return bp, nil
}

// timeoutError marks err as a provider timeout when the call context ran out.
func timeoutError(ctx context.Context, err error) error {
	if err == nil || errors.Is(err, ErrProviderTimeout) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return errors.Join(ErrProviderTimeout, err)
	}
	return err
}
