package subscription

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/dmitrymomot/subrelay/pkg/logger"
)

// Outcome describes what reconciliation did with an event.
type Outcome string

const (
	OutcomeIgnored   Outcome = "ignored"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeNoMatch   Outcome = "no_match"
	OutcomeApplied   Outcome = "applied"
	OutcomeStale     Outcome = "stale"
)

// Result is the reconciliation report for a single event.
type Result struct {
	Outcome Outcome
	Active  bool
	// Applied lists users whose document was written.
	Applied []string
	// Stale lists users whose document already reflected a newer event.
	Stale []string
}

// Reconciler applies parsed provider events to the store.
// It knows nothing about provider payloads.
type Reconciler struct {
	store     Store
	dedup     Deduplicator
	log       *slog.Logger
	now       func() time.Time
	maxFanOut int
}

// ReconcilerOption configures a Reconciler.
type ReconcilerOption func(*Reconciler)

func WithReconcilerLogger(l *slog.Logger) ReconcilerOption {
	return func(r *Reconciler) {
		if l != nil {
			r.log = l
		}
	}
}

// WithDeduplicator enables skipping of re-delivered events.
func WithDeduplicator(d Deduplicator) ReconcilerOption {
	return func(r *Reconciler) {
		if d != nil {
			r.dedup = d
		}
	}
}

// WithClock overrides the time source used for updatedAt and for events
// that carry no provider timestamp.
func WithClock(now func() time.Time) ReconcilerOption {
	return func(r *Reconciler) {
		if now != nil {
			r.now = now
		}
	}
}

// WithMaxFanOut bounds concurrent writes when an event matches several users.
func WithMaxFanOut(n int) ReconcilerOption {
	return func(r *Reconciler) {
		if n > 0 {
			r.maxFanOut = n
		}
	}
}

// NewReconciler returns a Reconciler writing to store.
func NewReconciler(store Store, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		store:     store,
		dedup:     noopDeduplicator{},
		log:       slog.Default(),
		now:       time.Now,
		maxFanOut: 8,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile resolves the users an event refers to and conditionally writes
// the new flag to each of them. Unrecognized events and events matching no
// user are not errors. Errors are store failures only.
func (r *Reconciler) Reconcile(ctx context.Context, ev ParsedEvent) (Result, error) {
	log := r.log.With(
		logger.Provider(string(ev.Provider)),
		logger.EventType(ev.ProviderEvent),
		logger.EventID(ev.EventID),
	)

	active, ok := ev.TargetState()
	if !ok {
		log.InfoContext(ctx, "ignoring unrecognized provider event")
		return Result{Outcome: OutcomeIgnored}, nil
	}

	key := ev.DedupKey()
	if key != "" {
		seen, err := r.dedup.Seen(ctx, key)
		switch {
		case err != nil:
			log.WarnContext(ctx, "event dedupe lookup failed", logger.Error(err))
		case seen:
			log.InfoContext(ctx, "skipping re-delivered provider event")
			return Result{Outcome: OutcomeDuplicate, Active: active}, nil
		}
	}

	userIDs, err := r.resolve(ctx, log, ev)
	if err != nil {
		return Result{}, err
	}
	if len(userIDs) == 0 {
		log.WarnContext(ctx, "no user matches provider event", logger.CorrelationID(ev.CorrelationID))
		r.remember(ctx, log, key)
		return Result{Outcome: OutcomeNoMatch, Active: active}, nil
	}

	now := r.now().UTC()
	eventAt := ev.OccurredAt.UTC()
	if ev.OccurredAt.IsZero() {
		eventAt = now
	}

	res, err := r.apply(ctx, userIDs, func(userID string) StateChange {
		return StateChange{
			UserID:        userID,
			Provider:      ev.Provider,
			Active:        active,
			CorrelationID: ev.CorrelationID,
			CustomerID:    ev.CustomerID,
			EventAt:       eventAt,
			UpdatedAt:     now,
		}
	})
	if err != nil {
		log.ErrorContext(ctx, "failed to apply provider event",
			logger.Error(err),
			slog.Any("applied_users", res.Applied),
		)
		return res, err
	}
	res.Active = active

	for _, id := range res.Stale {
		log.InfoContext(ctx, "provider event is older than stored state", logger.UserID(id))
	}
	for _, id := range res.Applied {
		log.InfoContext(ctx, "subscription state updated",
			logger.UserID(id),
			slog.Bool("subscription_active", active),
		)
	}

	r.remember(ctx, log, key)
	return res, nil
}

func (r *Reconciler) resolve(ctx context.Context, log *slog.Logger, ev ParsedEvent) ([]string, error) {
	if ev.UserID != "" {
		return []string{ev.UserID}, nil
	}
	if ev.CorrelationID == "" {
		return nil, nil
	}

	matches, err := r.store.FindByCorrelationID(ctx, ev.Provider, ev.CorrelationID)
	if err != nil {
		return nil, storeError(err)
	}
	if len(matches) > 1 {
		log.WarnContext(ctx, "correlation id matches several users",
			logger.CorrelationID(ev.CorrelationID),
			slog.Int("matches", len(matches)),
		)
	}

	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, m.UserID)
	}
	return ids, nil
}

type applyResult struct {
	userID  string
	applied bool
}

func (r *Reconciler) apply(ctx context.Context, userIDs []string, change func(string) StateChange) (Result, error) {
	p := pool.NewWithResults[applyResult]().
		WithContext(ctx).
		WithMaxGoroutines(r.maxFanOut)

	for _, id := range userIDs {
		p.Go(func(ctx context.Context) (applyResult, error) {
			applied, err := r.store.SetState(ctx, change(id))
			if err != nil {
				return applyResult{}, storeError(err)
			}
			return applyResult{userID: id, applied: applied}, nil
		})
	}

	results, err := p.Wait()

	var res Result
	for _, ar := range results {
		if ar.userID == "" {
			continue
		}
		if ar.applied {
			res.Applied = append(res.Applied, ar.userID)
		} else {
			res.Stale = append(res.Stale, ar.userID)
		}
	}
	res.Outcome = OutcomeStale
	if len(res.Applied) > 0 {
		res.Outcome = OutcomeApplied
	}
	return res, err
}

func (r *Reconciler) remember(ctx context.Context, log *slog.Logger, key string) {
	if key == "" {
		return
	}
	if err := r.dedup.Remember(ctx, key); err != nil {
		log.WarnContext(ctx, "failed to record processed event", logger.Error(err))
	}
}

func storeError(err error) error {
	if errors.Is(err, ErrStore) {
		return err
	}
	return errors.Join(ErrStore, err)
}
