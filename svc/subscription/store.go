package subscription

import (
	"context"
	"time"
)

// Store persists one UserSubscription per user id.
// Implementations must make SetState conditional on the stored LastEventAt
// in a single atomic operation; the reconciler never reads before writing.
type Store interface {
	// Get returns the document for userID or ErrSubscriptionNotFound.
	Get(ctx context.Context, userID string) (*UserSubscription, error)

	// Seed records the correlation id produced by an initiator and marks the
	// user inactive until the provider confirms. The document is created when
	// missing; other correlation ids and lastEventAt are kept.
	Seed(ctx context.Context, params SeedParams) error

	// FindByCorrelationID returns every user whose correlation id for the
	// provider equals id. Zero or several matches are both valid results.
	FindByCorrelationID(ctx context.Context, provider Provider, id string) ([]UserSubscription, error)

	// SetState merge-writes the change, creating the document when missing.
	// It returns false without writing when the stored LastEventAt is newer
	// than change.EventAt.
	SetState(ctx context.Context, change StateChange) (applied bool, err error)
}

// SeedParams describes the local write following a successful initiation.
type SeedParams struct {
	UserID        string
	Provider      Provider
	CorrelationID string
	CustomerID    string
	At            time.Time
}

// StateChange is a conditional merge-write of the subscription flag.
type StateChange struct {
	UserID   string
	Provider Provider
	Active   bool

	// CorrelationID and CustomerID are merged only when non-empty.
	CorrelationID string
	CustomerID    string

	EventAt   time.Time
	UpdatedAt time.Time
}
