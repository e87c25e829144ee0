package subscription

import "time"

// EventKind is the normalized meaning of a provider notification.
type EventKind string

const (
	// EventUnrecognized covers every provider event that does not change the flag.
	EventUnrecognized EventKind = "unrecognized"
	// EventActivated means the subscription became active.
	EventActivated EventKind = "activated"
	// EventCancelled means the subscription was cancelled or deleted.
	EventCancelled EventKind = "cancelled"
)

// ParsedEvent is an authenticated provider notification reduced to what
// reconciliation needs. Providers never hand raw payloads to the reconciler.
type ParsedEvent struct {
	Kind     EventKind
	Provider Provider

	// ProviderEvent is the provider's own event name or status, for logs.
	ProviderEvent string
	// EventID is the provider delivery id, used for dedupe when present.
	EventID string

	// UserID is set when the provider echoed the user id back as metadata.
	UserID string
	// CorrelationID is the provider object id the event refers to.
	CorrelationID string
	CustomerID    string

	// OccurredAt is the provider event time, or receipt time when the
	// provider does not supply one.
	OccurredAt time.Time
}

// TargetState maps the event kind to the flag value it sets.
// ok is false for unrecognized events.
func (e ParsedEvent) TargetState() (active bool, ok bool) {
	switch e.Kind {
	case EventActivated:
		return true, true
	case EventCancelled:
		return false, true
	default:
		return false, false
	}
}

// DedupKey returns the key used to detect re-delivery, or "" when the
// provider sent no event id.
func (e ParsedEvent) DedupKey() string {
	if e.EventID == "" {
		return ""
	}
	return string(e.Provider) + ":" + e.EventID
}

func unrecognized(p Provider, providerEvent string, at time.Time) *ParsedEvent {
	return &ParsedEvent{
		Kind:          EventUnrecognized,
		Provider:      p,
		ProviderEvent: providerEvent,
		OccurredAt:    at,
	}
}
