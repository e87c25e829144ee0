package subscription

import (
	"slices"
	"strings"
	"time"
)

// Provider identifies a payment provider integration.
type Provider string

const (
	// ProviderStripe is the card checkout provider.
	ProviderStripe Provider = "stripe"
	// ProviderMercadoPago is the regional recurring-billing provider (preapprovals).
	ProviderMercadoPago Provider = "mercadopago"
	// ProviderPayPal is the global subscription provider.
	ProviderPayPal Provider = "paypal"
	// ProviderPaddle is the merchant-of-record checkout provider.
	ProviderPaddle Provider = "paddle"
)

// Providers lists every supported provider.
var Providers = []Provider{ProviderStripe, ProviderMercadoPago, ProviderPayPal, ProviderPaddle}

func (p Provider) String() string { return string(p) }

// Valid reports whether p is one of the supported providers.
func (p Provider) Valid() bool {
	return slices.Contains(Providers, p)
}

// ParseProviders parses a comma-separated provider list, e.g. "stripe,mercadopago".
// Blank entries are skipped and duplicates collapsed.
func ParseProviders(csv string) ([]Provider, error) {
	var out []Provider
	for part := range strings.SplitSeq(csv, ",") {
		p := Provider(strings.ToLower(strings.TrimSpace(part)))
		if p == "" {
			continue
		}
		if !p.Valid() {
			return nil, ErrUnknownProvider
		}
		if !slices.Contains(out, p) {
			out = append(out, p)
		}
	}
	return out, nil
}

// UserSubscription is the per-user subscription document.
type UserSubscription struct {
	UserID             string
	SubscriptionActive bool

	// CorrelationIDs holds the provider-side object id created at initiation
	// (checkout session, preapproval, subscription, transaction), one per provider.
	CorrelationIDs map[Provider]string
	// CustomerIDs holds provider customer/payer ids for reference only.
	CustomerIDs map[Provider]string

	// ActiveProvider is the provider whose event last set the flag.
	ActiveProvider Provider
	// LastEventAt is the provider time of the event that produced the current state.
	LastEventAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// CorrelationID returns the correlation id stored for provider p.
func (u *UserSubscription) CorrelationID(p Provider) string {
	if u == nil || u.CorrelationIDs == nil {
		return ""
	}
	return u.CorrelationIDs[p]
}

// Accepts reports whether an event that occurred at t may overwrite the
// current state. Events older than the last applied one are stale.
func (u *UserSubscription) Accepts(t time.Time) bool {
	if u == nil || u.LastEventAt == nil {
		return true
	}
	return !u.LastEventAt.After(t)
}
