// Package subscription keeps a per-user subscriptionActive flag in sync with
// external payment providers.
//
// Initiators create a checkout object at a provider (Stripe checkout session,
// MercadoPago preapproval, PayPal subscription, Paddle transaction) and seed
// the user's document with the provider's correlation id. Provider webhooks
// are parsed into a ParsedEvent and handed to the Reconciler, which resolves
// the affected users and writes the new flag.
//
// # Architecture
//
//   - BillingProvider: initiates checkouts and parses webhooks into ParsedEvent
//   - ParsedEvent: closed event variant (Activated, Cancelled, Unrecognized)
//   - Store: per-user documents plus the correlation index (memory, mongostore, pgstore)
//   - Reconciler: provider-agnostic resolve-and-write with an ordering guard
//   - Service: wires providers, store and reconciler; bounds provider calls by a timeout
//
// # Reconciliation
//
// An event resolves users either directly (a user id carried in provider
// metadata) or through the correlation index. Zero matches is not an error;
// several matches are all updated. Writes are conditional on the stored
// lastEventAt, so the logically newest event wins regardless of delivery
// order, and replaying an event converges to the same state.
//
// # Usage
//
//	store := subscription.NewMemoryStore()
//	stripe, err := subscription.NewStripeProvider(stripeCfg)
//	if err != nil {
//		return err
//	}
//
//	svc := subscription.NewService(store,
//		subscription.WithProvider(stripe),
//		subscription.WithProviderTimeout(10*time.Second),
//		subscription.WithReconciler(subscription.NewReconciler(store)),
//	)
//
//	checkout, err := svc.Initiate(ctx, subscription.ProviderStripe, subscription.InitiateRequest{
//		UserID:  "u1",
//		Email:   "user@example.com",
//		PriceID: "price_123",
//	})
//
// # Security
//
// The providers do not share one trust boundary.
//
// Stripe and Paddle webhooks are authenticated. The Stripe-Signature and
// Paddle-Signature headers are verified against the raw request body before
// anything is parsed; a failed check returns ErrWebhookVerificationFailed and
// no state changes. The body must reach ParseWebhook byte for byte: any
// re-encoding (JSON binding, whitespace normalisation, charset conversion)
// breaks the signature, so webhook routes read the body raw under a size
// limit and never bind it.
//
// MercadoPago and PayPal webhooks carry no mandatory signature and are trusted
// on transport alone. Anyone who can reach those routes can submit a forged
// event. Mitigations:
//
//   - MP_VERIFY_STATUS (default on) re-fetches the preapproval from the
//     MercadoPago API; the fetched status and external_reference override
//     the body, so a forged body can at most trigger a lookup.
//   - MP_WEBHOOK_SECRET enables the x-signature HMAC check over the
//     id/request-id/ts manifest, with MP_SIGNATURE_MAX_AGE bounding replay.
//   - PAYPAL_VERIFY_STATUS (default off) re-fetches the subscription from the
//     PayPal API before trusting its status. Enable it in production.
//
// Without these, deploy the MercadoPago and PayPal webhook routes behind
// network controls that only admit the providers.
package subscription
