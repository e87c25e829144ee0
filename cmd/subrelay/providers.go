package main

import (
	"log/slog"

	"github.com/dmitrymomot/subrelay/pkg/config"
	"github.com/dmitrymomot/subrelay/svc/subscription"
)

// loadProviders builds a client for every provider listed in csv. A listed
// provider with missing configuration fails startup.
func loadProviders(csv string, log *slog.Logger) ([]subscription.BillingProvider, error) {
	names, err := subscription.ParseProviders(csv)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, ErrNoProviders
	}

	out := make([]subscription.BillingProvider, 0, len(names))
	for _, name := range names {
		p, err := loadProvider(name, log)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func loadProvider(name subscription.Provider, log *slog.Logger) (subscription.BillingProvider, error) {
	switch name {
	case subscription.ProviderStripe:
		var cfg subscription.StripeConfig
		if err := config.Load(&cfg); err != nil {
			return nil, err
		}
		return subscription.NewStripeProvider(cfg)

	case subscription.ProviderMercadoPago:
		var cfg subscription.MercadoPagoConfig
		if err := config.Load(&cfg); err != nil {
			return nil, err
		}
		return subscription.NewMercadoPagoProvider(cfg, subscription.WithMercadoPagoLogger(log))

	case subscription.ProviderPayPal:
		var cfg subscription.PayPalConfig
		if err := config.Load(&cfg); err != nil {
			return nil, err
		}
		return subscription.NewPayPalProvider(cfg, subscription.WithPayPalLogger(log))

	case subscription.ProviderPaddle:
		var cfg subscription.PaddleConfig
		if err := config.Load(&cfg); err != nil {
			return nil, err
		}
		return subscription.NewPaddleProvider(cfg)

	default:
		return nil, subscription.ErrUnknownProvider
	}
}
