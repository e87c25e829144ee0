// Command subrelay runs the subscription reconciliation relay.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/subrelay/modules/billing"
	"github.com/dmitrymomot/subrelay/pkg/clientip"
	"github.com/dmitrymomot/subrelay/pkg/config"
	"github.com/dmitrymomot/subrelay/pkg/httpserver"
	"github.com/dmitrymomot/subrelay/pkg/logger"
	"github.com/dmitrymomot/subrelay/pkg/requestid"
	"github.com/dmitrymomot/subrelay/svc/subscription"
)

type appConfig struct {
	Env                string        `env:"APP_ENV" envDefault:"development"`
	Name               string        `env:"APP_NAME" envDefault:"subrelay"`
	Providers          string        `env:"BILLING_PROVIDERS" envDefault:"stripe,mercadopago,paypal"`
	StoreDriver        string        `env:"STORE_DRIVER" envDefault:"mongo"`
	ProviderTimeout    time.Duration `env:"PROVIDER_TIMEOUT" envDefault:"10s"`
	BodyLimit          int64         `env:"WEBHOOK_BODY_LIMIT" envDefault:"1048576"`
	EventDedup         string        `env:"EVENT_DEDUP" envDefault:"none"`
	EventDedupTTL      time.Duration `env:"EVENT_DEDUP_TTL" envDefault:"72h"`
	EventDedupCapacity int           `env:"EVENT_DEDUP_CAPACITY" envDefault:"100000"`
	RateLimit          string        `env:"RATE_LIMIT" envDefault:"none"`
	MaxFanOut          int           `env:"RECONCILE_MAX_FAN_OUT" envDefault:"8"`
	AllowedOrigins     []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
	TrustedIPHeaders   []string      `env:"CLIENT_IP_HEADERS" envSeparator:","`
	StartupTimeout     time.Duration `env:"STARTUP_TIMEOUT" envDefault:"1m"`
	ReadinessTimeout   time.Duration `env:"READINESS_TIMEOUT" envDefault:"2s"`
}

var (
	ErrNoProviders             = errors.New("no billing providers enabled")
	ErrUnknownStoreDriver      = errors.New("unknown store driver")
	ErrUnknownDedupDriver      = errors.New("unknown event dedup driver")
	ErrUnknownRateLimitDriver  = errors.New("unknown rate limit driver")
	ErrMemoryStoreInProduction = errors.New("memory store is not allowed in production")
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var cfg appConfig
	if err := config.Load(&cfg); err != nil {
		return err
	}

	log := logger.New(
		logger.WithEnvironment(cfg.Env, cfg.Name),
		logger.WithContextExtractors(
			requestid.LoggerExtractor(),
			clientip.LoggerExtractor(),
		),
	)
	logger.SetAsDefault(log)

	startCtx, cancel := context.WithTimeout(context.Background(), cfg.StartupTimeout)
	defer cancel()

	var deps dependencies
	store, err := openStore(startCtx, cfg, log, &deps)
	if err != nil {
		deps.close(log)
		return err
	}

	dedup, err := openDeduplicator(startCtx, cfg, &deps)
	if err != nil {
		deps.close(log)
		return err
	}

	limiter, err := openRateLimiter(startCtx, cfg, &deps)
	if err != nil {
		deps.close(log)
		return err
	}

	providers, err := loadProviders(cfg.Providers, log)
	if err != nil {
		deps.close(log)
		return err
	}

	reconciler := subscription.NewReconciler(store,
		subscription.WithReconcilerLogger(log),
		subscription.WithDeduplicator(dedup),
		subscription.WithMaxFanOut(cfg.MaxFanOut),
	)
	opts := []subscription.ServiceOption{
		subscription.WithLogger(log),
		subscription.WithProviderTimeout(cfg.ProviderTimeout),
		subscription.WithReconciler(reconciler),
	}
	for _, p := range providers {
		opts = append(opts, subscription.WithProvider(p))
	}
	svc := subscription.NewService(store, opts...)

	router := billing.Router(billing.RouterOptions{
		Billing: billing.NewHandlers(svc,
			billing.WithLogger(log),
			billing.WithBodyLimit(cfg.BodyLimit),
			billing.WithCheckoutLimiter(limiter),
		),
		Readiness:        httpserver.ReadinessHandler(log, cfg.ReadinessTimeout, deps.checks...),
		AllowedOrigins:   cfg.AllowedOrigins,
		TrustedIPHeaders: cfg.TrustedIPHeaders,
		Logger:           log,
	})

	var httpCfg httpserver.Config
	if err := config.Load(&httpCfg); err != nil {
		deps.close(log)
		return err
	}

	serverOpts := append([]httpserver.Option{httpserver.WithLogger(log)}, deps.hooks...)
	server := httpserver.NewFromConfig(httpCfg, serverOpts...)

	log.Info("subrelay starting",
		slog.Any("providers", svc.Providers()),
		slog.String("store", cfg.StoreDriver),
		slog.String("dedup", cfg.EventDedup),
		slog.String("rate_limit", cfg.RateLimit),
	)
	return server.Run(context.Background(), router)
}

// dependencies collects readiness checks and shutdown hooks of opened
// infrastructure clients.
type dependencies struct {
	checks  []httpserver.Check
	hooks   []httpserver.Option
	closers []func(context.Context) error
	redis   *goredis.Client
}

func (d *dependencies) add(name string, check, closer func(context.Context) error) {
	if check != nil {
		d.checks = append(d.checks, httpserver.Check{Name: name, Fn: check})
	}
	if closer != nil {
		d.hooks = append(d.hooks, httpserver.WithShutdownHook(name, closer))
		d.closers = append(d.closers, closer)
	}
}

// close releases clients when startup fails before the server owns them.
func (d *dependencies) close(log *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, c := range d.closers {
		if err := c(ctx); err != nil {
			log.Warn("failed to close dependency", logger.Error(err))
		}
	}
}
