package subscription

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/dmitrymomot/subrelay/pkg/restclient"
)

const (
	payPalSandboxURL = "https://api-m.sandbox.paypal.com"
	payPalLiveURL    = "https://api-m.paypal.com"
)

// PayPalConfig holds configuration for PayPal billing subscriptions.
type PayPalConfig struct {
	ClientID     string `env:"PAYPAL_CLIENT_ID,required"`
	ClientSecret string `env:"PAYPAL_CLIENT_SECRET,required"`
	PlanID       string `env:"PAYPAL_PLAN_ID,required"`
	Environment  string `env:"PAYPAL_ENVIRONMENT" envDefault:"sandbox"`
	// BaseURL overrides the URL derived from Environment.
	BaseURL     string `env:"PAYPAL_BASE_URL"`
	ReturnURL   string `env:"PAYPAL_RETURN_URL" envDefault:"https://horas-planetarias.vercel.app/success"`
	CancelURL   string `env:"PAYPAL_CANCEL_URL" envDefault:"https://horas-planetarias.vercel.app/cancel"`
	BrandName   string `env:"PAYPAL_BRAND_NAME"`
	ReadRetries int    `env:"PAYPAL_READ_RETRIES" envDefault:"2"`

	// VerifyStatus re-fetches the subscription instead of trusting the
	// event body.
	VerifyStatus bool `env:"PAYPAL_VERIFY_STATUS" envDefault:"false"`
}

// PayPalProvider implements BillingProvider for PayPal subscriptions.
// API calls authenticate with OAuth2 client credentials; tokens are cached
// and refreshed by the oauth2 transport.
type PayPalProvider struct {
	config PayPalConfig
	client *restclient.Client
	now    func() time.Time
}

// PayPalOption configures a PayPalProvider.
type PayPalOption func(*payPalOptions)

type payPalOptions struct {
	logger       *slog.Logger
	now          func() time.Time
	tokenTimeout time.Duration
}

func WithPayPalLogger(l *slog.Logger) PayPalOption {
	return func(o *payPalOptions) { o.logger = l }
}

func WithPayPalClock(now func() time.Time) PayPalOption {
	return func(o *payPalOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// NewPayPalProvider creates a new PayPal billing provider.
func NewPayPalProvider(config PayPalConfig, opts ...PayPalOption) (*PayPalProvider, error) {
	if config.ClientID == "" || config.ClientSecret == "" {
		return nil, ErrMissingAPIKey
	}
	if config.PlanID == "" {
		return nil, ErrMissingPlanID
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		switch strings.ToLower(config.Environment) {
		case "sandbox", "":
			baseURL = payPalSandboxURL
		case "live", "production":
			baseURL = payPalLiveURL
		default:
			return nil, ErrInvalidProviderEnvironment
		}
	}
	baseURL = strings.TrimRight(baseURL, "/")

	o := &payPalOptions{now: time.Now, tokenTimeout: 10 * time.Second}
	for _, opt := range opts {
		opt(o)
	}

	cc := clientcredentials.Config{
		ClientID:     config.ClientID,
		ClientSecret: config.ClientSecret,
		TokenURL:     baseURL + "/v1/oauth2/token",
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, &http.Client{Timeout: o.tokenTimeout})

	return &PayPalProvider{
		config: config,
		client: restclient.New(baseURL,
			restclient.WithHTTPClient(cc.Client(tokenCtx)),
			restclient.WithReadRetries(config.ReadRetries),
			restclient.WithLogger(o.logger),
		),
		now: o.now,
	}, nil
}

func (p *PayPalProvider) Name() Provider { return ProviderPayPal }

type ppSubscriber struct {
	EmailAddress string `json:"email_address"`
}

type ppApplicationContext struct {
	BrandName  string `json:"brand_name,omitempty"`
	UserAction string `json:"user_action"`
	ReturnURL  string `json:"return_url"`
	CancelURL  string `json:"cancel_url"`
}

type ppCreateSubscription struct {
	PlanID             string               `json:"plan_id"`
	CustomID           string               `json:"custom_id"`
	Subscriber         ppSubscriber         `json:"subscriber"`
	ApplicationContext ppApplicationContext `json:"application_context"`
}

type ppLink struct {
	Href   string `json:"href"`
	Rel    string `json:"rel"`
	Method string `json:"method"`
}

type ppSubscription struct {
	ID               string   `json:"id"`
	Status           string   `json:"status"`
	CustomID         string   `json:"custom_id"`
	StatusUpdateTime string   `json:"status_update_time"`
	Links            []ppLink `json:"links"`
	Subscriber       struct {
		PayerID string `json:"payer_id"`
	} `json:"subscriber"`
}

// Initiate creates a subscription for the configured plan and returns its
// approval link.
func (p *PayPalProvider) Initiate(ctx context.Context, req InitiateRequest) (*Checkout, error) {
	body := ppCreateSubscription{
		PlanID:     p.config.PlanID,
		CustomID:   req.UserID,
		Subscriber: ppSubscriber{EmailAddress: req.Email},
		ApplicationContext: ppApplicationContext{
			BrandName:  p.config.BrandName,
			UserAction: "SUBSCRIBE_NOW",
			ReturnURL:  p.config.ReturnURL,
			CancelURL:  p.config.CancelURL,
		},
	}

	resp, err := p.client.Post(ctx, "/v1/billing/subscriptions", body, http.Header{
		"Paypal-Request-Id": []string{uuid.NewString()},
		"Prefer":            []string{"return=minimal"},
	})
	if err != nil {
		return nil, restError(ProviderPayPal, err)
	}

	var created ppSubscription
	if err := resp.Decode(&created); err != nil {
		return nil, errors.Join(ErrProviderError, err)
	}

	for _, l := range created.Links {
		if l.Rel == "approve" && l.Href != "" {
			return &Checkout{
				Provider:      ProviderPayPal,
				CorrelationID: created.ID,
				URL:           l.Href,
			}, nil
		}
	}
	return nil, ErrNoCheckoutURL
}

type ppWebhookEvent struct {
	ID           string         `json:"id"`
	EventType    string         `json:"event_type"`
	CreateTime   string         `json:"create_time"`
	ResourceType string         `json:"resource_type"`
	Resource     ppSubscription `json:"resource"`
}

// ParseWebhook maps BILLING.SUBSCRIPTION.* notifications. PayPal deliveries
// are not signature-checked here; enable VerifyStatus to trust only the
// subscription state fetched from the API.
func (p *PayPalProvider) ParseWebhook(ctx context.Context, payload []byte, _ http.Header) (*ParsedEvent, error) {
	var ev ppWebhookEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, errors.Join(ErrInvalidPayload, err)
	}

	parsed := unrecognized(ProviderPayPal, ev.EventType, parseTime(ev.CreateTime, p.now()))
	parsed.EventID = ev.ID
	parsed.CorrelationID = ev.Resource.ID
	parsed.UserID = ev.Resource.CustomID
	parsed.CustomerID = ev.Resource.Subscriber.PayerID

	switch {
	case strings.HasSuffix(ev.EventType, ".ACTIVATED"):
		parsed.Kind = EventActivated
	case strings.HasSuffix(ev.EventType, ".CANCELLED"):
		parsed.Kind = EventCancelled
	default:
		return parsed, nil
	}

	if !p.config.VerifyStatus || ev.Resource.ID == "" {
		return parsed, nil
	}

	fetched, err := p.fetch(ctx, ev.Resource.ID)
	if err != nil {
		var httpErr *restclient.Error
		if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound {
			parsed.Kind = EventUnrecognized
			return parsed, nil
		}
		return nil, restError(ProviderPayPal, err)
	}

	parsed.UserID = firstNonEmpty(fetched.CustomID, parsed.UserID)
	parsed.CustomerID = firstNonEmpty(fetched.Subscriber.PayerID, parsed.CustomerID)
	parsed.OccurredAt = parseTime(fetched.StatusUpdateTime, parsed.OccurredAt)
	switch fetched.Status {
	case "ACTIVE":
		parsed.Kind = EventActivated
	case "CANCELLED":
		parsed.Kind = EventCancelled
	default:
		parsed.Kind = EventUnrecognized
	}
	return parsed, nil
}

func (p *PayPalProvider) fetch(ctx context.Context, id string) (*ppSubscription, error) {
	resp, err := p.client.Get(ctx, "/v1/billing/subscriptions/"+url.PathEscape(id))
	if err != nil {
		return nil, err
	}
	var sub ppSubscription
	if err := resp.Decode(&sub); err != nil {
		return nil, err
	}
	return &sub, nil
}
