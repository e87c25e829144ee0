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

	"github.com/dmitrymomot/subrelay/pkg/restclient"
	"github.com/dmitrymomot/subrelay/pkg/webhook"
)

// MercadoPagoConfig holds configuration for MercadoPago preapprovals.
type MercadoPagoConfig struct {
	AccessToken string        `env:"MP_ACCESS_TOKEN,required"`
	BaseURL     string        `env:"MP_BASE_URL" envDefault:"https://api.mercadopago.com"`
	Reason      string        `env:"MP_REASON" envDefault:"Suscripción Mensual - Plan Premium"`
	Amount      float64       `env:"MP_AMOUNT" envDefault:"300"`
	Currency    string        `env:"MP_CURRENCY" envDefault:"UYU"`
	BackURL     string        `env:"MP_BACK_URL" envDefault:"https://horas-planetarias.vercel.app/success"`
	StartOffset time.Duration `env:"MP_START_OFFSET" envDefault:"5m"`
	ReadRetries int           `env:"MP_READ_RETRIES" envDefault:"2"`

	// VerifyStatus re-fetches the preapproval and trusts only the fetched
	// status and external reference.
	VerifyStatus bool `env:"MP_VERIFY_STATUS" envDefault:"true"`

	// WebhookSecret enables x-signature verification when set.
	WebhookSecret   string        `env:"MP_WEBHOOK_SECRET"`
	SignatureMaxAge time.Duration `env:"MP_SIGNATURE_MAX_AGE" envDefault:"10m"`
}

// MercadoPagoProvider implements BillingProvider for MercadoPago monthly
// preapprovals over the REST API.
type MercadoPagoProvider struct {
	config MercadoPagoConfig
	client *restclient.Client
	now    func() time.Time
}

// MercadoPagoOption configures a MercadoPagoProvider.
type MercadoPagoOption func(*mercadoPagoOptions)

type mercadoPagoOptions struct {
	logger *slog.Logger
	now    func() time.Time
}

func WithMercadoPagoLogger(l *slog.Logger) MercadoPagoOption {
	return func(o *mercadoPagoOptions) { o.logger = l }
}

func WithMercadoPagoClock(now func() time.Time) MercadoPagoOption {
	return func(o *mercadoPagoOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// NewMercadoPagoProvider creates a new MercadoPago billing provider.
func NewMercadoPagoProvider(config MercadoPagoConfig, opts ...MercadoPagoOption) (*MercadoPagoProvider, error) {
	if config.AccessToken == "" {
		return nil, ErrMissingAPIKey
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://api.mercadopago.com"
	}

	o := &mercadoPagoOptions{now: time.Now}
	for _, opt := range opts {
		opt(o)
	}

	return &MercadoPagoProvider{
		config: config,
		client: restclient.New(config.BaseURL,
			restclient.WithBearerToken(config.AccessToken),
			restclient.WithReadRetries(config.ReadRetries),
			restclient.WithLogger(o.logger),
		),
		now: o.now,
	}, nil
}

func (p *MercadoPagoProvider) Name() Provider { return ProviderMercadoPago }

type mpAutoRecurring struct {
	Frequency         int     `json:"frequency"`
	FrequencyType     string  `json:"frequency_type"`
	TransactionAmount float64 `json:"transaction_amount"`
	CurrencyID        string  `json:"currency_id"`
	StartDate         string  `json:"start_date"`
	EndDate           string  `json:"end_date"`
}

type mpPreapprovalRequest struct {
	Reason            string          `json:"reason"`
	ExternalReference string          `json:"external_reference"`
	PayerEmail        string          `json:"payer_email"`
	BackURL           string          `json:"back_url"`
	Status            string          `json:"status"`
	AutoRecurring     mpAutoRecurring `json:"auto_recurring"`
}

type mpPreapproval struct {
	ID                string `json:"id"`
	Status            string `json:"status"`
	InitPoint         string `json:"init_point"`
	ExternalReference string `json:"external_reference"`
	PayerID           flexID `json:"payer_id"`
	DateCreated       string `json:"date_created"`
	LastModified      string `json:"last_modified"`
}

// mpDateLayout is the millisecond RFC 3339 form the preapproval API expects.
const mpDateLayout = "2006-01-02T15:04:05.000Z07:00"

// Initiate creates a pending monthly preapproval running for one year.
// The start date is pushed slightly into the future; the API rejects
// start dates in the past.
func (p *MercadoPagoProvider) Initiate(ctx context.Context, req InitiateRequest) (*Checkout, error) {
	start := p.now().UTC().Add(p.config.StartOffset)
	body := mpPreapprovalRequest{
		Reason:            p.config.Reason,
		ExternalReference: req.UserID,
		PayerEmail:        req.Email,
		BackURL:           p.config.BackURL,
		Status:            "pending",
		AutoRecurring: mpAutoRecurring{
			Frequency:         1,
			FrequencyType:     "months",
			TransactionAmount: p.config.Amount,
			CurrencyID:        p.config.Currency,
			StartDate:         start.Format(mpDateLayout),
			EndDate:           start.AddDate(1, 0, 0).Format(mpDateLayout),
		},
	}

	resp, err := p.client.Post(ctx, "/preapproval", body, http.Header{
		"X-Idempotency-Key": []string{uuid.NewString()},
	})
	if err != nil {
		return nil, restError(ProviderMercadoPago, err)
	}

	var created mpPreapproval
	if err := resp.Decode(&created); err != nil {
		return nil, errors.Join(ErrProviderError, err)
	}
	if created.InitPoint == "" {
		return nil, ErrNoCheckoutURL
	}

	return &Checkout{
		Provider:      ProviderMercadoPago,
		CorrelationID: created.ID,
		CustomerID:    string(created.PayerID),
		URL:           created.InitPoint,
	}, nil
}

type mpNotification struct {
	ID          flexID `json:"id"`
	Type        string `json:"type"`
	Topic       string `json:"topic"`
	Action      string `json:"action"`
	DateCreated string `json:"date_created"`
	Data        struct {
		ID     flexID `json:"id"`
		Status string `json:"status"`
	} `json:"data"`
}

// ParseWebhook maps a preapproval notification. Notifications are not
// signed unless MP_WEBHOOK_SECRET is configured, so by default the
// preapproval is re-fetched and only the fetched state is trusted.
func (p *MercadoPagoProvider) ParseWebhook(ctx context.Context, payload []byte, headers http.Header) (*ParsedEvent, error) {
	var n mpNotification
	if err := json.Unmarshal(payload, &n); err != nil {
		return nil, errors.Join(ErrInvalidPayload, err)
	}
	preapprovalID := string(n.Data.ID)

	if p.config.WebhookSecret != "" {
		if err := p.verifySignature(preapprovalID, headers); err != nil {
			return nil, errors.Join(ErrWebhookVerificationFailed, err)
		}
	}

	topic := firstNonEmpty(n.Type, n.Topic)
	occurredAt := parseTime(n.DateCreated, p.now())
	if topic != "" && topic != "preapproval" && topic != "subscription_preapproval" {
		return unrecognized(ProviderMercadoPago, topic, occurredAt), nil
	}
	if preapprovalID == "" {
		return nil, errors.Join(ErrInvalidPayload, errors.New("missing data.id"))
	}

	parsed := unrecognized(ProviderMercadoPago, n.Data.Status, occurredAt)
	parsed.EventID = string(n.ID)
	parsed.CorrelationID = preapprovalID

	status := n.Data.Status
	if p.config.VerifyStatus {
		fetched, err := p.fetch(ctx, preapprovalID)
		if err != nil {
			var httpErr *restclient.Error
			if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound {
				parsed.ProviderEvent = "not_found"
				return parsed, nil
			}
			return nil, restError(ProviderMercadoPago, err)
		}
		status = fetched.Status
		parsed.ProviderEvent = fetched.Status
		parsed.UserID = fetched.ExternalReference
		parsed.CustomerID = string(fetched.PayerID)
		parsed.OccurredAt = parseTime(fetched.LastModified, occurredAt)
	}

	switch strings.ToLower(status) {
	case "authorized":
		parsed.Kind = EventActivated
	case "cancelled":
		parsed.Kind = EventCancelled
	}
	return parsed, nil
}

func (p *MercadoPagoProvider) fetch(ctx context.Context, id string) (*mpPreapproval, error) {
	resp, err := p.client.Get(ctx, "/preapproval/"+url.PathEscape(id))
	if err != nil {
		return nil, err
	}
	var pa mpPreapproval
	if err := resp.Decode(&pa); err != nil {
		return nil, err
	}
	return &pa, nil
}

// verifySignature checks the x-signature header over the manifest
// "id:<data.id>;request-id:<x-request-id>;ts:<ts>;".
func (p *MercadoPagoProvider) verifySignature(dataID string, headers http.Header) error {
	parts := webhook.ParseHeader(headers.Get("X-Signature"), ",")
	ts, v1 := parts["ts"], parts["v1"]
	if ts == "" || v1 == "" {
		return webhook.ErrMissingSignature
	}
	if err := webhook.CheckTimestamp(ts, p.config.SignatureMaxAge, p.now()); err != nil {
		return err
	}

	var manifest strings.Builder
	if dataID != "" {
		manifest.WriteString("id:" + strings.ToLower(dataID) + ";")
	}
	if rid := headers.Get("X-Request-Id"); rid != "" {
		manifest.WriteString("request-id:" + rid + ";")
	}
	manifest.WriteString("ts:" + ts + ";")

	return webhook.Verify(p.config.WebhookSecret, []byte(manifest.String()), v1)
}

// restError converts a restclient failure into a provider error.
func restError(p Provider, err error) error {
	var httpErr *restclient.Error
	if errors.As(err, &httpErr) {
		return newProviderError(p, httpErr.StatusCode, httpErr.Body)
	}
	return errors.Join(ErrProviderError, err)
}

// parseTime parses an RFC 3339 timestamp, returning fallback when s is
// empty or malformed.
func parseTime(s string, fallback time.Time) time.Time {
	if s == "" {
		return fallback.UTC()
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return fallback.UTC()
	}
	return t.UTC()
}

// flexID decodes ids sent either as JSON strings or numbers.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}
