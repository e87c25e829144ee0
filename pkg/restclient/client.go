package restclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// Client sends JSON requests relative to a base URL.
type Client struct {
	baseURL string
	headers http.Header
	maxBody int64
	writer  *retryablehttp.Client
	reader  *retryablehttp.Client
}

// DefaultMaxResponseSize caps how much of a response body is read.
const DefaultMaxResponseSize int64 = 4 << 20

type config struct {
	httpClient   *http.Client
	logger       *slog.Logger
	readRetries  int
	retryWaitMin time.Duration
	retryWaitMax time.Duration
	maxBody      int64
	headers      http.Header
}

// Option configures a Client.
type Option func(*config)

// WithHTTPClient sets the underlying client, e.g. one from oauth2 that
// injects access tokens.
func WithHTTPClient(c *http.Client) Option {
	return func(cfg *config) {
		if c != nil {
			cfg.httpClient = c
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(cfg *config) {
		if l != nil {
			cfg.logger = l
		}
	}
}

// WithReadRetries sets how many times a GET is retried.
func WithReadRetries(n int) Option {
	return func(cfg *config) {
		if n >= 0 {
			cfg.readRetries = n
		}
	}
}

func WithRetryWait(min, max time.Duration) Option {
	return func(cfg *config) {
		if min > 0 && max >= min {
			cfg.retryWaitMin = min
			cfg.retryWaitMax = max
		}
	}
}

// WithMaxResponseSize limits the response body to n bytes. Larger bodies
// fail with ErrResponseTooLarge.
func WithMaxResponseSize(n int64) Option {
	return func(cfg *config) {
		if n > 0 {
			cfg.maxBody = n
		}
	}
}

// WithBearerToken sends token in the Authorization header.
func WithBearerToken(token string) Option {
	return WithHeader("Authorization", "Bearer "+token)
}

// WithHeader adds a header to every request.
func WithHeader(key, value string) Option {
	return func(cfg *config) {
		cfg.headers.Set(key, value)
	}
}

// New returns a Client for baseURL.
func New(baseURL string, opts ...Option) *Client {
	cfg := &config{
		readRetries:  2,
		retryWaitMin: 200 * time.Millisecond,
		retryWaitMax: 2 * time.Second,
		maxBody:      DefaultMaxResponseSize,
		headers:      make(http.Header),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		headers: cfg.headers,
		maxBody: cfg.maxBody,
		writer:  newRetryable(cfg, 0),
		reader:  newRetryable(cfg, cfg.readRetries),
	}
}

func newRetryable(cfg *config, retries int) *retryablehttp.Client {
	c := retryablehttp.NewClient()
	if cfg.httpClient != nil {
		c.HTTPClient = cfg.httpClient
	}
	c.RetryMax = retries
	c.RetryWaitMin = cfg.retryWaitMin
	c.RetryWaitMax = cfg.retryWaitMax
	// Return the last response as-is so callers see the provider's status and body.
	c.ErrorHandler = retryablehttp.PassthroughErrorHandler
	c.Logger = nil
	if cfg.logger != nil {
		c.Logger = cfg.logger
	}
	return c
}

// Request describes a single call.
type Request struct {
	Method  string
	Path    string
	Body    any
	Headers http.Header
}

// Response is a 2xx response.
type Response struct {
	StatusCode int
	Body       []byte
}

// Decode unmarshals the response body into v.
func (r *Response) Decode(v any) error {
	if len(r.Body) == 0 {
		return ErrUnexpectedEnd
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return errors.Join(ErrDecodeBody, err)
	}
	return nil
}

// Get sends a retried GET to path.
func (c *Client) Get(ctx context.Context, path string) (*Response, error) {
	return c.Send(ctx, Request{Method: http.MethodGet, Path: path})
}

// Post sends body as JSON to path without retries.
func (c *Client) Post(ctx context.Context, path string, body any, headers http.Header) (*Response, error) {
	return c.Send(ctx, Request{Method: http.MethodPost, Path: path, Body: body, Headers: headers})
}

// Send performs req. Non-2xx responses are returned as *Error.
func (c *Client) Send(ctx context.Context, req Request) (*Response, error) {
	var body []byte
	if req.Body != nil {
		var err error
		if body, err = json.Marshal(req.Body); err != nil {
			return nil, errors.Join(ErrBuildRequest, err)
		}
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := retryablehttp.NewRequestWithContext(ctx, req.Method, c.baseURL+req.Path, reader)
	if err != nil {
		return nil, errors.Join(ErrBuildRequest, err)
	}

	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.headers {
		httpReq.Header[k] = v
	}
	for k, v := range req.Headers {
		httpReq.Header[k] = v
	}

	client := c.writer
	if req.Method == http.MethodGet || req.Method == http.MethodHead {
		client = c.reader
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, errors.Join(ErrTransport, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, errors.Join(ErrTransport, err)
	}
	if int64(len(respBody)) > c.maxBody {
		return nil, ErrResponseTooLarge
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{StatusCode: resp.StatusCode, Body: respBody}
	}

	return &Response{StatusCode: resp.StatusCode, Body: respBody}, nil
}
