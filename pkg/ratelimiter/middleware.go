package ratelimiter

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/dmitrymomot/subrelay/pkg/clientip"
)

// Limiter is satisfied by Bucket.
type Limiter interface {
	Allow(ctx context.Context, key string) (*Result, error)
}

// KeyFunc extracts a rate limit key from the request. An empty key skips
// the limit.
type KeyFunc func(r *http.Request) string

// ByClientIP keys requests by the address clientip.Middleware resolved.
func ByClientIP(r *http.Request) string {
	return clientip.FromContext(r.Context())
}

// MiddlewareOption configures Middleware.
type MiddlewareOption func(*middlewareConfig)

type middlewareConfig struct {
	onLimited func(w http.ResponseWriter, r *http.Request, res *Result)
	onError   func(w http.ResponseWriter, r *http.Request, err error) bool
}

// WithOnLimited renders the denied response. Headers are already set.
func WithOnLimited(fn func(w http.ResponseWriter, r *http.Request, res *Result)) MiddlewareOption {
	return func(c *middlewareConfig) { c.onLimited = fn }
}

// WithOnError handles store failures. Returning true lets the request
// through; the default does.
func WithOnError(fn func(w http.ResponseWriter, r *http.Request, err error) bool) MiddlewareOption {
	return func(c *middlewareConfig) { c.onError = fn }
}

// Middleware limits requests per key and sets X-RateLimit-* headers.
func Middleware(limiter Limiter, keyFunc KeyFunc, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	cfg := middlewareConfig{
		onLimited: func(w http.ResponseWriter, _ *http.Request, _ *Result) {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		},
		onError: func(http.ResponseWriter, *http.Request, error) bool { return true },
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFunc(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			res, err := limiter.Allow(r.Context(), key)
			if err != nil {
				if cfg.onError(w, r, err) {
					next.ServeHTTP(w, r)
				}
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(max(0, res.Remaining)))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))

			if !res.Allowed() {
				// Round up so clients never retry early.
				retry := res.RetryAfter(time.Now())
				h.Set("Retry-After", strconv.Itoa(int((retry+time.Second-1)/time.Second)))
				cfg.onLimited(w, r, res)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
