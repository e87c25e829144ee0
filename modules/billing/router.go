package billing

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/dmitrymomot/subrelay/pkg/clientip"
	"github.com/dmitrymomot/subrelay/pkg/httpserver"
	"github.com/dmitrymomot/subrelay/pkg/logger"
	"github.com/dmitrymomot/subrelay/pkg/requestid"
)

type Mountable interface {
	Handle() http.Handler
}

// RouterOptions configures the public router.
type RouterOptions struct {
	Billing          Mountable
	// Readiness serves /health/ready; nil answers READY unconditionally.
	Readiness        http.Handler
	// AllowedOrigins for CORS; empty allows any origin.
	AllowedOrigins   []string
	// TrustedIPHeaders lists proxy headers carrying the client address.
	TrustedIPHeaders []string

	Logger *slog.Logger
}

// Router creates the service router with request ids, client addresses,
// access logging, panic recovery and CORS in front of the health endpoints
// and the billing routes.
//
// Example:
//
//	r := billing.Router(billing.RouterOptions{
//		Billing:   billing.NewHandlers(svc, billing.WithLogger(log)),
//		Readiness: httpserver.ReadinessHandler(log, 2*time.Second, checks...),
//	})
func Router(opts RouterOptions) chi.Router {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(
		requestid.Middleware,
		clientip.Middleware(opts.TrustedIPHeaders...),
		accessLog(log),
		middleware.Recoverer,
		cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", requestid.Header},
			ExposedHeaders: []string{requestid.Header},
			MaxAge:         300,
		}),
	)

	r.Get("/health/live", httpserver.LivenessHandler())
	if opts.Readiness != nil {
		r.Method(http.MethodGet, "/health/ready", opts.Readiness)
	} else {
		r.Get("/health/ready", httpserver.ReadinessHandler(log, time.Second))
	}

	if opts.Billing != nil {
		r.Mount("/", opts.Billing.Handle())
	}

	return r
}

// accessLog logs one line per request with the status and duration.
func accessLog(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			log.LogAttrs(r.Context(), slog.LevelInfo, "http request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status_code", status),
				slog.Int("bytes", ww.BytesWritten()),
				logger.Duration(time.Since(start)),
				logger.Component("http"),
			)
		})
	}
}
