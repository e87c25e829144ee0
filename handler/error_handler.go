package handler

import (
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/subrelay/pkg/logger"
	"github.com/dmitrymomot/subrelay/pkg/requestid"
)

// ErrorRenderer turns an error into the response sent to the client.
type ErrorRenderer func(err error) Response

// determineLogLevel maps HTTP status codes to appropriate log levels
func determineLogLevel(statusCode int) slog.Level {
	if statusCode < http.StatusInternalServerError {
		return slog.LevelWarn
	}
	return slog.LevelError
}

// NewErrorHandler creates an error handler that logs the failure and renders
// it with render. A nil render falls back to JSONError.
// Configure this once in main.go and pass to all modules.
func NewErrorHandler(log *slog.Logger, render ErrorRenderer) ErrorHandler[Context] {
	if log == nil {
		log = slog.Default()
	}
	if render == nil {
		render = func(err error) Response { return JSONError(err) }
	}

	return func(ctx Context, err error) {
		r := ctx.Request()
		resp := render(err)

		status := http.StatusInternalServerError
		if sc, ok := resp.(StatusCoder); ok {
			status = sc.StatusCode()
		}

		log.LogAttrs(r.Context(), determineLogLevel(status), "request error",
			logger.RequestID(requestid.FromContext(r.Context())),
			logger.Error(err),
			slog.Int("status_code", status),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			logger.Component("error_handler"),
		)

		if renderErr := resp.Render(ctx.ResponseWriter(), r); renderErr != nil {
			log.Error("failed to render error response",
				logger.Error(renderErr),
				logger.Component("error_handler"),
			)
		}
	}
}
