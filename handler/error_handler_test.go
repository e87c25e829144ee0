package handler_test

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/subrelay/handler"
	"github.com/dmitrymomot/subrelay/pkg/logger"
	"github.com/dmitrymomot/subrelay/pkg/requestid"
)

func TestNewErrorHandler(t *testing.T) {
	t.Parallel()

	t.Run("default renderer", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		log := logger.New(logger.WithOutput(&buf), logger.WithFormat(logger.FormatJSON))
		onError := handler.NewErrorHandler(log, nil)

		r := httptest.NewRequest(http.MethodPost, "/checkout-card", nil)
		r = r.WithContext(requestid.WithContext(r.Context(), "req-1"))
		w := httptest.NewRecorder()
		onError(handler.NewContext(w, r), handler.ErrBadRequest)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.JSONEq(t, `{"error":{"code":"bad_request","message":"Bad Request"}}`, w.Body.String())
		assert.Contains(t, buf.String(), `"level":"WARN"`)
		assert.Contains(t, buf.String(), `"request_id":"req-1"`)
		assert.Contains(t, buf.String(), `"status_code":400`)
	})

	t.Run("custom renderer", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		log := logger.New(logger.WithOutput(&buf), logger.WithFormat(logger.FormatJSON))
		onError := handler.NewErrorHandler(log, func(err error) handler.Response {
			return handler.JSONError(handler.ErrServiceUnavailable, handler.WithErrorMessage(err.Error()))
		})

		w := httptest.NewRecorder()
		onError(handler.NewContext(w, httptest.NewRequest(http.MethodGet, "/", nil)), errors.New("timed out"))

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Contains(t, w.Body.String(), "timed out")
		assert.Contains(t, buf.String(), `"level":"ERROR"`)
	})
}
