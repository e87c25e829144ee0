package handler_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/subrelay/handler"
)

// Mock response for testing
type mockResponse struct {
	statusCode int
	body       string
	renderErr  error
}

func (m mockResponse) Render(w http.ResponseWriter, r *http.Request) error {
	if m.renderErr != nil {
		return m.renderErr
	}
	w.WriteHeader(m.statusCode)
	_, err := w.Write([]byte(m.body))
	return err
}

type testRequest struct {
	Name string
}

func TestWrap(t *testing.T) {
	t.Parallel()

	t.Run("basic handler without options", func(t *testing.T) {
		t.Parallel()
		h := handler.HandlerFunc[handler.Context, testRequest](func(ctx handler.Context, req testRequest) handler.Response {
			assert.NotNil(t, ctx.Request())
			assert.Empty(t, req.Name)
			return mockResponse{statusCode: http.StatusOK, body: "success"}
		})

		rec := httptest.NewRecorder()
		handler.Wrap(h)(rec, httptest.NewRequest(http.MethodGet, "/test", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "success", rec.Body.String())
	})

	t.Run("render error goes to the error handler", func(t *testing.T) {
		t.Parallel()
		h := handler.HandlerFunc[handler.Context, testRequest](func(handler.Context, testRequest) handler.Response {
			return mockResponse{renderErr: errors.New("render failed")}
		})

		rec := httptest.NewRecorder()
		handler.Wrap(h)(rec, httptest.NewRequest(http.MethodGet, "/test", nil))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.JSONEq(t, `{"error":{"code":"internal_error","message":"Internal Server Error"}}`, rec.Body.String())
	})

	t.Run("nil response", func(t *testing.T) {
		t.Parallel()
		var got error
		h := handler.HandlerFunc[handler.Context, testRequest](func(handler.Context, testRequest) handler.Response {
			return nil
		})

		rec := httptest.NewRecorder()
		handler.Wrap(h,
			handler.WithErrorHandler[handler.Context, testRequest](func(ctx handler.Context, err error) {
				got = err
				ctx.ResponseWriter().WriteHeader(http.StatusTeapot)
			}),
		)(rec, httptest.NewRequest(http.MethodGet, "/test", nil))

		assert.ErrorIs(t, got, handler.ErrNilResponse)
		assert.Equal(t, http.StatusTeapot, rec.Code)
	})

	t.Run("binders run in order", func(t *testing.T) {
		t.Parallel()
		first := func(_ *http.Request, v any) error {
			v.(*testRequest).Name = "first"
			return nil
		}
		second := func(_ *http.Request, v any) error {
			v.(*testRequest).Name += "+second"
			return nil
		}
		h := handler.HandlerFunc[handler.Context, testRequest](func(_ handler.Context, req testRequest) handler.Response {
			return mockResponse{statusCode: http.StatusOK, body: req.Name}
		})

		rec := httptest.NewRecorder()
		handler.Wrap(h,
			handler.WithBinders[handler.Context, testRequest](first, second),
		)(rec, httptest.NewRequest(http.MethodPost, "/test", nil))

		assert.Equal(t, "first+second", rec.Body.String())
	})

	t.Run("binder error stops the chain", func(t *testing.T) {
		t.Parallel()
		called := false
		h := handler.HandlerFunc[handler.Context, testRequest](func(handler.Context, testRequest) handler.Response {
			called = true
			return handler.Empty()
		})

		rec := httptest.NewRecorder()
		handler.Wrap(h,
			handler.WithBinder[handler.Context, testRequest](func(*http.Request, any) error {
				return handler.ErrBadRequest
			}),
		)(rec, httptest.NewRequest(http.MethodPost, "/test", nil))

		assert.False(t, called)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("decorators wrap outermost first", func(t *testing.T) {
		t.Parallel()
		var trace []string
		decorator := func(name string) handler.Decorator[handler.Context, testRequest] {
			return func(next handler.HandlerFunc[handler.Context, testRequest]) handler.HandlerFunc[handler.Context, testRequest] {
				return func(ctx handler.Context, req testRequest) handler.Response {
					trace = append(trace, name)
					return next(ctx, req)
				}
			}
		}
		h := handler.HandlerFunc[handler.Context, testRequest](func(handler.Context, testRequest) handler.Response {
			trace = append(trace, "handler")
			return handler.Empty()
		})

		rec := httptest.NewRecorder()
		handler.Wrap(h,
			handler.WithDecorators(decorator("outer"), decorator("inner")),
		)(rec, httptest.NewRequest(http.MethodGet, "/test", nil))

		assert.Equal(t, []string{"outer", "inner", "handler"}, trace)
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("custom context factory", func(t *testing.T) {
		t.Parallel()
		created := false
		factory := func(w http.ResponseWriter, r *http.Request) handler.Context {
			created = true
			return handler.NewContext(w, r)
		}
		h := handler.HandlerFunc[handler.Context, testRequest](func(handler.Context, testRequest) handler.Response {
			return handler.Empty()
		})

		rec := httptest.NewRecorder()
		handler.Wrap(h,
			handler.WithContextFactory[handler.Context, testRequest](factory),
		)(rec, httptest.NewRequest(http.MethodGet, "/test", nil))

		require.True(t, created)
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})
}

func TestContext(t *testing.T) {
	t.Parallel()

	type key struct{}
	r := httptest.NewRequest(http.MethodGet, "/test", nil)
	r = r.WithContext(context.WithValue(r.Context(), key{}, "value"))
	w := httptest.NewRecorder()

	ctx := handler.NewContext(w, r)
	assert.Equal(t, "value", ctx.Value(key{}))
	assert.Same(t, r, ctx.Request())
	assert.Same(t, w, ctx.ResponseWriter())
	assert.NoError(t, ctx.Err())
}

func TestError(t *testing.T) {
	t.Parallel()

	sentinel := errors.New("lookup failed")
	var got error
	h := handler.HandlerFunc[handler.Context, testRequest](func(handler.Context, testRequest) handler.Response {
		return handler.Error(sentinel)
	})

	rec := httptest.NewRecorder()
	handler.Wrap(h,
		handler.WithErrorHandler[handler.Context, testRequest](func(ctx handler.Context, err error) {
			got = err
			_ = handler.JSONError(handler.ErrServiceUnavailable).Render(ctx.ResponseWriter(), ctx.Request())
		}),
	)(rec, httptest.NewRequest(http.MethodGet, "/test", nil))

	assert.ErrorIs(t, got, sentinel)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
