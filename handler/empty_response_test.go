package handler_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/subrelay/handler"
)

func TestEmpty(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/test", nil)

	require.NoError(t, handler.Empty().Render(w, r))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
	assert.Empty(t, w.Header().Get("Content-Type"))
}

func TestEmptyWithStatus(t *testing.T) {
	t.Parallel()

	for _, status := range []int{http.StatusOK, http.StatusAccepted} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			t.Parallel()
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPost, "/test", nil)

			resp := handler.EmptyWithStatus(status)
			require.NoError(t, resp.Render(w, r))
			assert.Equal(t, status, w.Code)
			assert.Empty(t, w.Body.String())
			assert.Equal(t, status, resp.(handler.StatusCoder).StatusCode())
		})
	}
}
