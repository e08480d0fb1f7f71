package kubit

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapResponseWriter(t *testing.T) {
	t.Run("it should default to 200 on write", func(t *testing.T) {
		rec := httptest.NewRecorder()
		w := NewWrapResponseWriter(rec)

		assert.False(t, w.Written())

		n, err := w.Write([]byte("hello"))
		assert.NoError(t, err)
		assert.Equal(t, 5, n)

		assert.True(t, w.Written())
		assert.Equal(t, http.StatusOK, w.Status())
		assert.Equal(t, 5, w.BytesWritten())
		assert.Same(t, rec, w.Unwrap())
	})

	t.Run("it should keep the first status", func(t *testing.T) {
		rec := httptest.NewRecorder()
		w := NewWrapResponseWriter(rec)

		w.WriteHeader(http.StatusContinue)
		w.WriteHeader(http.StatusTeapot)
		w.WriteHeader(http.StatusOK)

		assert.Equal(t, http.StatusTeapot, w.Status())
		assert.Equal(t, http.StatusTeapot, rec.Code)
	})

	t.Run("it should tee the body", func(t *testing.T) {
		var tee bytes.Buffer

		w := NewWrapResponseWriter(httptest.NewRecorder())
		w.Tee(&tee)

		_, _ = w.Write([]byte("a"))
		_, _ = w.Write([]byte("b"))

		assert.Equal(t, "ab", tee.String())
		assert.Equal(t, 2, w.BytesWritten())
	})

	t.Run("it should not wrap twice", func(t *testing.T) {
		w := NewWrapResponseWriter(httptest.NewRecorder())
		assert.Same(t, w, NewWrapResponseWriter(w))
	})

	t.Run("it should flush", func(t *testing.T) {
		rec := httptest.NewRecorder()
		w := NewWrapResponseWriter(rec)

		w.(http.Flusher).Flush()

		assert.True(t, rec.Flushed)
		assert.Equal(t, http.StatusOK, w.Status())
	})
}
