package notify

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeliver(t *testing.T) {
	t.Run("stops at first success", func(t *testing.T) {
		calls := 0
		err := Deliver(t.Context(), 3, func(context.Context) error {
			calls++
			if calls < 2 {
				return errors.New("flaky")
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 2, calls)
	})

	t.Run("returns last error after limit", func(t *testing.T) {
		calls := 0
		err := Deliver(t.Context(), 1, func(context.Context) error {
			calls++
			return errors.New("down")
		})
		require.EqualError(t, err, "down")
		assert.Equal(t, 2, calls)
	})

	t.Run("negative limit still sends once", func(t *testing.T) {
		calls := 0
		_ = Deliver(t.Context(), -4, func(context.Context) error { calls++; return errors.New("x") })
		assert.Equal(t, 1, calls)
	})

	t.Run("canceled context interrupts backoff", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
		defer cancel()
		err := Deliver(ctx, 5, func(context.Context) error { return errors.New("down") })
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestPostJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		if r.URL.Path == "/bad" {
			http.Error(w, "no such hook", http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	hc := HTTPClient(nil, 0)
	require.NoError(t, PostJSON(t.Context(), hc, "webhook", srv.URL+"/ok", []byte(`{}`)))

	err := PostJSON(t.Context(), hc, "webhook", srv.URL+"/bad", []byte(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "webhook 404 Not Found: no such hook")
}

func TestOr(t *testing.T) {
	assert.Equal(t, "x", Or("  ", "x"))
	assert.Equal(t, "y", Or("y", "x"))
}
