package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	call := func(h http.Handler, ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		req.RemoteAddr = ip + ":51000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	t.Run("burst then reject", func(t *testing.T) {
		now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
		rl := NewRateLimiter(3)
		rl.now = func() time.Time { return now }
		h := rl.Limit(ok)

		for range 3 {
			require.Equal(t, http.StatusNoContent, call(h, "10.0.0.1").Code)
		}

		rec := call(h, "10.0.0.1")
		require.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "20", rec.Header().Get("Retry-After"))
		assert.JSONEq(t, `{"error": "service_error", "message": "Too many requests"}`, rec.Body.String())

		// Other clients are not affected
		require.Equal(t, http.StatusNoContent, call(h, "10.0.0.2").Code)

		// One token refilled every 20 seconds
		now = now.Add(25 * time.Second)
		require.Equal(t, http.StatusNoContent, call(h, "10.0.0.1").Code)
		require.Equal(t, http.StatusTooManyRequests, call(h, "10.0.0.1").Code)
	})

	t.Run("idle visitors pruned", func(t *testing.T) {
		now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
		rl := NewRateLimiter(1)
		rl.now = func() time.Time { return now }
		h := rl.Limit(ok)

		call(h, "10.0.0.1")
		call(h, "10.0.0.2")
		require.Len(t, rl.visitors, 2)

		now = now.Add(idleLimiterTTL + time.Second)
		call(h, "10.0.0.3")

		require.Len(t, rl.visitors, 1)
		require.Contains(t, rl.visitors, "10.0.0.3")
	})

	t.Run("disabled", func(t *testing.T) {
		h := NewRateLimiter(0).Limit(ok)

		for range 10 {
			require.Equal(t, http.StatusNoContent, call(h, "10.0.0.1").Code)
		}
	})
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	req.RemoteAddr = "192.168.1.10:4000"
	assert.Equal(t, "192.168.1.10", ClientIP(req))

	req.RemoteAddr = "[::1]:4000"
	assert.Equal(t, "::1", ClientIP(req))

	req.RemoteAddr = "unix"
	assert.Equal(t, "unix", ClientIP(req))
}
