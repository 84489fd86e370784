package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClientIP(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{"remote addr", "203.0.113.7:54321", nil, "203.0.113.7"},
		{"x-forwarded-for single", "10.0.0.1:80",
			map[string]string{"X-Forwarded-For": "198.51.100.4"}, "198.51.100.4"},
		{"x-forwarded-for chain", "10.0.0.1:80",
			map[string]string{"X-Forwarded-For": "198.51.100.4, 10.0.0.2"}, "198.51.100.4"},
		{"x-real-ip", "10.0.0.1:80",
			map[string]string{"X-Real-IP": "198.51.100.9"}, "198.51.100.9"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIP(r))
		})
	}
}

func TestRateLimiterThrottlesPerClient(t *testing.T) {
	t.Parallel()

	l := NewClientRateLimiter(1, 2)
	t.Cleanup(l.Close)

	assert.True(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.1"))
	assert.False(t, l.Allow("10.0.0.1"), "burst exhausted")

	// Each client key has its own bucket.
	assert.True(t, l.Allow("10.0.0.2"))
}

func TestRateLimiterWrapAnswers429(t *testing.T) {
	t.Parallel()

	l := NewClientRateLimiter(1, 1)
	t.Cleanup(l.Close)
	h := l.Wrap(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	send := func() *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil)
		r.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		h(rec, r)
		return rec
	}

	assert.Equal(t, http.StatusOK, send().Code)

	rec := send()
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"Too many requests"}`, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestRateLimiterCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	l := NewClientRateLimiter(1, 1)
	l.Close()
	l.Close()

	// Buckets still work after the prune loop has stopped.
	assert.True(t, l.Allow("10.0.0.1"))
}

func TestSecurityHeaders(t *testing.T) {
	t.Parallel()

	h := DefaultSecurityHeaders().Middleware(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.NotEmpty(t, rec.Header().Get("Strict-Transport-Security"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rec.Header().Get("Content-Security-Policy"))
}
