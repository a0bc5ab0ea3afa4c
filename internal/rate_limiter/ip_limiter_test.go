package ratelimiter

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMiddleware(t *testing.T) {
	rl := NewIPRateLimiter(2, time.Hour, CleanupOpts{})
	defer rl.Cancel()

	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	do := func(remote string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/messages/a/b", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusNoContent, do("10.0.0.1:1234").Code)
	assert.Equal(t, http.StatusNoContent, do("10.0.0.1:4321").Code)

	rec := do("10.0.0.1:1234")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.JSONEq(t, `{"success":false,"message":"Too many requests. Try again later."}`, rec.Body.String())

	// other clients have their own bucket
	assert.Equal(t, http.StatusNoContent, do("10.0.0.2:1234").Code)
}

func TestGetClientIP(t *testing.T) {
	rl := NewIPRateLimiter(1, time.Second, CleanupOpts{})
	defer rl.Cancel()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:5000"
	assert.Equal(t, ipAddr("192.0.2.1"), rl.GetClientIP(req))

	req.Header.Set("X-Forwarded-For", "198.51.100.7, 203.0.113.9")
	assert.Equal(t, ipAddr("203.0.113.9"), rl.GetClientIP(req))
}

func TestEvict(t *testing.T) {
	rl := NewIPRateLimiter(1, time.Second, CleanupOpts{TTL: time.Minute, Interval: time.Hour})
	defer rl.Cancel()

	rl.Allow("a")
	rl.evict(time.Now())
	assert.Len(t, rl.limiters, 1)

	rl.evict(time.Now().Add(2 * time.Minute))
	assert.Empty(t, rl.limiters)
	assert.Empty(t, rl.lastSeen)
}
