package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestRateLimiter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rl := NewRateLimiter(ctx, rate.Limit(2), 2)
	handler := rl.Limit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	request := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = ip + ":1234"
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr
	}

	assert.Equal(t, http.StatusOK, request("192.168.1.1").Code)
	assert.Equal(t, http.StatusOK, request("192.168.1.1").Code)

	limited := request("192.168.1.1")
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.Equal(t, "1", limited.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, request("192.168.1.2").Code, "other clients keep their own bucket")
}

func TestRateLimiterEvictsIdleVisitors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rl := NewRateLimiter(ctx, rate.Limit(1), 1)
	rl.limiterFor("10.0.0.1")
	rl.limiterFor("10.0.0.2")

	rl.mu.Lock()
	rl.visitors["10.0.0.1"].lastSeen = time.Now().Add(-visitorTTL - time.Second)
	rl.mu.Unlock()

	rl.evict(time.Now())

	rl.mu.Lock()
	defer rl.mu.Unlock()
	require.Len(t, rl.visitors, 1)
	assert.Contains(t, rl.visitors, "10.0.0.2")
}

func TestLoggingMiddlewareRequestID(t *testing.T) {
	var seen string
	handler := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
		w.WriteHeader(http.StatusAccepted)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusAccepted, rr.Code)
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rr.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, "req-123", seen)
	assert.Equal(t, "req-123", rr.Header().Get("X-Request-ID"))
}
