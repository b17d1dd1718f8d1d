package middleware

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/platinummonkey/fuelops/pkg/auth"
	"github.com/platinummonkey/fuelops/pkg/contextkeys"
	"github.com/platinummonkey/fuelops/pkg/directory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRecorder struct {
	mu      sync.Mutex
	limited map[string]int
}

func (r *countingRecorder) RecordRateLimited(limiter string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.limited == nil {
		r.limited = make(map[string]int)
	}
	r.limited[limiter]++
}

func TestRateLimiter_Allow(t *testing.T) {
	config := &RateLimitConfig{
		RequestsPerWindow: 10,
		WindowDuration:    time.Second,
		BurstSize:         2,
	}
	limiter := NewRateLimiter(config)

	allowedCount := 0
	for i := 0; i < config.RequestsPerWindow+config.BurstSize+5; i++ {
		if limiter.Allow("test-user") {
			allowedCount++
		}
	}
	assert.Equal(t, config.RequestsPerWindow+config.BurstSize, allowedCount)
}

func TestRateLimiter_TokenRefill(t *testing.T) {
	now := time.Now()
	limiter := NewRateLimiter(&RateLimitConfig{RequestsPerWindow: 10, WindowDuration: time.Second})
	limiter.now = func() time.Time { return now }

	for i := 0; i < 10; i++ {
		require.True(t, limiter.Allow("k"))
	}
	decision := limiter.Take(context.Background(), "k")
	assert.False(t, decision.Allowed)
	assert.Equal(t, 100*time.Millisecond, decision.RetryAfter)

	now = now.Add(500 * time.Millisecond)
	assert.Equal(t, 0, limiter.Remaining("k"))
	assert.True(t, limiter.Allow("k"))
	assert.Equal(t, 4, limiter.Remaining("k"))
}

func TestRateLimiter_Remaining(t *testing.T) {
	limiter := NewRateLimiter(&RateLimitConfig{RequestsPerWindow: 5, WindowDuration: time.Minute, BurstSize: 1})

	assert.Equal(t, 6, limiter.Remaining("unseen"))
	limiter.Allow("seen")
	limiter.Allow("seen")
	assert.Equal(t, 4, limiter.Remaining("seen"))
}

func TestRateLimiter_EvictsLeastRecentKeys(t *testing.T) {
	limiter := NewRateLimiter(&RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Minute, MaxKeys: 2})

	assert.True(t, limiter.Allow("a"))
	assert.True(t, limiter.Allow("b"))
	assert.True(t, limiter.Allow("c"))
	assert.Equal(t, 2, limiter.Len())

	// "a" was evicted so it starts with a fresh bucket
	assert.True(t, limiter.Allow("a"))
	assert.False(t, limiter.Allow("c"))
}

func TestNewRateLimiter_NilConfig(t *testing.T) {
	limiter := NewRateLimiter(nil)
	assert.Equal(t, DefaultRateLimitConfig(), limiter.config)
}

func TestRateLimiter_Concurrency(t *testing.T) {
	limiter := NewRateLimiter(&RateLimitConfig{RequestsPerWindow: 50, WindowDuration: time.Hour})

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if limiter.Allow("shared") {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, allowed)
}

func TestRateLimitConfigs(t *testing.T) {
	api := DefaultRateLimitConfig()
	assert.Equal(t, 20, api.RequestsPerWindow)
	assert.Equal(t, time.Second, api.WindowDuration)
	assert.Equal(t, 40, api.BurstSize)

	login := LoginRateLimitConfig()
	assert.Equal(t, 10, login.RequestsPerWindow)
	assert.Equal(t, time.Minute, login.WindowDuration)
	assert.Zero(t, login.BurstSize)
}

func TestKeyFuncs(t *testing.T) {
	t.Run("client ip ignores forwarding headers", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.0.2.1:5555"
		req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
		assert.Equal(t, "ip:192.0.2.1", ClientIPKey(req))
	})

	t.Run("caller falls back to ip", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.0.2.1:5555"
		assert.Equal(t, "ip:192.0.2.1", CallerKey(req))
	})

	t.Run("caller", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		user := &directory.User{ID: "emp-1", Role: directory.RoleEmployee}
		req = req.WithContext(contextkeys.WithAuth(req.Context(), auth.NewAuthContext(user, "tok")))
		assert.Equal(t, "user:emp-1", CallerKey(req))
	})

	t.Run("login keeps body", func(t *testing.T) {
		body := `{"email":" Owner@Example.COM ","password":"secret"}`
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(body))
		req.RemoteAddr = "192.0.2.1:5555"

		assert.Equal(t, "ip:192.0.2.1:email:owner@example.com", LoginKey(req))

		rest, err := io.ReadAll(req.Body)
		require.NoError(t, err)
		assert.Equal(t, body, string(rest))
	})

	t.Run("login keeps bodies larger than the key buffer", func(t *testing.T) {
		body := `{"email":"owner@example.com","password":"` + strings.Repeat("x", maxLoginBody) + `"}`
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(body))
		req.RemoteAddr = "192.0.2.1:5555"

		assert.Equal(t, "ip:192.0.2.1", LoginKey(req))

		rest, err := io.ReadAll(req.Body)
		require.NoError(t, err)
		assert.Equal(t, body, string(rest))
		assert.NoError(t, req.Body.Close())
	})

	t.Run("login without json", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader("garbage"))
		req.RemoteAddr = "192.0.2.1:5555"
		assert.Equal(t, "ip:192.0.2.1", LoginKey(req))
	})
}

func TestRateLimit_Middleware(t *testing.T) {
	limiter := NewRateLimiter(&RateLimitConfig{RequestsPerWindow: 2, WindowDuration: time.Minute})
	recorder := &countingRecorder{}
	handler := RateLimit("api", limiter, ClientIPKey, recorder)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	serve := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/stations", nil)
		req.RemoteAddr = ip + ":1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	first := serve("192.0.2.1")
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "2", first.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", first.Header().Get("X-RateLimit-Remaining"))

	assert.Equal(t, http.StatusOK, serve("192.0.2.1").Code)

	limited := serve("192.0.2.1")
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.Equal(t, "0", limited.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, limited.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"Too many requests"}`, limited.Body.String())
	assert.Equal(t, 1, recorder.limited["api"])

	// other clients are unaffected
	assert.Equal(t, http.StatusOK, serve("192.0.2.2").Code)
}
