package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracklane/tracklane/pkg/auth"
)

func TestRateLimiter(t *testing.T) {
	t.Run("allows up to the window limit", func(t *testing.T) {
		limiter := NewRateLimiter(&RateLimitConfig{RequestsPerWindow: 3, WindowDuration: time.Minute})

		assert.True(t, limiter.Allow("user:10"))
		assert.True(t, limiter.Allow("user:10"))
		assert.True(t, limiter.Allow("user:10"))
		assert.False(t, limiter.Allow("user:10"))
	})

	t.Run("keys are independent", func(t *testing.T) {
		limiter := NewRateLimiter(&RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Minute})

		assert.True(t, limiter.Allow("user:10"))
		assert.False(t, limiter.Allow("user:10"))
		assert.True(t, limiter.Allow("user:20"))
	})

	t.Run("cleanup drops expired windows", func(t *testing.T) {
		limiter := NewRateLimiter(&RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Nanosecond})

		assert.True(t, limiter.Allow("user:10"))
		time.Sleep(time.Millisecond)
		limiter.Cleanup()

		limiter.mu.Lock()
		defer limiter.mu.Unlock()
		assert.Empty(t, limiter.windows)
	})
}

func TestRateLimitMiddleware(t *testing.T) {
	limiter := NewRateLimiter(&RateLimitConfig{RequestsPerWindow: 2, WindowDuration: time.Minute})
	handler := RateLimitMiddleware(limiter)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func(userID int64) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if userID != 0 {
			ctx := auth.WithAuthContext(req.Context(), &auth.AuthContext{User: &auth.User{ID: userID}})
			req = req.WithContext(ctx)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, do(10))
	assert.Equal(t, http.StatusOK, do(10))
	assert.Equal(t, http.StatusTooManyRequests, do(10))
	assert.Equal(t, http.StatusOK, do(20))
	assert.Equal(t, http.StatusOK, do(0))
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestDistributedRateLimiter(t *testing.T) {
	ctx := context.Background()

	t.Run("counts across a shared backend", func(t *testing.T) {
		_, client := newTestRedis(t)
		limiter := NewDistributedRateLimiter(client, &RateLimitConfig{RequestsPerWindow: 2, WindowDuration: time.Minute}, "ratelimit:test")

		allowed, err := limiter.Allow(ctx, "user:10")
		require.NoError(t, err)
		assert.True(t, allowed)

		allowed, err = limiter.Allow(ctx, "user:10")
		require.NoError(t, err)
		assert.True(t, allowed)

		allowed, err = limiter.Allow(ctx, "user:10")
		require.NoError(t, err)
		assert.False(t, allowed)

		remaining, err := limiter.Remaining(ctx, "user:10")
		require.NoError(t, err)
		assert.Equal(t, 0, remaining)
	})

	t.Run("window expiry restores quota", func(t *testing.T) {
		mr, client := newTestRedis(t)
		limiter := NewDistributedRateLimiter(client, &RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Minute}, "ratelimit:test")

		allowed, err := limiter.Allow(ctx, "user:10")
		require.NoError(t, err)
		assert.True(t, allowed)

		mr.FastForward(2 * time.Minute)

		allowed, err = limiter.Allow(ctx, "user:10")
		require.NoError(t, err)
		assert.True(t, allowed)
	})

	t.Run("fails open when redis is down", func(t *testing.T) {
		mr, client := newTestRedis(t)
		limiter := NewDistributedRateLimiter(client, &RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Minute}, "ratelimit:test")
		mr.Close()

		allowed, err := limiter.Allow(ctx, "user:10")
		require.Error(t, err)
		assert.True(t, allowed)
	})

	t.Run("reset clears the counter", func(t *testing.T) {
		_, client := newTestRedis(t)
		limiter := NewDistributedRateLimiter(client, &RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Minute}, "ratelimit:test")

		allowed, err := limiter.Allow(ctx, "user:10")
		require.NoError(t, err)
		assert.True(t, allowed)

		require.NoError(t, limiter.Reset(ctx, "user:10"))

		allowed, err = limiter.Allow(ctx, "user:10")
		require.NoError(t, err)
		assert.True(t, allowed)
	})
}

func TestDistributedRateLimitMiddleware(t *testing.T) {
	_, client := newTestRedis(t)
	mw := NewDistributedRateLimitMiddleware(client)
	handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.7:4242"

	for i := 0; i < 100; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// A different client still has quota.
	other := httptest.NewRequest(http.MethodGet, "/", nil)
	other.RemoteAddr = "198.51.100.8:4242"
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, other)
	assert.Equal(t, http.StatusOK, rec.Code)
}
