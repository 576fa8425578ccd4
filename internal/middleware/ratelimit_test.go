package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leolab/lottery-engine/internal/config"
)

func limiterFixture(t *testing.T, cfg config.RateLimitConfig) (*miniredis.Miniredis, *echo.Echo) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	e := echo.New()
	e.Use(RateLimit(cfg, rdb))
	e.POST("/v1/draw", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	return mr, e
}

func doRequest(e *echo.Echo, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/draw", nil)
	req.RemoteAddr = ip + ":12345"
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestRateLimitAllowsWithinBudget(t *testing.T) {
	_, e := limiterFixture(t, config.RateLimitConfig{
		Enabled:        true,
		Capacity:       3,
		RefillTokens:   1,
		RefillInterval: time.Minute,
		TTL:            5 * time.Minute,
		Prefix:         "rl",
	})

	for i := 0; i < 3; i++ {
		rec := doRequest(e, "10.0.0.1")
		require.Equal(t, http.StatusOK, rec.Code, "request %d", i)
	}

	rec := doRequest(e, "10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, "3", rec.Header().Get("X-RateLimit-Limit"))
}

func TestRateLimitBucketsPerClient(t *testing.T) {
	_, e := limiterFixture(t, config.RateLimitConfig{
		Enabled:        true,
		Capacity:       1,
		RefillTokens:   1,
		RefillInterval: time.Minute,
		TTL:            5 * time.Minute,
		Prefix:         "rl",
	})

	require.Equal(t, http.StatusOK, doRequest(e, "10.0.0.1").Code)
	assert.Equal(t, http.StatusTooManyRequests, doRequest(e, "10.0.0.1").Code)
	// a different client has its own bucket
	assert.Equal(t, http.StatusOK, doRequest(e, "10.0.0.2").Code)
}

func TestRateLimitDisabledPassesThrough(t *testing.T) {
	_, e := limiterFixture(t, config.RateLimitConfig{Enabled: false})

	for i := 0; i < 10; i++ {
		require.Equal(t, http.StatusOK, doRequest(e, "10.0.0.1").Code)
	}
}

func TestRateLimitFailsOpenOnCacheOutage(t *testing.T) {
	mr, e := limiterFixture(t, config.RateLimitConfig{
		Enabled:        true,
		Capacity:       1,
		RefillTokens:   1,
		RefillInterval: time.Minute,
		TTL:            5 * time.Minute,
		Prefix:         "rl",
	})
	mr.Close()

	for i := 0; i < 5; i++ {
		require.Equal(t, http.StatusOK, doRequest(e, "10.0.0.1").Code)
	}
}
