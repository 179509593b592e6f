package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zerotrading/zero/internal/bus"
	"github.com/zerotrading/zero/pkg/config"
	"github.com/zerotrading/zero/pkg/redis"
)

func disabledLimiter(t *testing.T) *redis.RateLimiter {
	t.Helper()
	cfg := &config.Config{Redis: config.RedisConfig{Enabled: false}}
	client, err := redis.New(cfg)
	require.NoError(t, err)
	return redis.NewRateLimiter(client, "test")
}

func TestRateLimitAdmitsWhenRedisDisabled(t *testing.T) {
	router := NewRouter(NewHandler(bus.NewMemory(), testLogger()), disabledLimiter(t), testLogger())

	// Empty bus answers 404, never 429: the disabled limiter admits all.
	rec := doGet(t, router, "/api/v1/regime")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRateLimitNeverBudgetsHealthOrMetrics(t *testing.T) {
	router := NewRouter(NewHandler(bus.NewMemory(), testLogger()), disabledLimiter(t), testLogger())

	for _, path := range []string{"/health", "/metrics"} {
		rec := doGet(t, router, path)
		assert.NotEqual(t, http.StatusTooManyRequests, rec.Code, path)
	}
}

func TestRecoveryMiddlewareTurnsPanicInto500(t *testing.T) {
	panicky := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})
	wrapped := recoveryMiddleware(testLogger())(panicky)

	rec := doGet(t, wrapped, "/anything")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Internal server error")
}
