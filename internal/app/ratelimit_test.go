package app

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/grouplan/grouplan/internal/config"
	"github.com/grouplan/grouplan/internal/utils"
	"github.com/grouplan/grouplan/pkg/user"
	"github.com/stretchr/testify/assert"
)

type rateLimitCounter struct {
	limited int
}

func (c *rateLimitCounter) RecordRequest(string, string, int, time.Duration) {}

func (c *rateLimitCounter) RecordAggregation(string, int) {}

func (c *rateLimitCounter) RecordRateLimited(string) {
	c.limited++
}

func limitedRequest(handler http.Handler, userUuid string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/group", nil)
	if userUuid != "" {
		req = req.WithContext(user.WithUser(req.Context(), user.User{Uuid: userUuid}))
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func TestRateLimiter_LimitsPerUser(t *testing.T) {
	clock := utils.NewMockClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	counter := &rateLimitCounter{}
	rl := NewRateLimiter(config.RateLimit{Enabled: true, PerMinute: 60, Burst: 2}, clock, counter)
	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// when
	first := limitedRequest(handler, "u1")
	second := limitedRequest(handler, "u1")
	third := limitedRequest(handler, "u1")
	other := limitedRequest(handler, "u2")

	// then
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, http.StatusTooManyRequests, third.Code)
	assert.Equal(t, "1", third.Header().Get("Retry-After"))
	assert.Equal(t, http.StatusOK, other.Code, "limits are per user")
	assert.Equal(t, 1, counter.limited)

	// a token is refilled after one second
	clock.SetNow(clock.Now().Add(time.Second))
	assert.Equal(t, http.StatusOK, limitedRequest(handler, "u1").Code)
}

func TestRateLimiter_AnonymousRequestsPass(t *testing.T) {
	clock := utils.NewMockClock(time.Now())
	rl := NewRateLimiter(config.RateLimit{Enabled: true, PerMinute: 1, Burst: 1}, clock, nil)
	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, limitedRequest(handler, "").Code)
	}
	assert.Equal(t, 0, rl.size())
}

func TestRateLimiter_CleanupDropsIdleUsers(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := utils.NewMockClock(start)
	rl := NewRateLimiter(config.RateLimit{Enabled: true, PerMinute: 60, Burst: 5}, clock, nil)
	rl.allow("idle")
	clock.SetNow(start.Add(20 * time.Minute))
	rl.allow("active")

	rl.cleanup(10 * time.Minute)

	assert.Equal(t, 1, rl.size())
}
