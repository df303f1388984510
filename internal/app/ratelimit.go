package app

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/grouplan/grouplan/internal/config"
	"github.com/grouplan/grouplan/internal/metrics"
	"github.com/grouplan/grouplan/internal/rest"
	"github.com/grouplan/grouplan/internal/utils"
	"github.com/grouplan/grouplan/pkg/user"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const limiterCleanupInterval = 5 * time.Minute

type userLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter keeps one token bucket per user.
type RateLimiter struct {
	limit   rate.Limit
	burst   int
	clock   utils.Clock
	metrics metrics.MetricsCollector

	mu       sync.Mutex
	limiters map[string]*userLimiter

	stopCh chan struct{}
}

func NewRateLimiter(cfg config.RateLimit, clock utils.Clock, collector metrics.MetricsCollector) *RateLimiter {
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limit:    rate.Limit(float64(cfg.PerMinute) / 60.0),
		burst:    burst,
		clock:    clock,
		metrics:  collector,
		limiters: make(map[string]*userLimiter),
		stopCh:   make(chan struct{}),
	}
}

// Start runs the cleanup of idle limiters until Stop is called.
func (rl *RateLimiter) Start() {
	go func() {
		ticker := time.NewTicker(limiterCleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				rl.cleanup(2 * limiterCleanupInterval)
			case <-rl.stopCh:
				return
			}
		}
	}()
}

func (rl *RateLimiter) Stop() {
	close(rl.stopCh)
}

// Middleware must run after the user middleware. Requests without a user are not limited.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userUuid, err := user.CurrentUuid(r.Context())
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		if !rl.allow(userUuid) {
			log.Warnf("rate limit exceeded for user %s", userUuid)
			if rl.metrics != nil {
				rl.metrics.RecordRateLimited(userUuid)
			}
			w.Header().Set("Retry-After", strconv.Itoa(rl.retryAfterSeconds()))
			rest.WriteJSON(w, http.StatusTooManyRequests, rest.ErrorResponse{Error: "rate_limited", Details: "too many requests"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) allow(userUuid string) bool {
	now := rl.clock.Now()
	rl.mu.Lock()
	ul, ok := rl.limiters[userUuid]
	if !ok {
		ul = &userLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.limiters[userUuid] = ul
	}
	ul.lastAccess = now
	rl.mu.Unlock()
	return ul.limiter.AllowN(now, 1)
}

// retryAfterSeconds is the time until one token is refilled.
func (rl *RateLimiter) retryAfterSeconds() int {
	if rl.limit <= 0 {
		return 60
	}
	return max(1, int(math.Ceil(1.0/float64(rl.limit))))
}

func (rl *RateLimiter) cleanup(ttl time.Duration) {
	now := rl.clock.Now()
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for userUuid, ul := range rl.limiters {
		if now.Sub(ul.lastAccess) > ttl {
			delete(rl.limiters, userUuid)
		}
	}
}

func (rl *RateLimiter) size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}
