package middleware

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/yungbote/trackchat-backend/internal/http/response"
)

var errTooManyRequests = errors.New("too many requests")

// RateLimiter hands out one token bucket per client key. Buckets idle for
// longer than idleTTL are swept on the next Allow after the sweep interval.
type RateLimiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	idleTTL time.Duration
	buckets map[string]*bucket
	swept   time.Time
	now     func() time.Time
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		limit:   rate.Limit(perSecond),
		burst:   burst,
		idleTTL: 10 * time.Minute,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

func (rl *RateLimiter) Allow(key string) bool {
	now := rl.now()
	rl.mu.Lock()
	if now.Sub(rl.swept) > rl.idleTTL {
		for k, b := range rl.buckets {
			if now.Sub(b.seen) > rl.idleTTL {
				delete(rl.buckets, k)
			}
		}
		rl.swept = now
	}
	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(rl.limit, rl.burst)}
		rl.buckets[key] = b
	}
	b.seen = now
	rl.mu.Unlock()
	return b.lim.AllowN(now, 1)
}

func (rl *RateLimiter) size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

// RateLimit rejects clients that exceed their bucket with 429. A nil limiter
// disables limiting.
func RateLimit(rl *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl == nil || rl.limit <= 0 {
			c.Next()
			return
		}
		if !rl.Allow(c.ClientIP()) {
			c.Header("Retry-After", "1")
			response.RespondError(c, http.StatusTooManyRequests, "rate_limited", errTooManyRequests)
			return
		}
		c.Next()
	}
}
