package middlewares

import (
	"net/http"

	"github.com/gin-gonic/gin"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

// maxTrackedClients bounds the per-client limiter table.
const maxTrackedClients = 10_000

// RateLimiter throttles requests per client IP with a token bucket.
type RateLimiter struct {
	rate     rate.Limit
	burst    int
	limiters *lru.Cache[string, *rate.Limiter]
}

// NewRateLimiter allows ratePerSec requests per second per client, with
// bursts of up to burst requests.
func NewRateLimiter(ratePerSec, burst int) *RateLimiter {
	limiters, _ := lru.New[string, *rate.Limiter](maxTrackedClients)
	return &RateLimiter{
		rate:     rate.Limit(ratePerSec),
		burst:    burst,
		limiters: limiters,
	}
}

func (rl *RateLimiter) limiter(ip string) *rate.Limiter {
	if l, ok := rl.limiters.Get(ip); ok {
		return l
	}
	l := rate.NewLimiter(rl.rate, rl.burst)
	// A concurrent request from the same client may have won the race.
	if prev, ok, _ := rl.limiters.PeekOrAdd(ip, l); ok {
		return prev
	}
	return l
}

func (rl *RateLimiter) RateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.limiter(c.ClientIP()).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"success": false, "error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
