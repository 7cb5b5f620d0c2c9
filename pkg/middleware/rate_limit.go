package middleware

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/paastest/clustertest/pkg/metrics"
	"golang.org/x/time/rate"
)

// limiterSet lazily creates one token bucket per client key.
type limiterSet struct {
	mu    sync.Mutex
	rps   rate.Limit
	burst int
	byKey map[string]*rate.Limiter
}

func (s *limiterSet) get(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	lim, ok := s.byKey[key]
	if !ok {
		lim = rate.NewLimiter(s.rps, s.burst)
		s.byKey[key] = lim
	}
	return lim
}

// clientKey identifies the caller by IP; the apps have no notion of users.
func clientKey(c *gin.Context) string {
	ip := c.ClientIP()
	if ip == "" {
		ip = "unknown"
	}
	return "ip:" + ip
}

func reject(c *gin.Context, retryAfter string) {
	c.Header("Retry-After", retryAfter)
	c.String(http.StatusTooManyRequests, "Rate limit exceeded")
	c.Abort()
}

// RateLimitMiddleware enforces an in-memory token bucket per client IP.
// rps = allowed events per second, burst = maximum tokens in bucket.
// Each call returns a middleware with its own bucket set.
func RateLimitMiddleware(rps float64, burst int) gin.HandlerFunc {
	set := &limiterSet{rps: rate.Limit(rps), burst: burst, byKey: map[string]*rate.Limiter{}}
	return func(c *gin.Context) {
		if !set.get(clientKey(c)).Allow() {
			metrics.RateLimitRejected.WithLabelValues("memory").Inc()
			reject(c, "1")
			return
		}
		metrics.RateLimitAllowed.WithLabelValues("memory").Inc()
		c.Next()
	}
}
