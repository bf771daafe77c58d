package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/smallbiznis/rewardguard/internal/pipeline"
)

const idleBucketTTL = 5 * time.Minute

// RateLimiter throttles requests per route scope and client IP.
type RateLimiter struct {
	limit   rate.Limit
	burst   int
	now     func() time.Time
	mu      sync.Mutex
	buckets map[bucketKey]*bucket
}

type bucketKey struct {
	scope string
	ip    string
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter returns nil when requestsPerMinute is not positive, which
// disables throttling.
func NewRateLimiter(requestsPerMinute int) *RateLimiter {
	if requestsPerMinute <= 0 {
		return nil
	}
	return &RateLimiter{
		limit:   rate.Limit(float64(requestsPerMinute) / 60.0),
		burst:   max(requestsPerMinute/10, 1),
		now:     time.Now,
		buckets: make(map[bucketKey]*bucket),
	}
}

// Limit returns middleware throttling the named scope. Each scope keeps its
// own buckets, so one route exhausting its budget leaves others untouched.
func (r *RateLimiter) Limit(scope string) gin.HandlerFunc {
	if r == nil {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		now := r.now()
		lim := r.bucketFor(bucketKey{scope: scope, ip: c.ClientIP()}, now)
		if !lim.AllowN(now, 1) {
			c.Header("Retry-After", retryAfter(lim, now))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, pipeline.ErrorBody{
				Status:  "error",
				Code:    "RATE_LIMITED",
				Message: "Too many requests. Please slow down.",
			})
			return
		}
		c.Next()
	}
}

func retryAfter(lim *rate.Limiter, now time.Time) string {
	r := lim.ReserveN(now, 1)
	delay := r.DelayFrom(now)
	r.CancelAt(now)
	return strconv.Itoa(int(math.Ceil(max(delay.Seconds(), 1))))
}

func (r *RateLimiter) bucketFor(key bucketKey, now time.Time) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.buckets[key]; ok {
		b.lastSeen = now
		return b.limiter
	}

	r.evictIdleLocked(now)
	b := &bucket{limiter: rate.NewLimiter(r.limit, r.burst), lastSeen: now}
	r.buckets[key] = b
	return b.limiter
}

func (r *RateLimiter) evictIdleLocked(now time.Time) {
	for key, b := range r.buckets {
		if now.Sub(b.lastSeen) > idleBucketTTL {
			delete(r.buckets, key)
		}
	}
}
