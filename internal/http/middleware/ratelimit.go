// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file holds the per-identity token-bucket limiter. Buckets live in
// process memory and idle ones are swept every sweepEvery lookups; it protects
// the single bot backend process and is not an authorization mechanism.
package middleware

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// KeyFunc names the bucket a request draws from.
type KeyFunc func(*gin.Context) string

// KeyByUserOrIP keys buckets by user: the authenticated "userID" context
// value, else the ":id" of a /users/:id route. Other requests are keyed by
// client IP. Every bot user shares the gateway's IP, so per-user buckets keep
// one noisy chat from starving the others.
func KeyByUserOrIP() KeyFunc {
	return func(c *gin.Context) string {
		if s, _ := c.Value("userID").(string); s != "" {
			return "user:" + s
		}
		if id := c.Param("id"); id != "" && strings.Contains(c.FullPath(), "/users/:id") {
			return "user:" + id
		}
		return "ip:" + c.ClientIP()
	}
}

type bucket struct {
	lim  *rate.Limiter
	used time.Time
}

const (
	sweepEvery = 5000
	idleAfter  = 10 * time.Minute
)

// RateLimiter hands out one token bucket per key. Safe for concurrent use.
type RateLimiter struct {
	every rate.Limit
	burst int
	key   KeyFunc
	idle  time.Duration

	mu      sync.Mutex
	buckets map[string]*bucket
	lookups int
}

// NewRateLimiter refills rps tokens per second up to burst, which is raised
// to 1 when smaller.
func NewRateLimiter(rps float64, burst int, key KeyFunc) *RateLimiter {
	return &RateLimiter{
		every:   rate.Limit(rps),
		burst:   max(burst, 1),
		key:     key,
		idle:    idleAfter,
		buckets: map[string]*bucket{},
	}
}

// sweepLocked drops buckets unused for rl.idle. Callers hold rl.mu.
func (rl *RateLimiter) sweepLocked(now time.Time) {
	for k, b := range rl.buckets {
		if now.Sub(b.used) >= rl.idle {
			delete(rl.buckets, k)
		}
	}
	rl.lookups = 0
}

// limiter returns the bucket for key, creating it on first use. The sweep
// runs first, so a bucket idle past rl.idle starts over full.
func (rl *RateLimiter) limiter(key string) *rate.Limiter {
	now := time.Now()
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if rl.lookups++; rl.lookups >= sweepEvery {
		rl.sweepLocked(now)
	}
	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(rl.every, rl.burst)}
		rl.buckets[key] = b
	}
	b.used = now
	return b.lim
}

// IsRateBypass reports whether the request is an idempotent replay that
// must not consume a token.
func IsRateBypass(c *gin.Context) bool {
	b, _ := c.Value(ctxKeyRateBypass).(bool)
	return b
}

// Handler enforces the per-key limit. A denied request gets 429 rate_limited
// with Retry-After in whole seconds; its reservation is cancelled so waiting
// clients are not penalized twice.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) {
			c.Next()
			return
		}

		res := rl.limiter(rl.key(c)).Reserve()
		wait := res.Delay()
		if res.OK() && wait == 0 {
			c.Next()
			return
		}
		res.Cancel()

		retry := 1
		if res.OK() {
			retry = max(1, int(math.Ceil(wait.Seconds())))
		}
		c.Header("Retry-After", strconv.Itoa(retry))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": requestIDOf(c),
			"code":       "rate_limited",
			"message":    "too many requests, retry later",
		})
	}
}
