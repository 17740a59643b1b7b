// Package ratelimit implements a fixed-window request limiter on redis.
package ratelimit

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// Limiter counts hits per key in fixed windows. A nil client or a
// non-positive limit disables it.
type Limiter struct {
	rdb    *redis.Client
	limit  int
	window time.Duration
}

func New(rdb *redis.Client, limit int, window time.Duration) *Limiter {
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{rdb: rdb, limit: limit, window: window}
}

func (l *Limiter) enabled() bool {
	return l != nil && l.rdb != nil && l.limit > 0
}

// Allow reports whether another hit on resource by id fits in the current window.
func (l *Limiter) Allow(ctx context.Context, resource, id string) (bool, error) {
	if !l.enabled() {
		return true, nil
	}

	key := fmt.Sprintf("rl:%s:%s", resource, id)

	// INCR and set EXPIRE if new
	cnt, err := l.rdb.Incr(ctx, key).Result()
	if err != nil {
		return false, err
	}
	if cnt == 1 {
		if err := l.rdb.Expire(ctx, key, l.window).Err(); err != nil {
			return false, err
		}
	}
	return cnt <= int64(l.limit), nil
}

// Middleware limits requests to resource, keyed by the id keyFn returns.
// Redis failures let the request through.
func (l *Limiter) Middleware(resource string, keyFn func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.enabled() {
			c.Next()
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 500*time.Millisecond)
		defer cancel()

		allowed, err := l.Allow(ctx, resource, keyFn(c))
		if err != nil {
			log.Printf("[WARN] ratelimit: %s check failed, allowing request: %v", resource, err)
			c.Next()
			return
		}
		if !allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded, try again later",
				"code":  "rate_limited",
			})
			return
		}
		c.Next()
	}
}

// ByClientIP keys requests by remote address.
func ByClientIP(c *gin.Context) string {
	return "ip:" + c.ClientIP()
}
