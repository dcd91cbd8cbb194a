package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

type RateLimiterConfig struct {
	Limit  int
	Window time.Duration

	// Skipper exempts requests, such as long lived socket upgrades.
	Skipper func(c echo.Context) bool

	// Now replaces time.Now (for testing).
	Now func() time.Time
}

// RateLimiter allows Limit requests per client IP in each fixed window.
func RateLimiter(cfg RateLimiterConfig) echo.MiddlewareFunc {
	type bucket struct {
		count int
		start time.Time
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	var (
		mu        sync.Mutex
		buckets   = make(map[string]*bucket)
		lastSweep time.Time
	)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.Skipper != nil && cfg.Skipper(c) {
				return next(c)
			}

			now := cfg.Now()
			key := c.RealIP()

			mu.Lock()
			if now.Sub(lastSweep) > cfg.Window {
				for ip, b := range buckets {
					if now.Sub(b.start) > cfg.Window {
						delete(buckets, ip)
					}
				}
				lastSweep = now
			}

			b, ok := buckets[key]
			if !ok || now.Sub(b.start) > cfg.Window {
				b = &bucket{start: now}
				buckets[key] = b
			}

			if b.count >= cfg.Limit {
				retry := cfg.Window - now.Sub(b.start)
				mu.Unlock()
				c.Response().Header().Set("Retry-After", strconv.Itoa(int(retry.Seconds())+1))
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}

			b.count++
			mu.Unlock()

			return next(c)
		}
	}
}
