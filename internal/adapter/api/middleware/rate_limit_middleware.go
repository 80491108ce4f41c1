package middleware

import (
	"github.com/labstack/echo/v4"

	"posttrr/internal/infrastructure/ratelimit"
	"posttrr/pkg/errors"
	"posttrr/pkg/logger"
	"posttrr/pkg/response"
)

// IPRateLimit limits requests per client IP. A nil limiter disables it.
func IPRateLimit(limiter *ratelimit.RateLimiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if limiter == nil {
			return next
		}

		return func(c echo.Context) error {
			ip := c.RealIP()

			allowed, wait := limiter.Allow(ip, ratelimit.ActionHTTPRequest)
			if !allowed {
				logger.Warn("RATE LIMIT: Blocked request from IP %s (retry in %v)", ip, wait)
				return response.Error(c, errors.TooManyRequests("Rate limit exceeded", wait))
			}

			return next(c)
		}
	}
}
