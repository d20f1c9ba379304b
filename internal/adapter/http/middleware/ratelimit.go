package middleware

import (
	"strconv"
	"time"

	"event-dispatcher/internal/core/ports"
	"event-dispatcher/pkg/apperror"
	"event-dispatcher/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RateLimitRule defines a rate limit for an endpoint group.
type RateLimitRule struct {
	Limit  int64
	Window time.Duration
}

// DefaultRateLimitRules returns the ingress limits per endpoint group.
func DefaultRateLimitRules() map[string]RateLimitRule {
	return map[string]RateLimitRule{
		"auth_token": {Limit: 10, Window: time.Minute},
		"events":     {Limit: 600, Window: time.Minute},
		"admin":      {Limit: 120, Window: time.Minute},
	}
}

// RateLimiter creates a rate-limiting middleware for a given endpoint group.
// It shares the fixed-window store used for target admission, under its own
// key prefix.
func RateLimiter(store ports.WindowStore, group string, rule RateLimitRule, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "ingress:" + group + ":" + extractIdentifier(c)
		now := time.Now()

		result, err := store.Hit(c.Request.Context(), key, rule.Limit, rule.Window, now)
		if err != nil {
			log.Warn().Err(err).Str("group", group).Msg("rate limit check failed, allowing request (degraded mode)")
			c.Next()
			return
		}

		// Always set rate limit headers
		c.Header("X-RateLimit-Limit", strconv.FormatInt(result.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

		if !result.Allowed {
			retryAfter := int64(result.ResetAt.Sub(now).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))
			response.Error(c, apperror.ErrRateLimitExceeded())
			c.Abort()
			return
		}

		c.Next()
	}
}

// extractIdentifier keys authenticated routes by operator and public ones
// by client IP.
func extractIdentifier(c *gin.Context) string {
	if op := Operator(c); op != "" {
		return "op:" + op
	}
	return "ip:" + c.ClientIP()
}
