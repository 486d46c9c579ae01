// ratelimit.go provides Gin middleware that enforces keyed rate limits through a
// ratelimit.Limiter, returning 429 responses with a retry hint once a key is exhausted.
package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/YASSERRMD/nexusERP/internal/ratelimit"
	"github.com/YASSERRMD/nexusERP/internal/telemetry"
)

// RateLimitPolicy binds a limit to a way of keying requests.
type RateLimitPolicy struct {
	// Name labels the rate_limit_rejections_total metric, e.g. "login" or "api".
	Name  string
	Limit ratelimit.Limit
	Key   func(c *gin.Context) string
	// Message is the error body on rejection; defaults to "Rate limit exceeded".
	Message string
	// FailOpen admits requests when the limiter backend is unavailable. When
	// false a backend failure yields 500.
	FailOpen bool
}

// LoginRateLimitPolicy is the fixed-window gate in front of POST /auth/login.
// It fails closed.
func LoginRateLimitPolicy(maxAttempts int, window time.Duration) RateLimitPolicy {
	return RateLimitPolicy{
		Name:    "login",
		Limit:   ratelimit.Limit{Max: maxAttempts, Window: window},
		Key:     LoginRateLimitKey,
		Message: "Too many login attempts. Please try again later.",
	}
}

// APIRateLimitPolicy is the general throttle for authenticated routes. It fails open.
func APIRateLimitPolicy(requestsPerMinute, burst int) RateLimitPolicy {
	return RateLimitPolicy{
		Name:     "api",
		Limit:    ratelimit.PerMinute(requestsPerMinute, burst),
		Key:      APIRateLimitKey,
		FailOpen: true,
	}
}

// RateLimitMiddleware creates a Gin middleware that rate limits requests
func RateLimitMiddleware(limiter ratelimit.Limiter, policy RateLimitPolicy) gin.HandlerFunc {
	message := policy.Message
	if message == "" {
		message = "Rate limit exceeded"
	}
	keyFunc := policy.Key
	if keyFunc == nil {
		keyFunc = APIRateLimitKey
	}

	return func(c *gin.Context) {
		key := keyFunc(c)

		res, err := limiter.Check(c.Request.Context(), key, policy.Limit)
		if err != nil {
			if policy.FailOpen {
				slog.Warn("rate limiter unavailable, admitting request", "policy", policy.Name, "error", err)
				c.Next()
				return
			}
			slog.Error("rate limiter unavailable", "policy", policy.Name, "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(policy.Limit.Max))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))

		if !res.Allowed {
			retryAfter := res.RetryAfter(time.Now())
			telemetry.RateLimitRejectionsTotal.WithLabelValues(policy.Name).Inc()
			slog.Warn("rate limit exceeded", "policy", policy.Name, "key", key)
			c.Header("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   message,
				"resetAt": res.ResetAt.UTC(),
			})
			return
		}

		c.Next()
	}
}

// LoginRateLimitKey keys login attempts by gin's ClientIP. X-Forwarded-For
// only counts when the peer is listed in server.trusted_proxies.
func LoginRateLimitKey(c *gin.Context) string {
	if ip := c.ClientIP(); ip != "" {
		return "login:" + ip
	}
	return "login:unknown"
}

// APIRateLimitKey determines the key for the general throttle.
// Priority: user_id > IP address
func APIRateLimitKey(c *gin.Context) string {
	if userID, exists := c.Get(UserIDKey); exists {
		if id, ok := userID.(string); ok && id != "" {
			return "user:" + id
		}
	}

	ip := c.ClientIP()
	if ip == "" {
		ip = c.Request.RemoteAddr
	}
	return "ip:" + ip
}
