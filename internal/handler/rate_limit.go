package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prperemyshlev/estate-auth/internal/dto"
	"github.com/prperemyshlev/estate-auth/internal/service"
	"go.uber.org/zap"
)

// Limiter is the sliding window used by RateLimitMiddleware
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	GetRemainingRequests(ctx context.Context, key string, limit int, window time.Duration) (int, error)
}

// RateLimitMiddleware limits requests per key over a sliding window.
// Limiter failures other than a full window let the request through.
func RateLimitMiddleware(limiter Limiter, limit int, window time.Duration, keyFunc func(*gin.Context) string, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		key := keyFunc(c)
		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))

		_, err := limiter.Allow(c.Request.Context(), key, limit, window)
		if err != nil {
			var exceeded *service.RateLimitExceededError
			if errors.As(err, &exceeded) {
				// the wait is logged, not disclosed
				logger.Debug("Rate limit exceeded", zap.String("key", key), zap.Duration("retry_after", exceeded.RetryAfter))
				c.Header("X-RateLimit-Remaining", "0")
				c.AbortWithStatusJSON(http.StatusTooManyRequests, dto.ErrorResponse{
					Error:   http.StatusText(http.StatusTooManyRequests),
					Message: "Too many requests, please try again later",
				})
				return
			}

			logger.Warn("Rate limiter unavailable", zap.String("key", key), zap.Error(err))
			c.Next()
			return
		}

		if remaining, err := limiter.GetRemainingRequests(c.Request.Context(), key, limit, window); err == nil {
			c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		}

		c.Next()
	}
}

// RouteIPKey scopes the limit to the matched route and the client IP
func RouteIPKey(c *gin.Context) string {
	return c.FullPath() + ":" + IPBasedKey(c)
}

// IPBasedKey keys on the client IP. Forwarding headers count only when the
// engine trusts the sending proxy.
func IPBasedKey(c *gin.Context) string {
	return c.ClientIP()
}
