package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"taskmanager/internal/pkg/metrics"

	"github.com/gin-gonic/gin"
)

// Limiter 按 key 做非阻塞限流。
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// AuthRateLimit 对认证类接口做 per-IP 限流。
//
// 取不到令牌时直接 429；Redis 故障时记录日志并放行。
func AuthRateLimit(limiter Limiter, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, err := limiter.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			if logger != nil {
				logger.Warn("rate limit check failed", slog.String("error", err.Error()))
			}
			c.Next()
			return
		}
		if !ok {
			if metrics.RateLimitRejectedTotal != nil {
				metrics.RateLimitRejectedTotal.Inc()
			}
			c.JSON(http.StatusTooManyRequests, gin.H{
				"result":  false,
				"status":  "error",
				"message": "Too many requests. Please try again later.",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}
