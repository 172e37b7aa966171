package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"liar-game/internal/repository"
	"liar-game/internal/service"
)

// RateLimitRule 是挂在路由组上的限流配置。
type RateLimitRule struct {
	// Name 区分不同规则的计数器
	Name        string
	Window      time.Duration
	MaxRequests int
}

// RateLimit 返回一个 Gin 中间件，按固定窗口限制每个客户端的请求数。
// 已登录用户按用户 ID 计数，guest 按客户端 IP 计数。
// 计数器不可用时放行请求并记录日志。
func RateLimit(limiter repository.RateLimitRepository, rule RateLimitRule) gin.HandlerFunc {
	if limiter == nil {
		panic("RateLimitRepository cannot be nil for RateLimit middleware")
	}
	if rule.MaxRequests <= 0 {
		panic("MaxRequests must be positive for RateLimit middleware")
	}
	if rule.Window <= 0 {
		panic("Window must be positive for RateLimit middleware")
	}
	if rule.Name == "" {
		rule.Name = "default"
	}

	return func(c *gin.Context) {
		key := "ratelimit:" + rule.Name + ":" + clientID(c)

		exceeded, err := limiter.CheckRateLimit(c.Request.Context(), key, rule.MaxRequests, rule.Window)
		if err != nil {
			logrus.WithError(err).WithField("key", key).Error("RateLimit: limiter unavailable, allowing request")
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(rule.MaxRequests))
		if exceeded {
			logrus.WithField("key", key).Warn("RateLimit: too many requests")
			retryAfter := int(rule.Window.Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": service.ErrRateLimited.Error()})
			return
		}
		c.Next()
	}
}

func clientID(c *gin.Context) string {
	if p := PrincipalFrom(c); !p.IsGuest() {
		return "user:" + p.ID
	}
	return "ip:" + c.ClientIP()
}
