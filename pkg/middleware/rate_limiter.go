package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"FarmLink/pkg/logger"
)

// RateLimiter 基于 ulule/limiter 的限流中间件
//
// rate 形如 "30-M"（每分钟30次）、"5-S"。按已认证用户限流，
// 未认证请求回退到客户端 IP。
func RateLimiter(rate string) gin.HandlerFunc {
	r, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		logger.Warn("invalid rate format, rate limiter disabled: " + rate)
		return func(c *gin.Context) { c.Next() }
	}

	instance := limiter.New(memory.NewStore(), r)

	return func(c *gin.Context) {
		key := c.ClientIP()
		if userID := CurrentUserID(c); userID != 0 {
			key = "user:" + strconv.FormatUint(uint64(userID), 10)
		}

		lctx, err := instance.Get(c.Request.Context(), key)
		if err != nil {
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(lctx.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(lctx.Remaining, 10))

		if lctx.Reached {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}
