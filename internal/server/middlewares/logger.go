package middlewares

import (
	"time"

	"github.com/gin-gonic/gin"

	"oip/fsbot/pkg/logger"
)

// AccessLog 请求访问日志
func AccessLog(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		latency := time.Since(start)
		ctx := c.Request.Context()
		switch {
		case status >= 500:
			log.Errorf(ctx, "[HTTP] %s %s status=%d latency=%v", c.Request.Method, c.Request.URL.Path, status, latency)
		case status >= 400:
			log.Warnf(ctx, "[HTTP] %s %s status=%d latency=%v", c.Request.Method, c.Request.URL.Path, status, latency)
		default:
			log.Infof(ctx, "[HTTP] %s %s status=%d latency=%v", c.Request.Method, c.Request.URL.Path, status, latency)
		}
	}
}
