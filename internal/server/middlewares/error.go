package middlewares

import (
	"github.com/gin-gonic/gin"

	"oip/fsbot/internal/server/ginx"
	"oip/fsbot/pkg/logger"
)

// Recovery 捕获 panic，统一返回 500，不向调用方暴露内部信息
func Recovery(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Errorf(c.Request.Context(), "[HTTP] panic recovered: %v", r)
				ginx.InternalError(c, "internal server error")
			}
		}()
		c.Next()
	}
}

// ErrorHandler 处理链路中未输出响应的 c.Errors
func ErrorHandler(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		log.Errorf(c.Request.Context(), "[HTTP] request error: %v", c.Errors.Last().Err)
		if !c.Writer.Written() {
			ginx.InternalError(c, "internal server error")
		}
	}
}
