package middlewares

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"oip/fsbot/pkg/logger"
)

// HeaderRequestID 请求追踪 ID 请求头
const HeaderRequestID = "X-Request-ID"

// Trace 为每个请求生成或透传 trace_id，写入 Context 与响应头
func Trace() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := strings.TrimSpace(c.GetHeader(HeaderRequestID))
		if traceID == "" || len(traceID) > 64 {
			traceID = uuid.NewString()
		}
		ctx := logger.WithField(c.Request.Context(), logger.FieldTraceID, traceID)
		c.Request = c.Request.WithContext(ctx)
		c.Header(HeaderRequestID, traceID)
		c.Next()
	}
}
