package routers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"oip/fsbot/internal/server/handlers/outcome"
	"oip/fsbot/internal/server/handlers/webhook"
	"oip/fsbot/internal/server/middlewares"
	"oip/fsbot/pkg/logger"
)

// SetupRoutes 配置所有路由，outcomeHandler 为 nil 时不注册查询接口
func SetupRoutes(service string, webhookHandler *webhook.WebhookHandler, outcomeHandler *outcome.OutcomeHandler, log logger.Logger) *gin.Engine {
	r := gin.New()

	r.Use(middlewares.Trace())
	r.Use(middlewares.AccessLog(log))
	r.Use(middlewares.Recovery(log))
	r.Use(middlewares.ErrorHandler(log))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": service,
		})
	})

	r.POST("/webhook", webhookHandler.Receive)

	if outcomeHandler != nil {
		api := r.Group("/api/v1")
		api.GET("/messages/:id/outcomes", outcomeHandler.List)
	}

	return r
}
