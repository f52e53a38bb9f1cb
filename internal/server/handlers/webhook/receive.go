package webhook

import (
	"bytes"
	"context"
	"crypto/subtle"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"oip/fsbot/internal/model"
	"oip/fsbot/internal/server/ginx"
	"oip/fsbot/pkg/logger"
)

// Receive 接收回调
// POST /webhook
// 校验签名 → 重放拦截 → 解析 → 路由（challenge 回显 / 入队 / 忽略）
func (h *WebhookHandler) Receive(c *gin.Context) {
	ctx := c.Request.Context()

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.opts.MaxBodyBytes))
	if err != nil {
		h.log.Warnf(ctx, "[Webhook] read body failed: %v", err)
		ginx.BadRequest(c, "invalid request body")
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		ginx.BadRequest(c, "empty request body")
		return
	}

	if !h.validator.Validate(c.Request.Header, body) {
		h.log.Warnf(ctx, "[Webhook] signature rejected: remote=%s", c.ClientIP())
		ginx.Unauthorized(c)
		return
	}

	if h.opts.Replay != nil {
		fresh, err := h.opts.Replay.Accept(ctx, c.Request.Header)
		if err != nil {
			h.log.Errorf(ctx, "[Webhook] replay ledger unavailable: %v", err)
			ginx.InternalError(c, "temporarily unavailable")
			return
		}
		if !fresh {
			h.log.Warnf(ctx, "[Webhook] replayed nonce rejected: remote=%s", c.ClientIP())
			ginx.Unauthorized(c)
			return
		}
	}

	env, err := model.ParseEnvelope(body)
	if err != nil {
		h.log.Warnf(ctx, "[Webhook] malformed envelope: %v", err)
		ginx.BadRequest(c, "malformed event payload")
		return
	}

	if want := h.opts.VerificationToken; want != "" &&
		subtle.ConstantTimeCompare([]byte(want), []byte(env.Token)) != 1 {
		h.log.Warnf(ctx, "[Webhook] verification token mismatch: event_id=%s", env.EventID)
		ginx.Unauthorized(c)
		return
	}

	switch env.EventType {
	case model.EventTypeURLVerification:
		h.log.Infof(ctx, "[Webhook] url verification")
		c.JSON(http.StatusOK, gin.H{"challenge": env.Challenge})

	case model.EventTypeMessageReceive:
		h.enqueue(c, env)

	default:
		h.log.Infof(ctx, "[Webhook] unhandled event ignored: event_id=%s", env.EventID)
		ginx.Success(c, gin.H{"status": "ignored"})
	}
}

func (h *WebhookHandler) enqueue(c *gin.Context, env *model.InboundEnvelope) {
	ctx := c.Request.Context()

	if env.SenderType == model.SenderTypeApp {
		h.log.Debugf(ctx, "[Webhook] app-sent message ignored: event_id=%s", env.EventID)
		ginx.Success(c, gin.H{"status": "ignored"})
		return
	}

	msg, err := env.ToQueuedMessage(h.Now())
	if err == nil {
		err = msg.Validate()
	}
	if err != nil {
		h.log.Warnf(ctx, "[Webhook] invalid message event: %v", err)
		ginx.BadRequest(c, "invalid message event")
		return
	}

	ctx = logger.WithField(ctx, logger.FieldMessageID, msg.MessageID)
	ctx = logger.WithField(ctx, logger.FieldChatID, msg.ChatID)
	if err := h.producer.Enqueue(ctx, msg); err != nil {
		h.log.Errorf(ctx, "[Webhook] enqueue failed: %v", err)
		h.releaseNonce(c)
		ginx.InternalError(c, "failed to accept message")
		return
	}

	h.log.Infof(ctx, "[Webhook] message queued: type=%s", msg.MessageType)
	ginx.Success(c, gin.H{"message_id": msg.MessageID, "status": "queued"})
}

// releaseNonce 未受理的请求撤销 nonce 占用，平台重试同一签名请求时不会被判为重放
func (h *WebhookHandler) releaseNonce(c *gin.Context) {
	if h.opts.Replay == nil {
		return
	}
	ctx := c.Request.Context()
	if err := h.opts.Replay.Release(context.WithoutCancel(ctx), c.Request.Header); err != nil {
		h.log.Warnf(ctx, "[Webhook] release nonce failed: %v", err)
	}
}
