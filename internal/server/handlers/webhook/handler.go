package webhook

import (
	"time"

	"oip/fsbot/internal/queue"
	"oip/fsbot/pkg/logger"
	"oip/fsbot/pkg/signature"
)

const defaultMaxBodyBytes = 1 << 20

// Options 可选配置
type Options struct {
	// VerificationToken 非空时要求回调 token 一致
	VerificationToken string
	// MaxBodyBytes 请求体上限
	MaxBodyBytes int64
	// Replay 为 nil 时不做 nonce 重放拦截
	Replay *signature.ReplayGuard
}

// WebhookHandler 回调接收处理器
type WebhookHandler struct {
	validator *signature.Validator
	producer  queue.Producer
	opts      Options
	log       logger.Logger

	// Now 可替换的时钟（测试用）
	Now func() time.Time
}

// NewWebhookHandler 创建回调接收处理器实例
func NewWebhookHandler(validator *signature.Validator, producer queue.Producer, log logger.Logger, opts Options) *WebhookHandler {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &WebhookHandler{
		validator: validator,
		producer:  producer,
		opts:      opts,
		log:       log,
		Now:       time.Now,
	}
}
